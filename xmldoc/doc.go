// Package xmldoc is the parsed document tree consumed by the profile
// reconciler and the document tree model: elements with qualified tag
// names, ordered attributes, ordered children and an optional leading
// comment.
package xmldoc

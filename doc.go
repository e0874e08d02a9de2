/*
Package xmlmill is the core of an XML authoring tool backed by a
persistent profile: a store of the element names, comments, child
elements, attributes and attribute values seen in the documents a user
works on.

While a document is edited the core keeps the profile up to date and
answers the questions an editor asks: which children, attributes and
values are known for an element, and whether a document's root is known
to the active profile. Knowledge is only ever added by editing; nothing is
forgotten unless explicitly removed.

Packages, leaf first:

	xmerr      error taxonomy
	xmlutil    qualified name helpers
	message    notification bus
	schema     profile storage (SQLite) and the Schema Store
	registry   named profile connections
	xmldoc     parsed documents, parsing and encoding
	reconcile  one-pass batch import of a whole document
	doctree    the document being edited, kept in sync with the profile
	query      read-only choices for UI population
	session    an editing session tying the above together

The xmlmill command in cmd/xmlmill exposes profiles and queries on the
command line.
*/
package xmlmill

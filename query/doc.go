// Package query is the read-only view of a profile used to populate
// element, attribute and value choices. Results are sorted and free of
// duplicates; value choices start with the NotSet placeholder.
package query

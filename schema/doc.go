// Package schema stores profile knowledge: the element names seen in a
// class of XML documents, their comments, children and attributes, the
// values observed per (element, attribute) pair, and the element names
// valid as document roots.
//
// A profile lives in one SQLite file opened with Open. A Store targets at
// most one attached Conn at a time; every Store operation fails with
// xmerr.ErrNoActiveConnection when nothing is attached.
//
// Knowledge is additive
//
// The Update* operations only ever add. Dependent data has a hard
// precondition: values may only be recorded for an attribute already
// associated with its element, and attributes, children and comments only
// for an element already recorded. Violations fail with
// xmerr.ErrUnknownElement or xmerr.ErrUnknownAttribute instead of creating
// the missing record. The Remove* operations are explicit and narrow;
// removing an attribute removes its values and removing an element removes
// everything recorded under it.
//
// Transactions
//
// Apply runs a function against a Tx bound to one storage transaction and
// commits or discards everything it did. Each single Store mutation is an
// Apply of its own. Apply holds the store lock exclusively and ignores
// context cancellation once started.
package schema

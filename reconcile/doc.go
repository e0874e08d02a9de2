// Package reconcile merges a whole document's structure into a profile.
//
// Reconciliation has two phases. Collect walks the document once and
// accumulates, per distinct element name, everything the document says
// about it. Plan.Apply then writes the accumulated sets in dependency order
// inside one store transaction, so the number of store writes depends on
// the number of distinct names rather than the size of the document, and a
// failure leaves the profile untouched.
//
// The collect phase may run in the background (see Background) and can be
// abandoned by cancelling its context. The apply phase runs to completion
// or fails atomically.
package reconcile

// Package doctree is the in-memory model of the document being edited.
//
// Nodes are held in an arena owned by the Tree and addressed by NodeID.
// Identity, not tag name, is the key: renaming one node never renames
// other nodes with the same tag. A node's parent is stored as an id and is
// used for navigation only; ownership flows from parent to children.
//
// Node lifecycle
//
//	Detached -> Attached -> Removed
//
// Only attached nodes may be mutated. Removing a node removes its whole
// subtree.
//
// Profile synchronisation
//
// Each edit records in the profile whatever it adds (the element, its
// parent association or root mark, included attributes and their values,
// comments) before the edit is applied to the tree and before the
// NodeChanged event is published. If the profile write fails the tree is
// not modified. Removing nodes never removes profile knowledge.
package doctree

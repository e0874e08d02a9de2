// Package xmlutil holds small helpers for XML names shared by the
// document parser, encoder and tree model.
package xmlutil

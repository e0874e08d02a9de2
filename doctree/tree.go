package doctree

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/message"
	"github.com/williamhallatt/xmlmill/xmerr"
	"github.com/williamhallatt/xmlmill/xmldoc"
)

// NodeID identifies a node within a Tree. The zero NodeID is no node.
type NodeID int

// State is a node's lifecycle state.
type State int

const (
	// Detached nodes are constructed but not linked into the document.
	Detached State = iota
	// Attached nodes are the root or reachable from it. Only attached
	// nodes may be mutated.
	Attached
	// Removed nodes were unlinked together with their subtree.
	Removed
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attached:
		return "attached"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Attribute is a node attribute. Excluded attributes are known to the
// profile but not written to the document.
type Attribute struct {
	Name     string
	Value    string
	Included bool
}

// Node is a snapshot of one document node.
type Node struct {
	ID    NodeID
	Name  string
	State State
	Attrs []Attribute
	// Children in document order.
	Children []NodeID
	// Parent is for navigation only; zero for the root and for nodes that
	// were never attached.
	Parent  NodeID
	Comment string
	Text    string
}

func (n *Node) clone() Node {
	c := *n
	c.Attrs = append([]Attribute(nil), n.Attrs...)
	c.Children = append([]NodeID(nil), n.Children...)
	return c
}

func (n *Node) attr(name string) int {
	for i, a := range n.Attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Schema is the part of the profile store the model keeps in step with the
// document. *schema.Store implements it.
type Schema interface {
	AddElement(ctx context.Context, name string, comments, children, attributes []string) (bool, error)
	UpdateElementComments(ctx context.Context, name string, comments []string) error
	UpdateElementChildren(ctx context.Context, name string, children []string) error
	UpdateElementAttributes(ctx context.Context, name string, attributes []string) error
	UpdateAttributeValues(ctx context.Context, name, attribute string, values []string) error
	MarkRoot(ctx context.Context, name string) error
	AttributesOf(ctx context.Context, name string) ([]string, error)
	ValuesOf(ctx context.Context, name, attribute string) ([]string, error)
	ChildrenOf(ctx context.Context, name string) ([]string, error)
	CommentsOf(ctx context.Context, name string) ([]string, error)
}

// Tree is the document being edited. Nodes live in an arena and are
// addressed by NodeID; callers never hold references into the tree.
//
// Every mutation records what it adds in the profile before the mutation
// is considered complete. If the profile rejects the write the tree is
// left unchanged. A Tree is not safe for concurrent use.
type Tree struct {
	schema Schema
	bus    *message.Bus

	nodes []Node
	root  NodeID
}

// Option configures a Tree.
type Option func(*Tree)

// WithBus publishes NodeChanged events on b after each mutation.
func WithBus(b *message.Bus) Option {
	return func(t *Tree) { t.bus = b }
}

// New returns an empty tree kept in step with s.
func New(s Schema, opts ...Option) *Tree {
	t := &Tree{schema: s}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reset discards every node.
func (t *Tree) Reset() {
	t.nodes = nil
	t.root = 0
}

// Root returns the root node, or zero if the document is empty.
func (t *Tree) Root() NodeID { return t.root }

// Len returns the number of nodes ever created since the last Reset,
// including removed nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns a copy of the node.
func (t *Tree) Node(id NodeID) (Node, error) {
	n := t.get(id)
	if n == nil {
		return Node{}, xmerr.InvalidNode(int(id))
	}
	return n.clone(), nil
}

func (t *Tree) get(id NodeID) *Node {
	if id <= 0 || int(id) > len(t.nodes) {
		return nil
	}
	return &t.nodes[id-1]
}

func (t *Tree) attached(id NodeID) (*Node, error) {
	n := t.get(id)
	if n == nil || n.State != Attached {
		return nil, xmerr.InvalidNode(int(id))
	}
	return n, nil
}

func (t *Tree) newNode(name string) NodeID {
	t.nodes = append(t.nodes, Node{ID: NodeID(len(t.nodes) + 1), Name: name, State: Detached})
	return NodeID(len(t.nodes))
}

// link attaches a detached node under parent at index, or as the root
// when parent is zero. Out of range indexes append.
func (t *Tree) link(id, parent NodeID, index int) {
	n := t.get(id)
	n.Parent = parent
	n.State = Attached
	if parent == 0 {
		t.root = id
		return
	}
	p := t.get(parent)
	if index < 0 || index >= len(p.Children) {
		p.Children = append(p.Children, id)
		return
	}
	p.Children = append(p.Children, 0)
	copy(p.Children[index+1:], p.Children[index:])
	p.Children[index] = id
}

func (t *Tree) changed(id NodeID) {
	t.bus.Publish(message.Event{Kind: message.NodeChanged, Node: int(id)})
}

// checked turns profile precondition failures into ErrProfileCorrupted.
// The model always records an element before anything that depends on
// it, so such a failure means the profile and the model disagree.
func checked(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, xmerr.ErrUnknownElement) || errors.Is(err, xmerr.ErrUnknownAttribute) {
		glog.Errorf("document model and profile disagree: %v", err)
		return xmerr.ProfileCorrupted(err)
	}
	return err
}

// InsertChild appends a new element named name to parent's children. With
// a zero parent the element becomes the document root, which requires the
// document to be empty.
func (t *Tree) InsertChild(ctx context.Context, parent NodeID, name string) (NodeID, error) {
	return t.InsertChildAt(ctx, parent, name, -1)
}

// InsertChildAt is InsertChild placing the element at index among parent's
// children. A negative or out of range index appends.
//
// The profile learns the element and its parent association (or its
// validity as a root) before the node is created. The new node carries the
// element's known attributes, excluded.
func (t *Tree) InsertChildAt(ctx context.Context, parent NodeID, name string, index int) (NodeID, error) {
	if name == "" {
		return 0, xmerr.EmptyName()
	}
	var p *Node
	if parent == 0 {
		if t.root != 0 {
			return 0, xmerr.InvalidNode(0, xmerr.WithMessage("document already has a root"))
		}
	} else {
		var err error
		if p, err = t.attached(parent); err != nil {
			return 0, err
		}
	}

	if _, err := t.schema.AddElement(ctx, name, nil, nil, nil); err != nil {
		return 0, checked(err)
	}
	if p != nil {
		if err := t.schema.UpdateElementChildren(ctx, p.Name, []string{name}); err != nil {
			return 0, checked(err)
		}
	} else if err := t.schema.MarkRoot(ctx, name); err != nil {
		return 0, checked(err)
	}
	known, err := t.schema.AttributesOf(ctx, name)
	if err != nil {
		return 0, checked(err)
	}

	id := t.newNode(name)
	n := t.get(id)
	for _, a := range known {
		n.Attrs = append(n.Attrs, Attribute{Name: a})
	}
	t.link(id, parent, index)
	glog.V(2).Infof("inserted %s as node %d under %d", name, id, parent)
	t.changed(id)
	return id, nil
}

// RemoveNode unlinks the node from its parent and marks it and its whole
// subtree removed. The profile is not changed.
func (t *Tree) RemoveNode(id NodeID) error {
	n, err := t.attached(id)
	if err != nil {
		return err
	}
	if n.Parent == 0 {
		t.root = 0
	} else {
		p := t.get(n.Parent)
		for i, c := range p.Children {
			if c == id {
				p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
				break
			}
		}
	}
	t.markRemoved(id)
	t.changed(id)
	return nil
}

func (t *Tree) markRemoved(id NodeID) {
	n := t.get(id)
	n.State = Removed
	for _, c := range n.Children {
		t.markRemoved(c)
	}
}

// RenameNode changes this node's tag, leaving identically named nodes
// alone. The profile record for newName receives the attributes and values
// known under the old name, and the parent association (or root mark) for
// newName. The old record is kept. Children associations are not carried
// over.
func (t *Tree) RenameNode(ctx context.Context, id NodeID, newName string) error {
	if newName == "" {
		return xmerr.EmptyName()
	}
	n, err := t.attached(id)
	if err != nil {
		return err
	}
	old := n.Name
	if old == newName {
		return nil
	}

	attrs, err := t.schema.AttributesOf(ctx, old)
	if err != nil {
		return checked(err)
	}
	if _, err := t.schema.AddElement(ctx, newName, nil, nil, attrs); err != nil {
		return checked(err)
	}
	if err := t.schema.UpdateElementAttributes(ctx, newName, attrs); err != nil {
		return checked(err)
	}
	for _, a := range attrs {
		values, err := t.schema.ValuesOf(ctx, old, a)
		if err != nil {
			return checked(err)
		}
		if len(values) == 0 {
			continue
		}
		if err := t.schema.UpdateAttributeValues(ctx, newName, a, values); err != nil {
			return checked(err)
		}
	}
	if n.Parent != 0 {
		err = t.schema.UpdateElementChildren(ctx, t.get(n.Parent).Name, []string{newName})
	} else {
		err = t.schema.MarkRoot(ctx, newName)
	}
	if err != nil {
		return checked(err)
	}

	n.Name = newName
	glog.V(2).Infof("renamed node %d from %s to %s", id, old, newName)
	t.changed(id)
	return nil
}

// SetAttributeIncluded includes or excludes the attribute on the node.
// Including it records the attribute for the element and, if value is new
// for the pair, the value. Excluding it keeps the last value on the node
// so it can be included again.
func (t *Tree) SetAttributeIncluded(ctx context.Context, id NodeID, attribute string, included bool, value string) error {
	if attribute == "" {
		return xmerr.EmptyName()
	}
	n, err := t.attached(id)
	if err != nil {
		return err
	}
	if included {
		if err := t.schema.UpdateElementAttributes(ctx, n.Name, []string{attribute}); err != nil {
			return checked(err)
		}
		known, err := t.schema.ValuesOf(ctx, n.Name, attribute)
		if err != nil {
			return checked(err)
		}
		if !contains(known, value) {
			if err := t.schema.UpdateAttributeValues(ctx, n.Name, attribute, []string{value}); err != nil {
				return checked(err)
			}
		}
	}

	i := n.attr(attribute)
	if i < 0 {
		n.Attrs = append(n.Attrs, Attribute{Name: attribute})
		i = len(n.Attrs) - 1
	}
	n.Attrs[i].Included = included
	if included {
		n.Attrs[i].Value = value
	}
	t.changed(id)
	return nil
}

// SetComment sets the node's leading comment and records it for the
// element unless already recorded. An empty comment clears the node's
// comment only. Comments containing "--" fail with xmerr.ErrInvalidComment
// and change neither the node nor the profile.
func (t *Tree) SetComment(ctx context.Context, id NodeID, comment string) error {
	n, err := t.attached(id)
	if err != nil {
		return err
	}
	if err := xmldoc.CheckComment(comment); err != nil {
		return xmerr.InvalidComment(n.Name, err)
	}
	if comment != "" {
		known, err := t.schema.CommentsOf(ctx, n.Name)
		if err != nil {
			return checked(err)
		}
		if !contains(known, comment) {
			if err := t.schema.UpdateElementComments(ctx, n.Name, []string{comment}); err != nil {
				return checked(err)
			}
		}
	}
	n.Comment = comment
	t.changed(id)
	return nil
}

// SetText sets the node's character data. Text is not profile knowledge.
func (t *Tree) SetText(id NodeID, text string) error {
	n, err := t.attached(id)
	if err != nil {
		return err
	}
	n.Text = text
	t.changed(id)
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FindNodesWithTag returns the attached nodes named name in document order.
func (t *Tree) FindNodesWithTag(name string) []NodeID {
	var ids []NodeID
	t.walk(t.root, func(n *Node) {
		if n.Name == name {
			ids = append(ids, n.ID)
		}
	})
	return ids
}

func (t *Tree) walk(id NodeID, fn func(*Node)) {
	n := t.get(id)
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		t.walk(c, fn)
	}
}

// Load replaces the tree with the parsed document and returns the root.
// Load does not write to the profile; documents are reconciled as a whole
// before they are loaded.
func (t *Tree) Load(el *xmldoc.Element) NodeID {
	t.Reset()
	if el == nil {
		return 0
	}
	id := t.load(el, 0)
	t.changed(id)
	return id
}

func (t *Tree) load(el *xmldoc.Element, parent NodeID) NodeID {
	id := t.newNode(el.Name)
	n := t.get(id)
	n.Comment = el.Comment
	n.Text = el.Text
	for _, a := range el.Attrs {
		n.Attrs = append(n.Attrs, Attribute{Name: a.Name, Value: a.Value, Included: true})
	}
	t.link(id, parent, -1)
	for _, c := range el.Children {
		t.load(c, id)
	}
	return id
}

// Export returns the subtree at id as a parsed document. Excluded
// attributes are omitted.
func (t *Tree) Export(id NodeID) (*xmldoc.Element, error) {
	if _, err := t.attached(id); err != nil {
		return nil, err
	}
	return t.export(id), nil
}

func (t *Tree) export(id NodeID) *xmldoc.Element {
	n := t.get(id)
	el := &xmldoc.Element{Name: n.Name, Comment: n.Comment, Text: n.Text}
	for _, a := range n.Attrs {
		if a.Included {
			el.Attrs = append(el.Attrs, xmldoc.Attr{Name: a.Name, Value: a.Value})
		}
	}
	for _, c := range n.Children {
		el.Children = append(el.Children, t.export(c))
	}
	return el
}

// InsertSubtree inserts el and its descendants under parent (as the root
// if parent is zero) one node at a time, so the profile learns the
// subtree exactly as if it had been typed in. On error the nodes inserted
// so far are kept.
func (t *Tree) InsertSubtree(ctx context.Context, parent NodeID, el *xmldoc.Element) (NodeID, error) {
	id, err := t.InsertChild(ctx, parent, el.Name)
	if err != nil {
		return 0, err
	}
	for _, a := range el.Attrs {
		if err := t.SetAttributeIncluded(ctx, id, a.Name, true, a.Value); err != nil {
			return id, err
		}
	}
	if el.Comment != "" {
		if err := t.SetComment(ctx, id, el.Comment); err != nil {
			return id, err
		}
	}
	if el.Text != "" {
		if err := t.SetText(id, el.Text); err != nil {
			return id, err
		}
	}
	for _, c := range el.Children {
		if _, err := t.InsertSubtree(ctx, id, c); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Populate replaces the tree with a skeleton document rooted at base built
// from the profile: every known child of every element, each carrying its
// known attributes, excluded. An element that already appears among its
// own ancestors is added once but not expanded again.
func (t *Tree) Populate(ctx context.Context, base string) (NodeID, error) {
	if base == "" {
		return 0, xmerr.EmptyName()
	}
	saved, savedRoot := t.nodes, t.root
	t.Reset()
	id, err := t.populate(ctx, base, 0, map[string]bool{})
	if err != nil {
		t.nodes, t.root = saved, savedRoot
		return 0, err
	}
	t.changed(id)
	return id, nil
}

func (t *Tree) populate(ctx context.Context, name string, parent NodeID, ancestors map[string]bool) (NodeID, error) {
	id := t.newNode(name)
	t.link(id, parent, -1)
	attrs, err := t.schema.AttributesOf(ctx, name)
	switch {
	case err == nil:
	case parent != 0 && errors.Is(err, xmerr.ErrUnknownElement):
		// Child associations may name elements without a record.
		return id, nil
	default:
		return 0, err
	}
	children, err := t.schema.ChildrenOf(ctx, name)
	if err != nil {
		return 0, err
	}
	n := t.get(id)
	for _, a := range attrs {
		n.Attrs = append(n.Attrs, Attribute{Name: a})
	}
	if ancestors[name] {
		return id, nil
	}
	ancestors[name] = true
	defer delete(ancestors, name)
	for _, c := range children {
		if _, err := t.populate(ctx, c, id, ancestors); err != nil {
			return 0, err
		}
	}
	return id, nil
}

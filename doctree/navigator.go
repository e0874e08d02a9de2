package doctree

import (
	"strings"

	"github.com/antchfx/xpath"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/xmlutil"
)

// Select evaluates an XPath expression against the document and returns
// the matching elements in document order. Attribute and text matches
// select their owning element. Excluded attributes are not visible.
func (t *Tree) Select(expr string) ([]NodeID, error) {
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "select %q", expr)
	}
	var ids []NodeID
	seen := map[NodeID]bool{}
	it := e.Select(&navigator{t: t, attr: -1})
	for it.MoveNext() {
		nav := it.Current().(*navigator)
		if nav.cur == 0 || seen[nav.cur] {
			continue
		}
		seen[nav.cur] = true
		ids = append(ids, nav.cur)
	}
	return ids, nil
}

// navigator implements xpath.NodeNavigator over the attached nodes. The
// document node has id zero; an element's text, if any, is its first child.
type navigator struct {
	t    *Tree
	cur  NodeID
	attr int
	text bool
}

var _ xpath.NodeNavigator = (*navigator)(nil)

func (n *navigator) node() *Node { return n.t.get(n.cur) }

func (n *navigator) attrs() []Attribute {
	var out []Attribute
	for _, a := range n.node().Attrs {
		if a.Included {
			out = append(out, a)
		}
	}
	return out
}

func (n *navigator) NodeType() xpath.NodeType {
	switch {
	case n.cur == 0:
		return xpath.RootNode
	case n.attr >= 0:
		return xpath.AttributeNode
	case n.text:
		return xpath.TextNode
	default:
		return xpath.ElementNode
	}
}

func (n *navigator) name() string {
	switch {
	case n.cur == 0 || n.text:
		return ""
	case n.attr >= 0:
		return n.attrs()[n.attr].Name
	default:
		return n.node().Name
	}
}

func (n *navigator) LocalName() string {
	_, local := xmlutil.SplitQName(n.name())
	return local
}

func (n *navigator) Prefix() string {
	prefix, _ := xmlutil.SplitQName(n.name())
	return prefix
}

func (n *navigator) Value() string {
	switch {
	case n.attr >= 0:
		return n.attrs()[n.attr].Value
	case n.text:
		return n.node().Text
	case n.cur == 0:
		return n.t.text(n.t.root)
	default:
		return n.t.text(n.cur)
	}
}

// text returns the concatenated character data of the subtree at id.
func (t *Tree) text(id NodeID) string {
	var sb strings.Builder
	t.walk(id, func(n *Node) { sb.WriteString(n.Text) })
	return sb.String()
}

func (n *navigator) Copy() xpath.NodeNavigator {
	c := *n
	return &c
}

func (n *navigator) MoveToRoot() {
	n.cur, n.attr, n.text = 0, -1, false
}

func (n *navigator) MoveToParent() bool {
	switch {
	case n.attr >= 0:
		n.attr = -1
	case n.text:
		n.text = false
	case n.cur == 0:
		return false
	default:
		n.cur = n.node().Parent
	}
	return true
}

func (n *navigator) MoveToNextAttribute() bool {
	if n.cur == 0 || n.text || n.attr+1 >= len(n.attrs()) {
		return false
	}
	n.attr++
	return true
}

func (n *navigator) MoveToChild() bool {
	if n.attr >= 0 || n.text {
		return false
	}
	if n.cur == 0 {
		if n.t.root == 0 {
			return false
		}
		n.cur = n.t.root
		return true
	}
	nd := n.node()
	switch {
	case nd.Text != "":
		n.text = true
	case len(nd.Children) > 0:
		n.cur = nd.Children[0]
	default:
		return false
	}
	return true
}

// sibling returns the parent of the current element and the element's
// index among the parent's children. ok is false for the root element.
func (n *navigator) sibling() (p *Node, i int, ok bool) {
	p = n.t.get(n.node().Parent)
	if p == nil {
		return nil, 0, false
	}
	for i, c := range p.Children {
		if c == n.cur {
			return p, i, true
		}
	}
	return nil, 0, false
}

func (n *navigator) MoveToFirst() bool {
	if n.cur == 0 || n.attr >= 0 || n.text {
		return false
	}
	p, i, ok := n.sibling()
	switch {
	case !ok:
		return false
	case p.Text != "":
		n.cur, n.text = p.ID, true
	case i > 0:
		n.cur = p.Children[0]
	default:
		return false
	}
	return true
}

func (n *navigator) MoveToNext() bool {
	if n.cur == 0 || n.attr >= 0 {
		return false
	}
	if n.text {
		nd := n.node()
		if len(nd.Children) == 0 {
			return false
		}
		n.cur, n.text = nd.Children[0], false
		return true
	}
	p, i, ok := n.sibling()
	if !ok || i+1 >= len(p.Children) {
		return false
	}
	n.cur = p.Children[i+1]
	return true
}

func (n *navigator) MoveToPrevious() bool {
	if n.cur == 0 || n.attr >= 0 || n.text {
		return false
	}
	p, i, ok := n.sibling()
	switch {
	case !ok:
		return false
	case i > 0:
		n.cur = p.Children[i-1]
	case p.Text != "":
		n.cur, n.text = p.ID, true
	default:
		return false
	}
	return true
}

func (n *navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*navigator)
	if !ok || o.t != n.t {
		return false
	}
	*n = *o
	return true
}

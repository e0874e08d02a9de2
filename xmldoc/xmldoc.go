package xmldoc

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/xmlutil"
)

// maxDepth bounds element nesting accepted by Parse.
const maxDepth = 3000

var (
	// ErrNoRoot is returned by Parse when the input has no element.
	ErrNoRoot = errors.New("xmldoc: document has no root element")
	// ErrTooDeep is returned by Parse when elements nest beyond maxDepth.
	ErrTooDeep = errors.New("xmldoc: document too deeply nested")
	// ErrInvalidComment is returned for comment text containing "--".
	ErrInvalidComment = errors.New(`xmldoc: comment contains "--"`)
)

// Attr is an attribute with its qualified name.
type Attr struct {
	Name  string
	Value string
}

// Element is a parsed XML element. Names are qualified ("prefix:local")
// when the source used a prefix.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	// Comment is the comment immediately preceding the element, if any.
	Comment string
	// Text is the element's character data with surrounding whitespace
	// removed. Text interleaved with child elements is concatenated in
	// document order and written back before the first child, so mixed
	// content does not keep its position.
	Text string
}

// Attr returns the value of the named attribute and whether it is present.
func (el *Element) Attr(name string) (string, bool) {
	for _, a := range el.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Walk calls fn for el and each of its descendants in document order,
// passing the parent (nil for el). If fn returns false the element's
// children are skipped.
func Walk(el *Element, fn func(el, parent *Element) bool) {
	walk(el, nil, fn)
}

func walk(el, parent *Element, fn func(el, parent *Element) bool) {
	if !fn(el, parent) {
		return
	}
	for _, c := range el.Children {
		walk(c, el, fn)
	}
}

// Parse reads an XML document and returns its root element.
func Parse(r io.Reader) (*Element, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "xmldoc: parse")
	}
	// Without an XML declaration the parser hangs prolog nodes off the
	// document node as siblings; they precede its children.
	var top []*xmlquery.Node
	for n := doc.NextSibling; n != nil; n = n.NextSibling {
		top = append(top, n)
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		top = append(top, n)
	}
	var comment string
	for _, n := range top {
		switch n.Type {
		case xmlquery.CommentNode:
			comment = n.Data
		case xmlquery.ElementNode:
			return convert(n, comment, 1)
		}
	}
	return nil, ErrNoRoot
}

func qname(n *xmlquery.Node) string {
	return xmlutil.QName(xmlutil.XMLName(n.Data, n.Prefix))
}

// CheckComment reports whether c can be written as an XML comment. Encode
// pads comments with a space on each side, so only "--" is rejected.
func CheckComment(c string) error {
	if strings.Contains(c, "--") {
		return ErrInvalidComment
	}
	return nil
}

func convert(n *xmlquery.Node, comment string, depth int) (*Element, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	el := &Element{Name: qname(n), Comment: strings.TrimSpace(comment)}
	for _, a := range n.Attr {
		el.Attrs = append(el.Attrs, Attr{Name: xmlutil.QName(a.Name), Value: a.Value})
	}
	var text strings.Builder
	comment = ""
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.CommentNode:
			comment = c.Data
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if strings.TrimSpace(c.Data) != "" {
				text.WriteString(c.Data)
				comment = ""
			}
		case xmlquery.ElementNode:
			child, err := convert(c, comment, depth+1)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
			comment = ""
		}
	}
	el.Text = strings.TrimSpace(text.String())
	return el, nil
}

// Encode writes el as an XML document, indenting nested elements by
// indent (no indentation if empty). Comments are written before the
// element they belong to.
func Encode(w io.Writer, el *Element, indent string) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", indent)
	if err := encode(enc, el); err != nil {
		return errors.Wrap(err, "xmldoc: encode")
	}
	return errors.Wrap(enc.Flush(), "xmldoc: encode")
}

func encode(enc *xml.Encoder, el *Element) error {
	if el.Comment != "" {
		if err := CheckComment(el.Comment); err != nil {
			return errors.Wrapf(err, "element %s", el.Name)
		}
		if err := enc.EncodeToken(xml.Comment(" " + el.Comment + " ")); err != nil {
			return err
		}
	}
	start := xml.StartElement{Name: xmlutil.QNameToken(el.Name)}
	for _, a := range el.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xmlutil.QNameToken(a.Name), Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if el.Text != "" {
		if err := enc.EncodeToken(xml.CharData(el.Text)); err != nil {
			return err
		}
	}
	for _, c := range el.Children {
		if err := encode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

package xmlutil

import (
	"encoding/xml"
	"strings"
)

// XMLName is a shortcut for creating xml.Name, where typically you want at least
// a local name, and perhaps a namespace value as well.
func XMLName(local string, spaces ...string) xml.Name {
	n := xml.Name{Local: local}
	if len(spaces) > 0 {
		n.Space = spaces[0]
	}
	return n
}

// QName returns the qualified "prefix:local" form of n, where n.Space
// holds a namespace prefix (not a URI). Names without a prefix are
// returned as their local part.
func QName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// SplitQName splits a qualified name into its prefix and local parts.
func SplitQName(qname string) (prefix, local string) {
	if i := strings.IndexByte(qname, ':'); i > 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}

// QNameToken returns an xml.Name suitable for xml.Encoder which writes
// qname verbatim, prefix included.
func QNameToken(qname string) xml.Name { return xml.Name{Local: qname} }

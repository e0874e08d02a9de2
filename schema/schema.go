package schema

import (
	"fmt"
	"strings"
)

// Element is the profile's record for one element name.
type Element struct {
	Name string `json:"name"`
	// Comments in insertion order; duplicates are allowed.
	Comments []string `json:"comments"`
	// Children are the element names known to appear as direct children,
	// sorted ascending.
	Children []string `json:"children"`
	// Attributes associated with the element, sorted ascending.
	Attributes []string `json:"attributes"`
	// Values maps each attribute to its observed values, sorted ascending.
	// Attributes without recorded values are absent.
	Values map[string][]string `json:"values"`
}

// Snapshot is a complete dump of a profile.
type Snapshot struct {
	Elements []Element `json:"elements"`
	Roots    []string  `json:"roots"`
}

// Summary counts what a store transaction newly learned. Items that were
// already recorded are not counted.
type Summary struct {
	Elements   int
	Comments   int
	Children   int
	Attributes int
	Values     int
	Roots      int
}

// IsZero reports whether nothing was learned.
func (s Summary) IsZero() bool { return s == Summary{} }

// Add returns the field-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Elements:   s.Elements + o.Elements,
		Comments:   s.Comments + o.Comments,
		Children:   s.Children + o.Children,
		Attributes: s.Attributes + o.Attributes,
		Values:     s.Values + o.Values,
		Roots:      s.Roots + o.Roots,
	}
}

func (s Summary) String() string {
	var parts []string
	for _, f := range []struct {
		name string
		n    int
	}{
		{"elements", s.Elements},
		{"comments", s.Comments},
		{"children", s.Children},
		{"attributes", s.Attributes},
		{"values", s.Values},
		{"roots", s.Roots},
	} {
		if f.n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", f.name, f.n))
		}
	}
	if len(parts) == 0 {
		return "nothing learned"
	}
	return strings.Join(parts, " ")
}

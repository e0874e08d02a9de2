package query

import (
	"context"
	"sort"
)

// NotSet is the placeholder choice for an attribute that is present but
// has no value chosen. It is always the first value choice.
const NotSet = "---"

// Reader is the read side of a profile store. *schema.Store implements it.
type Reader interface {
	Elements(ctx context.Context) ([]string, error)
	ChildrenOf(ctx context.Context, name string) ([]string, error)
	AttributesOf(ctx context.Context, name string) ([]string, error)
	ValuesOf(ctx context.Context, name, attribute string) ([]string, error)
	KnownRoots(ctx context.Context) ([]string, error)
	IsKnownRoot(ctx context.Context, name string) (bool, error)
}

// Facade answers the questions UI layers ask while a document is edited.
// It never writes to the profile.
type Facade struct {
	r Reader
}

// New returns a facade reading from r.
func New(r Reader) *Facade { return &Facade{r: r} }

// normalize returns list sorted and without duplicates, never nil.
func normalize(list []string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	out = append(out, list...)
	sort.Strings(out)
	j := 0
	for i, s := range out {
		if i > 0 && s == out[j-1] {
			continue
		}
		out[j] = s
		j++
	}
	return out[:j], nil
}

// Elements returns all known element names.
func (f *Facade) Elements(ctx context.Context) ([]string, error) {
	return normalize(f.r.Elements(ctx))
}

// ChildChoices returns the element names known to appear under name.
func (f *Facade) ChildChoices(ctx context.Context, name string) ([]string, error) {
	return normalize(f.r.ChildrenOf(ctx, name))
}

// AttributeChoices returns the attributes known for name.
func (f *Facade) AttributeChoices(ctx context.Context, name string) ([]string, error) {
	return normalize(f.r.AttributesOf(ctx, name))
}

// ValueChoices returns NotSet followed by the values known for
// (name, attribute). A recorded value equal to NotSet is not repeated.
func (f *Facade) ValueChoices(ctx context.Context, name, attribute string) ([]string, error) {
	values, err := normalize(f.r.ValuesOf(ctx, name, attribute))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values)+1)
	out = append(out, NotSet)
	for _, v := range values {
		if v != NotSet {
			out = append(out, v)
		}
	}
	return out, nil
}

// RootChoices returns the element names valid as document roots.
func (f *Facade) RootChoices(ctx context.Context) ([]string, error) {
	return normalize(f.r.KnownRoots(ctx))
}

// IsKnownRoot reports whether name may be a document root.
func (f *Facade) IsKnownRoot(ctx context.Context, name string) (bool, error) {
	return f.r.IsKnownRoot(ctx, name)
}

// IsNotSet reports whether a chosen value is the NotSet placeholder.
func IsNotSet(value string) bool { return value == NotSet }

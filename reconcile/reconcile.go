package reconcile

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/schema"
	"github.com/williamhallatt/xmlmill/xmldoc"
)

// checkEvery is how many elements Collect visits between cancellation checks.
const checkEvery = 256

// Applier runs a function in one store transaction. *schema.Store
// implements it.
type Applier interface {
	Apply(ctx context.Context, fn func(*schema.Tx) error) (schema.Summary, error)
}

// Failed reports a batch that was not applied. The store is left as it
// was before the batch.
type Failed struct {
	Err error
}

func (f *Failed) Error() string { return "reconcile failed: " + f.Err.Error() }

func (f *Failed) Unwrap() error { return f.Err }

// set is a string set that remembers insertion order.
type set struct {
	order []string
	has   map[string]bool
}

func (s *set) add(v string) {
	if s.has == nil {
		s.has = map[string]bool{}
	}
	if !s.has[v] {
		s.has[v] = true
		s.order = append(s.order, v)
	}
}

type entry struct {
	attrs    set
	values   map[string]*set
	children set
	comments set
}

// Plan is everything a document contributes to a profile, accumulated in
// memory by Collect. A Plan is applied with Apply or discarded.
type Plan struct {
	// Root is the document's root element name.
	Root string

	names []string
	elems map[string]*entry
	nodes int
}

// Collect walks root depth-first and accumulates, per distinct element
// name, the attributes and their values, the children and the leading
// comments seen across all occurrences. It returns ctx.Err() if ctx is
// cancelled before the walk completes.
func Collect(ctx context.Context, root *xmldoc.Element) (*Plan, error) {
	if root == nil {
		return nil, errors.New("reconcile: no document")
	}
	p := &Plan{Root: root.Name, elems: map[string]*entry{}}
	var err error
	xmldoc.Walk(root, func(el, parent *xmldoc.Element) bool {
		if err != nil {
			return false
		}
		if p.nodes++; p.nodes%checkEvery == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		e := p.entry(el.Name)
		for _, a := range el.Attrs {
			e.attrs.add(a.Name)
			vs := e.values[a.Name]
			if vs == nil {
				vs = &set{}
				e.values[a.Name] = vs
			}
			vs.add(a.Value)
		}
		if el.Comment != "" {
			e.comments.add(el.Comment)
		}
		if parent != nil {
			p.elems[parent.Name].children.add(el.Name)
		}
		return true
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) entry(name string) *entry {
	e, ok := p.elems[name]
	if !ok {
		e = &entry{values: map[string]*set{}}
		p.elems[name] = e
		p.names = append(p.names, name)
	}
	return e
}

// Nodes returns the number of elements walked.
func (p *Plan) Nodes() int { return p.nodes }

// Elements returns the distinct element names in document order.
func (p *Plan) Elements() []string { return append([]string(nil), p.names...) }

// Attributes returns the attributes seen on name, in first-seen order.
func (p *Plan) Attributes(name string) []string {
	if e, ok := p.elems[name]; ok {
		return append([]string(nil), e.attrs.order...)
	}
	return nil
}

// Values returns the values seen for (name, attribute), in first-seen order.
func (p *Plan) Values(name, attribute string) []string {
	if e, ok := p.elems[name]; ok {
		if vs, ok := e.values[attribute]; ok {
			return append([]string(nil), vs.order...)
		}
	}
	return nil
}

// Children returns the direct children seen under name, in first-seen order.
func (p *Plan) Children(name string) []string {
	if e, ok := p.elems[name]; ok {
		return append([]string(nil), e.children.order...)
	}
	return nil
}

// Comments returns the distinct comments seen on name.
func (p *Plan) Comments(name string) []string {
	if e, ok := p.elems[name]; ok {
		return append([]string(nil), e.comments.order...)
	}
	return nil
}

// Apply writes the plan to the store in a single transaction: every
// element is added before its attributes, and attributes before their
// values; then children and comments not already recorded; finally the
// root is marked. Apply is not cancellable. On any error nothing is
// written and the error is a *Failed.
func (p *Plan) Apply(ctx context.Context, store Applier) (schema.Summary, error) {
	sum, err := store.Apply(ctx, p.apply)
	if err != nil {
		glog.Warningf("reconcile %s: %v", p.Root, err)
		return schema.Summary{}, &Failed{Err: err}
	}
	glog.V(1).Infof("reconciled %s (%d elements, %d distinct): %s", p.Root, p.nodes, len(p.names), sum)
	return sum, nil
}

func (p *Plan) apply(tx *schema.Tx) error {
	for _, name := range p.names {
		e := p.elems[name]
		if _, err := tx.AddElement(name, nil, nil, nil); err != nil {
			return err
		}
		if err := tx.UpdateElementAttributes(name, e.attrs.order); err != nil {
			return err
		}
		for _, a := range e.attrs.order {
			if err := tx.UpdateAttributeValues(name, a, e.values[a].order); err != nil {
				return err
			}
		}
	}
	for _, name := range p.names {
		e := p.elems[name]
		if err := tx.UpdateElementChildren(name, e.children.order); err != nil {
			return err
		}
		if len(e.comments.order) == 0 {
			continue
		}
		known, err := tx.CommentsOf(name)
		if err != nil {
			return err
		}
		var seen set
		for _, c := range known {
			seen.add(c)
		}
		var fresh []string
		for _, c := range e.comments.order {
			if !seen.has[c] {
				fresh = append(fresh, c)
			}
		}
		if err := tx.UpdateElementComments(name, fresh); err != nil {
			return err
		}
	}
	return tx.MarkRoot(p.Root)
}

// Result is delivered by Background.
type Result struct {
	Plan *Plan
	Err  error
}

// Background runs Collect on its own goroutine. The returned channel
// receives exactly one Result. Cancelling ctx abandons the walk.
func Background(ctx context.Context, root *xmldoc.Element) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		p, err := Collect(ctx, root)
		ch <- Result{Plan: p, Err: err}
	}()
	return ch
}

// Reconcile collects root and applies it to store. Cancellation of ctx is
// honoured only until the apply phase begins.
func Reconcile(ctx context.Context, store Applier, root *xmldoc.Element) (schema.Summary, error) {
	p, err := Collect(ctx, root)
	if err != nil {
		return schema.Summary{}, err
	}
	return p.Apply(ctx, store)
}

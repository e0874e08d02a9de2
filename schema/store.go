package schema

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/message"
	"github.com/williamhallatt/xmlmill/xmerr"
)

// Store answers and records profile knowledge against the attached
// connection. Every operation fails with xmerr.ErrNoActiveConnection while
// no connection is attached.
//
// Reads share the store lock; mutations and Apply hold it exclusively, so a
// read never observes a partially applied batch.
type Store struct {
	mu   sync.RWMutex
	conn *Conn
	bus  *message.Bus
}

// Option configures a Store.
type Option func(*Store)

// WithBus publishes ProfileMutated events on b after each committed
// mutation that learned something.
func WithBus(b *message.Bus) Option {
	return func(s *Store) { s.bus = b }
}

// NewStore returns a store with no attached connection.
func NewStore(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach makes c the target of all subsequent operations and returns the
// previously attached connection, which the caller owns.
func (s *Store) Attach(c *Conn) (prev *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, s.conn = s.conn, c
	return prev
}

// Detach removes and returns the attached connection.
func (s *Store) Detach() *Conn { return s.Attach(nil) }

// Active reports whether a connection is attached.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// Location returns the attached connection's location, or "".
func (s *Store) Location() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.Location
}

// Apply runs fn inside one storage transaction. If fn returns an error, or
// the commit fails, nothing fn did is kept. Errors that are not already
// *xmerr.Error are reported as storage failures.
//
// Apply ignores cancellation of ctx once called.
func (s *Store) Apply(ctx context.Context, fn func(*Tx) error) (Summary, error) {
	sum, err := s.apply(context.WithoutCancel(ctx), fn)
	if err != nil {
		return Summary{}, err
	}
	if !sum.IsZero() {
		glog.V(1).Infof("profile learned %s", sum)
		s.bus.Publish(message.Event{Kind: message.ProfileMutated, Data: sum})
	}
	return sum, nil
}

func (s *Store) apply(ctx context.Context, fn func(*Tx) error) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return Summary{}, xmerr.NoActiveConnection()
	}
	sqlTx, err := s.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, storageErr(err, "begin")
	}
	defer sqlTx.Rollback()

	tx := &Tx{ctx: ctx, q: sqlTx}
	if err := fn(tx); err != nil {
		var xe *xmerr.Error
		if errors.As(err, &xe) {
			return Summary{}, err
		}
		return Summary{}, xmerr.StorageFailure(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return Summary{}, storageErr(err, "commit")
	}
	return tx.sum, nil
}

func (s *Store) read(ctx context.Context, fn func(*Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return xmerr.NoActiveConnection()
	}
	return fn(&Tx{ctx: ctx, q: s.conn.db})
}

// AddElement records name with the given comments, children and attributes
// unless it already exists. created reports whether a record was made.
func (s *Store) AddElement(ctx context.Context, name string, comments, children, attributes []string) (created bool, err error) {
	_, err = s.Apply(ctx, func(tx *Tx) error {
		created, err = tx.AddElement(name, comments, children, attributes)
		return err
	})
	return created, err
}

// UpdateElementComments appends comments to an existing element.
func (s *Store) UpdateElementComments(ctx context.Context, name string, comments []string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.UpdateElementComments(name, comments) })
	return err
}

// UpdateElementChildren adds children to an existing element's child set.
func (s *Store) UpdateElementChildren(ctx context.Context, name string, children []string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.UpdateElementChildren(name, children) })
	return err
}

// UpdateElementAttributes adds attributes to an existing element.
func (s *Store) UpdateElementAttributes(ctx context.Context, name string, attributes []string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.UpdateElementAttributes(name, attributes) })
	return err
}

// UpdateAttributeValues adds values under (name, attribute). It fails with
// xmerr.ErrUnknownAttribute unless the attribute was added first.
func (s *Store) UpdateAttributeValues(ctx context.Context, name, attribute string, values []string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.UpdateAttributeValues(name, attribute, values) })
	return err
}

// MarkRoot records name as a valid document root.
func (s *Store) MarkRoot(ctx context.Context, name string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.MarkRoot(name) })
	return err
}

func (s *Store) RemoveElement(ctx context.Context, name string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.RemoveElement(name) })
	return err
}

func (s *Store) RemoveComment(ctx context.Context, name, comment string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.RemoveComment(name, comment) })
	return err
}

func (s *Store) RemoveChild(ctx context.Context, name, child string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.RemoveChild(name, child) })
	return err
}

func (s *Store) RemoveAttribute(ctx context.Context, name, attribute string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.RemoveAttribute(name, attribute) })
	return err
}

func (s *Store) RemoveValue(ctx context.Context, name, attribute, value string) error {
	_, err := s.Apply(ctx, func(tx *Tx) error { return tx.RemoveValue(name, attribute, value) })
	return err
}

func (s *Store) Elements(ctx context.Context) (names []string, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		names, err = tx.Elements()
		return err
	})
	return names, err
}

func (s *Store) AttributesOf(ctx context.Context, name string) (attrs []string, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		attrs, err = tx.AttributesOf(name)
		return err
	})
	return attrs, err
}

func (s *Store) ValuesOf(ctx context.Context, name, attribute string) (values []string, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		values, err = tx.ValuesOf(name, attribute)
		return err
	})
	return values, err
}

func (s *Store) ChildrenOf(ctx context.Context, name string) (children []string, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		children, err = tx.ChildrenOf(name)
		return err
	})
	return children, err
}

func (s *Store) CommentsOf(ctx context.Context, name string) (comments []string, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		comments, err = tx.CommentsOf(name)
		return err
	})
	return comments, err
}

func (s *Store) KnownRoots(ctx context.Context) (roots []string, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		roots, err = tx.KnownRoots()
		return err
	})
	return roots, err
}

// IsKnownRoot reports membership in the root element set. It never writes.
func (s *Store) IsKnownRoot(ctx context.Context, name string) (ok bool, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		ok, err = tx.IsKnownRoot(name)
		return err
	})
	return ok, err
}

func (s *Store) IsProfileEmpty(ctx context.Context) (empty bool, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		empty, err = tx.IsProfileEmpty()
		return err
	})
	return empty, err
}

func (s *Store) Element(ctx context.Context, name string) (el Element, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		el, err = tx.Element(name)
		return err
	})
	return el, err
}

// Snapshot dumps the whole profile in one consistent read.
func (s *Store) Snapshot(ctx context.Context) (snap Snapshot, err error) {
	err = s.read(ctx, func(tx *Tx) error {
		snap, err = tx.Snapshot()
		return err
	})
	return snap, err
}

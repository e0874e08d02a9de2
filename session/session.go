package session

import (
	"context"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/doctree"
	"github.com/williamhallatt/xmlmill/message"
	"github.com/williamhallatt/xmlmill/query"
	"github.com/williamhallatt/xmlmill/reconcile"
	"github.com/williamhallatt/xmlmill/registry"
	"github.com/williamhallatt/xmlmill/schema"
	"github.com/williamhallatt/xmlmill/xmerr"
	"github.com/williamhallatt/xmlmill/xmldoc"
)

var (
	// ErrUnknownDocument is returned when a document's root element is not
	// a known root of the active profile and the document is not being
	// imported.
	ErrUnknownDocument = errors.New("document root is not known to the active profile")
	// ErrDocumentTooLarge is returned for documents over the configured
	// size limit.
	ErrDocumentTooLarge = errors.New("document exceeds the size limit")
)

// Session is one editing session: the active profile, the document being
// edited, and the views onto them. Components receive what they need
// from the Session rather than from package state, so several isolated
// sessions may exist in one process provided they use different
// profiles.
type Session struct {
	Config *Config
	State  *State

	// Bus carries notifications from every component of the session.
	Bus      *message.Bus
	Store    *schema.Store
	Registry *registry.Registry
	Query    *query.Facade
	Document *doctree.Tree

	unsubscribe func()
}

// State contains runtime Session state
type State struct {
	// Status is the session status
	Status Status
	// Counters contains session counters
	Counters struct {
		// Documents is the number of documents loaded into the session.
		Documents int
		// Learned accumulates what the profile learned during the
		// session.
		Learned schema.Summary
	}

	errs []error
}

// Status is a Session's (present) state.
type Status int

const (
	// StatusIdle is the initial session state: no document is loaded.
	StatusIdle Status = iota
	// StatusEditing is set once a document has been loaded.
	StatusEditing
	// StatusClosed indicates the session was closed.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusEditing:
		return "editing"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// New returns a new Session using config. If config.RestoreActive is set
// the registry's last active profile is activated; failing to do so is
// recorded in Errors but does not fail New.
func New(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	bus := message.NewBus()
	store := schema.NewStore(schema.WithBus(bus))
	reg, err := registry.Load(config.RegistryPath, store, registry.WithBus(bus))
	if err != nil {
		return nil, err
	}
	s := &Session{
		Config:   &config,
		State:    &State{},
		Bus:      bus,
		Store:    store,
		Registry: reg,
		Query:    query.New(store),
		Document: doctree.New(store, doctree.WithBus(bus)),
	}
	s.unsubscribe = bus.Subscribe(s.onEvent)
	if config.RestoreActive {
		if ok, err := reg.Restore(); err != nil {
			glog.Warningf("restoring profile %q: %v", reg.LastActive(), err)
			s.AddError(err)
		} else if ok {
			glog.V(1).Infof("restored profile %q", reg.Active())
		}
	}
	return s, nil
}

func (s *Session) onEvent(e message.Event) {
	if sum, ok := e.Data.(schema.Summary); ok && e.Kind == message.ProfileMutated {
		s.State.Counters.Learned = s.State.Counters.Learned.Add(sum)
	}
}

// OpenDocument parses the document read from r, reconciles it against
// the active profile and loads it as the session's document. size is the
// document size in bytes if known, or -1.
//
// Unless importUnknown is set, a document whose root element is not a
// known root of the profile is refused with ErrUnknownDocument and the
// profile is left untouched. If reconciliation fails the previous
// document stays loaded.
func (s *Session) OpenDocument(ctx context.Context, r io.Reader, size int64, importUnknown bool) (doctree.NodeID, error) {
	if s.State.Status == StatusClosed {
		return 0, errors.New("session is closed")
	}
	if !s.Store.Active() {
		return 0, xmerr.NoActiveConnection()
	}
	large, err := s.checkSize(size)
	if err != nil {
		return 0, err
	}
	root, err := xmldoc.Parse(r)
	if err != nil {
		return 0, errors.Wrap(err, "parse document")
	}
	if !importUnknown {
		known, err := s.Query.IsKnownRoot(ctx, root.Name)
		if err != nil {
			return 0, err
		}
		if !known {
			return 0, errors.Wrapf(ErrUnknownDocument, "root element %q", root.Name)
		}
	}
	sum, err := s.reconcile(ctx, root, large)
	if err != nil {
		s.AddError(err)
		return 0, err
	}
	glog.V(1).Infof("document %q reconciled: %s", root.Name, sum)
	id := s.Document.Load(root)
	s.State.Status = StatusEditing
	s.State.Counters.Documents++
	return id, nil
}

// ImportDocument is OpenDocument for a document whose root may be new to
// the profile.
func (s *Session) ImportDocument(ctx context.Context, r io.Reader, size int64) (doctree.NodeID, error) {
	return s.OpenDocument(ctx, r, size, true)
}

// OpenFile opens the document at path.
func (s *Session) OpenFile(ctx context.Context, path string, importUnknown bool) (doctree.NodeID, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open document")
	}
	defer f.Close()
	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return s.OpenDocument(ctx, f, size, importUnknown)
}

// checkSize refuses documents over the size limit and reports whether a
// document is over the warning size.
func (s *Session) checkSize(size int64) (large bool, err error) {
	limit, warn := s.Config.LargeDocumentLimit, s.Config.LargeDocumentWarning
	switch {
	case limit > 0 && size > limit:
		return false, errors.Wrapf(ErrDocumentTooLarge, "%d bytes, limit %d", size, limit)
	case warn > 0 && size > warn:
		glog.Warningf("large document (%d bytes); processing may be slow", size)
		return true, nil
	}
	return false, nil
}

// reconcile merges root into the active profile. Large documents are
// collected in the background so that cancelling ctx returns at once.
func (s *Session) reconcile(ctx context.Context, root *xmldoc.Element, large bool) (schema.Summary, error) {
	if !large {
		return reconcile.Reconcile(ctx, s.Store, root)
	}
	var res reconcile.Result
	select {
	case res = <-reconcile.Background(ctx, root):
	case <-ctx.Done():
		return schema.Summary{}, ctx.Err()
	}
	if res.Err != nil {
		return schema.Summary{}, res.Err
	}
	glog.V(1).Infof("collected %d elements of <%s> in the background", res.Plan.Nodes(), root.Name)
	return res.Plan.Apply(ctx, s.Store)
}

// WriteDocument encodes the session's document to w.
func (s *Session) WriteDocument(w io.Writer, indent string) error {
	el, err := s.Document.Export(s.Document.Root())
	if err != nil {
		return err
	}
	return xmldoc.Encode(w, el, indent)
}

// Close closes the Session and its active profile. Calling Close again
// does nothing.
func (s *Session) Close() error {
	if s.State.Status == StatusClosed {
		return nil
	}
	s.State.Status = StatusClosed
	s.Document.Reset()
	err := s.Registry.Close()
	s.unsubscribe()
	return err
}

// AddError adds an error to the session state
func (s *Session) AddError(errs ...error) (added int) {
	for _, err := range errs {
		if err != nil {
			s.State.errs = append(s.State.errs, err)
			added++
		}
	}
	return added
}

// Errors returns all session errors
func (s *Session) Errors() []error { return s.State.errs }

package registry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/tailscale/hujson"

	"github.com/williamhallatt/xmlmill/message"
	"github.com/williamhallatt/xmlmill/schema"
	"github.com/williamhallatt/xmlmill/xmerr"
)

// Connection names a profile storage location.
type Connection struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// file is the on-disk registry format.
type file struct {
	Connections []Connection `json:"connections"`
	// Active is the most recently activated connection.
	Active string `json:"active,omitempty"`
}

// Registry is the durable set of named profile connections. At most one
// connection is active; the active profile is attached to the registry's
// schema.Store.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	path  string
	store *schema.Store
	bus   *message.Bus

	conns      []Connection
	active     string
	lastActive string
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus publishes ActiveConnectionChanged events on b.
func WithBus(b *message.Bus) Option {
	return func(r *Registry) { r.bus = b }
}

// Load reads the registry file at path. A missing file is an empty
// registry; it is created by the first change. The file may contain
// comments and trailing commas.
func Load(path string, store *schema.Store, opts ...Option) (*Registry, error) {
	r := &Registry{path: path, store: store}
	for _, opt := range opts {
		opt(r)
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return r, nil
	case err != nil:
		return nil, errors.Wrap(err, "read registry")
	}
	f, err := parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "registry %s", path)
	}
	seen := map[string]bool{}
	for _, c := range f.Connections {
		if c.Name == "" {
			return nil, errors.Wrapf(xmerr.EmptyName(), "registry %s", path)
		}
		if seen[c.Name] {
			return nil, errors.Wrapf(xmerr.DuplicateName(c.Name), "registry %s", path)
		}
		seen[c.Name] = true
	}
	r.conns = f.Connections
	if seen[f.Active] {
		r.lastActive = f.Active
	}
	return r, nil
}

func parse(data []byte) (file, error) {
	var f file
	std, err := hujson.Standardize(data)
	if err != nil {
		return f, errors.Wrap(err, "invalid JSONC")
	}
	if err := json.Unmarshal(std, &f); err != nil {
		return f, errors.Wrap(err, "invalid JSON")
	}
	return f, nil
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// List returns connection names in the order they were added.
func (r *Registry) List() []string {
	names := make([]string, len(r.conns))
	for i, c := range r.conns {
		names[i] = c.Name
	}
	return names
}

// Connections returns a copy of the registered connections, in order.
func (r *Registry) Connections() []Connection {
	return append([]Connection(nil), r.conns...)
}

func (r *Registry) index(name string) int {
	for i, c := range r.conns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// resolve makes relative locations relative to the registry file.
func (r *Registry) resolve(location string) string {
	if filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(filepath.Dir(r.path), location)
}

// attached reports whether location is the profile attached to the
// store. It is locked by this process and must not be opened again.
func (r *Registry) attached(location string) bool {
	return r.store.Active() && filepath.Clean(r.store.Location()) == filepath.Clean(location)
}

// Location returns the resolved storage location of the named connection.
func (r *Registry) Location(name string) (string, error) {
	i := r.index(name)
	if i < 0 {
		return "", xmerr.NotFound(name)
	}
	return r.resolve(r.conns[i].Location), nil
}

// Add registers a new connection. The profile storage at location is
// created and initialised immediately, so an unusable location fails here
// with xmerr.ErrOpenFailed rather than on first activation.
func (r *Registry) Add(name, location string) error {
	if name == "" {
		return xmerr.EmptyName()
	}
	if r.index(name) >= 0 {
		return xmerr.DuplicateName(name)
	}
	if location == "" {
		return xmerr.OpenFailed(location, errors.New("empty location"))
	}
	if !r.attached(r.resolve(location)) {
		c, err := schema.Open(r.resolve(location))
		if err != nil {
			return err
		}
		if err := c.Close(); err != nil {
			return xmerr.OpenFailed(location, err)
		}
	}

	r.conns = append(r.conns, Connection{Name: name, Location: location})
	if err := r.save(); err != nil {
		r.conns = r.conns[:len(r.conns)-1]
		return err
	}
	glog.V(1).Infof("registered profile %q at %s", name, location)
	return nil
}

// Remove unregisters a connection. The profile storage itself is left in
// place. Removing the active connection leaves no connection active.
func (r *Registry) Remove(name string) error {
	i := r.index(name)
	if i < 0 {
		return xmerr.NotFound(name)
	}
	removed := r.conns[i]
	r.conns = append(r.conns[:i:i], r.conns[i+1:]...)
	wasLast := r.lastActive == name
	if wasLast {
		r.lastActive = ""
	}
	if err := r.save(); err != nil {
		r.conns = append(r.conns[:i:i], append([]Connection{removed}, r.conns[i:]...)...)
		if wasLast {
			r.lastActive = name
		}
		return err
	}
	glog.V(1).Infof("removed profile %q", name)

	if r.active == name {
		r.active = ""
		if c := r.store.Detach(); c != nil {
			if err := c.Close(); err != nil {
				glog.Warningf("closing profile %q: %v", name, err)
			}
		}
		r.bus.Publish(message.Event{Kind: message.ActiveConnectionChanged})
	}
	return nil
}

// Activate opens the named connection and attaches it to the store,
// closing the previously active connection. Activating the already active
// connection does nothing.
func (r *Registry) Activate(name string) error {
	i := r.index(name)
	if i < 0 {
		return xmerr.NotFound(name)
	}
	if r.active == name && r.store.Active() {
		return nil
	}
	// A connection sharing the attached location reuses its storage.
	if location := r.resolve(r.conns[i].Location); !r.attached(location) {
		c, err := schema.Open(location)
		if err != nil {
			return err
		}
		if prev := r.store.Attach(c); prev != nil {
			if err := prev.Close(); err != nil {
				glog.Warningf("closing profile %q: %v", r.active, err)
			}
		}
	}
	r.active = name
	if r.lastActive != name {
		r.lastActive = name
		if err := r.save(); err != nil {
			glog.Warningf("recording active profile: %v", err)
		}
	}
	glog.V(1).Infof("activated profile %q", name)
	r.bus.Publish(message.Event{Kind: message.ActiveConnectionChanged, Name: name})
	return nil
}

// Restore activates the connection that was active when the registry was
// last saved, if any. It reports whether a connection was activated.
func (r *Registry) Restore() (bool, error) {
	if r.lastActive == "" {
		return false, nil
	}
	if err := r.Activate(r.lastActive); err != nil {
		return false, err
	}
	return true, nil
}

// LastActive returns the name recorded as most recently active.
func (r *Registry) LastActive() string { return r.lastActive }

// HasActive reports whether a connection is active.
func (r *Registry) HasActive() bool { return r.active != "" }

// Active returns the active connection name, or "".
func (r *Registry) Active() string { return r.active }

// Close detaches and closes the active connection. The registry file still
// records it as last active.
func (r *Registry) Close() error {
	if r.active == "" {
		return nil
	}
	r.active = ""
	var err error
	if c := r.store.Detach(); c != nil {
		err = c.Close()
	}
	r.bus.Publish(message.Event{Kind: message.ActiveConnectionChanged})
	return err
}

func (r *Registry) save() error {
	f := file{Connections: r.conns, Active: r.lastActive}
	if f.Connections == nil {
		f.Connections = []Connection{}
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode registry")
	}
	b = append(b, '\n')
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.Wrap(err, "write registry")
	}
	if err := atomic.WriteFile(r.path, bytes.NewReader(b)); err != nil {
		return errors.Wrap(err, "write registry")
	}
	return nil
}

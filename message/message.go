package message

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies the type of an Event.
type Kind int

const (
	// ActiveConnectionChanged is published after a profile connection is
	// activated or the active connection is removed. Name holds the new
	// active connection name (empty when none is active).
	ActiveConnectionChanged Kind = iota + 1
	// ProfileMutated is published after a store transaction that learned
	// something commits. Data holds the transaction's schema.Summary.
	ProfileMutated
	// NodeChanged is published after a document node mutation completes,
	// including its profile synchronisation. Node holds the node id.
	NodeChanged
)

func (k Kind) String() string {
	switch k {
	case ActiveConnectionChanged:
		return "active-connection-changed"
	case ProfileMutated:
		return "profile-mutated"
	case NodeChanged:
		return "node-changed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is a notification for collaborators outside the core.
type Event struct {
	// ID is assigned by Publish. IDs increase monotonically in
	// publication order.
	ID   ulid.ULID
	Kind Kind
	Name string
	Node int
	Data interface{}
}

// Bus is a fire-and-forget notification channel.
//
// Events are delivered synchronously on the publishing goroutine, to
// each subscriber in subscription order. A nil *Bus discards events.
type Bus struct {
	mu      sync.Mutex
	subs    []subscriber
	nextID  int
	entropy io.Reader
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Subscribe registers fn for all subsequent events. The returned function
// removes the subscription.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish stamps e with a new ID and delivers it. Subscribers added or
// removed during delivery take effect from the next event.
func (b *Bus) Publish(e Event) Event {
	if b == nil {
		return e
	}
	b.mu.Lock()
	e.ID = ulid.MustNew(ulid.Timestamp(time.Now()), b.entropy)
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
	return e
}

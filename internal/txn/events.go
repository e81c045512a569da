package txn

import (
	"sync"

	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
)

// PostCommit is published after every successful commit, in commit
// order.
type PostCommit struct {
	Version uint64
	Deltas  []mvcc.Delta
}

// Subscription is one consumer's ordered event stream. Events arrive on
// C in commit order with at-least-once semantics. When the subscriber
// falls behind its buffer, it is dropped: C is closed and Err reports a
// fatal TXN_005 diagnostic. The commit path never blocks on a consumer.
type Subscription struct {
	Name string
	C    <-chan PostCommit

	bus *Bus
	ch  chan PostCommit

	mu     sync.Mutex
	err    *diag.Diagnostic
	closed bool
}

// Err returns the terminal diagnostic after C is closed, or nil when
// the subscription ended normally.
func (s *Subscription) Err() *diag.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel detaches the subscription and closes C.
func (s *Subscription) Cancel() {
	s.bus.remove(s, nil)
}

// Bus fans PostCommit events out to subscribers over per-subscriber
// bounded queues. Publish happens under the commit mutex, so every
// subscriber observes events in commit order.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	onDrop func(name string)
}

// NewBus creates an empty bus. onDrop, when non-nil, observes dropped
// subscriber names (metrics hook).
func NewBus(onDrop func(name string)) *Bus {
	return &Bus{onDrop: onDrop}
}

// Subscribe registers a consumer with the given queue capacity.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan PostCommit, buffer)
	sub := &Subscription{Name: name, C: ch, ch: ch, bus: b}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to every subscriber. A subscriber whose
// queue is full is dropped with a fatal diagnostic; the publisher never
// waits.
func (b *Bus) Publish(e PostCommit) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- e:
		default:
			b.remove(sub, diag.New(diag.TxnSubscriberLagged,
				"subscriber %q dropped: queue full at version %d", sub.Name, e.Version))
			if b.onDrop != nil {
				b.onDrop(sub.Name)
			}
		}
	}
}

func (b *Bus) remove(sub *Subscription, cause *diag.Diagnostic) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.err = cause
	close(sub.ch)
}

// Close drops all subscribers without error.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
	}
}

package notify

import (
	"context"
	"sync"

	"assessment-engine/internal/domain"
)

// Broadcaster pushes attempt events to live subscribers (websocket sessions) keyed by attempt.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel of events for attemptID. The caller must invoke cancel.
func (b *Broadcaster) Subscribe(attemptID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	b.mu.Lock()
	set, ok := b.subs[attemptID]
	if !ok {
		set = make(map[chan domain.Event]struct{})
		b.subs[attemptID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subs[attemptID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(b.subs, attemptID)
		}
	}
	return ch, cancel
}

// Notify satisfies app.Notifier. Slow subscribers lose their oldest pending event rather than
// blocking the sender.
func (b *Broadcaster) Notify(_ context.Context, e domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[e.AttemptID] {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- e
		}
	}
	return nil
}

// Relay feeds events from src (e.g. a Redis subscription) into the broadcaster until src closes
// or ctx is done.
func (b *Broadcaster) Relay(ctx context.Context, src <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-src:
			if !ok {
				return
			}
			_ = b.Notify(ctx, e)
		}
	}
}

func (b *Broadcaster) subscribers(attemptID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[attemptID])
}

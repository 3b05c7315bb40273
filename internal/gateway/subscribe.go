package gateway

import (
	"context"
	"fmt"
	"sync"

	"kamiview/internal/logging"
)

// Listener receives every unsolicited envelope. Listeners run on the
// delivering goroutine in arrival order and must not block.
type Listener func(Envelope)

type subscription struct {
	id uint64
	fn Listener
}

// Subscribe registers fn for unsolicited envelopes. The returned function
// unregisters it and is safe to call more than once.
func (g *Gateway) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	g.subsMu.Lock()
	g.nextSub++
	id := g.nextSub
	g.subs = append(g.subs, subscription{id: id, fn: fn})
	g.subsMu.Unlock()

	return func() {
		g.subsMu.Lock()
		defer g.subsMu.Unlock()
		for i, sub := range g.subs {
			if sub.id == id {
				g.subs = append(g.subs[:i:i], g.subs[i+1:]...)
				return
			}
		}
	}
}

// Events returns a channel of unsolicited envelopes that stays subscribed
// until ctx ends, at which point the channel is closed. Envelopes that do
// not fit in the buffer are dropped with a warning.
func (g *Gateway) Events(ctx context.Context, buffer int) <-chan Envelope {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Envelope, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe := g.Subscribe(func(env Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- env:
		default:
			logging.WarnWithContext(g.logger, "event subscriber is full; dropping event", "ipc_event_dropped",
				logging.String(logging.FieldKind, env.Type),
				logging.Int("buffer", buffer),
				logging.String(logging.FieldImpact, "a push notification was not delivered to one consumer"))
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

func (g *Gateway) publish(env Envelope) {
	g.subsMu.RLock()
	subs := make([]subscription, len(g.subs))
	copy(subs, g.subs)
	g.subsMu.RUnlock()

	if len(subs) == 0 {
		g.logger.Debug("no listener for unsolicited envelope", logging.String(logging.FieldKind, env.Type))
		return
	}
	for _, sub := range subs {
		g.notify(sub, env)
	}
}

func (g *Gateway) notify(sub subscription, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(g.logger, "event listener panicked", "ipc_listener_panic",
				logging.String(logging.FieldKind, env.Type),
				logging.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.fn(env)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kamiview/internal/logging"
)

const (
	// DefaultBudget is the general per-call budget.
	DefaultBudget = 30 * time.Second
	// LightBudget is the budget for lightweight, frequently repeated calls.
	LightBudget = 10 * time.Second

	defaultReadyInterval = 100 * time.Millisecond
	defaultReadyAttempts = 50
	defaultLateMemory    = 256
)

// Option customizes a Gateway.
type Option func(*Gateway)

// WithLogger sets the base logger; a component attribute is added.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logging.NewComponentLogger(logger, "gateway")
	}
}

// WithClock replaces the wall clock used for call timeouts.
func WithClock(clock Clock) Option {
	return func(g *Gateway) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithIDSource replaces the correlation id generator. Ids only need to be
// unique among pending calls; collisions are retried.
func WithIDSource(next func() string) Option {
	return func(g *Gateway) {
		if next != nil {
			g.newID = next
		}
	}
}

// WithLocator sets where AwaitReady looks for the host transport.
func WithLocator(locator Locator) Option {
	return func(g *Gateway) {
		g.locator = locator
	}
}

// WithReadyPolling sets the readiness gate polling interval and attempt ceiling.
func WithReadyPolling(interval time.Duration, attempts int) Option {
	return func(g *Gateway) {
		if interval > 0 {
			g.readyInterval = interval
		}
		if attempts > 0 {
			g.readyAttempts = attempts
		}
	}
}

// WithLateResponseMemory bounds how many expired ids are remembered for
// orphaned-response diagnostics. Zero disables the diagnostic.
func WithLateResponseMemory(n int) Option {
	return func(g *Gateway) {
		g.lateMemory = n
	}
}

// Gateway correlates outbound calls with inbound responses.
type Gateway struct {
	logger        *slog.Logger
	clock         Clock
	newID         func() string
	locator       Locator
	readyInterval time.Duration
	readyAttempts int
	lateMemory    int

	ready atomic.Bool

	mu        sync.Mutex
	transport Transport
	pending   map[string]*Call
	expired   *recentIDs
	closed    bool

	subsMu  sync.RWMutex
	subs    []subscription
	nextSub uint64
}

// New constructs a Gateway in the NOT_READY state.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		logger:        logging.NewComponentLogger(nil, "gateway"),
		clock:         realClock{},
		newID:         uuid.NewString,
		readyInterval: defaultReadyInterval,
		readyAttempts: defaultReadyAttempts,
		lateMemory:    defaultLateMemory,
		pending:       make(map[string]*Call),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.expired = newRecentIDs(g.lateMemory)
	return g
}

// Call is one in-flight request. It settles exactly once.
type Call struct {
	id     string
	kind   string
	budget time.Duration
	issued time.Time

	timer Timer
	once  sync.Once
	done  chan struct{}
	data  json.RawMessage
	err   error
}

// ID returns the correlation id, empty when the call failed before issuance.
func (c *Call) ID() string { return c.id }

// Kind returns the outbound message kind.
func (c *Call) Kind() string { return c.kind }

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result blocks until the call settles and returns the response data or the
// failure.
func (c *Call) Result() (json.RawMessage, error) {
	<-c.done
	return c.data, c.err
}

func (c *Call) settle(data json.RawMessage, err error) bool {
	settled := false
	c.once.Do(func() {
		c.data = data
		c.err = err
		close(c.done)
		settled = true
	})
	return settled
}

func failedCall(kind string, err error) *Call {
	c := &Call{kind: kind, done: make(chan struct{})}
	c.settle(nil, err)
	return c
}

type outboundFrame struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Go issues a call and returns its handle without waiting. Budget values
// <= 0 fall back to DefaultBudget.
func (g *Gateway) Go(kind string, payload any, budget time.Duration) *Call {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return failedCall(kind, errors.New("ipc call: message kind is required"))
	}
	if budget <= 0 {
		budget = DefaultBudget
	}

	data, err := encodePayload(payload)
	if err != nil {
		return failedCall(kind, fmt.Errorf("ipc call %s: encode payload: %w", kind, err))
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return failedCall(kind, ErrClosed)
	}
	transport := g.transport
	if transport == nil {
		g.mu.Unlock()
		return failedCall(kind, ErrTransportUnavailable)
	}
	id := g.newID()
	for id == "" || g.pending[id] != nil {
		id = g.newID()
	}
	call := &Call{
		id:     id,
		kind:   kind,
		budget: budget,
		issued: g.clock.Now(),
		done:   make(chan struct{}),
	}
	g.pending[id] = call
	call.timer = g.clock.AfterFunc(budget, func() { g.expire(id) })
	g.mu.Unlock()

	frame, err := json.Marshal(outboundFrame{ID: id, Type: kind, Data: data})
	if err == nil {
		g.logger.Debug("ipc call issued",
			logging.String(logging.FieldKind, kind),
			logging.String(logging.FieldCorrelationID, id),
			logging.Duration("budget", budget))
		err = transport.Send(frame)
		if err != nil {
			err = fmt.Errorf("%w: send %s: %w", ErrTransportUnavailable, kind, err)
		}
	}
	if err != nil {
		if g.remove(id) {
			call.settle(nil, err)
		}
	}
	return call
}

// Call issues a call and waits for it to settle. If ctx ends first the call
// is abandoned: its entry is removed, its timer stopped, and it settles with
// ctx.Err() unless a response won the race.
func (g *Gateway) Call(ctx context.Context, kind string, payload any, budget time.Duration) (json.RawMessage, error) {
	call := g.Go(kind, payload, budget)
	select {
	case <-call.Done():
	case <-ctx.Done():
		if g.remove(call.id) {
			g.forget(call.id)
			call.settle(nil, ctx.Err())
			logging.WithContext(logging.WithCorrelationID(ctx, call.id), g.logger).Debug("call abandoned",
				logging.String(logging.FieldKind, kind),
				logging.Error(ctx.Err()))
		}
	}
	return call.Result()
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// remove deletes a pending entry and stops its timer. It reports whether
// the caller now owns settling the call.
func (g *Gateway) remove(id string) bool {
	g.mu.Lock()
	call, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if ok && call.timer != nil {
		call.timer.Stop()
	}
	return ok
}

func (g *Gateway) forget(id string) {
	g.mu.Lock()
	g.expired.add(id)
	g.mu.Unlock()
}

func (g *Gateway) expire(id string) {
	g.mu.Lock()
	call, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
		g.expired.add(id)
	}
	g.mu.Unlock()
	if !ok {
		return
	}
	logging.WarnWithContext(g.logger, "ipc call timed out", "ipc_call_timeout",
		logging.String(logging.FieldKind, call.kind),
		logging.String(logging.FieldCorrelationID, id),
		logging.Duration("budget", call.budget),
		logging.String(logging.FieldImpact, "the request failed; a late response will be ignored"),
		logging.String(logging.FieldErrorHint, "check that the backend is running and responsive"))
	call.settle(nil, fmt.Errorf("%w: %s after %s", ErrTimeout, call.kind, call.budget))
}

// Pending reports the number of in-flight calls.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// IsPending reports whether id is still awaiting a response.
func (g *Gateway) IsPending(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[id]
	return ok
}

// Close settles every pending call with ErrClosed, stops their timers and
// drops all listeners. Later calls fail with ErrClosed.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	pending := g.pending
	g.pending = make(map[string]*Call)
	g.mu.Unlock()

	for _, call := range pending {
		if call.timer != nil {
			call.timer.Stop()
		}
		call.settle(nil, ErrClosed)
	}

	g.subsMu.Lock()
	g.subs = nil
	g.subsMu.Unlock()

	if len(pending) > 0 {
		g.logger.Debug("gateway closed with pending calls", logging.Int("pending", len(pending)))
	}
}

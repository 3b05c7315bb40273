package testsupport

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kamiview/internal/gateway"
	"kamiview/internal/ipc"
	"kamiview/internal/logging"
)

// HostRequest is one frame received by FakeHost.
type HostRequest struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the request payload into v.
func (r HostRequest) Decode(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("decode %s payload: %v", r.Type, err)
	}
}

// HostReply describes how FakeHost answers a request. A zero Type means
// success. Silent suppresses the response entirely.
type HostReply struct {
	Type   string
	Data   any
	Delay  time.Duration
	Silent bool
	// Events are pushed without correlation ids after the response.
	Events []gateway.Envelope
}

// Success builds a success reply.
func Success(data any) HostReply {
	return HostReply{Type: gateway.TypeSuccess, Data: data}
}

// Failure builds an error reply carrying message.
func Failure(message string) HostReply {
	return HostReply{Type: gateway.TypeError, Data: map[string]string{"message": message}}
}

// Event builds an unsolicited envelope.
func Event(kind string, data any) gateway.Envelope {
	env := gateway.Envelope{Type: kind}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic(err)
		}
		env.Data = raw
	}
	return env
}

// HostHandler answers one request kind.
type HostHandler func(req HostRequest) HostReply

// FakeHost is a scripted bridge backend listening on a Unix socket.
// Unhandled kinds answer with an error envelope.
type FakeHost struct {
	t      testing.TB
	server *ipc.Server

	mu       sync.Mutex
	handlers map[string]HostHandler
	requests []HostRequest
	arrived  chan struct{}
}

// NewFakeHost starts a host on a fresh socket. It stops when the test ends.
func NewFakeHost(t testing.TB) *FakeHost {
	t.Helper()
	return NewFakeHostAt(t, filepath.Join(ShortTempDir(t), "bridge.sock"))
}

// NewFakeHostAt starts a host on the given socket path.
func NewFakeHostAt(t testing.TB, socket string) *FakeHost {
	t.Helper()
	host := &FakeHost{
		t:        t,
		handlers: make(map[string]HostHandler),
		arrived:  make(chan struct{}, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	server, err := ipc.NewServer(ctx, socket, host.handle, logging.NewNop())
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping bridge socket test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	host.server = server
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return host
}

// SocketPath returns where the host listens.
func (h *FakeHost) SocketPath() string {
	return h.server.Path()
}

// Handle registers fn for requests of kind.
func (h *FakeHost) Handle(kind string, fn HostHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[kind] = fn
}

// Reply registers a fixed reply for kind.
func (h *FakeHost) Reply(kind string, reply HostReply) {
	h.Handle(kind, func(HostRequest) HostReply { return reply })
}

// Requests returns a snapshot of received requests in arrival order.
func (h *FakeHost) Requests() []HostRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HostRequest, len(h.requests))
	copy(out, h.requests)
	return out
}

// RequestsOf returns received requests of one kind.
func (h *FakeHost) RequestsOf(kind string) []HostRequest {
	var out []HostRequest
	for _, req := range h.Requests() {
		if req.Type == kind {
			out = append(out, req)
		}
	}
	return out
}

// WaitForRequest blocks until a request of kind has arrived.
func (h *FakeHost) WaitForRequest(kind string, timeout time.Duration) HostRequest {
	h.t.Helper()
	deadline := time.After(timeout)
	for {
		if reqs := h.RequestsOf(kind); len(reqs) > 0 {
			return reqs[len(reqs)-1]
		}
		select {
		case <-h.arrived:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s request", kind)
			return HostRequest{}
		}
	}
}

// Push sends an unsolicited envelope to every attached client.
func (h *FakeHost) Push(env gateway.Envelope) int {
	raw, err := json.Marshal(env)
	if err != nil {
		h.t.Errorf("encode pushed envelope: %v", err)
		return 0
	}
	return h.server.Broadcast(raw)
}

func (h *FakeHost) handle(conn *ipc.Conn, frame []byte) {
	var req HostRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		h.t.Errorf("fake host: bad frame %q: %v", frame, err)
		return
	}
	h.mu.Lock()
	h.requests = append(h.requests, req)
	handler := h.handlers[req.Type]
	h.mu.Unlock()
	select {
	case h.arrived <- struct{}{}:
	default:
	}

	reply := Failure("unknown message kind: " + req.Type)
	if handler != nil {
		reply = handler(req)
	}
	if reply.Delay > 0 {
		time.Sleep(reply.Delay)
	}
	if !reply.Silent {
		kind := reply.Type
		if kind == "" {
			kind = gateway.TypeSuccess
		}
		env := Event(kind, reply.Data)
		env.ID = req.ID
		h.send(conn, env)
	}
	for _, event := range reply.Events {
		h.send(conn, event)
	}
}

func (h *FakeHost) send(conn *ipc.Conn, env gateway.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		h.t.Errorf("fake host: encode reply: %v", err)
		return
	}
	_ = conn.Send(raw)
}

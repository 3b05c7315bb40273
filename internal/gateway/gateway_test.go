package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"kamiview/internal/gateway"
	"kamiview/internal/testsupport"
)

type sentFrame struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type recordingTransport struct {
	mu     sync.Mutex
	frames []sentFrame
	err    error
}

func (r *recordingTransport) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	var f sentFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingTransport) sent() []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

func newReadyGateway(t *testing.T, opts ...gateway.Option) (*gateway.Gateway, *recordingTransport, *testsupport.ManualClock) {
	t.Helper()
	clock := testsupport.NewManualClock()
	transport := &recordingTransport{}
	g := gateway.New(append([]gateway.Option{gateway.WithClock(clock)}, opts...)...)
	if !g.Attach(transport) {
		t.Fatal("expected attach to succeed")
	}
	t.Cleanup(g.Close)
	return g, transport, clock
}

func deliver(t *testing.T, g *gateway.Gateway, id, kind string, data any) {
	t.Helper()
	env := map[string]any{"type": kind}
	if id != "" {
		env["id"] = id
	}
	if data != nil {
		env["data"] = data
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := g.Deliver(raw); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func requireSettled(t *testing.T, call *gateway.Call) {
	t.Helper()
	select {
	case <-call.Done():
	default:
		t.Fatalf("call %s (%s) has not settled", call.ID(), call.Kind())
	}
}

func requirePending(t *testing.T, call *gateway.Call) {
	t.Helper()
	select {
	case <-call.Done():
		_, err := call.Result()
		t.Fatalf("call %s settled early: %v", call.ID(), err)
	default:
	}
}

func TestCallBeforeReadyFailsWithoutSending(t *testing.T) {
	g := gateway.New()
	defer g.Close()

	call := g.Go("search", map[string]string{"query": "naruto"}, 0)
	requireSettled(t, call)
	if _, err := call.Result(); !errors.Is(err, gateway.ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	if call.ID() != "" {
		t.Fatalf("expected no correlation id, got %q", call.ID())
	}
	if g.Pending() != 0 {
		t.Fatalf("expected empty pending table, got %d", g.Pending())
	}
}

func TestSearchResolvesWithResponseData(t *testing.T) {
	g, transport, _ := newReadyGateway(t)

	call := g.Go("search", map[string]string{"query": "naruto"}, gateway.DefaultBudget)
	frames := transport.sent()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	frame := frames[0]
	if frame.Type != "search" || frame.ID != call.ID() {
		t.Fatalf("unexpected frame %+v for call %s", frame, call.ID())
	}
	if string(frame.Data) != `{"query":"naruto"}` {
		t.Fatalf("unexpected payload %s", frame.Data)
	}
	if !g.IsPending(call.ID()) {
		t.Fatal("expected call to be pending")
	}

	deliver(t, g, call.ID(), gateway.TypeSuccess, map[string]any{"results": []string{"Naruto"}})

	requireSettled(t, call)
	data, err := call.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if string(data) != `{"results":["Naruto"]}` {
		t.Fatalf("unexpected data %s", data)
	}
	if g.IsPending(call.ID()) || g.Pending() != 0 {
		t.Fatal("expected pending entry to be removed")
	}
}

func TestKindSpecificTagResolves(t *testing.T) {
	g, _, _ := newReadyGateway(t)

	call := g.Go("animeSelected", map[string]int{"shikimoriId": 20}, 0)
	deliver(t, g, call.ID(), "animeInfo", map[string]any{"episodes": 220})

	data, err := call.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !strings.Contains(string(data), `"episodes":220`) {
		t.Fatalf("unexpected data %s", data)
	}
}

func TestErrorEnvelopeRejectsWithBackendMessage(t *testing.T) {
	g, _, _ := newReadyGateway(t)

	call := g.Go("exchangeCode", map[string]string{"code": "bad"}, 0)
	deliver(t, g, call.ID(), gateway.TypeError, map[string]string{"message": "invalid code"})

	_, err := call.Result()
	var backendErr *gateway.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if err.Error() != "invalid code" {
		t.Fatalf("expected backend message, got %q", err.Error())
	}
	if backendErr.Kind != "exchangeCode" {
		t.Fatalf("unexpected kind %q", backendErr.Kind)
	}
}

func TestErrorEnvelopeMessageFallbacks(t *testing.T) {
	cases := []struct {
		name string
		data any
		want string
	}{
		{name: "string data", data: "boom", want: "boom"},
		{name: "no data", data: nil, want: "backend reported an error"},
		{name: "empty message", data: map[string]string{"message": " "}, want: "backend reported an error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _, _ := newReadyGateway(t)
			call := g.Go("logout", nil, 0)
			deliver(t, g, call.ID(), gateway.TypeError, tc.data)
			if _, err := call.Result(); err == nil || err.Error() != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestPlayEpisodeTimesOutAfterBudget(t *testing.T) {
	g, _, clock := newReadyGateway(t)

	call := g.Go("playEpisode", map[string]any{"shikimoriId": 1, "episode": 3, "translationId": 7}, gateway.DefaultBudget)

	clock.Advance(gateway.DefaultBudget - time.Millisecond)
	requirePending(t, call)

	clock.Advance(time.Millisecond)
	requireSettled(t, call)
	if _, err := call.Result(); !errors.Is(err, gateway.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if g.Pending() != 0 {
		t.Fatalf("expected empty pending table, got %d", g.Pending())
	}
}

func TestBudgetsAreIndependentPerCall(t *testing.T) {
	g, _, clock := newReadyGateway(t)

	light := g.Go("getPlaybackInfo", nil, gateway.LightBudget)
	general := g.Go("search", map[string]string{"query": "x"}, gateway.DefaultBudget)

	clock.Advance(gateway.LightBudget)
	requireSettled(t, light)
	requirePending(t, general)

	clock.Advance(gateway.DefaultBudget - gateway.LightBudget)
	requireSettled(t, general)
}

func TestResponseStopsTimer(t *testing.T) {
	g, _, clock := newReadyGateway(t)

	call := g.Go("stopPlayback", nil, 0)
	if clock.Armed() != 1 {
		t.Fatalf("expected one armed timer, got %d", clock.Armed())
	}
	deliver(t, g, call.ID(), gateway.TypeSuccess, map[string]any{"paused": true})
	if clock.Armed() != 0 {
		t.Fatalf("expected timer to be stopped, got %d armed", clock.Armed())
	}
	clock.Advance(time.Hour)
	if _, err := call.Result(); err != nil {
		t.Fatalf("expected resolved call, got %v", err)
	}
}

func TestLateResponseIsForwardedAsEvent(t *testing.T) {
	g, _, clock := newReadyGateway(t)

	var got []gateway.Envelope
	unsubscribe := g.Subscribe(func(env gateway.Envelope) { got = append(got, env) })
	defer unsubscribe()

	call := g.Go("search", nil, time.Second)
	clock.Advance(time.Second)
	if _, err := call.Result(); !errors.Is(err, gateway.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	deliver(t, g, call.ID(), gateway.TypeSuccess, map[string]any{"results": []string{}})

	if _, err := call.Result(); !errors.Is(err, gateway.ErrTimeout) {
		t.Fatalf("late response changed the outcome: %v", err)
	}
	if len(got) != 1 || got[0].ID != call.ID() {
		t.Fatalf("expected late response on the event channel, got %+v", got)
	}
}

func TestUnknownIDGoesToListenersOnly(t *testing.T) {
	g, _, _ := newReadyGateway(t)

	pending := g.Go("search", nil, 0)
	var got []gateway.Envelope
	unsubscribe := g.Subscribe(func(env gateway.Envelope) { got = append(got, env) })
	defer unsubscribe()

	deliver(t, g, "unknown-99", gateway.TypeSuccess, map[string]any{})

	requirePending(t, pending)
	if len(got) != 1 || got[0].ID != "unknown-99" || got[0].Type != gateway.TypeSuccess {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestUnsolicitedEventWithoutListenersIsDropped(t *testing.T) {
	g, _, _ := newReadyGateway(t)
	pending := g.Go("startDownload", nil, 0)

	deliver(t, g, "", "DownloadProgress", map[string]float64{"percent": 10})

	requirePending(t, pending)
	if g.Pending() != 1 {
		t.Fatalf("expected pending call to remain, got %d", g.Pending())
	}
}

func TestConcurrentCallsSettleIndependently(t *testing.T) {
	g, _, _ := newReadyGateway(t)

	a := g.Go("search", map[string]string{"query": "a"}, 0)
	b := g.Go("search", map[string]string{"query": "b"}, 0)
	if a.ID() == b.ID() {
		t.Fatal("expected distinct correlation ids")
	}

	deliver(t, g, b.ID(), gateway.TypeSuccess, "b")
	requireSettled(t, b)
	requirePending(t, a)
	if !g.IsPending(a.ID()) {
		t.Fatal("completing b affected a")
	}

	deliver(t, g, a.ID(), gateway.TypeError, map[string]string{"message": "nope"})
	if data, _ := b.Result(); string(data) != `"b"` {
		t.Fatalf("unexpected data for b: %s", data)
	}
	if _, err := a.Result(); err == nil || err.Error() != "nope" {
		t.Fatalf("unexpected error for a: %v", err)
	}
}

func TestIDCollisionsAreRetried(t *testing.T) {
	ids := []string{"dup", "dup", "", "fresh"}
	var idx int
	next := func() string {
		id := ids[idx%len(ids)]
		idx++
		return id
	}
	g, _, _ := newReadyGateway(t, gateway.WithIDSource(next))

	first := g.Go("search", nil, 0)
	second := g.Go("search", nil, 0)
	if first.ID() != "dup" || second.ID() != "fresh" {
		t.Fatalf("unexpected ids %q %q", first.ID(), second.ID())
	}
}

func TestMalformedEnvelopeIsDropped(t *testing.T) {
	g, _, _ := newReadyGateway(t)
	call := g.Go("search", nil, 0)

	var events int
	unsubscribe := g.Subscribe(func(gateway.Envelope) { events++ })
	defer unsubscribe()

	for _, raw := range []string{"", "{not json", `{"id":"x"}`, `[1,2]`} {
		if err := g.Deliver([]byte(raw)); !errors.Is(err, gateway.ErrMalformedEnvelope) {
			t.Fatalf("Deliver(%q): expected ErrMalformedEnvelope, got %v", raw, err)
		}
	}
	requirePending(t, call)
	if events != 0 {
		t.Fatalf("malformed frames reached listeners: %d", events)
	}

	deliver(t, g, call.ID(), gateway.TypeSuccess, 1)
	if _, err := call.Result(); err != nil {
		t.Fatalf("dispatch broken after malformed frames: %v", err)
	}
}

func TestSendFailureSettlesCall(t *testing.T) {
	g, transport, clock := newReadyGateway(t)
	transport.err = errors.New("broken pipe")

	call := g.Go("logout", nil, 0)
	requireSettled(t, call)
	_, err := call.Result()
	if !errors.Is(err, gateway.ErrTransportUnavailable) || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("unexpected error %v", err)
	}
	if g.Pending() != 0 || clock.Armed() != 0 {
		t.Fatalf("expected no pending state, pending=%d armed=%d", g.Pending(), clock.Armed())
	}
}

func TestPayloadEncoding(t *testing.T) {
	g, transport, _ := newReadyGateway(t)

	g.Go("getPlaybackInfo", nil, 0)
	g.Go("togglePlayback", json.RawMessage(`{"paused":true}`), 0)
	bad := g.Go("search", json.RawMessage(`{oops`), 0)
	if _, err := bad.Result(); err == nil {
		t.Fatal("expected invalid raw payload to fail")
	}

	frames := transport.sent()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0].Data) != `{}` {
		t.Fatalf("expected empty object payload, got %s", frames[0].Data)
	}
	if string(frames[1].Data) != `{"paused":true}` {
		t.Fatalf("unexpected raw payload %s", frames[1].Data)
	}
}

func TestCallAbandonedByContext(t *testing.T) {
	g, _, clock := newReadyGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Call(ctx, "search", nil, 0)
		errCh <- err
	}()

	waitFor(t, func() bool { return g.Pending() == 1 })
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after cancellation")
	}
	if g.Pending() != 0 || clock.Armed() != 0 {
		t.Fatalf("abandoned call left state behind: pending=%d armed=%d", g.Pending(), clock.Armed())
	}
}

func TestCloseSettlesPendingCalls(t *testing.T) {
	g, _, clock := newReadyGateway(t)

	call := g.Go("search", nil, 0)
	g.Close()

	requireSettled(t, call)
	if _, err := call.Result(); !errors.Is(err, gateway.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if clock.Armed() != 0 {
		t.Fatalf("expected timers stopped, got %d", clock.Armed())
	}
	after := g.Go("search", nil, 0)
	if _, err := after.Result(); !errors.Is(err, gateway.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestResponseAndTimeoutRaceSettlesOnce(t *testing.T) {
	for i := 0; i < 200; i++ {
		g, _, clock := newReadyGateway(t)
		var events int
		var mu sync.Mutex
		g.Subscribe(func(gateway.Envelope) {
			mu.Lock()
			events++
			mu.Unlock()
		})

		call := g.Go("search", nil, time.Second)
		raw := []byte(fmt.Sprintf(`{"id":%q,"type":"success","data":1}`, call.ID()))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = g.Deliver(raw)
		}()
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
		wg.Wait()

		data, err := call.Result()
		mu.Lock()
		forwarded := events
		mu.Unlock()
		switch {
		case err == nil:
			if string(data) != "1" || forwarded != 0 {
				t.Fatalf("resolved call: data=%s forwarded=%d", data, forwarded)
			}
		case errors.Is(err, gateway.ErrTimeout):
			if forwarded != 1 {
				t.Fatalf("timed out call: expected late response forwarded once, got %d", forwarded)
			}
		default:
			t.Fatalf("unexpected outcome %v", err)
		}
		if g.Pending() != 0 {
			t.Fatalf("pending table not empty: %d", g.Pending())
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

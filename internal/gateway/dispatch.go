package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"kamiview/internal/logging"
)

// Outcome tags carried in the type field of response envelopes. Any other
// tag on a correlated envelope resolves like TypeSuccess.
const (
	TypeSuccess = "success"
	TypeError   = "error"
)

const defaultBackendMessage = "backend reported an error"

// Envelope is every message arriving from the backend.
type Envelope struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Deliver routes one inbound frame. Correlated responses settle their call;
// everything else goes to the subscribed listeners. Malformed frames are
// logged and dropped; the returned error is informational only.
func (g *Gateway) Deliver(raw []byte) error {
	env, err := parseEnvelope(raw)
	if err != nil {
		logging.WarnWithContext(g.logger, "dropping malformed ipc envelope", "ipc_malformed_envelope",
			logging.Error(err),
			logging.Int("bytes", len(raw)),
			logging.String(logging.FieldImpact, "the message was ignored"),
			logging.String(logging.FieldErrorHint, "check the backend message format"))
		return err
	}
	g.dispatch(env)
	return nil
}

func parseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return env, fmt.Errorf("%w: empty frame", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return env, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

func (g *Gateway) dispatch(env Envelope) {
	if env.ID != "" {
		g.mu.Lock()
		call, ok := g.pending[env.ID]
		if ok {
			delete(g.pending, env.ID)
		}
		orphan := !ok && g.expired.contains(env.ID)
		g.mu.Unlock()

		if ok {
			if call.timer != nil {
				call.timer.Stop()
			}
			g.complete(call, env)
			return
		}
		if orphan {
			logging.WarnWithContext(g.logger, "late ipc response for expired call", "ipc_orphaned_response",
				logging.String(logging.FieldCorrelationID, env.ID),
				logging.String(logging.FieldKind, env.Type),
				logging.String(logging.FieldImpact, "response arrived after the call settled; forwarded as an event"),
				logging.String(logging.FieldErrorHint, "the backend is slower than the call budget"))
		}
	}
	g.publish(env)
}

func (g *Gateway) complete(call *Call, env Envelope) {
	if env.Type == TypeError {
		err := &BackendError{Kind: call.kind, Message: backendMessage(env.Data)}
		g.logger.Debug("ipc call rejected by backend",
			logging.String(logging.FieldKind, call.kind),
			logging.String(logging.FieldCorrelationID, call.id),
			logging.String("message", err.Message))
		call.settle(nil, err)
		return
	}
	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage(`null`)
	}
	g.logger.Debug("ipc call resolved",
		logging.String(logging.FieldKind, call.kind),
		logging.String(logging.FieldCorrelationID, call.id),
		logging.String("tag", env.Type),
		logging.Duration("elapsed", g.clock.Now().Sub(call.issued)))
	call.settle(data, nil)
}

func backendMessage(data json.RawMessage) string {
	if len(data) == 0 {
		return defaultBackendMessage
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	return defaultBackendMessage
}

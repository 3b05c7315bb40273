package gateway

import "errors"

var (
	// ErrTransportUnavailable is returned for calls issued before the
	// readiness gate succeeded, or when the transport rejects a frame.
	ErrTransportUnavailable = errors.New("ipc not available")
	// ErrReadinessTimeout is returned by AwaitReady when the host never
	// provides a transport within the polling window.
	ErrReadinessTimeout = errors.New("ipc initialization timeout")
	// ErrTimeout settles a call whose budget elapsed without a response.
	ErrTimeout = errors.New("ipc request timed out")
	// ErrMalformedEnvelope is reported by Deliver for unparsable inbound
	// data. It is never surfaced to callers of Call.
	ErrMalformedEnvelope = errors.New("malformed ipc envelope")
	// ErrClosed settles calls still pending when the gateway is closed.
	ErrClosed = errors.New("ipc gateway closed")
)

// BackendError carries an explicit error envelope from the backend. Error
// returns the backend-supplied message verbatim so callers can present it
// directly.
type BackendError struct {
	Kind    string
	Message string
}

func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Package client talks to OBS Studio over the obs-websocket 4.x JSON protocol.
// It owns the connection lifecycle, the request/response channel and the
// push-event router. Types mirror the wire protocol; the mirrored scene and
// audio state lives in the mirror package.
package client

import (
	"encoding/json"
	"fmt"
)

// Params is the key-value argument set of a request.
type Params map[string]any

// Status is the normalized outcome of a request.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the uniform shape every call resolves to. When Status is not
// StatusOK, Raw may be empty and callers must not rely on payload fields.
type Result struct {
	Status  Status
	Command string
	Params  Params
	Error   string
	Raw     json.RawMessage
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Decode unmarshals the response payload into v. It fails for error results.
func (r Result) Decode(v any) error {
	if !r.OK() {
		return fmt.Errorf("%s: %s", r.Command, r.Error)
	}
	if len(r.Raw) == 0 {
		return fmt.Errorf("%s: empty response", r.Command)
	}
	return json.Unmarshal(r.Raw, v)
}

// Fields returns the top-level response fields, or nil for error results.
func (r Result) Fields() map[string]json.RawMessage {
	if !r.OK() || len(r.Raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(r.Raw, &m) != nil {
		return nil
	}
	return m
}

// MarshalJSON renders the result the way the HTTP bridge returns it:
// {"status":"ok", ...payload} or {"status":"error","command",...,"error"}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.OK() {
		fields := r.Fields()
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
		fields["status"] = json.RawMessage(`"ok"`)
		delete(fields, "message-id")
		return json.Marshal(fields)
	}
	return json.Marshal(struct {
		Status  Status `json:"status"`
		Command string `json:"command"`
		Params  Params `json:"params,omitempty"`
		Error   string `json:"error"`
	}{StatusError, r.Command, r.Params, r.Error})
}

// errorResult builds a normalized failure.
func errorResult(command string, params Params, err string) Result {
	return Result{Status: StatusError, Command: command, Params: params, Error: err}
}

// --- wire envelopes ---

// envelope holds the routing keys shared by responses and events.
type envelope struct {
	MessageID  string `json:"message-id"`
	UpdateType string `json:"update-type"`
	Status     Status `json:"status"`
	Error      string `json:"error"`
}

// encodeRequest merges the routing keys into params, as the protocol
// expects them side by side at the top level.
func encodeRequest(id, command string, params Params) ([]byte, error) {
	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["request-type"] = command
	msg["message-id"] = id
	return json.Marshal(msg)
}

// --- handshake payloads ---

type authRequiredResponse struct {
	AuthRequired bool   `json:"authRequired"`
	Challenge    string `json:"challenge"`
	Salt         string `json:"salt"`
}

// VersionInfo is the GetVersion response.
type VersionInfo struct {
	WebsocketVersion string `json:"obs-websocket-version"`
	StudioVersion    string `json:"obs-studio-version"`
}

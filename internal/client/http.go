package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dvangennip/web-remote-for-OBS/internal/metrics"
)

// Caller issues requests to OBS. *Session talks to OBS directly; *HTTPClient
// goes through an obs-bridge.
type Caller interface {
	Call(ctx context.Context, command string, params Params) Result
}

var (
	_ Caller = (*Session)(nil)
	_ Caller = (*HTTPClient)(nil)
)

// HTTPClient calls OBS through the HTTP bridge (POST /call/{command}).
type HTTPClient struct {
	baseURL string
	authKey string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given bridge base URL
// (e.g. "http://127.0.0.1:4445"). authKey is sent in the AuthKey header when set.
func NewHTTPClient(baseURL, authKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		authKey: authKey,
		client:  &http.Client{Timeout: DefaultRequestTimeout + 5*time.Second},
	}
}

// Call posts params to the bridge and decodes its uniform result. Transport
// and HTTP failures become error results.
func (c *HTTPClient) Call(ctx context.Context, command string, params Params) Result {
	if params == nil {
		params = Params{}
	}
	raw, err := c.post(ctx, "/call/"+url.PathEscape(command), params)
	if err != nil {
		metrics.Requests.WithLabelValues(command, "failed").Inc()
		return errorResult(command, params, err.Error())
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.Requests.WithLabelValues(command, "failed").Inc()
		return errorResult(command, params, fmt.Sprintf("decode bridge response: %v", err))
	}
	metrics.Requests.WithLabelValues(command, string(env.Status)).Inc()
	if env.Status != StatusOK {
		return errorResult(command, params, env.Error)
	}
	return Result{Status: StatusOK, Command: command, Params: params, Raw: raw}
}

// Emit sends command through the bridge without waiting for OBS to answer.
func (c *HTTPClient) Emit(ctx context.Context, command string, params Params) error {
	if params == nil {
		params = Params{}
	}
	_, err := c.post(ctx, "/emit/"+url.PathEscape(command), params)
	return err
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	// The bridge reports OBS-level failures as 200 with status "error";
	// anything else (bad AuthKey, not connected) is a bridge failure.
	if resp.StatusCode >= 300 {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return nil, fmt.Errorf("bridge: %s", env.Error)
		}
		return nil, fmt.Errorf("POST %s: %d %s", path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.authKey != "" {
		req.Header.Set("AuthKey", c.authKey)
	}
}

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCallTimeout bounds a single RPC when the caller's context has no
// earlier deadline.
const DefaultCallTimeout = 60 * time.Second

// HTTPClient talks the builder wire protocol over HTTP. Each method is a
// POST to /rpc/<method> with a JSON body; replies carry either a result or
// a fault.
type HTTPClient struct {
	base    string
	httpc   *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a client for the worker at base (e.g.
// "http://bob.internal:8221").
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base:    base,
		httpc:   &http.Client{},
		timeout: DefaultCallTimeout,
	}
}

// rpcEnvelope is the wire format of every reply.
type rpcEnvelope struct {
	Fault  *Fault          `json:"fault,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// call posts the request body to /rpc/<method> and decodes the result into
// out (when out is non-nil).
func (c *HTTPClient) call(ctx context.Context, method string, body, out interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("worker: encode %s: %w", method, err)
	}

	url := c.base + "/rpc/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("worker: request %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{URL: url, Err: fmt.Errorf("status %s", resp.Status)}
	}

	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &TransportError{URL: url, Err: fmt.Errorf("decode reply: %w", err)}
	}
	if env.Fault != nil {
		return env.Fault
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &TransportError{URL: url, Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}

// Status implements Client.
func (c *HTTPClient) Status(ctx context.Context) (*StatusReply, error) {
	var reply StatusReply
	if err := c.call(ctx, "status", struct{}{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Dispatch implements Client. Inputs are made present one by one before the
// build call; a failure at any step aborts the dispatch.
func (c *HTTPClient) Dispatch(ctx context.Context, cookie string, inputs []Input, spec DispatchSpec) error {
	for _, in := range inputs {
		if err := c.call(ctx, "ensurepresent", in, nil); err != nil {
			return err
		}
	}
	req := struct {
		Cookie string       `json:"cookie"`
		Spec   DispatchSpec `json:"spec"`
	}{Cookie: cookie, Spec: spec}
	return c.call(ctx, "build", req, nil)
}

// Abort implements Client.
func (c *HTTPClient) Abort(ctx context.Context) error {
	return c.call(ctx, "abort", struct{}{}, nil)
}

// Resume implements Client.
func (c *HTTPClient) Resume(ctx context.Context) error {
	return c.call(ctx, "resume", struct{}{}, nil)
}

// Clean implements Client.
func (c *HTTPClient) Clean(ctx context.Context) error {
	return c.call(ctx, "clean", struct{}{}, nil)
}

// Echo implements Client.
func (c *HTTPClient) Echo(ctx context.Context, payload string) (string, error) {
	req := struct {
		Payload string `json:"payload"`
	}{Payload: payload}
	var reply struct {
		Payload string `json:"payload"`
	}
	if err := c.call(ctx, "echo", req, &reply); err != nil {
		return "", err
	}
	return reply.Payload, nil
}

var _ Client = (*HTTPClient)(nil)

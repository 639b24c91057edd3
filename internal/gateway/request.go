package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Request is one logical call to the backend. A Request may be dispatched
// twice (original attempt plus one resend after renewal) and must not be
// shared between concurrent Send calls.
type Request struct {
	Method string
	// Path is relative to the gateway's base URL, e.g. "/tasks/1/".
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded once; the same bytes are used for the resend.
	Body interface{}

	id      string
	payload []byte
	encoded bool
	retried bool
	bearer  string
}

// NewRequest builds a Request with an empty header set.
func NewRequest(method, path string, body interface{}) *Request {
	return &Request{Method: method, Path: path, Body: body, Header: make(http.Header)}
}

// Retried reports whether the request has already been resent after a
// credential renewal.
func (r *Request) Retried() bool { return r.retried }

// ID is the correlation id sent as X-Request-ID on every attempt.
func (r *Request) ID() string { return r.id }

func (r *Request) prepare() error {
	if r.id == "" {
		r.id = uuid.NewString()
	}
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if r.encoded || r.Body == nil {
		r.encoded = true
		return nil
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	r.payload = data
	r.encoded = true
	return nil
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v interface{}) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

func (r *Response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

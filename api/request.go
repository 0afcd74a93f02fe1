package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/izikwen-client/internal/errors"
)

// Request describes one logical API call. Body is JSON-encoded unless it is
// already a []byte or json.RawMessage; it is encoded once so a replay sends
// identical bytes.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Decode unmarshals the JSON body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for every non-2xx response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
	RequestID  string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if m := e.Message(); m != "" {
		msg += ": " + m
	}
	return msg
}

// Message extracts the server's error message from a {"message"} or
// {"error"} body, falling back to the raw body text.
func (e *StatusError) Message() string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(e.Body))
}

// IsStatus reports whether err carries an HTTP response with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == status
}

// call is the client's private state for one Request across its attempts.
type call struct {
	req       *Request
	method    string
	body      []byte
	requestID string

	// explicitAuth is set when the caller supplied its own Authorization
	// header; such calls are never refreshed.
	explicitAuth bool
	retried      bool
	sentToken    string
}

func newCall(req *Request, requestID string) (*call, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request: %w", errors.ErrInvalidInput)
	}
	c := &call{
		req:          req,
		method:       req.Method,
		requestID:    requestID,
		explicitAuth: req.Header.Get("Authorization") != "",
	}
	if c.method == "" {
		c.method = http.MethodGet
	}

	switch b := req.Body.(type) {
	case nil:
	case []byte:
		c.body = b
	case json.RawMessage:
		c.body = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		c.body = data
	}
	return c, nil
}

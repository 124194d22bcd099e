package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transport sends an assembled request and returns its terminal response.
// Implementations report HTTP error statuses either as an error or as a
// response with a non-2xx status; dispatch treats both as transport errors.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// EventKind tells what a stream Event reports.
type EventKind int

const (
	EventSent EventKind = iota
	EventProgress
	EventResponse
)

// Event is one step of a streamed exchange.
type Event struct {
	Kind     EventKind
	Loaded   int64
	Total    int64
	Response *Response
	Err      error
}

// StreamTransport emits progress events before the terminal one.
// The channel is closed after the last event.
type StreamTransport interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

var errNoTerminalEvent = errors.New("rest: stream ended without a response")

// Last adapts st to Transport by keeping only its final event.
func Last(st StreamTransport) Transport {
	return TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		events, err := st.Stream(ctx, req)
		if err != nil {
			return nil, err
		}

		var (
			last Event
			seen bool
		)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					if !seen {
						return nil, errNoTerminalEvent
					}
					return last.Response, last.Err
				}
				last, seen = ev, true
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	})
}

const defaultJSONPCallback = "JSONP_CALLBACK"

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	client        *http.Client
	jsonpCallback string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.client.Timeout = d
	}
}

// WithJSONPCallback sets the callback name of JSONP requests.
func WithJSONPCallback(name string) HTTPOption {
	return func(t *HTTPTransport) {
		t.jsonpCallback = name
	}
}

// NewHTTPTransport creates a transport with a 30 second timeout.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client:        &http.Client{Timeout: 30 * time.Second},
		jsonpCallback: defaultJSONPCallback,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req. Statuses of 400 and above are returned as *Error together
// with the response. JSON responses are checked for well-formedness.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("read response body: %w", err)}
	}

	resp := &Response{
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Header:     httpResp.Header,
		Body:       data,
		URL:        httpReq.URL.String(),
	}

	if resp.Status >= http.StatusBadRequest {
		return resp, statusError(resp)
	}

	if req.Method == MethodJSONP {
		resp.Body = stripPadding(resp.Body, t.jsonpCallback)
	}
	if req.ResponseType == JSON && len(bytes.TrimSpace(resp.Body)) > 0 && !json.Valid(resp.Body) {
		return resp, &Error{
			Kind:       KindTransport,
			Status:     resp.Status,
			StatusText: resp.StatusText,
			Response:   resp,
			Err:        errors.New("response body is not valid JSON"),
		}
	}
	return resp, nil
}

// Stream sends req and reports it as a sent event followed by the response.
func (t *HTTPTransport) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	events := make(chan Event, 2)
	go func() {
		defer close(events)
		events <- Event{Kind: EventSent}
		resp, err := t.Do(ctx, req)
		events <- Event{Kind: EventResponse, Response: resp, Err: err}
	}()
	return events, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	query := req.Query
	if method == MethodJSONP {
		method = http.MethodGet
		query = withCallback(req.Query, t.jsonpCallback)
	}

	target := (&Request{URL: req.URL, Query: query}).FullURL()

	body, contentType, err := req.Body.Encode()
	if err != nil {
		return nil, &Error{Kind: KindAssembly, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindAssembly, Err: fmt.Errorf("build http request: %w", err)}
	}

	httpReq.Header = req.Header.Header()
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", acceptFor(req.ResponseType))
	}
	return httpReq, nil
}

func withCallback(q *QueryValues, callback string) *QueryValues {
	out := NewQueryValues()
	if q != nil {
		out.entries = append(out.entries, q.entries...)
	}
	out.Add("callback", callback, true)
	return out
}

// stripPadding unwraps callback(...) and an optional trailing semicolon.
func stripPadding(body []byte, callback string) []byte {
	s := strings.TrimSpace(string(body))
	if !strings.HasPrefix(s, callback+"(") {
		return body
	}
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSuffix(s, ")")
	return []byte(strings.TrimPrefix(s, callback+"("))
}

func acceptFor(t ResponseType) string {
	switch t {
	case Text:
		return "text/plain, */*"
	case Blob, ArrayBuffer:
		return "*/*"
	}
	return "application/json, text/plain, */*"
}

func statusError(resp *Response) *Error {
	return &Error{
		Kind:       KindTransport,
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Response:   resp,
	}
}

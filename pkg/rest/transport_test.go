package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query":  r.URL.RawQuery,
			"auth":   r.Header.Get("Authorization"),
			"accept": r.Header.Get("Accept"),
		})
	})
	r.Post("/posts", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content_type": r.Header.Get("Content-Type"),
			"body":         string(data),
		})
	})
	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["files[]"]
		names := make([]string, 0, len(files))
		for _, fh := range files {
			names = append(names, fh.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": names,
			"title": r.FormValue("title"),
		})
	})
	r.Get("/jsonp", func(w http.ResponseWriter, r *http.Request) {
		cb := r.URL.Query().Get("callback")
		_, _ = io.WriteString(w, cb+`({"jsonp":true});`)
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	})
	r.Get("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "plain words")
	})
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, "{}")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func getRequest(url string) *Request {
	return &Request{
		Method:       http.MethodGet,
		URL:          url,
		Header:       NewValues(),
		Query:        NewQueryValues(),
		ResponseType: JSON,
	}
}

func TestHTTPTransport_HeadersAndQuery(t *testing.T) {
	srv := newTestServer(t)
	transport := NewHTTPTransport()

	req := getRequest(srv.URL + "/echo")
	req.Header.Add("Authorization", "Bearer t")
	req.Query.Add("q", "a b", false)
	req.Query.Add("raw", "x,y", true)

	resp, err := transport.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "OK", resp.StatusText)

	var got map[string]string
	require.NoError(t, resp.JSON(&got))
	assert.Equal(t, "q=a%20b&raw=x,y", got["query"])
	assert.Equal(t, "Bearer t", got["auth"])
	assert.Equal(t, "application/json, text/plain, */*", got["accept"])
}

func TestHTTPTransport_JSONBody(t *testing.T) {
	srv := newTestServer(t)
	transport := NewHTTPTransport()

	req := getRequest(srv.URL + "/posts")
	req.Method = http.MethodPost
	req.Body = Body{Kind: BodyJSON, Fields: map[string]any{"title": "hi"}}

	resp, err := transport.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	var got map[string]string
	require.NoError(t, resp.JSON(&got))
	assert.Equal(t, "application/json", got["content_type"])
	assert.JSONEq(t, `{"title":"hi"}`, got["body"])
}

func TestHTTPTransport_Multipart(t *testing.T) {
	srv := newTestServer(t)
	transport := NewHTTPTransport()

	body, err := buildBody([]boundArg{
		{index: 0, value: []File{{Name: "a.txt", Content: []byte("a")}, {Name: "b.txt", Content: []byte("b")}}},
		{index: 1, name: "title", value: "docs"},
	})
	require.NoError(t, err)

	req := getRequest(srv.URL + "/upload")
	req.Method = http.MethodPost
	req.Body = body

	resp, err := transport.Do(context.Background(), req)
	require.NoError(t, err)

	var got struct {
		Files []string `json:"files"`
		Title string   `json:"title"`
	}
	require.NoError(t, resp.JSON(&got))
	assert.Equal(t, []string{"a.txt", "b.txt"}, got.Files)
	assert.Equal(t, "docs", got.Title)
}

func TestHTTPTransport_JSONP(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name      string
		transport *HTTPTransport
	}{
		{name: "default callback", transport: NewHTTPTransport()},
		{name: "custom callback", transport: NewHTTPTransport(WithJSONPCallback("cb123"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := getRequest(srv.URL + "/jsonp")
			req.Method = MethodJSONP

			resp, err := tt.transport.Do(context.Background(), req)
			require.NoError(t, err)
			assert.JSONEq(t, `{"jsonp":true}`, resp.Text())
		})
	}
}

func TestHTTPTransport_ErrorStatus(t *testing.T) {
	srv := newTestServer(t)
	transport := NewHTTPTransport()

	resp, err := transport.Do(context.Background(), getRequest(srv.URL+"/nope"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	var restErr *Error
	require.True(t, errors.As(err, &restErr))
	assert.Equal(t, KindTransport, restErr.Kind)
	assert.Same(t, resp, restErr.Response)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestHTTPTransport_InvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	transport := NewHTTPTransport()

	_, err := transport.Do(context.Background(), getRequest(srv.URL+"/broken"))
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	req := getRequest(srv.URL + "/text")
	req.ResponseType = Text
	resp, err := transport.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "plain words", resp.Text())
}

func TestHTTPTransport_Timeout(t *testing.T) {
	srv := newTestServer(t)
	transport := NewHTTPTransport(WithTimeout(20 * time.Millisecond))

	_, err := transport.Do(context.Background(), getRequest(srv.URL+"/slow"))
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestHTTPTransport_UnreachableHost(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport().Do(context.Background(), getRequest(url+"/echo"))
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Zero(t, StatusOf(err))
}

func TestLast_KeepsFinalEvent(t *testing.T) {
	srv := newTestServer(t)
	transport := Last(NewHTTPTransport())

	resp, err := transport.Do(context.Background(), getRequest(srv.URL+"/echo"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

type fakeStream struct {
	events []Event
	err    error
}

func (s fakeStream) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestLast(t *testing.T) {
	final := &Response{Status: 200}
	boom := errors.New("stream failed")

	tests := []struct {
		name     string
		stream   fakeStream
		wantResp *Response
		wantErr  error
	}{
		{
			name: "progress then response",
			stream: fakeStream{events: []Event{
				{Kind: EventSent},
				{Kind: EventProgress, Loaded: 10, Total: 20},
				{Kind: EventResponse, Response: final},
			}},
			wantResp: final,
		},
		{
			name:    "stream error",
			stream:  fakeStream{err: boom},
			wantErr: boom,
		},
		{
			name:    "no events",
			stream:  fakeStream{},
			wantErr: errNoTerminalEvent,
		},
		{
			name: "terminal error event",
			stream: fakeStream{events: []Event{
				{Kind: EventSent},
				{Kind: EventResponse, Err: boom},
			}},
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Last(tt.stream).Do(context.Background(), getRequest("/"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.wantResp, resp)
		})
	}
}

func TestTransportFunc(t *testing.T) {
	var seen *Request
	tf := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		seen = req
		return &Response{Status: 204}, nil
	})

	req := getRequest("/x")
	resp, err := tf.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)
	assert.Same(t, req, seen)
}

func TestStripPadding(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripPadding([]byte(`cb({"a":1});`), "cb")))
	assert.Equal(t, `[1]`, string(stripPadding([]byte(" cb([1])\n"), "cb")))
	assert.Equal(t, `{"a":1}`, string(stripPadding([]byte(`{"a":1}`), "cb")))
}

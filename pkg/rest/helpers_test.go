package rest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restdecl/pkg/cache"
	"github.com/conduit-lang/restdecl/runtime/metadata"
)

type testAPI struct {
	*Client
	Token   string
	Version string
	Fresh   bool
}

func newTestDef(t *testing.T) *Definition[*testAPI] {
	t.Helper()
	return Define[*testAPI]("TestAPI", InStore(metadata.NewStore()))
}

// recorder is a Transport that keeps every request it receives.
type recorder struct {
	mu       sync.Mutex
	requests []*Request
	respond  func(*Request) (*Response, error)
}

func (r *recorder) Do(ctx context.Context, req *Request) (*Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	respond := r.respond
	r.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return &Response{Status: 200, StatusText: "OK", Body: []byte(`{"ok":true}`), URL: req.FullURL()}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *recorder) last() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return nil
	}
	return r.requests[len(r.requests)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestAPI returns an instance wired to a recorder and a cache engine on a fake clock.
func newTestAPI(t *testing.T, opts ...Option) (*testAPI, *recorder, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine, err := cache.New[*Response](cache.WithClock(clock.Now))
	require.NoError(t, err)

	rec := &recorder{}
	client := NewClient(rec, append([]Option{WithCache(engine)}, opts...)...)
	return &testAPI{Client: client, Token: "secret", Version: "v1"}, rec, clock
}

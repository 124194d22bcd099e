package rest

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conduit-lang/restdecl/pkg/cache"
)

const tracerName = "github.com/conduit-lang/restdecl/pkg/rest"

// Client carries what declared methods need at call time: the transport,
// the response cache and observability hooks. Client types embed it or
// return it from RESTClient.
type Client struct {
	id        string
	transport Transport
	cache     *cache.Engine[*Response]
	logger    *zap.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	baseURLs  map[string]string
}

// NewClient creates a client sending requests through transport.
// A nil transport is accepted; calls then fail with ErrNoTransport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		id:        uuid.New().String(),
		transport: transport,
		logger:    zap.NewNop(),
		baseURLs:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cache == nil {
		// an unbounded engine has no failing options
		c.cache, _ = cache.New[*Response](cache.WithLogger(c.logger))
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	c.logger = c.logger.With(zap.String("client", c.id))
	return c
}

// RESTClient returns c, so that embedding *Client satisfies Instance.
func (c *Client) RESTClient() *Client { return c }

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Transport returns the configured transport.
func (c *Client) Transport() Transport { return c.transport }

// Cache returns the response cache engine.
func (c *Client) Cache() *cache.Engine[*Response] { return c.cache }

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.logger }

package rest

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conduit-lang/restdecl/pkg/cache"
)

// Option configures a Client.
type Option func(*Client)

// WithCache shares engine between clients. Without it every client owns an
// unbounded engine.
func WithCache(engine *cache.Engine[*Response]) Option {
	return func(c *Client) {
		c.cache = engine
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records invocation metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer sets the tracer; the global provider's tracer is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithBaseURL overrides the declared base URL of the named definition.
func WithBaseURL(definition, url string) Option {
	return func(c *Client) {
		c.baseURLs[definition] = url
	}
}

package rest

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Retry runs the failed invocation again, error handler included.
type Retry func(ctx context.Context) (*Response, error)

// ErrorHandler receives assembly and transport failures of a definition's
// methods. Its result replaces the failed outcome. req is nil when the
// request could not be assembled.
type ErrorHandler[I any] func(ctx context.Context, inst I, err error, req *Request, retry Retry) (*Response, error)

// Invoke calls the method for inst. Positional args feed the path, query,
// header and body bindings. An io.Reader bound to the body is read once, so
// a retry from the error handler sends the same content.
//
// A missing client or transport fails with a configuration error before
// anything else happens; such errors never reach the error handler.
func (m *Method[I]) Invoke(ctx context.Context, inst I, args ...any) (*Response, error) {
	c, err := m.preflight(inst)
	if err != nil {
		return nil, err
	}
	return m.invoke(ctx, c, inst, args)
}

// Call is a prepared invocation. Nothing is assembled or sent until Do.
type Call struct {
	err error
	run func(ctx context.Context) (*Response, error)
}

// Call prepares an invocation without running it. Configuration errors and
// unreadable io.Reader body arguments are detected immediately and reported
// by Err and Do.
func (m *Method[I]) Call(inst I, args ...any) *Call {
	c, err := m.preflight(inst)
	if err != nil {
		return &Call{err: err}
	}
	args, err = m.bufferBody(args)
	if err != nil {
		return &Call{err: &Error{Kind: KindAssembly, Op: m.op(), Err: err}}
	}
	return &Call{run: func(ctx context.Context) (*Response, error) {
		return m.invoke(ctx, c, inst, args)
	}}
}

// Err returns the configuration error found when the call was prepared.
func (c *Call) Err() error { return c.err }

// Do runs the call. Each Do is a separate invocation.
func (c *Call) Do(ctx context.Context) (*Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.run(ctx)
}

func (m *Method[I]) preflight(inst I) (*Client, error) {
	var c *Client
	if !isNil(inst) {
		c = inst.RESTClient()
	}
	if c == nil || c.transport == nil {
		return nil, &Error{Kind: KindConfiguration, Op: m.op(), Err: ErrNoTransport}
	}
	return c, nil
}

func (m *Method[I]) invoke(ctx context.Context, c *Client, inst I, args []any) (*Response, error) {
	defName, member := m.def.name, m.name

	ctx, span := c.tracer.Start(ctx, "rest."+m.op(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rest.definition", defName),
			attribute.String("rest.member", member),
		),
	)
	defer span.End()

	defer c.metrics.begin(defName, member)()

	logger := c.logger.With(
		zap.String("definition", defName),
		zap.String("member", member),
	)

	var (
		req  *Request
		resp *Response
	)
	buffered, err := m.bufferBody(args)
	if err != nil {
		err = &Error{Kind: KindAssembly, Op: m.op(), Err: err}
	} else {
		args = buffered
		req, resp, err = m.execute(ctx, c, inst, args, logger, span)
	}
	if err != nil {
		if h := m.def.errorHandler(); h != nil {
			logger.Warn("routing error to handler", zap.Error(err))
			retry := func(ctx context.Context) (*Response, error) {
				return m.Invoke(ctx, inst, args...)
			}
			resp, err = h(ctx, inst, err, req, retry)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.recordInvocation(defName, member, err)
	return resp, err
}

// execute assembles, consults the cache and sends.
func (m *Method[I]) execute(ctx context.Context, c *Client, inst I, args []any, logger *zap.Logger, span trace.Span) (*Request, *Response, error) {
	req, err := m.assemble(ctx, c, inst, args)
	if err != nil {
		return nil, nil, &Error{Kind: KindAssembly, Op: m.op(), Err: err}
	}

	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.FullURL()),
	)

	lookup := m.cacheLookup(inst, req)
	resp, outcome, err := c.cache.Do(ctx, lookup, func(ctx context.Context) (*Response, error) {
		return c.send(ctx, m.def.name, m.name, req)
	})

	c.metrics.recordCache(m.def.name, m.name, outcome)
	span.SetAttributes(attribute.String("rest.cache", outcome.String()))
	logger.Debug("dispatched",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Stringer("cache", outcome),
		zap.Bool("invalidated", lookup.Invalidate),
	)

	if err != nil {
		return req, resp, wrapKind(KindTransport, m.op(), err)
	}
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	}
	return req, resp, nil
}

// send performs one transport call. A non-2xx response returned without an
// error is turned into one.
func (c *Client) send(ctx context.Context, definition, member string, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := c.transport.Do(ctx, req)
	c.metrics.recordTransport(definition, member, resp, err, time.Since(start))

	if err == nil && resp != nil && resp.Status >= http.StatusBadRequest {
		err = statusError(resp)
	}
	return resp, err
}

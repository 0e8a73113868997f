package httpclient

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// attempt is the failover cursor of one logical call. It is local to the
// call and never written back into the host pool.
type attempt struct {
	// index is the pool index targeted by this attempt.
	index int

	// remaining is the failover budget left after this attempt.
	remaining int

	// number counts attempts from 1.
	number int
}

// next returns the attempt against the following host in pool order.
func (a attempt) next(poolSize int) attempt {
	return attempt{
		index:     (a.index + 1) % poolSize,
		remaining: a.remaining - 1,
		number:    a.number + 1,
	}
}

// Dispatch executes one logical call described by d.
//
// Buffered calls (the default) return a fully read Response. When a host
// refuses the connection or cannot be resolved, the call is repeated
// against the next host in pool order until it succeeds or the retry
// budget runs out; the last error is then returned unmodified. An absolute
// URI is never resolved against the pool and is retried against its own
// address within the same budget. 301/302 responses are followed up to
// Config.MaxRedirects.
//
// Streaming calls (d.Stream) target a single host and return the live
// Response as soon as headers arrive. They are never failed over.
//
// Any HTTP status, including 4xx and 5xx, is a successful result.
//
// Example:
//
//	resp, err := client.Dispatch(ctx, httpclient.Descriptor{
//	    Operation: "Execute",
//	    Method:    http.MethodPost,
//	    URI:       "/db/execute",
//	    Body:      []byte(`["CREATE TABLE foo (id INTEGER)"]`),
//	    UseLeader: true,
//	})
func (c *Client) Dispatch(ctx context.Context, d Descriptor) (*Response, error) {
	if d.URI == "" {
		return nil, ErrMissingURI
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	operation := d.Operation
	if operation == "" {
		operation = d.method()
	}

	attrs := append(c.config.baseAttributes(),
		attribute.String("rqlite.operation", operation),
		attribute.Bool("rqlite.stream", d.Stream),
	)

	ctx, span := c.config.Tracer.Start(ctx, "rqlite "+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithAttributes(
			attribute.String("http.request.method", d.method()),
			attribute.Bool("rqlite.use_leader", d.UseLeader),
			attribute.String("rqlite.request_id", requestID),
		),
	)
	defer span.End()

	start := time.Now()

	var (
		resp *Response
		err  error
	)
	switch d.mode() {
	case modeStream:
		resp, err = c.dispatchStream(ctx, d, requestID)
	default:
		resp, err = c.dispatchBuffered(ctx, d, requestID)
	}

	c.config.Metrics.recordDispatchDuration(ctx, time.Since(start), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("rqlite.host", resp.host),
		attribute.Int("rqlite.attempts", resp.attempts),
		attribute.Int("rqlite.redirects", resp.redirects),
		attribute.Int("http.response.status_code", resp.StatusCode),
	)

	return resp, nil
}

// dispatchBuffered runs the failover loop for a buffered call.
func (c *Client) dispatchBuffered(
	ctx context.Context,
	d Descriptor,
	requestID string,
) (*Response, error) {
	n := c.pool.Size()
	budget := d.retryBudget(n)
	attrs := c.config.baseAttributes()

	cur := attempt{
		index:     d.startIndex(c.pool),
		remaining: budget,
		number:    1,
	}

	operation := func() (*Response, error) {
		at := cur
		cur = at.next(n)

		host := c.hostFor(d, at.index)
		resp, err := c.exchange(ctx, d, ResolveURI(host, d.URI), requestID)
		if err == nil {
			resp.host = host
			resp.attempts = at.number
			return resp, nil
		}

		connErr := c.config.ConnectionClassifier(err)

		event := c.logger.Warn()
		if !connErr || at.remaining <= 0 {
			event = c.logger.Error()
		}
		event = event.Err(err).
			Str("request_id", requestID).
			Str("host", redact(host)).
			Int("attempt", at.number).
			Int("retries_remaining", at.remaining)

		if !connErr {
			event.Msg("request failed")
			return nil, backoff.Permanent(err)
		}

		if at.remaining <= 0 {
			event.Msg("connection failed; no hosts left to try")
			c.config.Metrics.recordFailoverExhausted(ctx, attrs)
			return nil, backoff.Permanent(err)
		}

		event.Str("next_host", redact(c.hostFor(d, cur.index))).
			Msg("connection failed; trying next host")
		c.config.Metrics.recordFailoverAttempt(ctx, attrs, at.number)
		trace.SpanFromContext(ctx).AddEvent("failover", trace.WithAttributes(
			attribute.String("rqlite.host", host),
			attribute.String("error.type", classifyError(err)),
			attribute.Int("rqlite.attempt", at.number),
		))

		return nil, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.config.httpConfig.FailoverDelay)),
		backoff.WithMaxTries(uint(budget)+1),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		// The final attempt returns a permanent error that Retry hands back
		// wrapped when the try limit is hit first.
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}

	return resp, nil
}

// hostFor returns the base address targeted by the attempt at index.
// Absolute targets carry their own address, so every attempt of the call
// goes to the same node and the pool only provides the budget.
func (c *Client) hostFor(d Descriptor, index int) string {
	if IsAbsoluteURI(d.URI) {
		return origin(d.URI)
	}
	return c.pool.Host(index)
}

// origin returns scheme://host of an absolute target.
func origin(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// redact strips the password from a URL for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

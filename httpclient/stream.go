package httpclient

import (
	"context"
	"fmt"
	"time"
)

// dispatchStream sends a streaming call to a single host.
//
// The timeout bounds the wait for response headers; once they arrive the
// body may be read for as long as the caller likes. Connection failures are
// returned directly, the pool is never walked.
func (c *Client) dispatchStream(
	ctx context.Context,
	d Descriptor,
	requestID string,
) (*Response, error) {
	target := d.URI
	host := origin(d.URI)
	if !IsAbsoluteURI(d.URI) {
		host = c.pool.Host(d.startIndex(c.pool))
		target = ResolveURI(host, d.URI)
	}

	ctx, cancel := context.WithCancel(ctx)

	timeout := d.timeout(c.config.httpConfig.Timeout)
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, cancel)
	}

	req, err := c.newRequest(ctx, d, target, d.Query, requestID)
	if err != nil {
		cancel()
		return nil, err
	}

	if c.config.Debug {
		logRequest(c.logger, req)
	}

	httpResp, err := c.streamClient.Do(req)
	fired := timer != nil && !timer.Stop()
	if err != nil {
		cancel()
		if fired {
			err = fmt.Errorf("httpclient: no response headers within %s: %w: %w", timeout, context.DeadlineExceeded, err)
		}
		c.logger.Error().Err(err).
			Str("request_id", requestID).
			Str("host", redact(host)).
			Msg("stream request failed")
		return nil, err
	}
	if fired {
		httpResp.Body.Close()
		cancel()
		return nil, fmt.Errorf("httpclient: no response headers within %s: %w", timeout, context.DeadlineExceeded)
	}

	if c.config.Debug {
		c.logger.Debug().
			Str("request_id", requestID).
			Int("status", httpResp.StatusCode).
			Msg("stream opened")
	}

	last := req
	if httpResp.Request != nil {
		last = httpResp.Request
	}

	return &Response{
		Response:  httpResp,
		request:   last,
		stream:    true,
		cancel:    cancel,
		host:      host,
		attempts:  1,
		redirects: redirectCount(httpResp.Request),
		requestID: requestID,
	}, nil
}

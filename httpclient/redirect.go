package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// exchange sends one request to target and follows 301/302 responses.
//
// Each hop goes to the absolute Location with the original method, body and
// headers. The query parameters of the first request are not carried over.
// Credentials embedded in the previous URL are kept when the Location has
// none, since followers redirect to the leader of the same cluster.
func (c *Client) exchange(
	ctx context.Context,
	d Descriptor,
	target string,
	requestID string,
) (*Response, error) {
	limit := c.config.httpConfig.MaxRedirects
	query := d.Query

	for hops := 0; ; hops++ {
		resp, err := c.send(ctx, d, target, query, requestID)
		if err != nil {
			return nil, err
		}

		loc, ok := redirectLocation(resp)
		if !ok || limit <= 0 {
			resp.redirects = hops
			return resp, nil
		}

		if hops >= limit {
			return nil, &RedirectLoopError{Max: limit, Location: loc.Redacted()}
		}

		c.logger.Debug().
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Str("from", resp.request.URL.Redacted()).
			Str("location", loc.Redacted()).
			Msg("following redirect")
		c.config.Metrics.recordRedirect(ctx, append(c.config.baseAttributes(),
			attribute.Int("http.response.status_code", resp.StatusCode),
		))

		target = loc.String()
		query = nil
	}
}

// redirectLocation returns the resolved Location of a 301/302 response.
// Redirects without a usable Location are not followed.
func redirectLocation(resp *Response) (*url.URL, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound:
	default:
		return nil, false
	}

	raw := resp.Header.Get("Location")
	if raw == "" {
		return nil, false
	}

	loc, err := resp.request.URL.Parse(raw)
	if err != nil {
		return nil, false
	}

	if loc.User == nil && resp.request.URL.User != nil {
		loc.User = resp.request.URL.User
	}

	return loc, true
}

// send performs a single buffered HTTP exchange. The attempt timeout covers
// reading the whole body.
func (c *Client) send(
	ctx context.Context,
	d Descriptor,
	target string,
	query url.Values,
	requestID string,
) (*Response, error) {
	if timeout := d.timeout(c.config.httpConfig.Timeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, d, target, query, requestID)
	if err != nil {
		return nil, err
	}

	if c.config.Debug {
		logRequest(c.logger, req)
	}

	start := time.Now()

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	httpResp.Body = io.NopCloser(bytes.NewReader(body))

	if c.config.Debug {
		logResponse(c.logger, httpResp, time.Since(start))
	}

	resp := &Response{
		Response:  httpResp,
		request:   req,
		body:      body,
		bodyRead:  true,
		requestID: requestID,
	}
	if c.config.GenerateCurl {
		resp.curlCommand = generateCurlCommand(req, d.Body)
	}

	return resp, nil
}

// checkStreamRedirect lets the stream client follow redirects itself while
// keeping the original method, body and credentials, and enforcing
// MaxRedirects.
func (c *Client) checkStreamRedirect(req *http.Request, via []*http.Request) error {
	limit := c.config.httpConfig.MaxRedirects
	if limit <= 0 {
		return http.ErrUseLastResponse
	}
	if len(via) > limit {
		return &RedirectLoopError{Max: limit, Location: req.URL.Redacted()}
	}

	orig := via[0]

	// net/http downgrades POST to GET on 301/302.
	if req.Method != orig.Method {
		req.Method = orig.Method
		if orig.GetBody != nil {
			body, err := orig.GetBody()
			if err != nil {
				return err
			}
			req.Body = body
			req.GetBody = orig.GetBody
			req.ContentLength = orig.ContentLength
		}
		if ct := orig.Header.Get("Content-Type"); ct != "" {
			req.Header.Set("Content-Type", ct)
		}
	}

	// Authorization is dropped on cross-host redirects.
	if req.URL.User == nil && orig.URL.User != nil {
		req.URL.User = orig.URL.User
	}
	if auth := orig.Header.Get("Authorization"); auth != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", auth)
	}

	c.config.Metrics.recordRedirect(req.Context(), c.config.baseAttributes())

	return nil
}

// redirectCount walks the redirect chain that produced req.
func redirectCount(req *http.Request) int {
	n := 0
	for req != nil && req.Response != nil {
		n++
		req = req.Response.Request
	}
	return n
}

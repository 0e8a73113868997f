package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// ContentTypeJSON is the default Accept and Content-Type value.
const ContentTypeJSON = "application/json"

// RequestIDHeader carries the id shared by all attempts of one call.
const RequestIDHeader = "X-Request-ID"

// absoluteURIPattern matches targets that bypass the host pool.
var absoluteURIPattern = regexp.MustCompile(`(?i)^https?://`)

// IsAbsoluteURI reports whether target carries its own scheme and host.
func IsAbsoluteURI(target string) bool {
	return absoluteURIPattern.MatchString(target)
}

// ResolveURI joins a relative target to host. Absolute targets are
// returned unchanged and host is ignored.
//
// Example:
//
//	httpclient.ResolveURI("http://node1:4001", "/db/query")
//	// "http://node1:4001/db/query"
//
//	httpclient.ResolveURI("http://node1:4001", "http://node2:4001/status")
//	// "http://node2:4001/status"
func ResolveURI(host, target string) string {
	if IsAbsoluteURI(target) {
		return target
	}
	return host + "/" + strings.TrimPrefix(target, "/")
}

// DefaultHeaders returns a copy of headers with Accept set to
// application/json when the caller did not set one.
func DefaultHeaders(headers http.Header) http.Header {
	out := headers.Clone()
	if out == nil {
		out = make(http.Header)
	}
	if out.Get("Accept") == "" {
		out.Set("Accept", ContentTypeJSON)
	}
	return out
}

// withQuery appends query to target's own query string.
func withQuery(target string, query url.Values) (string, error) {
	if len(query) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// newRequest builds one outgoing request for target. It is called once per
// attempt and per redirect, so the body reader is always fresh.
func (c *Client) newRequest(
	ctx context.Context,
	d Descriptor,
	target string,
	query url.Values,
	requestID string,
) (*http.Request, error) {
	full, err := withQuery(target, query)
	if err != nil {
		return nil, err
	}

	var body *bytes.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, d.method(), full, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, d.method(), full, nil)
	}
	if err != nil {
		return nil, err
	}

	// Client defaults first, request headers override.
	headers := c.defaultHeaders.Clone()
	for k, v := range d.Header {
		headers[k] = v
	}
	req.Header = DefaultHeaders(headers)

	if d.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ContentTypeJSON)
	}
	if requestID != "" && req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	// Credentials embedded in the host URL are applied by net/http.
	if d.Auth != nil {
		req.SetBasicAuth(d.Auth.Username, d.Auth.Password)
	}

	return req, nil
}

package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
)

// RequestBuilder provides a fluent API for constructing a Descriptor and
// dispatching it.
//
// Create a RequestBuilder using Client.Request():
//
//	var results QueryResults
//	resp, err := client.Request("Query").
//	    Query("q", "SELECT * FROM foo").
//	    Query("level", "strong").
//	    UseLeader().
//	    Decode(&results).
//	    Get(ctx, "/db/query")
type RequestBuilder struct {
	client      *Client
	desc        Descriptor
	result      any
	errorResult any

	// err is returned on dispatch; set when a body cannot be encoded.
	err error
}

// URI sets the request target.
//
// Relative URIs (/db/query) are joined to the host chosen from the pool.
// Absolute URIs (http://node3:4001/status) are used as-is and bypass the
// pool.
func (rb *RequestBuilder) URI(uri string) *RequestBuilder {
	rb.desc.URI = uri
	return rb
}

// Query adds a query parameter. Query parameters are sent on the first
// request only and are not carried across redirects.
//
// Example:
//
//	client.Request("Query").
//	    Query("q", "SELECT 1").
//	    Query("level", "none").
//	    Get(ctx, "/db/query")
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	rb.desc.Query.Add(key, value)
	return rb
}

// Queries adds multiple query parameters.
func (rb *RequestBuilder) Queries(params map[string]string) *RequestBuilder {
	for k, v := range params {
		rb.desc.Query.Add(k, v)
	}
	return rb
}

// Header sets a request header.
//
// Request headers override client default headers. Accept defaults to
// application/json unless set here.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.desc.Header.Set(key, value)
	return rb
}

// Headers sets multiple request headers.
func (rb *RequestBuilder) Headers(headers map[string]string) *RequestBuilder {
	for k, v := range headers {
		rb.desc.Header.Set(k, v)
	}
	return rb
}

// Body sets the request body with automatic content type detection.
//
// The body is buffered so it can be replayed on failover and redirects.
//
// Encoding rules:
//   - []byte: raw bytes (Content-Type: application/json unless set)
//   - string: raw text (Content-Type: application/json unless set)
//   - io.Reader: read fully
//   - url.Values: form encoded (Content-Type: application/x-www-form-urlencoded)
//   - anything else: JSON
//
// Example:
//
//	client.Request("Execute").
//	    Body([]string{"INSERT INTO foo(name) VALUES('fiona')"}).
//	    Post(ctx, "/db/execute")
func (rb *RequestBuilder) Body(v any) *RequestBuilder {
	if v == nil {
		return rb
	}

	switch body := v.(type) {
	case []byte:
		rb.desc.Body = body
	case string:
		rb.desc.Body = []byte(body)
	case io.Reader:
		data, err := io.ReadAll(body)
		if err != nil {
			rb.err = err
			return rb
		}
		rb.desc.Body = data
	case url.Values:
		rb.desc.Body = []byte(body.Encode())
		rb.desc.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		return rb.BodyJSON(v)
	}
	return rb
}

// BodyJSON explicitly encodes the body as JSON.
//
// Example:
//
//	client.Request("Execute").
//	    BodyJSON([][]any{{"INSERT INTO foo(name) VALUES(?)", "fiona"}}).
//	    Post(ctx, "/db/execute")
func (rb *RequestBuilder) BodyJSON(v any) *RequestBuilder {
	if v == nil {
		return rb
	}
	data, err := json.Marshal(v)
	if err != nil {
		rb.err = err
		return rb
	}
	rb.desc.Body = data
	rb.desc.Header.Set("Content-Type", ContentTypeJSON)
	return rb
}

// BasicAuth sets credentials for the request. They take precedence over
// credentials embedded in the host URL.
func (rb *RequestBuilder) BasicAuth(username, password string) *RequestBuilder {
	rb.desc.Auth = &BasicAuth{Username: username, Password: password}
	return rb
}

// Timeout overrides Config.Timeout for each attempt of this request.
// A negative value disables the timeout.
func (rb *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	rb.desc.Timeout = d
	return rb
}

// UseLeader sends the first attempt to the first host of the pool,
// regardless of the pool cursor.
func (rb *RequestBuilder) UseLeader() *RequestBuilder {
	rb.desc.UseLeader = true
	return rb
}

// OnHost pins the first attempt to pool index i.
func (rb *RequestBuilder) OnHost(i int) *RequestBuilder {
	rb.desc.HostIndex = &i
	return rb
}

// Retries sets how many other hosts may be tried after a connection
// failure. The default is the pool size minus one.
func (rb *RequestBuilder) Retries(n int) *RequestBuilder {
	rb.desc.Retries = &n
	return rb
}

// Stream makes the request return the live response. Streaming requests
// are never failed over. The caller must Close the response.
//
// Example:
//
//	resp, err := client.Request("Backup").Stream().Get(ctx, "/db/backup")
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
//	_, err = io.Copy(f, resp.Reader())
func (rb *RequestBuilder) Stream() *RequestBuilder {
	rb.desc.Stream = true
	return rb
}

// Decode sets the target for automatic response body decoding.
//
// If the response is successful (2xx), the body is decoded into the target.
// Ignored for streaming requests.
func (rb *RequestBuilder) Decode(v any) *RequestBuilder {
	rb.result = v
	return rb
}

// DecodeError sets the target for automatic error response decoding.
//
// If the response is 4xx or 5xx, the body is decoded into the target.
// Ignored for streaming requests.
func (rb *RequestBuilder) DecodeError(v any) *RequestBuilder {
	rb.errorResult = v
	return rb
}

// Descriptor returns the descriptor built so far.
func (rb *RequestBuilder) Descriptor() Descriptor {
	return rb.desc
}

// Get executes a GET request.
//
// Example:
//
//	resp, err := client.Request("Status").Get(ctx, "/status")
func (rb *RequestBuilder) Get(ctx context.Context, uri ...string) (*Response, error) {
	return rb.Do(ctx, http.MethodGet, uri...)
}

// Post executes a POST request.
//
// Example:
//
//	resp, err := client.Request("Execute").
//	    BodyJSON(statements).
//	    UseLeader().
//	    Post(ctx, "/db/execute")
func (rb *RequestBuilder) Post(ctx context.Context, uri ...string) (*Response, error) {
	return rb.Do(ctx, http.MethodPost, uri...)
}

// Do executes the request with the given method. The method is passed
// through to the node unchanged.
func (rb *RequestBuilder) Do(ctx context.Context, method string, uri ...string) (*Response, error) {
	if rb.err != nil {
		return nil, rb.err
	}
	if len(uri) > 0 {
		rb.desc.URI = uri[0]
	}
	rb.desc.Method = method

	resp, err := rb.client.Dispatch(ctx, rb.desc)
	if err != nil {
		return nil, err
	}

	if resp.IsStream() || (rb.result == nil && rb.errorResult == nil) {
		return resp, nil
	}

	resp.result = rb.result
	resp.errorResult = rb.errorResult
	if err := resp.decode(); err != nil {
		return resp, err
	}

	return resp, nil
}

package httpclient

import (
	"context"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// Response wraps http.Response with the outcome of a dispatched call.
//
// Buffered responses have their body read and cached before Dispatch
// returns; non-2xx statuses are ordinary responses, not errors.
//
// Streaming responses (Descriptor.Stream) carry the live body. Read it via
// Reader and Close it when done, or call Body to drain it at once.
//
// Example:
//
//	resp, err := client.Request("Query").
//	    Query("q", "SELECT * FROM foo").
//	    Get(ctx, "/db/query")
//	if err != nil {
//	    return err
//	}
//	if resp.IsError() {
//	    body, _ := resp.String()
//	    return fmt.Errorf("rqlite: %s", body)
//	}
type Response struct {
	// Response embeds the standard http.Response.
	//
	// Example: resp.StatusCode, resp.Header.Get("Content-Type")
	*http.Response

	// request is the last request sent, i.e. after any redirects.
	request *http.Request

	// body is the cached response body.
	body []byte

	// bodyRead tracks whether the body has been read and cached.
	bodyRead bool

	// stream marks a live response from a streaming dispatch.
	stream bool

	// cancel releases the context of a streaming response.
	cancel context.CancelFunc

	// result holds the decoded success response (RequestBuilder.Decode).
	result any

	// errorResult holds the decoded error response (RequestBuilder.DecodeError).
	errorResult any

	// host is the pool host of the attempt that produced the response.
	host string

	// attempts counts hosts tried, including the successful one.
	attempts int

	// redirects counts 301/302 hops followed.
	redirects int

	// requestID is shared by every attempt of the call.
	requestID string

	// curlCommand is set when WithGenerateCurl(true) is used.
	curlCommand string
}

// Body returns the response body as bytes.
//
// For streaming responses the remaining body is drained, cached and the
// stream is closed.
func (r *Response) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}
	defer r.Close()

	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	r.body = body
	r.bodyRead = true
	return r.body, nil
}

// String returns the response body as a string.
func (r *Response) String() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Decode unmarshals the JSON body into v regardless of status code.
func (r *Response) Decode(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// Reader returns the body as a stream. For buffered responses it reads
// from the cached bytes.
func (r *Response) Reader() io.ReadCloser {
	return r
}

// Read implements io.Reader over the response body.
func (r *Response) Read(p []byte) (int, error) {
	return r.Response.Body.Read(p)
}

// Close closes the body and releases a streaming response's context.
// It is safe to call more than once.
func (r *Response) Close() error {
	var err error
	if r.Response != nil && r.Response.Body != nil {
		err = r.Response.Body.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// IsStream reports whether the response came from a streaming dispatch.
func (r *Response) IsStream() bool {
	return r.stream
}

// Result returns the decoded success response set with
// RequestBuilder.Decode.
func (r *Response) Result() any {
	return r.result
}

// ErrorResult returns the decoded error response set with
// RequestBuilder.DecodeError.
func (r *Response) ErrorResult() any {
	return r.errorResult
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Host returns the pool host the successful attempt was sent to. For
// absolute URIs it is the host of the URI.
func (r *Response) Host() string {
	return r.host
}

// Attempts returns how many hosts were tried, including the one that
// answered.
func (r *Response) Attempts() int {
	return r.attempts
}

// Redirects returns how many 301/302 hops were followed.
func (r *Response) Redirects() int {
	return r.redirects
}

// RequestID returns the X-Request-ID sent with every attempt.
func (r *Response) RequestID() string {
	return r.requestID
}

// Request returns the last request sent, after redirects.
func (r *Response) Request() *http.Request {
	return r.request
}

// CurlCommand returns the cURL equivalent of the last request.
//
// This is only populated if WithGenerateCurl(true) was set on the client.
func (r *Response) CurlCommand() string {
	return r.curlCommand
}

// decode fills the builder's decode targets.
func (r *Response) decode() error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}

	if r.IsSuccess() && r.result != nil {
		return json.Unmarshal(body, r.result)
	}
	if r.IsError() && r.errorResult != nil {
		return json.Unmarshal(body, r.errorResult)
	}
	return nil
}

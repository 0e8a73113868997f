package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"regexp"
	"sync"
	"syscall"
)

// MockTransport provides a configurable http.RoundTripper for testing code
// built on the client without a running cluster. Stubs can target a node
// by host so that failover and redirects can be exercised.
//
// Example - first node down, second node answers:
//
//	mt := httpclient.NewMockTransport().
//	    StubHostRefused("node1:4001").
//	    StubHost("node2:4001", http.StatusOK, `{"results":[]}`)
//
//	client, _ := httpclient.New("http://node1:4001,http://node2:4001",
//	    httpclient.WithMockTransport(mt),
//	)
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []stub
	defaultResp *stubResponse
	defaultErr  error
	requests    []*http.Request
	requestHook func(*http.Request)
}

type stub struct {
	matcher  func(*http.Request) bool
	response *stubResponse
	err      error
}

// stubResponse is kept immutable so concurrent round trips can share it.
type stubResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// ErrConnectionRefused is the error returned by StubHostRefused. It is
// shaped like the error net/http returns for a refused dial.
var ErrConnectionRefused error = &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse stubs all requests to return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = newStubResponse(statusCode, body)
	return m
}

// StubError stubs all requests to return the given error.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// StubPath stubs requests matching the path to return the given response.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathRegex stubs requests matching the path regex to return the given response.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, statusCode, body)
}

// StubHost stubs requests sent to host (host:port) to return the given response.
func (m *MockTransport) StubHost(host string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Host == host
	}, statusCode, body)
}

// StubHostError stubs requests sent to host (host:port) to fail with err.
func (m *MockTransport) StubHostError(host string, err error) *MockTransport {
	return m.StubFuncError(func(req *http.Request) bool {
		return req.URL.Host == host
	}, err)
}

// StubHostRefused stubs requests sent to host to fail as if the node were down.
func (m *MockTransport) StubHostRefused(host string) *MockTransport {
	return m.StubHostError(host, ErrConnectionRefused)
}

// StubRedirect stubs requests sent to host to answer with statusCode and a
// Location header, the way a follower points callers at the leader.
func (m *MockTransport) StubRedirect(host string, statusCode int, location string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := newStubResponse(statusCode, "")
	resp.header.Set("Location", location)
	m.stubs = append(m.stubs, stub{
		matcher: func(req *http.Request) bool {
			return req.URL.Host == host
		},
		response: resp,
	})
	return m
}

// StubFunc stubs requests matching the predicate to return the given response.
func (m *MockTransport) StubFunc(
	matcher func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher:  matcher,
		response: newStubResponse(statusCode, body),
	})
	return m
}

// StubFuncError stubs requests matching the predicate to return the given error.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher: matcher,
		err:     err,
	})
	return m
}

// OnRequest sets a hook that is called for each request.
// Useful for assertions or capturing request details.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Keep the body readable for assertions after the call.
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.requestHook
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Check stubs in order (first match wins)
	for _, s := range m.stubs {
		if s.matcher(req) {
			if s.err != nil {
				return nil, s.err
			}
			return s.response.build(req), nil
		}
	}

	// Return default response or error
	if m.defaultErr != nil {
		return nil, m.defaultErr
	}
	if m.defaultResp != nil {
		return m.defaultResp.build(req), nil
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.Redacted())
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Hosts returns the host:port of every request in order.
func (m *MockTransport) Hosts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hosts := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		hosts = append(hosts, r.URL.Host)
	}
	return hosts
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.defaultResp = nil
	m.defaultErr = nil
	m.requestHook = nil
}

func newStubResponse(statusCode int, body string) *stubResponse {
	return &stubResponse{
		statusCode: statusCode,
		header:     make(http.Header),
		body:       []byte(body),
	}
}

// build returns a fresh http.Response for req.
func (s *stubResponse) build(req *http.Request) *http.Response {
	return &http.Response{
		Status:        http.StatusText(s.statusCode),
		StatusCode:    s.statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
		Request:       req,
	}
}

// WithMockTransport is a convenience function to create a client with a mock transport.
func WithMockTransport(mock *MockTransport) Option {
	return WithTransport(mock)
}

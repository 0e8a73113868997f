package httpclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_StubResponse(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().StubResponse(http.StatusOK, `{"status":"ok"}`)
	client := newTestClient(t, "http://a:4001", mock)

	resp, err := client.Request("Status").Get(context.Background(), "/status")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := resp.String()
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestMockTransport_StubError(t *testing.T) {
	t.Parallel()

	expectedErr := errors.New("network error")
	mock := NewMockTransport().StubError(expectedErr)
	client := newTestClient(t, "http://a:4001", mock)

	_, err := client.Request("Status").Get(context.Background(), "/status")
	require.Error(t, err)
	assert.ErrorIs(t, err, expectedErr)
}

func TestMockTransport_StubPath(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().
		StubPath("/db/query", http.StatusOK, `{"results":[]}`).
		StubPathRegex(`^/db/(execute|request)$`, http.StatusOK, `{"results":[{}]}`)
	client := newTestClient(t, "http://a:4001", mock)

	resp1, err := client.Request("Query").Get(context.Background(), "/db/query")
	require.NoError(t, err)
	body1, _ := resp1.String()
	assert.JSONEq(t, `{"results":[]}`, body1)

	resp2, err := client.Request("Request").Post(context.Background(), "/db/request")
	require.NoError(t, err)
	body2, _ := resp2.String()
	assert.JSONEq(t, `{"results":[{}]}`, body2)
}

func TestMockTransport_StubHost(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().
		StubHostRefused("a:4001").
		StubHostError("b:4001", errors.New("tls: handshake failure")).
		StubHost("c:4001", http.StatusOK, `{}`)

	reqA, _ := http.NewRequest(http.MethodGet, "http://a:4001/status", nil)
	_, err := mock.RoundTrip(reqA)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.True(t, IsConnectionError(err))

	reqB, _ := http.NewRequest(http.MethodGet, "http://b:4001/status", nil)
	_, err = mock.RoundTrip(reqB)
	assert.EqualError(t, err, "tls: handshake failure")

	reqC, _ := http.NewRequest(http.MethodGet, "http://c:4001/status", nil)
	resp, err := mock.RoundTrip(reqC)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Same(t, reqC, resp.Request)

	assert.Equal(t, []string{"a:4001", "b:4001", "c:4001"}, mock.Hosts())
}

func TestMockTransport_StubRedirect(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().StubRedirect("a:4001", http.StatusMovedPermanently, "http://b:4001/db/execute")

	req, _ := http.NewRequest(http.MethodPost, "http://a:4001/db/execute", nil)
	resp, err := mock.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "http://b:4001/db/execute", resp.Header.Get("Location"))
}

func TestMockTransport_RequestTracking(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
	client := newTestClient(t, "http://a:4001", mock)

	_, _ = client.Request("Query").Get(context.Background(), "/db/query")
	_, _ = client.Request("Status").Get(context.Background(), "/status")
	_, _ = client.Request("Execute").Post(context.Background(), "/db/execute")

	assert.Equal(t, 3, mock.RequestCount())

	requests := mock.Requests()
	assert.Equal(t, "/db/query", requests[0].URL.Path)
	assert.Equal(t, "/status", requests[1].URL.Path)
	assert.Equal(t, http.MethodPost, requests[2].Method)

	assert.Equal(t, "/db/execute", mock.LastRequest().URL.Path)
}

func TestMockTransport_OnRequest(t *testing.T) {
	t.Parallel()

	var capturedAuth string
	mock := NewMockTransport().
		StubResponse(http.StatusOK, `{}`).
		OnRequest(func(req *http.Request) {
			capturedAuth = req.Header.Get("Authorization")
		})
	client := newTestClient(t, "http://a:4001", mock)

	_, err := client.Request("Status").BasicAuth("bob", "secret").Get(context.Background(), "/status")
	require.NoError(t, err)

	assert.Equal(t, "Basic Ym9iOnNlY3JldA==", capturedAuth)
}

func TestMockTransport_NoStubError(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	client := newTestClient(t, "http://a:4001", mock)

	_, err := client.Request("Status").Get(context.Background(), "/unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stub found")
}

func TestMockTransport_Reset(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
	client := newTestClient(t, "http://a:4001", mock)

	_, _ = client.Request("Status").Get(context.Background(), "/status")
	assert.Equal(t, 1, mock.RequestCount())

	mock.Reset()

	assert.Equal(t, 0, mock.RequestCount())
	assert.Nil(t, mock.LastRequest())

	_, err := client.Request("Status").Get(context.Background(), "/status")
	require.Error(t, err)
}

func TestMockTransport_ConcurrentRequests(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().StubResponse(http.StatusOK, `{"data":"test"}`)
	client := newTestClient(t, "http://a:4001", mock)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Request("Query").Get(context.Background(), "/db/query")
			if assert.NoError(t, err) {
				body, _ := resp.String()
				assert.JSONEq(t, `{"data":"test"}`, body)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, mock.RequestCount())
}

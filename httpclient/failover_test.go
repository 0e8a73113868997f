package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Dispatch_Failover(t *testing.T) {
	const hosts = "http://a:4001,http://b:4001,http://c:4001"

	intPtr := func(i int) *int { return &i }

	type args struct {
		activeIndex int
		desc        Descriptor
		setup       func(*MockTransport)
	}

	tests := []struct {
		name          string
		args          args
		wantErr       assert.ErrorAssertionFunc
		wantRefusedBy string
		wantHosts     []string
		wantAttempts  int
		wantStatus    int
	}{
		{
			name: "given the active host answers, then makes a single attempt",
			args: args{
				desc: Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHost("a:4001", http.StatusOK, `{"results":[]}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"a:4001"},
			wantAttempts: 1,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given every host refuses, then tries each once and returns the last error",
			args: args{
				desc: Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHostError("a:4001", &refusedError{host: "a:4001"}).
						StubHostError("b:4001", &refusedError{host: "b:4001"}).
						StubHostError("c:4001", &refusedError{host: "c:4001"})
				},
			},
			wantErr:       assert.Error,
			wantRefusedBy: "c:4001",
			wantHosts:     []string{"a:4001", "b:4001", "c:4001"},
		},
		{
			name: "given active index 1 and that host refuses, then the next host answers on attempt 2",
			args: args{
				activeIndex: 1,
				desc:        Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHostRefused("b:4001").
						StubHost("c:4001", http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"b:4001", "c:4001"},
			wantAttempts: 2,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given failover from the last host, then wraps around to the first",
			args: args{
				activeIndex: 2,
				desc:        Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHostRefused("c:4001").
						StubHost("a:4001", http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"c:4001", "a:4001"},
			wantAttempts: 2,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given useLeader, then the first host is targeted regardless of the cursor",
			args: args{
				activeIndex: 2,
				desc:        Descriptor{URI: "/db/execute", Method: http.MethodPost, UseLeader: true},
				setup: func(m *MockTransport) {
					m.StubResponse(http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"a:4001"},
			wantAttempts: 1,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given useLeader and the leader refuses, then walks pool order from the leader",
			args: args{
				activeIndex: 2,
				desc:        Descriptor{URI: "/db/execute", Method: http.MethodPost, UseLeader: true},
				setup: func(m *MockTransport) {
					m.StubHostRefused("a:4001").
						StubResponse(http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"a:4001", "b:4001"},
			wantAttempts: 2,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given an explicit host index, then it overrides useLeader",
			args: args{
				desc: Descriptor{URI: "/status", UseLeader: true, HostIndex: intPtr(1)},
				setup: func(m *MockTransport) {
					m.StubResponse(http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"b:4001"},
			wantAttempts: 1,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given a retry budget of 1, then gives up after 2 attempts",
			args: args{
				desc: Descriptor{URI: "/db/query", Retries: intPtr(1)},
				setup: func(m *MockTransport) {
					m.StubError(ErrConnectionRefused)
				},
			},
			wantErr:   assert.Error,
			wantHosts: []string{"a:4001", "b:4001"},
		},
		{
			name: "given a retry budget of 0, then makes a single attempt",
			args: args{
				desc: Descriptor{URI: "/db/query", Retries: intPtr(0)},
				setup: func(m *MockTransport) {
					m.StubError(ErrConnectionRefused)
				},
			},
			wantErr:   assert.Error,
			wantHosts: []string{"a:4001"},
		},
		{
			name: "given an unknown host, then fails over",
			args: args{
				desc: Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHostError("a:4001", &net.DNSError{Err: "no such host", Name: "a", IsNotFound: true}).
						StubResponse(http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"a:4001", "b:4001"},
			wantAttempts: 2,
			wantStatus:   http.StatusOK,
		},
		{
			name: "given a non-connection error, then returns it without failover",
			args: args{
				desc: Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHostError("a:4001", errors.New("boom")).
						StubResponse(http.StatusOK, `{}`)
				},
			},
			wantErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorContains(t, err, "boom")
			},
			wantHosts: []string{"a:4001"},
		},
		{
			name: "given a 503 response, then returns it without failover",
			args: args{
				desc: Descriptor{URI: "/db/query"},
				setup: func(m *MockTransport) {
					m.StubHost("a:4001", http.StatusServiceUnavailable, `leader not found`).
						StubResponse(http.StatusOK, `{}`)
				},
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"a:4001"},
			wantAttempts: 1,
			wantStatus:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := NewMockTransport()
			tt.args.setup(mt)

			client := newTestClient(t, hosts, mt)
			client.Pool().SetActiveIndex(tt.args.activeIndex)

			resp, err := client.Dispatch(context.Background(), tt.args.desc)

			tt.wantErr(t, err)
			assert.Equal(t, tt.wantHosts, mt.Hosts())
			assert.Equal(t, tt.args.activeIndex, client.Pool().ActiveIndex(false),
				"failover must not move the pool cursor")

			if tt.wantRefusedBy != "" {
				var refused *refusedError
				require.ErrorAs(t, err, &refused)
				assert.Equal(t, tt.wantRefusedBy, refused.host)
			}

			if err != nil {
				assert.Nil(t, resp)
				return
			}

			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantAttempts, resp.Attempts())
			assert.Equal(t, "http://"+tt.wantHosts[len(tt.wantHosts)-1], resp.Host())
		})
	}
}

func TestClient_Dispatch_RequestID(t *testing.T) {
	mt := NewMockTransport().
		StubHostRefused("a:4001").
		StubHost("b:4001", http.StatusOK, `{}`)

	client := newTestClient(t, "http://a:4001,http://b:4001", mt)

	resp, err := client.Dispatch(context.Background(), Descriptor{URI: "/db/query"})
	require.NoError(t, err)

	reqs := mt.Requests()
	require.Len(t, reqs, 2)

	id := reqs[0].Header.Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, reqs[1].Header.Get(RequestIDHeader), "attempts share one request id")
	assert.Equal(t, id, resp.RequestID())
}

func TestClient_Dispatch_ReplaysBody(t *testing.T) {
	mt := NewMockTransport().
		StubHostRefused("a:4001").
		StubHost("b:4001", http.StatusOK, `{}`)

	client := newTestClient(t, "http://a:4001,http://b:4001", mt)

	body := `["INSERT INTO foo(name) VALUES('fiona')"]`
	_, err := client.Post(context.Background(), Descriptor{
		URI:  "/db/execute",
		Body: []byte(body),
	})
	require.NoError(t, err)

	for _, req := range mt.Requests() {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, body, readBody(t, req))
		assert.Equal(t, ContentTypeJSON, req.Header.Get("Content-Type"))
	}
}

func TestClient_Dispatch_AbsoluteURI(t *testing.T) {
	intPtr := func(i int) *int { return &i }

	tests := []struct {
		name         string
		setup        func(*MockTransport)
		retries      *int
		wantErr      assert.ErrorAssertionFunc
		wantHosts    []string
		wantHost     string
		wantAttempts int
	}{
		{
			name: "given an absolute URI, then the pool is bypassed",
			setup: func(m *MockTransport) {
				m.StubResponse(http.StatusOK, `{}`)
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"other:9999"},
			wantHost:     "http://other:9999",
			wantAttempts: 1,
		},
		{
			name: "given an absolute URI that refuses, then it is retried against the same address",
			setup: func(m *MockTransport) {
				m.StubHostRefused("other:9999").
					StubResponse(http.StatusOK, `{}`)
			},
			wantErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, syscall.ECONNREFUSED)
			},
			wantHosts: []string{"other:9999", "other:9999", "other:9999"},
		},
		{
			name: "given an absolute URI that refuses once, then the second attempt succeeds",
			setup: func(m *MockTransport) {
				var calls atomic.Int32
				m.StubFuncError(func(*http.Request) bool {
					return calls.Add(1) == 1
				}, ErrConnectionRefused).
					StubResponse(http.StatusOK, `{}`)
			},
			wantErr:      assert.NoError,
			wantHosts:    []string{"other:9999", "other:9999"},
			wantHost:     "http://other:9999",
			wantAttempts: 2,
		},
		{
			name: "given an absolute URI with no retries, then one attempt is made",
			setup: func(m *MockTransport) {
				m.StubHostRefused("other:9999")
			},
			retries:   intPtr(0),
			wantErr:   assert.Error,
			wantHosts: []string{"other:9999"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := NewMockTransport()
			tt.setup(mt)

			client := newTestClient(t, "http://a:4001,http://b:4001,http://c:4001", mt)

			resp, err := client.Get(context.Background(), Descriptor{
				URI:     "http://other:9999/status",
				Retries: tt.retries,
			})

			tt.wantErr(t, err)
			assert.Equal(t, tt.wantHosts, mt.Hosts())
			assert.Equal(t, 0, client.Pool().ActiveIndex(false))
			if err == nil {
				assert.Equal(t, tt.wantHost, resp.Host())
				assert.Equal(t, tt.wantAttempts, resp.Attempts())
			}
		})
	}
}

func TestClient_Dispatch_MissingURI(t *testing.T) {
	mt := NewMockTransport().StubResponse(http.StatusOK, `{}`)
	client := newTestClient(t, "http://a:4001", mt)

	resp, err := client.Dispatch(context.Background(), Descriptor{})

	assert.ErrorIs(t, err, ErrMissingURI)
	assert.Nil(t, resp)
	assert.Zero(t, mt.RequestCount())
}

func TestClient_Dispatch_Headers(t *testing.T) {
	tests := []struct {
		name       string
		hosts      string
		opts       []Option
		desc       Descriptor
		wantAccept string
		wantUser   string
		wantPass   string
		wantCustom string
	}{
		{
			name:       "given no headers, then Accept defaults to JSON",
			hosts:      "http://a:4001",
			desc:       Descriptor{URI: "/status"},
			wantAccept: ContentTypeJSON,
		},
		{
			name:       "given a caller Accept header, then it is kept",
			hosts:      "http://a:4001",
			desc:       Descriptor{URI: "/status", Header: http.Header{"Accept": {"text/plain"}}},
			wantAccept: "text/plain",
		},
		{
			name:       "given client default headers, then they are sent",
			hosts:      "http://a:4001",
			opts:       []Option{WithDefaultHeaders(map[string]string{"X-Tenant": "orders"})},
			desc:       Descriptor{URI: "/status"},
			wantAccept: ContentTypeJSON,
			wantCustom: "orders",
		},
		{
			name:       "given credentials in the host URL, then basic auth is sent",
			hosts:      "http://bob:secret@a:4001",
			desc:       Descriptor{URI: "/status"},
			wantAccept: ContentTypeJSON,
			wantUser:   "bob",
			wantPass:   "secret",
		},
		{
			name:  "given request credentials, then they override the host URL",
			hosts: "http://bob:secret@a:4001",
			desc: Descriptor{
				URI:  "/status",
				Auth: &BasicAuth{Username: "admin", Password: "hunter2"},
			},
			wantAccept: ContentTypeJSON,
			wantUser:   "admin",
			wantPass:   "hunter2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := NewMockTransport().StubResponse(http.StatusOK, `{}`)
			client := newTestClient(t, tt.hosts, mt, tt.opts...)

			_, err := client.Dispatch(context.Background(), tt.desc)
			require.NoError(t, err)

			req := mt.LastRequest()
			require.NotNil(t, req)
			assert.Equal(t, tt.wantAccept, req.Header.Get("Accept"))
			assert.Equal(t, tt.wantCustom, req.Header.Get("X-Tenant"))

			user, pass, ok := req.BasicAuth()
			assert.Equal(t, tt.wantUser != "", ok)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantPass, pass)
		})
	}
}

func TestClient_Dispatch_RealNodes(t *testing.T) {
	t.Run("given a node that is down, then the call fails over to a live node", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		downURL := down.URL
		down.Close()

		live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", ContentTypeJSON)
			_, _ = w.Write([]byte(`{"results":[]}`))
		}))
		defer live.Close()

		client, err := New([]string{downURL, live.URL}, WithLogger(zerolog.Nop()))
		require.NoError(t, err)

		resp, err := client.Dispatch(context.Background(), Descriptor{URI: "/db/query"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, resp.Attempts())
		assert.Equal(t, live.URL, resp.Host())

		body, err := resp.String()
		require.NoError(t, err)
		assert.JSONEq(t, `{"results":[]}`, body)
	})

	t.Run("given a node that times out, then the error is returned without failover", func(t *testing.T) {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer slow.Close()

		var liveHits atomic.Int32
		live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			liveHits.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer live.Close()

		client, err := New([]string{slow.URL, live.URL}, WithLogger(zerolog.Nop()))
		require.NoError(t, err)

		resp, err := client.Dispatch(context.Background(), Descriptor{
			URI:     "/db/query",
			Timeout: 50 * time.Millisecond,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, resp)
		assert.Zero(t, liveHits.Load())
	})
}

func TestClient_Dispatch_FailoverDelay(t *testing.T) {
	mt := NewMockTransport().
		StubHostRefused("a:4001").
		StubHost("b:4001", http.StatusOK, `{}`)

	client := newTestClient(t, "http://a:4001,http://b:4001", mt,
		WithFailoverDelay(30*time.Millisecond),
	)

	start := time.Now()
	resp, err := client.Dispatch(context.Background(), Descriptor{URI: "/db/query"})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Attempts())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

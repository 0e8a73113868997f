// Package httpclient provides a leader-aware HTTP client for rqlite
// clusters with host failover, bounded redirect handling and
// OpenTelemetry instrumentation.
//
// # Features
//
//   - Static host pool; the first host is treated as the leader
//   - Failover to the next host on refused connections and unknown hosts
//   - 301/302 redirects re-sent with the original method and body
//   - Streaming requests that hand back the live response body
//   - OpenTelemetry tracing and metrics per call and per attempt
//   - Optional per-node circuit breakers, local or shared through Redis
//   - Optional client-side rate limiting
//
// # Quick Start
//
//	client, err := httpclient.New("http://node1:4001,http://node2:4001,http://node3:4001",
//	    httpclient.WithServiceName("orders"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	// Reads go to the pool's active host
//	resp, err := client.Request("Query").
//	    Query("q", "SELECT * FROM foo").
//	    Get(ctx, "/db/query")
//
//	// Writes go to the leader first
//	resp, err = client.Request("Execute").
//	    BodyJSON([]string{"INSERT INTO foo(name) VALUES('fiona')"}).
//	    UseLeader().
//	    Post(ctx, "/db/execute")
//
// # Host Selection and Failover
//
// Each call picks its first host from, in order of precedence, an explicit
// host index, the leader (UseLeader) or the pool's active host. If that
// host refuses the connection or its name does not resolve, the call moves
// to the next host in pool order, wrapping around, for at most
// len(hosts)-1 further attempts. The pool cursor is never changed by
// failover; rotate it explicitly:
//
//	client.Pool().Advance()
//
// Timeouts, TLS failures and other errors are returned as-is without trying
// another host. HTTP error statuses are ordinary responses.
//
// # Redirects
//
// Buffered calls follow 301/302 responses themselves so that POST bodies
// reach the leader intact. The chain is capped by Config.MaxRedirects;
// longer chains fail with *RedirectLoopError.
//
// # Streaming
//
// Streaming calls return as soon as headers arrive. They target a single
// host and never fail over; redirects are followed by net/http with the
// original method kept.
//
//	resp, err := client.Request("Backup").Stream().Get(ctx, "/db/backup")
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
//	_, err = io.Copy(f, resp.Reader())
//
// # Configuration Presets
//
//	// Defaults: 30s attempt timeout, 10 redirects, no failover delay
//	httpclient.WithConfig(httpclient.DefaultConfig())
//
//	// Fail fast: 5s attempt timeout, 1s dial timeout, 3 redirects
//	httpclient.WithConfig(httpclient.LowLatencyConfig())
//
//	// Many concurrent calls: larger connection pool per node
//	httpclient.WithConfig(httpclient.HighThroughputConfig())
//
//	// Few connections, 250ms pause between failover attempts
//	httpclient.WithConfig(httpclient.ConservativeConfig())
//
// # Testing
//
// MockTransport stubs responses per node:
//
//	mt := httpclient.NewMockTransport().
//	    StubHostRefused("node1:4001").
//	    StubHost("node2:4001", http.StatusOK, `{"results":[]}`)
//
//	client, _ := httpclient.New("http://node1:4001,http://node2:4001",
//	    httpclient.WithMockTransport(mt),
//	)
package httpclient

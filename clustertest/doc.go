// Package clustertest runs an in-process fake rqlite cluster for tests.
//
// Every node is an httptest.Server routed by chi. Node 0 starts as the
// leader. Followers answer writes, and reads above consistency level
// "none", with a 301 pointing at the leader, the way real followers do.
// All nodes share one in-memory statement log, so a write accepted by the
// leader is immediately visible everywhere.
//
// # Quick Start
//
//	cluster := clustertest.New(t, 3)
//
//	client, err := httpclient.New(cluster.Hosts())
//	require.NoError(t, err)
//
//	cluster.Node(0).Stop()   // leader refuses connections from now on
//	cluster.SetLeader(1)
//
// The fake only understands the shapes of the data API. Statements are
// recorded, not interpreted: a read returns the log of accepted writes.
package clustertest

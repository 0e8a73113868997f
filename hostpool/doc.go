// Package hostpool holds the static, ordered set of cluster nodes a client
// may contact, together with a cursor selecting the node used for reads.
//
// The first host is treated as the leader. Writes that must reach the
// leader ask for it explicitly with ActiveHost(true); everything else uses
// the cursor, which only moves when the caller invokes Advance or
// SetActiveIndex.
//
// # Quick Start
//
//	pool, err := hostpool.New("http://node1:4001,http://node2:4001,http://node3:4001")
//	if err != nil {
//	    return err // *hostpool.ConfigurationError
//	}
//
//	pool.ActiveHost(true)  // "http://node1:4001"
//	pool.Advance()
//	pool.ActiveHost(false) // "http://node2:4001"
//
// A Pool is safe for concurrent use.
package hostpool

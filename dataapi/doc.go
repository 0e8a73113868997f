// Package dataapi wraps the rqlite data API (/db/query and /db/execute) on
// top of the failover client in package httpclient.
//
// # Quick Start
//
//	db, err := dataapi.New("http://node1:4001,http://node2:4001,http://node3:4001")
//	if err != nil {
//	    return err
//	}
//
//	// Writes are sent to the leader first
//	res, err := db.Execute(ctx, []string{
//	    "CREATE TABLE foo (id integer not null primary key, name text)",
//	    `INSERT INTO foo(name) VALUES("fiona")`,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := res.FirstError(); err != nil {
//	    return err // *dataapi.StatementError
//	}
//
//	// One statement is sent as GET /db/query?q=..., several as a POST
//	res, err = db.Query(ctx, "SELECT * FROM foo", dataapi.WithLevel(dataapi.LevelStrong))
//
// # Statements
//
// Every operation accepts a single SQL string, a []string of statements or
// a [][]any of parameterized statements:
//
//	db.Insert(ctx, [][]any{{"INSERT INTO foo(name) VALUES(?)", "fiona"}})
//
// # Statement Errors
//
// rqlite reports SQL errors per statement inside a 200 response. They are
// left in Results and surfaced by Results.FirstError. Non-2xx responses
// are returned as *StatusError.
package dataapi

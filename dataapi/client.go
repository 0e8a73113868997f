package dataapi

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kroma-labs/rqlite-go/httpclient"
)

const (
	// PathQuery is the read endpoint.
	PathQuery = "/db/query"

	// PathExecute is the write endpoint.
	PathExecute = "/db/execute"
)

// Client issues data API calls against an rqlite cluster.
type Client struct {
	http *httpclient.Client
}

// New creates a Client for hosts. See httpclient.New for the accepted
// forms of hosts and the available options.
func New(hosts any, opts ...httpclient.Option) (*Client, error) {
	c, err := httpclient.New(hosts, opts...)
	if err != nil {
		return nil, err
	}
	return NewWithClient(c), nil
}

// NewWithClient wraps an existing httpclient.Client.
func NewWithClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

// HTTP returns the underlying failover client.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// Query runs read statements. A single string is sent as
// GET /db/query?q=...; anything else is sent as a JSON array in a POST.
//
// Example:
//
//	res, err := db.Query(ctx, "SELECT * FROM foo", dataapi.WithLevel(dataapi.LevelWeak))
func (c *Client) Query(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.query(ctx, "Query", sql, opts)
}

// Select is Query under the name of the statement it runs.
func (c *Client) Select(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.query(ctx, "Select", sql, opts)
}

// QueryAll sends the same query to every host of the pool concurrently,
// without failover, and returns the results in pool order. Combine it
// with WithLevel(LevelNone) to read each node's local copy.
func (c *Client) QueryAll(ctx context.Context, sql any, opts ...Option) ([]*Results, error) {
	out := make([]*Results, c.http.Pool().Size())

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		hostOpts := append(append([]Option{}, opts...), OnHost(i), WithRetries(0), WithUseLeader(false))
		g.Go(func() error {
			res, err := c.query(gctx, "QueryAll", sql, hostOpts)
			if err != nil {
				return fmt.Errorf("host %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// Execute runs write statements with POST /db/execute. The first attempt
// goes to the leader unless WithUseLeader(false) is given.
//
// Example:
//
//	res, err := db.Execute(ctx, `INSERT INTO foo(name) VALUES("fiona")`)
func (c *Client) Execute(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.execute(ctx, "Execute", sql, opts)
}

// Insert runs INSERT statements. See Execute.
func (c *Client) Insert(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.execute(ctx, "Insert", sql, opts)
}

// Update runs UPDATE statements. See Execute.
func (c *Client) Update(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.execute(ctx, "Update", sql, opts)
}

// Delete runs DELETE statements. See Execute.
func (c *Client) Delete(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.execute(ctx, "Delete", sql, opts)
}

// CreateTable runs CREATE TABLE statements. See Execute.
func (c *Client) CreateTable(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.execute(ctx, "CreateTable", sql, opts)
}

// DropTable runs DROP TABLE statements. See Execute.
func (c *Client) DropTable(ctx context.Context, sql any, opts ...Option) (*Results, error) {
	return c.execute(ctx, "DropTable", sql, opts)
}

func (c *Client) query(ctx context.Context, op string, sql any, opts []Option) (*Results, error) {
	o := newCallOptions(false, opts)
	rb := o.apply(c.http.Request(op))

	var (
		resp *httpclient.Response
		err  error
	)
	if stmt, ok := sql.(string); ok && stmt != "" {
		resp, err = rb.Query("q", stmt).Get(ctx, PathQuery)
	} else {
		body, berr := statements(sql)
		if berr != nil {
			return nil, berr
		}
		resp, err = rb.BodyJSON(body).Post(ctx, PathQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("dataapi: %s: %w", op, err)
	}

	return o.results(resp)
}

func (c *Client) execute(ctx context.Context, op string, sql any, opts []Option) (*Results, error) {
	body, err := statements(sql)
	if err != nil {
		return nil, err
	}

	o := newCallOptions(true, opts)
	resp, err := o.apply(c.http.Request(op)).BodyJSON(body).Post(ctx, PathExecute)
	if err != nil {
		return nil, fmt.Errorf("dataapi: %s: %w", op, err)
	}

	return o.results(resp)
}

// statements normalizes sql into the JSON array body of a POST.
func statements(sql any) (any, error) {
	switch s := sql.(type) {
	case string:
		if s == "" {
			return nil, ErrInvalidStatements
		}
		return []string{s}, nil
	case []string:
		if len(s) == 0 {
			return nil, ErrInvalidStatements
		}
		return s, nil
	case [][]any:
		if len(s) == 0 {
			return nil, ErrInvalidStatements
		}
		return s, nil
	default:
		return nil, ErrInvalidStatements
	}
}

// results decodes resp unless the call is raw.
func (o *callOptions) results(resp *httpclient.Response) (*Results, error) {
	res := &Results{response: resp}
	if o.raw {
		return res, nil
	}

	if !resp.IsSuccess() {
		return res, statusError(resp)
	}

	if err := resp.Decode(res); err != nil {
		return res, fmt.Errorf("dataapi: decode results: %w", err)
	}
	return res, nil
}

func statusError(resp *httpclient.Response) error {
	serr := &StatusError{StatusCode: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	if err := resp.Decode(&body); err == nil && body.Error != "" {
		serr.Message = body.Error
		return serr
	}

	raw, _ := resp.String()
	serr.Message = raw
	return serr
}

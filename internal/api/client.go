package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"stockdash/internal/dashboard"
)

// Client calls a remote stockdash.ChartService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the server at addr. The connection is
// established lazily on the first call.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Evaluate evaluates one panel remotely.
func (c *Client) Evaluate(ctx context.Context, req dashboard.Request) (dashboard.Result, error) {
	var res dashboard.Result
	err := c.call(ctx, methodEvaluate, req, &res)
	return res, err
}

// Catalog fetches the remote symbol catalog.
func (c *Client) Catalog(ctx context.Context) (dashboard.CatalogInfo, error) {
	var ci dashboard.CatalogInfo
	err := c.call(ctx, methodCatalog, struct{}{}, &ci)
	return ci, err
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

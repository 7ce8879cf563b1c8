package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"oncostats/internal/dispatch"
	"oncostats/pkg/models"
)

// Client calls oncostats.Catalog over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) List(ctx context.Context) ([]string, error) {
	out := new(ListResponse)
	if err := c.invoke(ctx, "List", &ListRequest{}, out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (c *Client) Dispatch(ctx context.Context, category string) (*dispatch.Result, error) {
	out := new(DispatchResponse)
	if err := c.invoke(ctx, "Dispatch", &DispatchRequest{Category: category}, out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) Overview(ctx context.Context) (models.Overview, error) {
	out := new(OverviewResponse)
	if err := c.invoke(ctx, "Overview", &OverviewRequest{}, out); err != nil {
		return models.Overview{}, err
	}
	return out.Overview, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(CodecName))
}

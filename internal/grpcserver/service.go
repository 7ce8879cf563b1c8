package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"oncostats/internal/dispatch"
	"oncostats/pkg/models"
)

const serviceName = "oncostats.Catalog"

type ListRequest struct{}

type ListResponse struct {
	Categories []string `json:"categories"`
}

type DispatchRequest struct {
	Category string `json:"category"`
}

type DispatchResponse struct {
	Result *dispatch.Result `json:"result"`
}

type OverviewRequest struct{}

type OverviewResponse struct {
	Overview models.Overview `json:"overview"`
}

// CatalogServer is the server API of the oncostats.Catalog service.
type CatalogServer interface {
	List(context.Context, *ListRequest) (*ListResponse, error)
	Dispatch(context.Context, *DispatchRequest) (*DispatchResponse, error)
	Overview(context.Context, *OverviewRequest) (*OverviewResponse, error)
}

// ServiceDesc describes oncostats.Catalog for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: unary("List", func(s CatalogServer, ctx context.Context, in *ListRequest) (any, error) {
			return s.List(ctx, in)
		})},
		{MethodName: "Dispatch", Handler: unary("Dispatch", func(s CatalogServer, ctx context.Context, in *DispatchRequest) (any, error) {
			return s.Dispatch(ctx, in)
		})},
		{MethodName: "Overview", Handler: unary("Overview", func(s CatalogServer, ctx context.Context, in *OverviewRequest) (any, error) {
			return s.Overview(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oncostats/catalog",
}

func Register(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to grpc's untyped method handler.
func unary[Req any](method string, call func(CatalogServer, context.Context, *Req) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CatalogServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CatalogServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

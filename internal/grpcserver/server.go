package grpcserver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"oncostats/internal/dispatch"
	"oncostats/pkg/models"
)

// Selector is the part of dispatch.Dispatcher the service exposes.
type Selector interface {
	Categories() []string
	Dispatch(ctx context.Context, id string) (*dispatch.Result, error)
}

type Server struct {
	Selector Selector
	Info     models.Overview
	Logger   *zap.Logger
}

func NewServer(sel Selector, overview models.Overview, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Selector: sel, Info: overview, Logger: logger.Named("grpc")}
}

func (s *Server) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	return &ListResponse{Categories: s.Selector.Categories()}, nil
}

func (s *Server) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	if req == nil || strings.TrimSpace(req.Category) == "" {
		return nil, status.Error(codes.InvalidArgument, "category required")
	}

	res, err := s.Selector.Dispatch(ctx, req.Category)
	if err != nil {
		return nil, status.Error(CodeFor(dispatch.ErrorCode(err)), err.Error())
	}
	return &DispatchResponse{Result: res}, nil
}

func (s *Server) Overview(ctx context.Context, req *OverviewRequest) (*OverviewResponse, error) {
	return &OverviewResponse{Overview: s.Info}, nil
}

// CodeFor maps a dispatch error code to a gRPC status code.
func CodeFor(code string) codes.Code {
	switch code {
	case dispatch.CodeUnknownCategory:
		return codes.NotFound
	case dispatch.CodeSourceUnavailable:
		return codes.Unavailable
	case dispatch.CodeAmbiguousColumnAlias, dispatch.CodeMissingColumn:
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}

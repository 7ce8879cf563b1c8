package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"oncostats/internal/dataset"
	"oncostats/internal/dispatch"
	"oncostats/internal/grpcserver"
	"oncostats/internal/logging"
	"oncostats/internal/registry"
	"oncostats/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $ONCOSTATS_CONFIG)")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		logger.Fatal("catalog load failed", zap.Error(err))
	}
	src, closeSrc, err := dataset.Open(cfg)
	if err != nil {
		logger.Fatal("dataset source failed", zap.Error(err))
	}
	defer func() { _ = closeSrc() }()

	disp := dispatch.New(reg, src, logger)
	disp.LoadTimeout = cfg.LoadTimeout

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc listen failed", zap.Error(err))
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(logger.Named("grpc"))))
	grpcserver.Register(grpcServer, grpcserver.NewServer(disp, reg.Overview(), logger))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		grpcServer.GracefulStop()
	}()

	logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
	if err := grpcServer.Serve(listener); err != nil {
		logger.Error("grpc server stopped", zap.Error(err))
	}
}

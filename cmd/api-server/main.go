package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"oncostats/internal/category"
	"oncostats/internal/dataset"
	"oncostats/internal/dispatch"
	"oncostats/internal/logging"
	"oncostats/internal/notify"
	"oncostats/internal/registry"
	synchub "oncostats/internal/sync"
	"oncostats/internal/watch"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
}

func run(cfg utils.Config, logger *zap.Logger) error {
	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		return err
	}
	src, closeSrc, err := dataset.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()

	disp := dispatch.New(reg, src, logger)
	disp.LoadTimeout = cfg.LoadTimeout

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := synchub.NewHub(disp, logger)
	router.GET("/ws", synchub.WSHandler(hub, cfg.CORSOrigins))
	tcpSrv := synchub.NewServer(cfg.TCPAddr, hub)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "source": cfg.Source})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if p, ok := src.(dataset.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":       "not_ready",
					"source_error": err.Error(),
					"tcp_clients":  stats.TCPClients,
					"ws_clients":   stats.WSClients,
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"source":      "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	router.GET("/debug", func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"source":      cfg.Source,
			"categories":  len(reg.List()),
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	catHandler := category.NewHandler(disp, reg.Overview(), logger)
	catHandler.RegisterRoutes(router.Group("/categories"))
	catHandler.RegisterOverview(router)
	if cfg.HeroImage != "" {
		router.StaticFile("/hero", cfg.HeroImage)
	}

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		})(router),
	}

	notifiers := watch.Notifiers{hub}
	var udpSrv *notify.Server
	if cfg.UDPAddr != "" {
		udpSrv = notify.NewServer(cfg.UDPAddr, logger)
		notifiers = append(notifiers, udpSrv)
	}

	var watcher *watch.Watcher
	if cfg.Watch && cfg.Source == utils.SourceCSV {
		watcher, err = watch.New(cfg.DataDir, reg, notifiers, logger)
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		if err := watcher.Start(context.Background()); err != nil {
			logger.Warn("dataset watch disabled", zap.String("dir", cfg.DataDir), zap.Error(err))
			_ = watcher.Stop()
			watcher = nil
		}
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	if udpSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := udpSrv.Run(); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP API server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	logger.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("watcher shutdown error", zap.Error(err))
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	if err := tcpSrv.Close(); err != nil {
		logger.Warn("tcp shutdown error", zap.Error(err))
	}
	if udpSrv != nil {
		if err := udpSrv.Close(); err != nil {
			logger.Warn("udp shutdown error", zap.Error(err))
		}
	}
	// websocket sessions are hijacked and outlive http.Server.Shutdown
	hub.CloseAll()

	wg.Wait()
	logger.Info("servers stopped")
	return runErr
}

package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"renderfleet/internal/bootstrap"
	"renderfleet/internal/config"
	"renderfleet/internal/httpapi"
	"renderfleet/internal/pkg/logger"
	"renderfleet/internal/pkg/shutdown"
)

func main() {
	// Initialize logger
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "renderfleet-api"
	log := logger.New(logCfg)

	log.Info("starting RenderFleet API",
		"version", "0.1.0",
	)

	// Load configuration
	cfg, err := config.FromEnv()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	if cfg.SourceRoot == "" && !loopback(cfg.HTTPHost) {
		log.Warn("listening beyond loopback without source_root; any readable file can be dispatched",
			"host", cfg.HTTPHost,
		)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	rt, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.LogFatal("failed to initialize controller", err)
	}
	shutdownMgr.RegisterSimple("connections", rt.Close)

	log.Info("queue tree configured",
		"root", cfg.Root,
		"source_root", cfg.SourceRoot,
		"cleanup_on_failure", cfg.CleanupOnFailure,
	)

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Op:             rt.Op,
		Pool:           rt.Pool,
		RDB:            rt.RDB,
		Log:            log,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(ctx, "HTTP server failed", err)
			stop()
		}
	}()

	// Wait for a shutdown signal or a server failure
	shutdownMgr.WaitWithContext(ctx)
	<-shutdownMgr.Done()
}

func loopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

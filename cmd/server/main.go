/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the point-of-sale consistency engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment (.env supported)
  2. Initialize store (SQLite, or in-memory with POS_DB=memory)
  3. Assemble the engine service and API handler
  4. Configure HTTP router and the closing scheduler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the closing scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  POS_DB=./data/pos.db ./server

  # Run with in-memory store
  POS_DB=memory ./server

  # Block sales that would drive stock negative
  POS_STOCK_POLICY=block ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pos-engine/api"
	"github.com/warp/pos-engine/config"
	"github.com/warp/pos-engine/engine"
	memstore "github.com/warp/pos-engine/engine/store"
	"github.com/warp/pos-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger(config.Config{}).Fatalf("invalid configuration: %v", err)
	}
	log := config.NewLogger(cfg)

	// Initialize store
	var st engine.TxStore
	if cfg.DBPath == "memory" {
		st = memstore.NewMemory()
	} else {
		sqlStore, err := sqlite.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to initialize database: %v", err)
		}
		defer sqlStore.Close()
		st = sqlStore
	}

	// Assemble service
	svc := engine.NewService(st, engine.ServiceOptions{
		Policy:   cfg.StockPolicy,
		Observer: engine.NewLogObserver(log),
		Config:   cfg.Cancellation,
	})

	handler := api.NewHandler(svc, log)
	router := api.NewRouter(handler)

	scheduler := api.NewClosingScheduler(svc, cfg.Tenants, log)
	scheduler.Enabled = cfg.AutoClose && len(cfg.Tenants) > 0
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("server listening on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server stopped")
}

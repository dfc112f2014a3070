/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tuition reconciliation server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the TOML config file
  2. Initialize SQLite store
  3. Pick the payment gateway (Midtrans when a server key is configured,
     in-memory fake otherwise)
  4. Build the reconciler and exam engine
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a TOML config file (optional)
  -port    HTTP server port, overrides config (default: 8080)
  -db      SQLite database path, overrides config (default: tuition.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/tuition.db"

  # Run with a config file (gateway credentials live here)
  ./server -config=./tuition.toml

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - config/config.go: TOML configuration
  - api/server.go: Router configuration
  - billing/reconciler.go: Payment reconciliation core
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumen/tuition-engine/api"
	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/config"
	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/gateway"
	"github.com/lumen/tuition-engine/store/sqlite"
)

func main() {
	// Flags override the config file
	configPath := flag.String("config", "", "Path to TOML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Pick the gateway verifier
	var verifier gateway.Verifier
	if cfg.Gateway.ServerKey != "" {
		verifier = gateway.NewMidtrans(cfg.Gateway.ServerKey, cfg.Gateway.Production, cfg.Gateway.VerifyTimeout())
		log.Printf("Using Midtrans gateway (production=%v)", cfg.Gateway.Production)
	} else {
		verifier = gateway.NewMemory()
		log.Printf("No gateway server key configured, using in-memory gateway")
	}

	// Build the engines
	reconciler := billing.NewReconciler(store, verifier)
	exams := exam.NewEngine(store)

	// Create router
	handler := api.NewHandler(reconciler, exams)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payment statement server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment / .env, then flags)
  2. Initialize the chosen store backend
  3. Create engine, accrual policy, HTTP handler
  4. Start the in-process accrual scheduler (optional)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port       HTTP server port
  -backend    sqlite | redis | memory
  -db         SQLite database path (":memory:" for in-memory)
  -scheduler  enable the in-process accrual ticker

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drimstor/payment-statement/api"
	"github.com/drimstor/payment-statement/config"
	"github.com/drimstor/payment-statement/ledger"
	memstore "github.com/drimstor/payment-statement/ledger/store"
	redisstore "github.com/drimstor/payment-statement/store/redis"
	"github.com/drimstor/payment-statement/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override environment
	port := flag.String("port", cfg.Port, "HTTP server port")
	backend := flag.String("backend", cfg.StoreBackend, "store backend: sqlite, redis or memory")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	schedulerOn := flag.Bool("scheduler", cfg.SchedulerEnabled, "run the in-process accrual scheduler")
	flag.Parse()

	// Initialize store
	store, closer, err := openStore(*backend, *dbPath, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", *backend, err)
	}
	defer closer.Close()

	// Core wiring
	engine := ledger.NewEngine(store)
	accrual := ledger.NewAccrualPolicy(store)
	accrual.Day = cfg.AccrualDay

	handler := api.NewHandler(engine, accrual, cfg.CronSecret)
	router := api.NewRouter(handler, api.BasicAuthCredentials{
		User:     cfg.BasicAuthUser,
		Password: cfg.BasicAuthPassword,
	})

	// Scheduler
	scheduler := api.NewAccrualScheduler(accrual)
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Enabled = *schedulerOn
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%s (%s store)", *port, *backend)
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

// openStore picks the configured backend. Every backend satisfies
// ledger.Store; the rest of the program never knows which one runs.
func openStore(backend, dbPath string, cfg *config.Config) (ledger.Store, io.Closer, error) {
	switch backend {
	case config.BackendSQLite:
		st, err := sqlite.New(dbPath, cfg.InitialDebt)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil

	case config.BackendRedis:
		st := redisstore.New(cfg.RedisAddr, cfg.InitialDebt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, st, nil

	case config.BackendMemory:
		return memstore.NewMemory(cfg.InitialDebt), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

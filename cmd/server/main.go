/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pricing and wallet ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire wallet service and ride coordinator
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -db               SQLite database path (default: ledger.db)
                    Use ":memory:" for an in-memory database
  -settle-interval  How often failed settlements are retried
                    (default: 5m, 0 disables the scheduler)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/Xybronix/EcoMobile-backend-sub001/api"
	"github.com/Xybronix/EcoMobile-backend-sub001/ride"
	"github.com/Xybronix/EcoMobile-backend-sub001/store/sqlite"
	"github.com/Xybronix/EcoMobile-backend-sub001/wallet"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	settleInterval := flag.Duration("settle-interval", 5*time.Minute,
		"interval between settlement retry passes (0 disables)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire domain services. The SQLite store backs every persistence
	// interface, so it appears in several positions here.
	wallets := wallet.NewService(store, store, store)
	rides := ride.NewCoordinator(store, store, wallets)

	handler := api.NewHandler(wallets, rides, store, store, store, store, store)
	router := api.NewRouter(handler)

	// Background settlement retries for completed-but-unpaid rides.
	sched := api.NewSettlementScheduler(rides, store)
	if *settleInterval <= 0 {
		sched.Enabled = false
	} else {
		sched.CheckInterval = *settleInterval
	}
	sched.Start()
	router.Get("/api/settlements/status", sched.SettlementStatus)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if sched.Enabled {
		sched.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

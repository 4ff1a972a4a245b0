/*
main.go - Points engine server entry point

PURPOSE:
  Starts the HTTP server for the points admin backend. Wires together
  the SQLite store, the ledger engine, and the API layer.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Open the SQLite database (runs migrations)
  3. Optionally bootstrap an admin principal
  4. Build handlers and router
  5. Serve HTTP with graceful shutdown

CONFIGURATION:
  Flags take their defaults from the environment:
  - PORT:            HTTP listen port (default 8080)
  - DB_PATH:         SQLite database path (default points.db)
  - BOOTSTRAP_ADMIN: Admin ID to insert at startup (optional)
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nimbusvpn/points-engine/api"
	"github.com/nimbusvpn/points-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var (
		port           = flag.String("port", envOr("PORT", "8080"), "HTTP listen port")
		dbPath         = flag.String("db", envOr("DB_PATH", "points.db"), "SQLite database path")
		bootstrapAdmin = flag.String("bootstrap-admin", os.Getenv("BOOTSTRAP_ADMIN"), "admin ID to insert at startup")
	)
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("database ready at %s", *dbPath)

	if *bootstrapAdmin != "" {
		if err := store.SaveAdmin(context.Background(), *bootstrapAdmin, "bootstrap"); err != nil {
			log.Fatalf("failed to bootstrap admin %s: %v", *bootstrapAdmin, err)
		}
		log.Printf("bootstrapped admin %s", *bootstrapAdmin)
	}

	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Serve in the background so we can wait for shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on :%s", *port)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}

	log.Println("server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

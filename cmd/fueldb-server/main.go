// Command fueldb-server exposes the nearby-station query API over
// HTTP: cheapest stations of a fuel type within a radius of a point,
// answered from the most recent stored snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"

	"github.com/fullbrim/fueldb/internal/fueldb"
)

const updateInterval = 6 * time.Hour

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "fuel_prices.db", "Path to the database file")
	refresh := flag.Bool("refresh", true, "Periodically refresh the snapshot from retailer feeds")
	flag.Parse()

	ctx := context.Background()

	logger := httplog.NewLogger("fueldb", httplog.Options{
		JSON:            false,
		LogLevel:        slog.LevelDebug,
		Concise:         true,
		QuietDownPeriod: 10 * time.Second,
	})

	storage, err := fueldb.NewStorage(ctx, *dbPath, logger.Logger)
	if err != nil {
		log.Fatalf("Error initializing storage: %v", err)
	}
	defer storage.Close()

	if *refresh {
		go func() {
			ticker := time.NewTicker(updateInterval)
			defer ticker.Stop()

			for {
				if _, err := storage.UpdateDB(ctx); err != nil {
					logger.Error("Error updating prices", "error", err)
				} else {
					logger.Info("Price update completed successfully")
				}
				<-ticker.C
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(20, time.Minute))
	r.Use(corsAllowAll)

	srv := &server{storage: storage, log: logger.Logger}
	r.Get("/health", srv.handleHealth)
	r.Get("/api/nearby", srv.handleNearby)
	r.Get("/api/snapshot", srv.handleSnapshot)

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	logger.Debug("Starting server on", "addr", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}

// corsAllowAll permits cross-origin reads from any site. The API is
// public and read-only.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fullbrim/fueldb/internal/query"
	"github.com/fullbrim/fueldb/pkg/api"
)

// snapshotStore is the slice of fueldb.Storage the handlers need.
type snapshotStore interface {
	Nearby(ctx context.Context, opts query.Options) ([]api.RankedResult, error)
	GetLastSnapshot(ctx context.Context) (*api.Snapshot, error)
}

type server struct {
	storage snapshotStore
	log     *slog.Logger
}

type nearbyResponse struct {
	Message  string             `json:"message"`
	Count    int                `json:"count"`
	Stations []api.RankedResult `json:"stations"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNearby answers GET /api/nearby?lat&long&radius&fuel.
//
// lat and long are required; radius defaults to 10 km and fuel to
// unleaded. A query matching nothing is a valid empty response, not an
// error.
func (s *server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	latStr := q.Get("lat")
	lngStr := q.Get("long")
	if latStr == "" || lngStr == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "lat and long query parameters are required",
		})
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid lat value"})
		return
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid long value"})
		return
	}

	radius := query.DefaultRadiusKm
	if radiusStr := q.Get("radius"); radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius <= 0 {
			radius = query.DefaultRadiusKm
		}
	}

	fuel := q.Get("fuel")
	if fuel == "" {
		fuel = "unleaded"
	}

	results, err := s.storage.Nearby(r.Context(), query.Options{
		Lat:      lat,
		Lng:      lng,
		RadiusKm: radius,
		Fuel:     fuel,
	})
	if err != nil {
		s.log.Error("nearby query failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Message: "no snapshot available",
		})
		return
	}

	writeJSON(w, http.StatusOK, nearbyResponse{
		Message:  fmt.Sprintf("Found %d stations within %g km", len(results), radius),
		Count:    len(results),
		Stations: results,
	})
}

// handleSnapshot serves the latest snapshot's retailer statuses.
func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.storage.GetLastSnapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Message: "no snapshot available",
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late to change the status; nothing else to do.
		return
	}
}

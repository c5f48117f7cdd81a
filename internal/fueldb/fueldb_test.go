package fueldb

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fullbrim/fueldb/internal/query"
)

const testSnapshot = `{
	"timestamp": "2026-08-29T12:00:00Z",
	"results": [
		{
			"retailer": "A", "status": "success", "url": "https://a.example/prices.json",
			"data": {"stations": [
				{"name": "A One", "address": "1 High Street, Norwich", "latitude": 51.5, "longitude": -0.1, "prices": {"E10": 140, "B7": 149}}
			]}
		},
		{
			"retailer": "B", "status": "success", "url": "https://b.example/prices.json",
			"data": {"stations": [
				{"name": "B One", "latitude": 51.5, "longitude": -0.1, "prices": {"E10": 135}}
			]}
		},
		{
			"retailer": "C", "status": "error", "url": "https://c.example/prices.json",
			"error": "Request timeout"
		}
	]
}`

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "fuel_prices.db")
	storage, err := NewStorage(ctx, dbPath, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if err := storage.SaveSnapshot(ctx, date, []byte(testSnapshot)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	has, err := storage.HasDate(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("saved date not found")
	}

	snap, err := storage.GetLastSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetLastSnapshot failed: %v", err)
	}
	if len(snap.Results) != 3 {
		t.Errorf("got %d results", len(snap.Results))
	}

	dates, err := storage.GetAllDates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 1 || !dates[0].Equal(date) {
		t.Errorf("dates = %v", dates)
	}
}

func TestGetLastSnapshotEmpty(t *testing.T) {
	storage := newTestStorage(t)

	if _, err := storage.GetLastSnapshot(context.Background()); err == nil {
		t.Error("expected an error with no stored snapshots")
	}
}

func TestNearbyFromStoredSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	if err := storage.SaveSnapshot(ctx, time.Now(), []byte(testSnapshot)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	results, err := storage.Nearby(ctx, query.Options{Lat: 51.5, Lng: -0.1, RadiusKm: 1, Fuel: "unleaded"})
	if err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, expected 2 (failed retailer ignored)", len(results))
	}
	if results[0].Retailer != "B" || results[0].Price != 135 {
		t.Errorf("first result = %+v", results[0])
	}

	// Second call is served from cache and must agree.
	cached, err := storage.Nearby(ctx, query.Options{Lat: 51.5, Lng: -0.1, RadiusKm: 1, Fuel: "unleaded"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != len(results) {
		t.Errorf("cached result length %d != %d", len(cached), len(results))
	}
}

func TestPriceHistory(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	if err := storage.SaveSnapshot(ctx, time.Now(), []byte(testSnapshot)); err != nil {
		t.Fatal(err)
	}

	points, err := storage.PriceHistory(ctx, "A", "diesel", 10)
	if err != nil {
		t.Fatalf("PriceHistory failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points", len(points))
	}
	if points[0].Price != 149 {
		t.Errorf("price = %d, expected 149", points[0].Price)
	}
}

func TestLogSearchLocation(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	if err := storage.LogSearchLocation(ctx, 51.5, -0.1, 5); err != nil {
		t.Fatalf("LogSearchLocation failed: %v", err)
	}
	if err := storage.LogSearchLocation(ctx, 51.5, -0.1, 5); err != nil {
		t.Fatalf("second LogSearchLocation failed: %v", err)
	}

	logs, err := storage.GetLocationLogs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d log rows, expected deduplicated 1", len(logs))
	}
	if logs[0].SearchCount != 2 {
		t.Errorf("search count = %d, expected 2", logs[0].SearchCount)
	}

	heatmap, err := storage.GetPopularLocationHeatmap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(heatmap) != 1 || heatmap[0].SearchCount != 2 {
		t.Errorf("heatmap = %+v", heatmap)
	}
}

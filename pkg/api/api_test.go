package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleSnapshot = `{
	"timestamp": "2026-08-29T12:00:00Z",
	"results": [
		{"retailer": "A", "status": "success", "url": "https://a.example/prices.json",
		 "data": {"stations": [{"name": "a1"}]}},
		{"retailer": "B", "status": "error", "url": "https://b.example/prices.json",
		 "error": "Request timeout"}
	]
}`

func TestParseSnapshot(t *testing.T) {
	snap, err := ParseSnapshot([]byte(sampleSnapshot))
	if err != nil {
		t.Fatalf("ParseSnapshot failed: %v", err)
	}

	if snap.Timestamp != "2026-08-29T12:00:00Z" {
		t.Errorf("timestamp = %q", snap.Timestamp)
	}
	if len(snap.Results) != 2 {
		t.Fatalf("got %d results", len(snap.Results))
	}
	if !snap.Results[0].OK() {
		t.Error("expected first result to be successful")
	}
	if snap.Results[1].OK() {
		t.Error("expected second result to be an error")
	}
	if snap.Results[1].Error != "Request timeout" {
		t.Errorf("error = %q", snap.Results[1].Error)
	}
}

func TestParseSnapshotGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(sampleSnapshot)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	snap, err := ParseSnapshot(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseSnapshot on gzip data failed: %v", err)
	}
	if len(snap.Results) != 2 {
		t.Errorf("got %d results", len(snap.Results))
	}
}

func TestParseSnapshotInvalid(t *testing.T) {
	if _, err := ParseSnapshot([]byte("not json")); err == nil {
		t.Error("expected error for invalid snapshot")
	}
}

func TestFetchRetailerSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		w.Write([]byte(`{"stations": [{"name": "s1"}]}`))
	}))
	defer server.Close()

	client := NewFeedClientFor(nil)
	result := client.FetchRetailer(context.Background(), "TestRetailer", server.URL)

	if !result.OK() {
		t.Fatalf("expected success, got %s: %s", result.Status, result.Error)
	}
	if result.Retailer != "TestRetailer" {
		t.Errorf("retailer = %q", result.Retailer)
	}
	if len(result.Data) == 0 {
		t.Error("expected data to be populated")
	}
	if result.Error != "" {
		t.Errorf("error populated on success: %q", result.Error)
	}
}

func TestFetchRetailerShellAcceptHeader(t *testing.T) {
	var accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewFeedClientFor(nil)
	client.FetchRetailer(context.Background(), "Shell", server.URL)

	if accept != "application/json" {
		t.Errorf("Shell fetch Accept header = %q, expected application/json", accept)
	}
}

func TestFetchRetailerHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewFeedClientFor(nil)
	result := client.FetchRetailer(context.Background(), "TestRetailer", server.URL)

	if result.OK() {
		t.Fatal("expected an error result")
	}
	if result.Error == "" {
		t.Error("expected error message to be populated")
	}
	if len(result.Data) != 0 {
		t.Error("data populated on error")
	}
}

func TestFetchRetailerInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewFeedClientFor(nil)
	result := client.FetchRetailer(context.Background(), "TestRetailer", server.URL)

	if result.OK() {
		t.Fatal("expected an error result for non-JSON body")
	}
	if result.Error != "invalid JSON response" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestFetchAllPartialFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stations": []}`))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer bad.Close()

	client := NewFeedClientFor(map[string]string{
		"Good": good.URL,
		"Bad":  bad.URL,
	})
	snap := client.FetchAll(context.Background())

	if snap.Timestamp == "" {
		t.Error("timestamp not set")
	}
	if len(snap.Results) != 2 {
		t.Fatalf("got %d results", len(snap.Results))
	}

	// Results come back sorted by retailer name.
	if snap.Results[0].Retailer != "Bad" || snap.Results[0].OK() {
		t.Errorf("unexpected first result: %+v", snap.Results[0])
	}
	if snap.Results[1].Retailer != "Good" || !snap.Results[1].OK() {
		t.Errorf("unexpected second result: %+v", snap.Results[1])
	}
}

func TestCanonicalFuel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"unleaded", FuelE10},
		{"Unleaded", FuelE10},
		{"petrol", FuelE10},
		{"super unleaded", FuelE5},
		{"diesel", FuelB7},
		{"premium_diesel", FuelSDV},
		{"E10", FuelE10},
		{"e5", FuelE5},
		{"lpg", FuelLPG},
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
	}

	for _, test := range tests {
		if got := CanonicalFuel(test.input); got != test.expected {
			t.Errorf("CanonicalFuel(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestStationPriceZeroPresent(t *testing.T) {
	s := Station{Prices: map[string]int{FuelE10: 0}}

	price, ok := s.Price(FuelE10)
	if !ok {
		t.Fatal("zero price reported as absent")
	}
	if price != 0 {
		t.Errorf("price = %d", price)
	}

	if _, ok := s.Price(FuelB7); ok {
		t.Error("absent fuel reported as present")
	}
}

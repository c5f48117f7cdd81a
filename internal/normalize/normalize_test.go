package normalize

import (
	"encoding/json"
	"testing"

	"github.com/fullbrim/fueldb/pkg/api"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	return m
}

func TestNormalizeNameFallbacks(t *testing.T) {
	registry := New(nil)

	tests := []struct {
		desc     string
		raw      string
		expected string
	}{
		{
			"direct name",
			`{"name": "Alpha Services"}`,
			"Alpha Services",
		},
		{
			"site_name",
			`{"site_name": "Beta Filling Station"}`,
			"Beta Filling Station",
		},
		{
			"brand plus last address segment",
			`{"brand": "Jet", "address": "1 High Street, Norwich, NR1 1AA"}`,
			"Jet - NR1 1AA",
		},
		{
			"brand alone",
			`{"brand": "Jet", "address": "High Street"}`,
			"Jet",
		},
		{
			"address alone",
			`{"address": "42 Mill Lane"}`,
			"42 Mill Lane",
		},
		{
			"nothing name-like at all",
			`{"prices": {"E10": 141.9}}`,
			UnknownStationName,
		},
	}

	for _, test := range tests {
		station := registry.Normalize("SomeRetailer", decode(t, test.raw))
		if station.Name != test.expected {
			t.Errorf("%s: name = %q, expected %q", test.desc, station.Name, test.expected)
		}
	}
}

func TestNormalizeCoordinates(t *testing.T) {
	registry := New(nil)

	tests := []struct {
		desc     string
		raw      string
		lat, lng float64
		absent   bool
	}{
		{desc: "flat fields", raw: `{"latitude": 51.5, "longitude": -0.1}`, lat: 51.5, lng: -0.1},
		{desc: "nested location", raw: `{"location": {"latitude": 53.4, "longitude": -2.2}}`, lat: 53.4, lng: -2.2},
		{desc: "nested geoPoint", raw: `{"geoPoint": {"latitude": 55.9, "longitude": -3.1}}`, lat: 55.9, lng: -3.1},
		{desc: "numeric strings", raw: `{"lat": "51.5", "lng": "-0.1"}`, lat: 51.5, lng: -0.1},
		{desc: "missing longitude", raw: `{"latitude": 51.5}`, absent: true},
		{desc: "unparsable", raw: `{"latitude": "not-a-number", "longitude": "nope"}`, absent: true},
		{desc: "no coordinates", raw: `{"name": "x"}`, absent: true},
	}

	for _, test := range tests {
		station := registry.Normalize("SomeRetailer", decode(t, test.raw))
		if test.absent {
			if station.HasCoordinates() {
				t.Errorf("%s: expected absent coordinates, got (%v, %v)",
					test.desc, station.Latitude, station.Longitude)
			}
			continue
		}
		if !station.HasCoordinates() {
			t.Errorf("%s: expected coordinates, got none", test.desc)
			continue
		}
		if *station.Latitude != test.lat || *station.Longitude != test.lng {
			t.Errorf("%s: coordinates = (%f, %f), expected (%f, %f)",
				test.desc, *station.Latitude, *station.Longitude, test.lat, test.lng)
		}
	}
}

func TestNormalizePrices(t *testing.T) {
	registry := New(nil)

	station := registry.Normalize("SomeRetailer", decode(t,
		`{"prices": {"E10": 141.9, "B7": 149.9, "unleaded": 139.0}}`))

	if got := station.Prices["B7"]; got != 150 {
		t.Errorf("B7 price = %d, expected 150", got)
	}
	// Alias keys collapse onto canonical codes.
	if _, ok := station.Prices["UNLEADED"]; ok {
		t.Error("alias fuel key was not canonicalized")
	}
	if _, ok := station.Prices["E10"]; !ok {
		t.Error("expected an E10 price")
	}
}

func TestNormalizeZeroPriceIsPresent(t *testing.T) {
	registry := New(nil)

	station := registry.Normalize("SomeRetailer", decode(t, `{"prices": {"E10": 0}}`))

	price, ok := station.Price(api.FuelE10)
	if !ok {
		t.Fatal("zero price treated as missing")
	}
	if price != 0 {
		t.Errorf("price = %d, expected 0", price)
	}
}

func TestNormalizeFuelPricesFallbackKey(t *testing.T) {
	registry := New(nil)

	station := registry.Normalize("SomeRetailer", decode(t, `{"fuel_prices": {"E5": 155.9}}`))
	if got := station.Prices["E5"]; got != 156 {
		t.Errorf("E5 price = %d, expected 156", got)
	}
}

func TestCostcoStrategy(t *testing.T) {
	registry := New(nil)

	raw := decode(t, `{
		"name": "Costco Watford",
		"address": {"line1": "Hartspring Lane", "town": "Watford", "postalCode": "WD25 8JS"},
		"geoPoint": {"latitude": 51.6565, "longitude": -0.3903},
		"gasTypes": [
			{"name": "5301", "price": "1.359"},
			{"name": "5303", "price": "1.399"},
			{"name": "9999", "price": "9.99"}
		]
	}`)

	station := registry.Normalize("Costco", raw)

	if station.Name != "Costco Watford" {
		t.Errorf("name = %q", station.Name)
	}
	if station.Address != "Hartspring Lane, Watford, WD25 8JS" {
		t.Errorf("address = %q", station.Address)
	}
	if !station.HasCoordinates() {
		t.Fatal("expected coordinates from geoPoint")
	}
	if got := station.Prices["E10"]; got != 136 {
		t.Errorf("E10 price = %d, expected 136", got)
	}
	if got := station.Prices["B7"]; got != 140 {
		t.Errorf("B7 price = %d, expected 140", got)
	}
	if _, ok := station.Prices["9999"]; ok {
		t.Error("unknown gas type code leaked into prices")
	}
}

func TestEssoStrategy(t *testing.T) {
	registry := New(nil)

	raw := decode(t, `{
		"displayName": "Esso Hatfield",
		"latitude": 51.76, "longitude": -0.22,
		"fuelPrices": {
			"REGULAR": {"price": 142.9},
			"DIESEL": {"price": 151.9},
			"PREMIUM_DIESEL": {"price": 165.9}
		}
	}`)

	station := registry.Normalize("Esso", raw)

	if station.Name != "Esso Hatfield" {
		t.Errorf("name = %q", station.Name)
	}
	if got := station.Prices["E10"]; got != 143 {
		t.Errorf("E10 price = %d, expected 143", got)
	}
	if got := station.Prices["B7"]; got != 152 {
		t.Errorf("B7 price = %d, expected 152", got)
	}
	if got := station.Prices["SDV"]; got != 166 {
		t.Errorf("SDV price = %d, expected 166", got)
	}
}

func TestRegisterAddsOverrideWithoutTouchingDefault(t *testing.T) {
	registry := New(nil)
	registry.Register("Quirky", func(retailer string, raw map[string]any) api.Station {
		return api.Station{Retailer: retailer, Name: "overridden"}
	})

	station := registry.Normalize("Quirky", decode(t, `{"name": "ignored"}`))
	if station.Name != "overridden" {
		t.Errorf("override not used: name = %q", station.Name)
	}

	station = registry.Normalize("Other", decode(t, `{"name": "kept"}`))
	if station.Name != "kept" {
		t.Errorf("default path affected by override: name = %q", station.Name)
	}
}

func TestStationsSelectsListKey(t *testing.T) {
	registry := New(nil)

	tests := []struct {
		desc string
		data string
		want int
	}{
		{"stations key", `{"stations": [{"name": "a"}, {"name": "b"}]}`, 2},
		{"stores key", `{"stores": [{"name": "a"}]}`, 1},
		{"top-level list", `[{"name": "a"}, {"name": "b"}, {"name": "c"}]`, 3},
		{"single record", `{"name": "solo", "prices": {"E10": 140}}`, 1},
	}

	for _, test := range tests {
		bundle := api.RetailerResult{
			Retailer: "SomeRetailer",
			Status:   api.StatusSuccess,
			Data:     json.RawMessage(test.data),
		}
		stations := registry.Stations(bundle)
		if len(stations) != test.want {
			t.Errorf("%s: got %d stations, expected %d", test.desc, len(stations), test.want)
		}
		for _, s := range stations {
			if s.Retailer != "SomeRetailer" {
				t.Errorf("%s: station retailer = %q", test.desc, s.Retailer)
			}
		}
	}
}

func TestStationsBundleTimestampFallback(t *testing.T) {
	registry := New(nil)

	bundle := api.RetailerResult{
		Retailer: "SomeRetailer",
		Status:   api.StatusSuccess,
		Data: json.RawMessage(`{
			"last_updated": "2026-08-29 07:00:00",
			"stations": [
				{"name": "own stamp", "last_updated": "2026-08-29 09:30:00"},
				{"name": "inherits"}
			]
		}`),
	}

	stations := registry.Stations(bundle)
	if len(stations) != 2 {
		t.Fatalf("got %d stations", len(stations))
	}
	if stations[0].LastUpdated != "2026-08-29 09:30:00" {
		t.Errorf("station timestamp = %q, expected its own", stations[0].LastUpdated)
	}
	if stations[1].LastUpdated != "2026-08-29 07:00:00" {
		t.Errorf("station timestamp = %q, expected the bundle's", stations[1].LastUpdated)
	}
}

func TestStationsErrorBundleContributesNothing(t *testing.T) {
	registry := New(nil)

	bundle := api.RetailerResult{
		Retailer: "Broken",
		Status:   api.StatusError,
		Error:    "Request timeout",
	}
	if stations := registry.Stations(bundle); len(stations) != 0 {
		t.Errorf("error bundle produced %d stations", len(stations))
	}
}

func TestSnapshotStationsPartialFailureIsolation(t *testing.T) {
	registry := New(nil)

	snap := &api.Snapshot{
		Timestamp: "2026-08-29T12:00:00Z",
		Results: []api.RetailerResult{
			{
				Retailer: "A",
				Status:   api.StatusSuccess,
				Data:     json.RawMessage(`{"stations": [{"name": "a1"}, {"name": "a2"}]}`),
			},
			{
				Retailer: "Broken",
				Status:   api.StatusError,
				Error:    "Invalid JSON response",
			},
			{
				Retailer: "B",
				Status:   api.StatusSuccess,
				Data:     json.RawMessage(`{"stores": [{"name": "b1"}]}`),
			},
		},
	}

	stations := registry.SnapshotStations(snap)
	if len(stations) != 3 {
		t.Errorf("got %d stations, expected 3 with the failed bundle skipped", len(stations))
	}
}

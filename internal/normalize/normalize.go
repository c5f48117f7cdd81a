// Package normalize maps the heterogeneous raw station records found
// in retailer price feeds into the canonical Station shape.
//
// Dispatch is by retailer name: a registry maps retailer identifiers to
// normalization strategies, with a default strategy of ordered field
// fallback chains used when no override is registered. Adding support
// for a retailer with a new feed shape means registering one more
// strategy; the default path and existing overrides are untouched.
package normalize

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/fullbrim/fueldb/pkg/api"
)

// UnknownStationName is the terminal fallback when a raw record carries
// no name-like field at all.
const UnknownStationName = "Unknown Station"

// Strategy converts one raw station record from the named retailer's
// feed into a canonical Station. Strategies never fail: every field
// they cannot resolve is left absent.
type Strategy func(retailer string, raw map[string]any) api.Station

// Registry dispatches raw station records to per-retailer strategies.
type Registry struct {
	strategies map[string]Strategy
	fallback   Strategy
	log        *slog.Logger
}

// New returns a Registry with the built-in overrides registered and the
// field-fallback-chain default strategy. A nil logger discards
// data-quality warnings.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		strategies: map[string]Strategy{},
		fallback:   defaultStrategy,
		log:        logger,
	}
	r.Register("Costco", costcoStrategy)
	r.Register("Esso", essoStrategy)
	return r
}

// Register installs (or replaces) the strategy for a retailer name.
// Matching is case-insensitive.
func (r *Registry) Register(retailer string, s Strategy) {
	r.strategies[strings.ToLower(retailer)] = s
}

// Normalize converts one raw station record using the retailer's
// registered strategy, or the default strategy when none exists.
func (r *Registry) Normalize(retailer string, raw map[string]any) api.Station {
	strategy, ok := r.strategies[strings.ToLower(retailer)]
	if !ok {
		strategy = r.fallback
	}
	station := strategy(retailer, raw)
	r.warnSuspectCoordinates(&station)
	return station
}

// Stations normalizes every raw station record carried by a retailer
// bundle. Error-status bundles, and success bundles whose payload
// cannot be decoded, contribute no stations. The station list may live
// under different keys depending on the retailer ("stations" vs
// "stores"), be a bare top-level array, or be a single record.
func (r *Registry) Stations(bundle api.RetailerResult) []api.Station {
	if !bundle.OK() || len(bundle.Data) == 0 {
		return nil
	}

	var payload any
	if err := json.Unmarshal(bundle.Data, &payload); err != nil {
		r.log.Warn("undecodable retailer payload", "retailer", bundle.Retailer, "error", err)
		return nil
	}

	records, bundleUpdated := stationRecords(payload)
	stations := make([]api.Station, 0, len(records))
	for _, raw := range records {
		station := r.Normalize(bundle.Retailer, raw)
		if station.LastUpdated == "" {
			station.LastUpdated = bundleUpdated
		}
		stations = append(stations, station)
	}
	return stations
}

// SnapshotStations flattens a snapshot into one canonical station
// collection. Failed retailer bundles are skipped; a query never fails
// because one retailer's fetch did.
func (r *Registry) SnapshotStations(snap *api.Snapshot) []api.Station {
	var stations []api.Station
	for i := range snap.Results {
		stations = append(stations, r.Stations(snap.Results[i])...)
	}
	return stations
}

func (r *Registry) warnSuspectCoordinates(s *api.Station) {
	if !s.HasCoordinates() {
		return
	}
	if math.Abs(*s.Latitude) > 90 || math.Abs(*s.Longitude) > 180 {
		r.log.Warn("coordinates out of range",
			"retailer", s.Retailer, "name", s.Name,
			"latitude", *s.Latitude, "longitude", *s.Longitude)
	}
}

// stationRecords locates the station list inside a decoded payload and
// returns it along with the bundle-level last-updated timestamp, if
// any.
func stationRecords(payload any) (records []map[string]any, lastUpdated string) {
	switch v := payload.(type) {
	case []any:
		return asRecords(v), ""
	case map[string]any:
		lastUpdated, _ = v["last_updated"].(string)
		for _, key := range []string{"stations", "stores", "locations"} {
			if list, ok := v[key].([]any); ok {
				return asRecords(list), lastUpdated
			}
		}
		// Single-record payload.
		return []map[string]any{v}, lastUpdated
	}
	return nil, ""
}

func asRecords(list []any) []map[string]any {
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records
}

// defaultStrategy resolves each canonical field through an ordered
// fallback chain over the field names seen across retailer feeds.
func defaultStrategy(retailer string, raw map[string]any) api.Station {
	station := api.Station{
		Retailer: retailer,
		Address:  extractAddress(raw),
	}

	station.Latitude, station.Longitude = extractCoordinates(raw)
	station.Prices = extractPrices(raw)
	station.Name = extractName(raw, station.Address)
	station.LastUpdated = stringField(raw, "last_updated", "lastUpdated", "updated")

	return station
}

func extractName(raw map[string]any, address string) string {
	if name := stringField(raw, "name", "site_name", "siteName", "displayName", "station_name"); name != "" {
		return name
	}

	brand := stringField(raw, "brand", "company")
	if brand != "" && strings.Contains(address, ",") {
		parts := strings.Split(address, ",")
		return brand + " - " + strings.TrimSpace(parts[len(parts)-1])
	}
	if brand != "" {
		return brand
	}
	if address != "" {
		return address
	}
	return UnknownStationName
}

func extractAddress(raw map[string]any) string {
	switch v := raw["address"].(type) {
	case string:
		return v
	case map[string]any:
		var parts []string
		for _, key := range []string{"line1", "line2", "town", "postalCode"} {
			if s, ok := v[key].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return stringField(raw, "addr", "street_address", "postcode", "postal_code")
}

func extractCoordinates(raw map[string]any) (lat, lon *float64) {
	lat = numberField(raw, "latitude", "lat")
	lon = numberField(raw, "longitude", "lng", "lon", "long")
	if lat != nil && lon != nil {
		return lat, lon
	}

	for _, key := range []string{"location", "geo", "geoPoint", "coordinates", "position"} {
		nested, ok := raw[key].(map[string]any)
		if !ok {
			continue
		}
		if lat == nil {
			lat = numberField(nested, "latitude", "lat")
		}
		if lon == nil {
			lon = numberField(nested, "longitude", "lng", "lon", "long")
		}
	}

	// A station needs both ends of the pair to be usable in a distance
	// query; a half-resolved coordinate stays absent.
	if lat == nil || lon == nil {
		return nil, nil
	}
	return lat, lon
}

func extractPrices(raw map[string]any) map[string]int {
	for _, key := range []string{"prices", "fuel_prices", "fuelPrices"} {
		container, ok := raw[key].(map[string]any)
		if !ok {
			continue
		}
		prices := map[string]int{}
		for fuel, value := range container {
			if p, ok := toPence(value); ok {
				prices[api.CanonicalFuel(fuel)] = p
			}
		}
		if len(prices) > 0 {
			return prices
		}
	}
	return nil
}

// costcoStrategy handles Costco's store-locator shape: records live
// under "stores", prices are a gasTypes list of numeric-code entries
// priced in pounds, and coordinates sit under geoPoint.
func costcoStrategy(retailer string, raw map[string]any) api.Station {
	station := api.Station{
		Retailer: retailer,
		Address:  extractAddress(raw),
	}
	station.Latitude, station.Longitude = extractCoordinates(raw)
	station.Name = extractName(raw, station.Address)

	gasTypes, ok := raw["gasTypes"].([]any)
	if !ok {
		return station
	}

	codes := map[string]string{
		"5301": "E10",
		"5302": "E5",
		"5303": "B7",
	}
	prices := map[string]int{}
	for _, item := range gasTypes {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		code, _ := entry["name"].(string)
		fuel, known := codes[code]
		if !known {
			continue
		}
		if p, ok := toPence(entry["price"]); ok {
			prices[fuel] = p
		}
	}
	if len(prices) > 0 {
		station.Prices = prices
	}
	return station
}

// essoStrategy handles feeds whose prices are per-fuel objects with a
// nested price field (fuelPrices.REGULAR.price style) keyed by upstream
// grade names rather than canonical codes.
func essoStrategy(retailer string, raw map[string]any) api.Station {
	station := defaultStrategy(retailer, raw)

	container, ok := raw["fuelPrices"].(map[string]any)
	if !ok {
		return station
	}

	grades := map[string]string{
		"REGULAR":        "E10",
		"SUPER":          "E5",
		"PREMIUM":        "E5",
		"DIESEL":         "B7",
		"PREMIUM_DIESEL": "SDV",
	}
	prices := map[string]int{}
	for grade, value := range container {
		fuel, known := grades[strings.ToUpper(grade)]
		if !known {
			continue
		}
		entry, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := toPence(entry["price"]); ok {
			prices[fuel] = p
		}
	}
	if len(prices) > 0 {
		station.Prices = prices
	}
	return station
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberField(raw map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		value, present := raw[key]
		if !present {
			continue
		}
		if f, ok := toFloat(value); ok {
			return &f
		}
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toPence converts a raw price value to integer pence. Feeds disagree
// on units: most publish pence per litre (e.g. 141.9), Costco publishes
// pounds (e.g. 1.35). Values under 10 are taken as pounds.
func toPence(value any) (int, bool) {
	f, ok := toFloat(value)
	if !ok || f < 0 {
		return 0, false
	}
	if f < 10 {
		f *= 100
	}
	return int(math.Round(f)), true
}

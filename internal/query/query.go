// Package query answers proximity + price questions over a canonical
// station collection: cheapest stations of a fuel type within a radius
// of an origin point.
//
// The engine is a pure function over the stations it is handed. It
// keeps no state between calls and performs no writes, so a single
// snapshot may be queried concurrently.
package query

import (
	"math"
	"sort"

	"github.com/fullbrim/fueldb/internal/geo"
	"github.com/fullbrim/fueldb/pkg/api"
)

// Defaults applied when a caller leaves options unset.
const (
	DefaultRadiusKm = 10.0
	DefaultFuel     = api.FuelE10
)

// Options describes one nearby-stations query.
type Options struct {
	Lat      float64
	Lng      float64
	RadiusKm float64 // 0 means DefaultRadiusKm
	Fuel     string  // empty means DefaultFuel; aliases accepted
}

func (o Options) radius() float64 {
	if o.RadiusKm <= 0 {
		return DefaultRadiusKm
	}
	return o.RadiusKm
}

func (o Options) fuel() string {
	if o.Fuel == "" {
		return DefaultFuel
	}
	return api.CanonicalFuel(o.Fuel)
}

// Nearby returns every station within the radius that has a price for
// the requested fuel, ordered by price ascending and by distance for
// equal prices.
//
// A station qualifies only when both coordinates are present and the
// fuel price is defined. Presence is an explicit map lookup: a price of
// zero pence is real, comparable data, not a missing value. The radius
// comparison is inclusive, and distances are reported in kilometers
// rounded to two decimal places.
func Nearby(stations []api.Station, opts Options) []api.RankedResult {
	radius := opts.radius()
	fuel := opts.fuel()

	results := make([]api.RankedResult, 0)
	for i := range stations {
		station := &stations[i]
		if !station.HasCoordinates() {
			continue
		}
		price, ok := station.Price(fuel)
		if !ok {
			continue
		}

		distance := geo.Distance(opts.Lat, opts.Lng, *station.Latitude, *station.Longitude, geo.Kilometers)
		if distance > radius {
			continue
		}

		results = append(results, api.RankedResult{
			Retailer:    station.Retailer,
			Name:        station.Name,
			Address:     station.Address,
			DistanceKm:  roundKm(distance),
			Price:       price,
			LastUpdated: station.LastUpdated,
		})
	}

	// Cheapest first; distance breaks price ties so results are
	// deterministic for a given snapshot.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Price != results[j].Price {
			return results[i].Price < results[j].Price
		}
		return results[i].DistanceKm < results[j].DistanceKm
	})

	return results
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

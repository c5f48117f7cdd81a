// Package geo implements great-circle distance between two points on
// the Earth's surface.
package geo

import "math"

// Unit selects the unit, and with it the Earth radius, used for a
// distance calculation.
type Unit int

const (
	Kilometers Unit = iota
	Miles
)

const (
	earthRadiusKm    = 6371.0
	earthRadiusMiles = 3959.0
)

func (u Unit) earthRadius() float64 {
	if u == Miles {
		return earthRadiusMiles
	}
	return earthRadiusKm
}

// Distance returns the haversine distance between two lat/lon pairs in
// degrees, in the requested unit.
//
// The haversine intermediate is clamped to [0,1] before the inverse
// trigonometric step: floating-point rounding can push it fractionally
// outside that range for antipodal or identical points, which would
// otherwise produce a NaN.
func Distance(lat1, lon1, lat2, lon2 float64, unit Unit) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)

	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return unit.earthRadius() * c
}

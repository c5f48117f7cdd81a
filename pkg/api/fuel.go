package api

import "strings"

// Canonical fuel-type codes. These are the upstream CMA scheme grade
// identifiers; everything downstream of normalization speaks only
// these.
const (
	FuelE10  = "E10"  // unleaded
	FuelE5   = "E5"   // super unleaded
	FuelB7   = "B7"   // diesel
	FuelSDV  = "SDV"  // premium diesel
	FuelULSP = "ULSP" // super unleaded (legacy label)
	FuelLPG  = "LPG"
)

// FuelLabels maps canonical codes to human-readable labels.
var FuelLabels = map[string]string{
	FuelE10:  "Unleaded (E10)",
	FuelE5:   "Super Unleaded (E5)",
	FuelB7:   "Diesel (B7)",
	FuelSDV:  "Premium Diesel",
	FuelULSP: "Super Unleaded",
	FuelLPG:  "LPG",
}

// fuelAliases maps the colloquial fuel names used by callers and by a
// few feeds onto canonical codes.
var fuelAliases = map[string]string{
	"unleaded":       FuelE10,
	"petrol":         FuelE10,
	"ul":             FuelE10,
	"super_unleaded": FuelE5,
	"super":          FuelE5,
	"diesel":         FuelB7,
	"d":              FuelB7,
	"premium_diesel": FuelSDV,
	"super_diesel":   FuelSDV,
}

// CanonicalFuel maps a caller-supplied fuel identifier to its canonical
// code. Unrecognized codes pass through unchanged (upper-cased), so the
// query layer and the presentation layer agree on identifiers without
// this package having to know every grade a feed may publish.
func CanonicalFuel(code string) string {
	normalized := strings.ToLower(strings.TrimSpace(code))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if canonical, ok := fuelAliases[normalized]; ok {
		return canonical
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

package api

import "encoding/json"

// Retailer fetch statuses recorded in a snapshot.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Snapshot is one full aggregation run: every retailer's fetch result
// collected at a single point in time.
type Snapshot struct {
	Timestamp string           `json:"timestamp"`
	Results   []RetailerResult `json:"results"`
}

// RetailerResult is a single retailer's contribution to a snapshot.
// Exactly one of Data or Error is populated, per Status.
type RetailerResult struct {
	Retailer string          `json:"retailer"`
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	URL      string          `json:"url"`
}

// OK reports whether the retailer's feed was fetched successfully.
func (r *RetailerResult) OK() bool {
	return r.Status == StatusSuccess
}

// Station is the canonical station record produced by normalization,
// independent of the source retailer's feed shape.
//
// Coordinates are pointers so that "absent" is distinguishable from
// zero: a station with nil Latitude or Longitude is excluded from
// distance queries but may still appear in plain listings. Prices map
// canonical fuel codes (E10, E5, B7, SDV, ULSP, LPG) to integer pence;
// a price of 0 is real data, not a missing value.
type Station struct {
	Retailer    string         `json:"retailer"`
	Name        string         `json:"name"`
	Address     string         `json:"address,omitempty"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	Prices      map[string]int `json:"prices,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

// HasCoordinates reports whether both coordinates are present.
func (s *Station) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Price returns the station's price in pence for the given canonical
// fuel code. The boolean distinguishes a genuine zero price from an
// absent one.
func (s *Station) Price(fuel string) (int, bool) {
	p, ok := s.Prices[fuel]
	return p, ok
}

// RankedResult is one entry in a price-and-distance-ordered query
// answer.
type RankedResult struct {
	Retailer    string  `json:"retailer"`
	Name        string  `json:"name"`
	Address     string  `json:"address,omitempty"`
	DistanceKm  float64 `json:"distance_km"`
	Price       int     `json:"price"`
	LastUpdated string  `json:"last_updated,omitempty"`
}

package fueldb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

func (s *Storage) createLocationLogsTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS location_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		radius_km REAL NOT NULL,
		search_count INTEGER NOT NULL DEFAULT 1,
		search_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_search TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_location_logs_coordinates ON location_logs (latitude, longitude);
	`

	_, err := s.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating location_logs table: %w", err)
	}

	s.log.Debug("Location logs table created or verified")
	return nil
}

// LogSearchLocation records a nearby search, bumping the counter when a
// precision-reduced match already exists.
func (s *Storage) LogSearchLocation(ctx context.Context, latitude, longitude, radiusKm float64) error {
	var id int64
	var count int

	newLat, newLng := reduceLocationPrecision(latitude, longitude, defaultReducePrecisionDecimalPlace)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, search_count FROM location_logs
		WHERE latitude = ?
		AND longitude = ?
		ORDER BY ABS(latitude - ?) + ABS(longitude - ?) ASC
		LIMIT 1
	`, newLat, newLng, newLat, newLng).Scan(&id, &count)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("error checking for existing location: %w", err)
	}

	if err == sql.ErrNoRows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO location_logs (latitude, longitude, radius_km)
			VALUES (?, ?, ?)
		`, latitude, longitude, radiusKm)

		if err != nil {
			return fmt.Errorf("error logging search location: %w", err)
		}
	} else {
		_, err := s.db.ExecContext(ctx, `
			UPDATE location_logs
			SET search_count = search_count + 1, last_search = CURRENT_TIMESTAMP, radius_km = ?
			WHERE id = ?
		`, radiusKm, id)

		if err != nil {
			return fmt.Errorf("error updating search location: %w", err)
		}
	}

	return nil
}

// LocationLog represents a row in the location_logs table
type LocationLog struct {
	ID          int64
	Latitude    float64
	Longitude   float64
	RadiusKm    float64
	SearchCount int64
	SearchTime  time.Time
	LastSearch  time.Time
}

// GetLocationLogs retrieves location logs ordered by popularity.
// limit: maximum number of rows to return (0 for all).
func (s *Storage) GetLocationLogs(ctx context.Context, limit int) ([]LocationLog, error) {
	query := `SELECT id, latitude, longitude, radius_km, search_count, search_time, last_search
			  FROM location_logs
			  ORDER BY search_count DESC `

	if limit > 0 {
		query += fmt.Sprintf("LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error retrieving location logs: %w", err)
	}
	defer rows.Close()

	var logs []LocationLog
	for rows.Next() {
		var logEntry LocationLog
		if err := rows.Scan(
			&logEntry.ID,
			&logEntry.Latitude,
			&logEntry.Longitude,
			&logEntry.RadiusKm,
			&logEntry.SearchCount,
			&logEntry.SearchTime,
			&logEntry.LastSearch,
		); err != nil {
			return nil, fmt.Errorf("error scanning location log: %w", err)
		}
		logs = append(logs, logEntry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	return logs, nil
}

// PopularLocation represents a clustered area of searches with its popularity
type PopularLocation struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	SearchCount int64   `json:"weight"` // Used as weight in heatmaps
	RadiusKm    float64 `json:"radius"` // Estimated radius of the cluster in km
}

// GetPopularLocationHeatmap returns data suitable for generating a
// heatmap of popular search locations, with nearby searches clustered
// together.
func (s *Storage) GetPopularLocationHeatmap(ctx context.Context) ([]PopularLocation, error) {
	logs, err := s.GetLocationLogs(ctx, 0)
	if err != nil {
		return nil, err
	}

	const clusterDistance = 0.01 // roughly 1km in degrees

	processed := make(map[int64]bool)

	var popularLocations []PopularLocation

	for i, entry := range logs {
		if processed[entry.ID] {
			continue
		}
		processed[entry.ID] = true

		cluster := PopularLocation{
			Latitude:    entry.Latitude,
			Longitude:   entry.Longitude,
			SearchCount: entry.SearchCount,
			RadiusKm:    entry.RadiusKm,
		}

		for j, other := range logs {
			if i == j || processed[other.ID] {
				continue
			}

			distance := math.Sqrt(
				math.Pow(entry.Latitude-other.Latitude, 2) +
					math.Pow(entry.Longitude-other.Longitude, 2))

			if distance <= clusterDistance {
				processed[other.ID] = true

				// Weighted-average cluster center.
				totalWeight := cluster.SearchCount + other.SearchCount
				cluster.Latitude = (cluster.Latitude*float64(cluster.SearchCount) +
					other.Latitude*float64(other.SearchCount)) / float64(totalWeight)
				cluster.Longitude = (cluster.Longitude*float64(cluster.SearchCount) +
					other.Longitude*float64(other.SearchCount)) / float64(totalWeight)

				cluster.SearchCount += other.SearchCount
				if other.RadiusKm > cluster.RadiusKm {
					cluster.RadiusKm = other.RadiusKm
				}
			}
		}

		popularLocations = append(popularLocations, cluster)
	}

	sort.Slice(popularLocations, func(i, j int) bool {
		return popularLocations[i].SearchCount > popularLocations[j].SearchCount
	})

	return popularLocations, nil
}

func reduceLocationPrecision(lat, lng float64, decimalPlaces int) (roundedLat, roundedLng float64) {
	factor := math.Pow(10, float64(decimalPlaces))
	roundedLat = math.Round(lat*factor) / factor
	roundedLng = math.Round(lng*factor) / factor
	return
}

// Package fueldb persists fuel-price snapshots in an embedded sqlite
// database and serves cached nearby-station queries over the most
// recent one.
package fueldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/patrickmn/go-cache"

	"github.com/fullbrim/fueldb/internal/normalize"
	"github.com/fullbrim/fueldb/internal/query"
	"github.com/fullbrim/fueldb/pkg/api"
)

const (
	defaultCacheExpirationMinutes      = 10
	defaultCacheCleanupMinutes         = 30
	defaultReducePrecisionDecimalPlace = 2
	defaultCacheSize                   = -1024 * 1024 // negative value for pages
	defaultPageSize                    = 4096
	migrationCacheSize                 = 1000000000
	deleteRecordsPause                 = 50
)

const dateFormat = "2006-01-02"

type Storage struct {
	db       *sql.DB
	cache    *cache.Cache
	log      *slog.Logger
	registry *normalize.Registry
	feed     *api.FeedClient
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := configureSQLitePragmas(ctx, db, false, defaultCacheSize); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	c := cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute)

	s := &Storage{
		db:       db,
		cache:    c,
		log:      logger,
		registry: normalize.New(logger),
		feed:     api.NewFeedClient(),
	}

	if err := s.createStationPricesTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating station_prices table: %w", err)
	}

	if err := s.createLocationLogsTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating location_logs table: %w", err)
	}

	return s, nil
}

// NewStorageMigrate opens the database tuned for bulk backfill of the
// station_prices table.
func NewStorageMigrate(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := configureSQLitePragmas(ctx, db, true, migrationCacheSize); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}
	if _, err = db.ExecContext(ctx, "PRAGMA temp_store = memory"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error setting temp store: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	s := &Storage{
		db:       db,
		cache:    cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute),
		log:      logger,
		registry: normalize.New(logger),
		feed:     api.NewFeedClient(),
	}

	if err := s.createStationPricesTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating station_prices table: %w", err)
	}

	return s, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_date ON snapshots(date);
	`

	_, err := db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}
	return nil
}

// createStationPricesTable creates the flattened per-station price
// table. Raw bundle shapes are heterogeneous, so flattening happens in
// Go through the normalizer at save time rather than in SQL.
func (s *Storage) createStationPricesTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS station_prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		retailer TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT,
		latitude REAL,
		longitude REAL,
		fuel_type TEXT NOT NULL,
		price_pence INTEGER NOT NULL,
		UNIQUE(date, retailer, name, fuel_type)
	);
	CREATE INDEX IF NOT EXISTS idx_station_prices_date ON station_prices(date);
	CREATE INDEX IF NOT EXISTS idx_station_prices_retailer ON station_prices(retailer);
	CREATE INDEX IF NOT EXISTS idx_station_prices_coords ON station_prices(latitude, longitude);
	`

	_, err := s.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating station_prices table: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return s.db.Close()
}

// SaveSnapshot stores a raw snapshot under the given date and flattens
// its normalized stations into station_prices.
func (s *Storage) SaveSnapshot(ctx context.Context, date time.Time, data []byte) error {
	snap, err := api.ParseSnapshot(data)
	if err != nil {
		return fmt.Errorf("error parsing snapshot: %w", err)
	}

	dateStr := date.Format(dateFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.log.Warn("rollback error", "error", err)
		}
	}()

	_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO snapshots (date, data) VALUES (?, ?)", dateStr, data)
	if err != nil {
		return fmt.Errorf("error inserting data: %w", err)
	}

	if err := s.flattenSnapshot(ctx, tx, dateStr, snap); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Delete("last_snapshot")
	s.cache.Flush()

	return nil
}

func (s *Storage) flattenSnapshot(ctx context.Context, tx *sql.Tx, dateStr string, snap *api.Snapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO station_prices (
			date, retailer, name, address, latitude, longitude, fuel_type, price_pence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, station := range s.registry.SnapshotStations(snap) {
		var lat, lng any
		if station.HasCoordinates() {
			lat, lng = *station.Latitude, *station.Longitude
		}
		for fuel, price := range station.Prices {
			_, err := stmt.ExecContext(ctx,
				dateStr, station.Retailer, station.Name, station.Address,
				lat, lng, fuel, price,
			)
			if err != nil {
				s.log.Warn("error inserting station price",
					"retailer", station.Retailer, "name", station.Name, "error", err)
				continue
			}
		}
	}
	return nil
}

func (s *Storage) HasDate(ctx context.Context, date time.Time) (bool, error) {
	dateStr := date.Format(dateFormat)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE date = ?", dateStr).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking date existence: %w", err)
	}
	return count > 0, nil
}

// GetAllDates returns all dates present in the snapshots table, sorted
// ascending.
func (s *Storage) GetAllDates(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT date FROM snapshots ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("error querying dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, fmt.Errorf("error scanning date: %w", err)
		}
		date, err := time.Parse(dateFormat, dateStr)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return dates, nil
}

func (s *Storage) GetLastUpdateDate(ctx context.Context) (*time.Time, error) {
	var dateStr string
	err := s.db.QueryRowContext(ctx, "SELECT date FROM snapshots ORDER BY date DESC LIMIT 1").Scan(&dateStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying last update date: %w", err)
	}

	lastUpdate, err := time.Parse(dateFormat, dateStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing date %s: %w", dateStr, err)
	}

	return &lastUpdate, nil
}

// GetLastSnapshot returns the most recent stored snapshot.
func (s *Storage) GetLastSnapshot(ctx context.Context) (*api.Snapshot, error) {
	const cacheKey = "last_snapshot"

	if cachedData, found := s.cache.Get(cacheKey); found {
		s.log.Debug("Using cached data", "key", cacheKey)
		return cachedData.(*api.Snapshot), nil
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots ORDER BY date DESC LIMIT 1").Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no snapshot available")
		}
		return nil, fmt.Errorf("error querying database: %w", err)
	}

	snap, err := api.ParseSnapshot(data)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, snap, cache.DefaultExpiration)

	return snap, nil
}

func (s *Storage) GetSnapshot(ctx context.Context, date time.Time) (*api.Snapshot, error) {
	dateStr := date.Format(dateFormat)

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE date = ?", dateStr).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no snapshot available for date %s", dateStr)
		}
		return nil, fmt.Errorf("error querying database: %w", err)
	}

	return api.ParseSnapshot(data)
}

// Stations returns the canonical station collection derived from the
// latest snapshot. Failed retailer bundles contribute nothing.
func (s *Storage) Stations(ctx context.Context) ([]api.Station, error) {
	snap, err := s.GetLastSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.SnapshotStations(snap), nil
}

// Nearby answers a proximity + price query against the latest
// snapshot. Results are cached per (origin, radius, fuel).
func (s *Storage) Nearby(ctx context.Context, opts query.Options) ([]api.RankedResult, error) {
	cacheKey := fmt.Sprintf("nearby_%f_%f_%f_%s", opts.Lat, opts.Lng, opts.RadiusKm, opts.Fuel)

	newLat, newLng := reduceLocationPrecision(opts.Lat, opts.Lng, defaultReducePrecisionDecimalPlace)
	if err := s.LogSearchLocation(ctx, newLat, newLng, opts.RadiusKm); err != nil {
		// Don't fail the search if logging fails.
		s.log.Error("Failed to log search location", "error", err)
	} else {
		s.log.Debug("Search location logged", "latitude", opts.Lat, "longitude", opts.Lng)
	}

	if cachedData, found := s.cache.Get(cacheKey); found {
		s.log.Debug("Using cached data", "key", cacheKey)
		return cachedData.([]api.RankedResult), nil
	}
	s.log.Debug("Fetching data from database, cached data not found", "key", cacheKey)

	stations, err := s.Stations(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting stations: %w", err)
	}

	results := query.Nearby(stations, opts)

	s.cache.Set(cacheKey, results, cache.DefaultExpiration)

	return results, nil
}

// UpdateDB fetches every retailer feed and stores the aggregated
// snapshot under today's date.
func (s *Storage) UpdateDB(ctx context.Context) (*api.Snapshot, error) {
	snap := s.feed.FetchAll(ctx)

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("error marshaling data: %w", err)
	}

	if err := s.SaveSnapshot(ctx, time.Now(), data); err != nil {
		return nil, err
	}
	return snap, nil
}

// PricePoint is one day's price for a fuel at some retailer.
type PricePoint struct {
	Date     string `json:"date"`
	Retailer string `json:"retailer"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
}

// PriceHistory returns stored prices for a retailer and fuel, most
// recent first.
func (s *Storage) PriceHistory(ctx context.Context, retailer, fuel string, limit int) ([]PricePoint, error) {
	sqlQuery := `
	SELECT date, retailer, name, price_pence FROM station_prices
	WHERE retailer = ? AND fuel_type = ?
	ORDER BY date DESC `
	if limit > 0 {
		sqlQuery += fmt.Sprintf("LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, retailer, api.CanonicalFuel(fuel))
	if err != nil {
		return nil, fmt.Errorf("error querying price history: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Date, &p.Retailer, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("error scanning price point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return points, nil
}

// MigrateStationPrices backfills the station_prices table from every
// stored snapshot.
func (s *Storage) MigrateStationPrices(ctx context.Context) error {
	s.log.Debug("Backfilling station_prices table")
	rows, err := s.db.QueryContext(ctx, "SELECT date, data FROM snapshots ORDER BY date")
	if err != nil {
		return fmt.Errorf("error querying snapshots: %w", err)
	}
	defer rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.log.Warn("rollback error", "error", err)
		}
	}()

	for rows.Next() {
		s.log.Debug("Processing row...")
		var dateStr string
		var data []byte
		if err := rows.Scan(&dateStr, &data); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}

		snap, err := api.ParseSnapshot(data)
		if err != nil {
			s.log.Warn("Warning: error parsing snapshot for date", "date", dateStr, "error", err)
			continue
		}

		if err := s.flattenSnapshot(ctx, tx, dateStr, snap); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	s.log.Debug("Migration completed successfully")
	return nil
}

func (s *Storage) DeleteOldRecords(ctx context.Context, daysOld int) error {
	cutoffDate := time.Now().AddDate(0, 0, -daysOld).Format(dateFormat)

	batchSize := 1000

	s.log.Info("Starting cleanup of old records", "cutoff_date", cutoffDate)

	for _, table := range []string{"snapshots", "station_prices"} {
		deletedCount := 0
		for {
			// One ROWID at a time keeps memory flat on large databases.
			var rowid int64
			err := s.db.QueryRowContext(ctx,
				fmt.Sprintf("SELECT ROWID FROM %s WHERE date < ? ORDER BY ROWID LIMIT 1", table),
				cutoffDate).Scan(&rowid)
			if err != nil {
				if err == sql.ErrNoRows {
					break
				}
				return fmt.Errorf("error querying %s ROWID: %w", table, err)
			}

			_, err = s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE ROWID = ?", table), rowid)
			if err != nil {
				return fmt.Errorf("error deleting %s record: %w", table, err)
			}

			deletedCount++

			if deletedCount%batchSize == 0 {
				s.log.Debug("Deleted records", "table", table, "count", deletedCount)
				time.Sleep(deleteRecordsPause * time.Millisecond)
			}
		}
		s.log.Info("Completed cleanup", "table", table, "deleted_count", deletedCount)
	}

	return nil
}

func (s *Storage) VacuumDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum(1000)")
	if err != nil {
		return fmt.Errorf("error performing incremental vacuum: %w", err)
	}

	return nil
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB, forMigration bool, cacheSize int) error {
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 10000;"); err != nil {
		return fmt.Errorf("error setting busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("error setting journal mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA auto_vacuum = INCREMENTAL;"); err != nil {
		return fmt.Errorf("error setting auto vacuum: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA temp_store = FILE;"); err != nil {
		return fmt.Errorf("error setting temp store: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA mmap_size = 0;"); err != nil {
		return fmt.Errorf("error disabling mmap: %w", err)
	}

	// Conservative memory limit (64MB).
	if _, err := db.ExecContext(ctx, "PRAGMA soft_heap_limit = 67108864;"); err != nil {
		return fmt.Errorf("error setting soft heap limit: %w", err)
	}

	syncMode := "NORMAL"
	if forMigration {
		syncMode = "OFF"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA synchronous = %s;", syncMode)); err != nil {
		return fmt.Errorf("error setting synchronous: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = %d;", cacheSize)); err != nil {
		return fmt.Errorf("error setting cache size: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA page_size = %d;", defaultPageSize)); err != nil {
		return fmt.Errorf("error setting page size: %w", err)
	}
	return nil
}

// Package storage wraps the relational store holding raw auction results,
// the make catalog, and persisted model scores.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for auctions, makes, and model
// scores.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "appraise.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Auctions ---

// InsertAuction stores one completed auction row.
func (s *Store) InsertAuction(a AuctionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO auctions (make, model, year, mileage, normalized_color, transmission, sold_price, bid_amount, end_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Make, nullString(a.Model), nullInt(a.Year), nullMileage(a.Mileage),
		nullString(a.Color), nullString(a.Transmission),
		nullFloat(a.SoldPrice), nullFloat(a.BidAmount),
		a.EndDate.UTC().Format(time.RFC3339), a.Status,
	)
	return err
}

// AuctionsByMake returns the make's rows that satisfy the training
// completeness invariant: non-null model, year, mileage, color, transmission,
// and at least one of sold_price/bid_amount.
func (s *Store) AuctionsByMake(makeName string) ([]AuctionRecord, error) {
	rows, err := s.db.Query(`
		SELECT make, model, year, mileage, normalized_color, transmission,
		       COALESCE(sold_price, 0), COALESCE(bid_amount, 0), end_date, COALESCE(status, '')
		FROM auctions
		WHERE make = ?
		  AND model IS NOT NULL
		  AND year IS NOT NULL
		  AND mileage IS NOT NULL
		  AND normalized_color IS NOT NULL
		  AND transmission IS NOT NULL
		  AND (sold_price IS NOT NULL OR bid_amount IS NOT NULL)`, makeName)
	if err != nil {
		return nil, fmt.Errorf("querying auctions for %s: %w", makeName, err)
	}
	defer rows.Close()

	var records []AuctionRecord
	for rows.Next() {
		var a AuctionRecord
		var endDate string
		if err := rows.Scan(&a.Make, &a.Model, &a.Year, &a.Mileage, &a.Color, &a.Transmission,
			&a.SoldPrice, &a.BidAmount, &endDate, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning auction row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}
		a.EndDate = t
		records = append(records, a)
	}
	return records, rows.Err()
}

// AuctionCount returns the total number of auction rows.
func (s *Store) AuctionCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM auctions").Scan(&count)
	return count, err
}

// --- Makes ---

// Makes returns all known make names in alphabetical order.
func (s *Store) Makes() ([]string, error) {
	rows, err := s.db.Query("SELECT make FROM makes ORDER BY make ASC")
	if err != nil {
		return nil, fmt.Errorf("querying makes: %w", err)
	}
	defer rows.Close()

	var makes []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning make: %w", err)
		}
		makes = append(makes, m)
	}
	return makes, rows.Err()
}

// ReplaceMakes swaps the make catalog for the given set in one transaction.
// Used by the catalog refresh; slugs index into names positionally.
func (s *Store) ReplaceMakes(names, slugs []string) error {
	if len(names) != len(slugs) {
		return fmt.Errorf("names/slugs length mismatch: %d vs %d", len(names), len(slugs))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning makes transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM makes"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing makes: %w", err)
	}
	for i, name := range names {
		if _, err := tx.Exec("INSERT INTO makes (make, slug) VALUES (?, ?)", name, slugs[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting make %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// --- Model scores ---

// UpsertModelScore records a training outcome, updating the existing row for
// the make if one exists.
func (s *Store) UpsertModelScore(m ModelScore) error {
	_, err := s.db.Exec(`
		INSERT INTO prediction_models (make, score, params, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (make) DO UPDATE SET
			score = excluded.score,
			params = excluded.params,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		m.Make, m.Score, m.ParamsJSON, m.RunID, m.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ModelScore returns the persisted training outcome for one make.
func (s *Store) ModelScore(makeName string) (ModelScore, error) {
	var m ModelScore
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT make, score, params, run_id, updated_at
		FROM prediction_models WHERE make = ?`, makeName,
	).Scan(&m.Make, &m.Score, &m.ParamsJSON, &m.RunID, &updatedAt)
	if err == sql.ErrNoRows {
		return ModelScore{}, ErrNotFound
	}
	if err != nil {
		return ModelScore{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return ModelScore{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	m.UpdatedAt = t
	return m, nil
}

// ModelScores returns all persisted training outcomes ordered by make.
func (s *Store) ModelScores() ([]ModelScore, error) {
	rows, err := s.db.Query(`
		SELECT make, score, params, run_id, updated_at
		FROM prediction_models ORDER BY make ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying model scores: %w", err)
	}
	defer rows.Close()

	var scores []ModelScore
	for rows.Next() {
		var m ModelScore
		var updatedAt string
		if err := rows.Scan(&m.Make, &m.Score, &m.ParamsJSON, &m.RunID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning model score: %w", err)
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		m.UpdatedAt = t
		scores = append(scores, m)
	}
	return scores, rows.Err()
}

// --- null helpers ---

// The scraper and importers leave unknown columns null so the training-side
// completeness filter can exclude them in SQL.

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

// nullMileage keeps zero (a legitimate odometer reading) and treats negative
// values as unknown.
func nullMileage(v float64) any {
	if v < 0 {
		return nil
	}
	return v
}

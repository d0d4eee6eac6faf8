package prefs

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL-backed preference store. It serves snapshot lookups
// for the matchmaking engine and the replace-all upsert used by the web tier
// when a user saves their preference form.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection, and runs any pending
// schema migrations from the embedded migration files.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: postgres connection failed: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle without running migrations.
// Useful when the caller manages the schema (tests, shared pools).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("prefs: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("prefs: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("prefs: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("prefs: migrate up: %w", err)
	}
	return nil
}

// GetPreferences returns the snapshot for a user, grouped by category.
// Unknown users yield an empty snapshot.
func (s *Store) GetPreferences(ctx context.Context, userID string) (Snapshot, error) {
	const query = `
		SELECT category, preference
		FROM preferences
		WHERE user_id = $1
		ORDER BY category, preference`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("prefs: query preferences: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var category, value string
		if err := rows.Scan(&category, &value); err != nil {
			return nil, fmt.Errorf("prefs: scan preference: %w", err)
		}
		snap[category] = append(snap[category], value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prefs: iterate preferences: %w", err)
	}
	return snap, nil
}

// Replace overwrites all preferences for a user with the given snapshot in a
// single transaction. Saving an empty snapshot clears the user's preferences.
func (s *Store) Replace(ctx context.Context, userID string, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("prefs: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("prefs: clear preferences: %w", err)
	}

	const insert = `INSERT INTO preferences (user_id, category, preference) VALUES ($1, $2, $3)`
	for category, values := range snap {
		for _, value := range values {
			if _, err := tx.ExecContext(ctx, insert, userID, category, value); err != nil {
				return fmt.Errorf("prefs: insert preference: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("prefs: commit: %w", err)
	}
	return nil
}

// ValueCount is one row of the popularity listing returned by TopValues.
type ValueCount struct {
	Category string
	Value    string
	Users    int
}

// TopValues returns the most common (category, value) pairs across all users,
// ordered by how many users declared them. The web tier shows these as
// suggestions on the preference form.
func (s *Store) TopValues(ctx context.Context, limit int) ([]ValueCount, error) {
	const query = `
		SELECT category, preference, COUNT(*) AS users
		FROM preferences
		GROUP BY category, preference
		ORDER BY users DESC, category, preference
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("prefs: query top values: %w", err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Category, &vc.Value, &vc.Users); err != nil {
			return nil, fmt.Errorf("prefs: scan top value: %w", err)
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prefs: iterate top values: %w", err)
	}
	return out, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

package revlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite. Revision ids come from the
// AUTOINCREMENT column, which gives the required monotonic ordering; the
// (phase_id, id) index makes latest-per-phase and by-id lookups O(log n).
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the revision log and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Mapping
// =============================================================================

type revisionRow struct {
	ID         int64         `db:"id"`
	RunID      string        `db:"run_id"`
	PhaseID    string        `db:"phase_id"`
	Action     string        `db:"action"`
	Snapshot   string        `db:"snapshot"`
	PreviousID sql.NullInt64 `db:"previous_id"`
	CreatedAt  string        `db:"created_at"`
}

func (r revisionRow) toDomain() (*domain.Revision, error) {
	var snapshot map[string]domain.ServiceSnapshot
	if err := json.Unmarshal([]byte(r.Snapshot), &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at %q", ErrInvalidData, r.CreatedAt)
	}

	rev := &domain.Revision{
		ID:        r.ID,
		RunID:     r.RunID,
		PhaseID:   r.PhaseID,
		Action:    domain.RevisionAction(r.Action),
		Snapshot:  snapshot,
		CreatedAt: createdAt,
	}
	if r.PreviousID.Valid {
		prev := r.PreviousID.Int64
		rev.PreviousID = &prev
	}
	return rev, nil
}

// =============================================================================
// Store Operations
// =============================================================================

// Append inserts a revision and returns its assigned monotonic id.
func (s *SQLiteStore) Append(ctx context.Context, rev *domain.Revision) (int64, error) {
	snapshot, err := json.Marshal(rev.Snapshot)
	if err != nil {
		return 0, NewStoreError("Append", "", "marshal snapshot", ErrInvalidData)
	}

	var previous sql.NullInt64
	if rev.PreviousID != nil {
		previous = sql.NullInt64{Int64: *rev.PreviousID, Valid: true}
	}

	createdAt := rev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO revisions (run_id, phase_id, action, snapshot, previous_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rev.RunID, rev.PhaseID, string(rev.Action), string(snapshot), previous,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, NewStoreError("Append", "", err.Error(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, NewStoreError("Append", "", err.Error(), err)
	}

	rev.ID = id
	rev.CreatedAt = createdAt
	return id, nil
}

// Get returns one revision by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*domain.Revision, error) {
	var row revisionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, run_id, phase_id, action, snapshot, previous_id, created_at
		 FROM revisions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("Get", fmt.Sprint(id), "not found", ErrRevisionNotFound)
		}
		return nil, NewStoreError("Get", fmt.Sprint(id), err.Error(), err)
	}
	return row.toDomain()
}

// Latest returns the most recent revision for a phase.
func (s *SQLiteStore) Latest(ctx context.Context, phaseID string) (*domain.Revision, error) {
	var row revisionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, run_id, phase_id, action, snapshot, previous_id, created_at
		 FROM revisions WHERE phase_id = ? ORDER BY id DESC LIMIT 1`, phaseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("Latest", phaseID, "no revisions for phase", ErrRevisionNotFound)
		}
		return nil, NewStoreError("Latest", phaseID, err.Error(), err)
	}
	return row.toDomain()
}

// ListByPhase returns a phase's revisions, newest first.
func (s *SQLiteStore) ListByPhase(ctx context.Context, phaseID string, limit int) ([]domain.Revision, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []revisionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, run_id, phase_id, action, snapshot, previous_id, created_at
		 FROM revisions WHERE phase_id = ? ORDER BY id DESC LIMIT ?`, phaseID, limit)
	if err != nil {
		return nil, NewStoreError("ListByPhase", phaseID, err.Error(), err)
	}

	revisions := make([]domain.Revision, 0, len(rows))
	for _, row := range rows {
		rev, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, *rev)
	}
	return revisions, nil
}

var _ Store = (*SQLiteStore)(nil)

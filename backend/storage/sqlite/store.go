package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/webwatch/backend/model"
	"github.com/webwatch/backend/storage"
)

// Store keeps party records in a SQLite database. Host election and the
// participant counters are single UPDATE statements, so their atomicity holds
// even when several server processes share the database file.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS parties (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			media_ref          TEXT NOT NULL DEFAULT '',
			created_at         INTEGER NOT NULL,
			host_connection_id TEXT NOT NULL DEFAULT '',
			participant_count  INTEGER NOT NULL DEFAULT 0,
			last_activity      INTEGER NOT NULL
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create parties table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, name, mediaRef string) (model.Party, error) {
	party := model.Party{
		ID:           uuid.NewString(),
		Name:         name,
		MediaRef:     mediaRef,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, media_ref, created_at, host_connection_id, participant_count, last_activity)
		VALUES (?, ?, ?, ?, '', 0, ?)`,
		party.ID, party.Name, party.MediaRef, party.CreatedAt.UnixNano(), party.LastActivity.UnixNano())
	if err != nil {
		return model.Party{}, fmt.Errorf("insert party: %w", err)
	}
	return party, nil
}

func (s *Store) Get(ctx context.Context, partyID string) (model.Party, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, media_ref, created_at, host_connection_id, participant_count, last_activity
		FROM parties WHERE id = ?`, partyID)
	return scanParty(row)
}

func (s *Store) List(ctx context.Context) ([]model.Party, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, media_ref, created_at, host_connection_id, participant_count, last_activity
		FROM parties ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query parties: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var parties []model.Party
	for rows.Next() {
		var (
			party                   model.Party
			createdAt, lastActivity int64
		)
		if err = rows.Scan(&party.ID, &party.Name, &party.MediaRef, &createdAt,
			&party.HostConnectionID, &party.ParticipantCount, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		party.CreatedAt = time.Unix(0, createdAt)
		party.LastActivity = time.Unix(0, lastActivity)
		parties = append(parties, party)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return parties, nil
}

// TrySetHost claims the host slot for connID if and only if it is vacant.
// The compare-and-set is a single conditional UPDATE.
func (s *Store) TrySetHost(ctx context.Context, partyID, connID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE parties SET host_connection_id = ?, last_activity = ?
		WHERE id = ? AND host_connection_id = ''`,
		connID, time.Now().UnixNano(), partyID)
	if err != nil {
		return false, fmt.Errorf("claim host: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim host: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ClearHost(ctx context.Context, partyID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE parties SET host_connection_id = '', last_activity = ?
		WHERE id = ?`, time.Now().UnixNano(), partyID)
	if err != nil {
		return fmt.Errorf("clear host: %w", err)
	}
	return nil
}

func (s *Store) IncrementCount(ctx context.Context, partyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE parties SET participant_count = participant_count + 1, last_activity = ?
		WHERE id = ? RETURNING participant_count`,
		time.Now().UnixNano(), partyID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrPartyNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment participant count: %w", err)
	}
	return count, nil
}

func (s *Store) DecrementCount(ctx context.Context, partyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE parties SET participant_count = MAX(participant_count - 1, 0), last_activity = ?
		WHERE id = ? RETURNING participant_count`,
		time.Now().UnixNano(), partyID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrPartyNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("decrement participant count: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteInactive(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM parties WHERE participant_count = 0 AND last_activity < ?`,
		cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete inactive parties: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete inactive parties: %w", err)
	}
	return int(n), nil
}

func scanParty(row *sql.Row) (model.Party, error) {
	var (
		party                   model.Party
		createdAt, lastActivity int64
	)
	err := row.Scan(&party.ID, &party.Name, &party.MediaRef, &createdAt,
		&party.HostConnectionID, &party.ParticipantCount, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Party{}, storage.ErrPartyNotFound
	}
	if err != nil {
		return model.Party{}, fmt.Errorf("scan party: %w", err)
	}
	party.CreatedAt = time.Unix(0, createdAt)
	party.LastActivity = time.Unix(0, lastActivity)
	return party, nil
}

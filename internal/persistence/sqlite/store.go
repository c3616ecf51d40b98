// Package sqlite provides the SQLite-backed session store drained by the
// persistence outbox.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"paddle-arena/internal/persistence"
	"paddle-arena/internal/persistence/sqlite/migrations"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrAlreadyExists is returned when a session id is inserted twice
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotFound is returned when an update targets an unknown row
	ErrNotFound = errors.New("record not found")
)

// Store persists session lifecycle, scores and moves in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// ParticipantRow is one stored roster entry
type ParticipantRow struct {
	persistence.ParticipantRecord
	Score int
	Left  bool
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSession inserts the session header.
func (s *Store) CreateSession(ctx context.Context, rec persistence.SessionRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (
		   id, private, room_code, max_participants, synthetic,
		   difficulty, winning_score, status, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		boolToInt(rec.Private),
		rec.RoomCode,
		rec.MaxParticipants,
		boolToInt(rec.Synthetic),
		rec.Difficulty,
		rec.WinningScore,
		rec.Status,
		toMillis(createdAt),
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create session %s: %w", rec.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create session %s: %w", rec.ID, err)
	}
	return nil
}

// AddParticipant upserts a roster entry. Rejoining clears left_at.
func (s *Store) AddParticipant(ctx context.Context, sessionID string, rec persistence.ParticipantRecord) error {
	joinedAt := rec.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_participants (
		   session_id, participant_id, display_name, side, synthetic, joined_at
		 ) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, participant_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   side = excluded.side,
		   joined_at = excluded.joined_at,
		   left_at = NULL`,
		sessionID,
		rec.ID,
		rec.DisplayName,
		rec.Side,
		boolToInt(rec.Synthetic),
		toMillis(joinedAt),
	)
	if err != nil {
		return fmt.Errorf("add participant %s to %s: %w", rec.ID, sessionID, err)
	}
	return nil
}

// RemoveParticipant marks a roster entry as departed.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE session_participants SET left_at = ? WHERE session_id = ? AND participant_id = ?`,
		toMillis(time.Now()), sessionID, participantID,
	)
	if err != nil {
		return fmt.Errorf("remove participant %s from %s: %w", participantID, sessionID, err)
	}
	return requireRow(res, "participant "+participantID)
}

// UpdateStatus records a status transition.
func (s *Store) UpdateStatus(ctx context.Context, sessionID, status string, at time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, toMillis(at), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", sessionID, err)
	}
	return requireRow(res, "session "+sessionID)
}

// UpdatePlayerScore stores a score. Stored scores never decrease.
func (s *Store) UpdatePlayerScore(ctx context.Context, sessionID, participantID string, score int) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE session_participants SET score = MAX(score, ?) WHERE session_id = ? AND participant_id = ?`,
		score, sessionID, participantID,
	)
	if err != nil {
		return fmt.Errorf("update score of %s in %s: %w", participantID, sessionID, err)
	}
	return requireRow(res, "participant "+participantID)
}

// RecordMove appends one accepted paddle move.
func (s *Store) RecordMove(ctx context.Context, rec persistence.MoveRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_moves (
		   session_id, participant_id, paddle_y, tick, client_time, recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.ParticipantID,
		rec.PaddleY,
		int64(rec.Tick),
		rec.ClientTime,
		toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("record move in %s: %w", rec.SessionID, err)
	}
	return nil
}

// GetSession loads a stored session header.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.SessionRecord, error) {
	var (
		rec                persistence.SessionRecord
		private, synthetic int
		createdAt          int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, private, room_code, max_participants, synthetic,
		        difficulty, winning_score, status, created_at
		   FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &private, &rec.RoomCode, &rec.MaxParticipants, &synthetic,
		&rec.Difficulty, &rec.WinningScore, &rec.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return persistence.SessionRecord{}, fmt.Errorf("get session %s: %w", id, err)
	}
	rec.Private = private == 1
	rec.Synthetic = synthetic == 1
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

// ListParticipants returns every roster entry ever stored for a session.
func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]ParticipantRow, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT participant_id, display_name, side, synthetic, score, joined_at, left_at
		   FROM session_participants WHERE session_id = ? ORDER BY joined_at, participant_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []ParticipantRow
	for rows.Next() {
		var (
			row       ParticipantRow
			synthetic int
			joinedAt  int64
			leftAt    sql.NullInt64
		)
		if err := rows.Scan(&row.ID, &row.DisplayName, &row.Side, &synthetic, &row.Score, &joinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		row.Synthetic = synthetic == 1
		row.JoinedAt = fromMillis(joinedAt)
		row.Left = leftAt.Valid
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants of %s: %w", sessionID, err)
	}
	return out, nil
}

// CountMoves returns the number of moves stored for a session.
func (s *Store) CountMoves(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_moves WHERE session_id = ?`, sessionID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count moves of %s: %w", sessionID, err)
	}
	return n, nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ persistence.Store = (*Store)(nil)

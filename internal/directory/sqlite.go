// Package directory persists private-room records. The session core
// treats every call here as best-effort: a failing store makes private
// rooms undiscoverable, never unusable.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/officeverse/office/internal/domain"
)

var ErrNotFound = errors.New("room record not found")

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id          TEXT PRIMARY KEY,
	room_name        TEXT NOT NULL,
	room_description TEXT NOT NULL DEFAULT '',
	room_password    TEXT NOT NULL DEFAULT '',
	is_private       INTEGER NOT NULL,
	players          TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

type Store struct {
	db *sql.DB
}

// Open connects to the database named by dsn and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Save(ctx context.Context, rec domain.DirectoryRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	query := `
		INSERT INTO rooms (room_id, room_name, room_description, room_password, is_private, players)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(room_id) DO UPDATE SET
			room_name = excluded.room_name,
			room_description = excluded.room_description,
			room_password = excluded.room_password,
			is_private = excluded.is_private,
			players = excluded.players,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		string(rec.RoomID), string(rec.RoomName), rec.Description, rec.Password, rec.IsPrivate, string(players)); err != nil {
		return fmt.Errorf("save room record: %w", err)
	}
	return nil
}

func (s *Store) AddPlayer(ctx context.Context, roomID domain.RoomID, p domain.PlayerRef) error {
	players, err := s.players(ctx, roomID)
	if err != nil {
		return err
	}
	for _, ref := range players {
		if ref.SessionID == p.SessionID {
			return nil
		}
	}
	return s.writePlayers(ctx, roomID, append(players, p))
}

func (s *Store) RemovePlayer(ctx context.Context, roomID domain.RoomID, sessionID string) error {
	players, err := s.players(ctx, roomID)
	if err != nil {
		return err
	}
	kept := players[:0]
	for _, ref := range players {
		if ref.SessionID != sessionID {
			kept = append(kept, ref)
		}
	}
	return s.writePlayers(ctx, roomID, kept)
}

func (s *Store) Delete(ctx context.Context, roomID domain.RoomID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = $1`, string(roomID)); err != nil {
		return fmt.Errorf("delete room record: %w", err)
	}
	return nil
}

func (s *Store) ListPrivate(ctx context.Context) ([]domain.DirectoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, room_name, room_description, is_private, players
		FROM rooms WHERE is_private = 1 ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list private rooms: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DirectoryRecord, 0)
	for rows.Next() {
		var rec domain.DirectoryRecord
		var players string
		if err := rows.Scan(&rec.RoomID, &rec.RoomName, &rec.Description, &rec.IsPrivate, &players); err != nil {
			return nil, fmt.Errorf("scan room record: %w", err)
		}
		if err := json.Unmarshal([]byte(players), &rec.Players); err != nil {
			return nil, fmt.Errorf("unmarshal players: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) players(ctx context.Context, roomID domain.RoomID) ([]domain.PlayerRef, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT players FROM rooms WHERE room_id = $1`, string(roomID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	var players []domain.PlayerRef
	if err := json.Unmarshal([]byte(raw), &players); err != nil {
		return nil, fmt.Errorf("unmarshal players: %w", err)
	}
	return players, nil
}

func (s *Store) writePlayers(ctx context.Context, roomID domain.RoomID, players []domain.PlayerRef) error {
	raw, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET players = $1, updated_at = CURRENT_TIMESTAMP WHERE room_id = $2`,
		string(raw), string(roomID)); err != nil {
		return fmt.Errorf("update players: %w", err)
	}
	return nil
}

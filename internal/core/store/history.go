package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lingualens/lingualens/internal/core"
)

// DefaultHistoryLimit is how many history entries are kept.
const DefaultHistoryLimit = 50

// ErrHistoryNotFound is returned when an entry id does not exist.
var ErrHistoryNotFound = errors.New("history entry not found")

// AddHistory stores an entry and drops the oldest beyond the history limit.
func (s *Store) AddHistory(ctx context.Context, entry core.HistoryEntry) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Type == "" {
		entry.Type = "analyze"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var result any
	if len(entry.Result) > 0 {
		result = string(entry.Result)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add history: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (id, kind, text, result, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.Type, entry.Text, result, entry.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("add history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM history
		WHERE id NOT IN (
			SELECT id FROM history ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, s.historyLimit()); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add history: %w", err)
	}
	return nil
}

// ListHistory returns entries newest first. limit <= 0 returns all.
func (s *Store) ListHistory(ctx context.Context, kind string, limit int) ([]core.HistoryEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `SELECT id, kind, text, result, created_at FROM history`
	args := []any{}
	if kind = strings.TrimSpace(kind); kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// GetHistory returns one entry by id.
func (s *Store) GetHistory(ctx context.Context, id string) (core.HistoryEntry, error) {
	if s == nil || s.DB == nil {
		return core.HistoryEntry{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, kind, text, result, created_at FROM history WHERE id = ?
	`, strings.TrimSpace(id))
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HistoryEntry{}, fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
	}
	return entry, err
}

// DeleteHistory removes one entry.
func (s *Store) DeleteHistory(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
	}
	return nil
}

// ClearHistory removes every entry and returns how many were deleted.
func (s *Store) ClearHistory(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) historyLimit() int {
	if s.HistoryLimit > 0 {
		return s.HistoryLimit
	}
	return DefaultHistoryLimit
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (core.HistoryEntry, error) {
	var (
		entry     core.HistoryEntry
		result    sql.NullString
		createdAt int64
	)
	if err := row.Scan(&entry.ID, &entry.Type, &entry.Text, &result, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, err
		}
		return entry, fmt.Errorf("scan history: %w", err)
	}
	if result.Valid && result.String != "" {
		entry.Result = json.RawMessage(result.String)
	}
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	return entry, nil
}

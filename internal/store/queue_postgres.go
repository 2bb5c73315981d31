package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/util"
)

// Compile-time checks that PostgresStore implements the queue interfaces.
var (
	_ QueueRepo          = (*PostgresStore)(nil)
	_ SchedulerStateRepo = (*PostgresStore)(nil)
)

func (s *PostgresStore) Enqueue(mediaRef string) (string, error) {
	if mediaRef == "" {
		return "", models.ErrEmptyMediaRef
	}
	id := util.GenerateQueueEntryID()
	now := time.Now()

	_, err := s.db.Exec(
		`INSERT INTO publish_queue (id, position, media_ref, enqueued_at)
		 VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM publish_queue), $2, $3)`,
		id, mediaRef, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}
	slog.Debug("PostgresStore.Enqueue", "id", id, "mediaRef", mediaRef)
	return id, nil
}

func (s *PostgresStore) PopHead() (*QueueEntry, error) {
	var entry QueueEntry
	// Single-statement pop keeps the select-and-delete atomic.
	err := s.db.QueryRow(
		`DELETE FROM publish_queue WHERE id = (
		     SELECT id FROM publish_queue ORDER BY position ASC LIMIT 1
		 ) RETURNING id, media_ref, enqueued_at`,
	).Scan(&entry.ID, &entry.MediaRef, &entry.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop head failed: %w", err)
	}
	slog.Debug("PostgresStore.PopHead", "id", entry.ID, "mediaRef", entry.MediaRef)
	return &entry, nil
}

func (s *PostgresStore) PushHead(entry QueueEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO publish_queue (id, position, media_ref, enqueued_at)
		 VALUES ($1, (SELECT COALESCE(MIN(position), 0) - 1 FROM publish_queue), $2, $3)`,
		entry.ID, entry.MediaRef, entry.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("push head failed: %w", err)
	}
	slog.Debug("PostgresStore.PushHead", "id", entry.ID, "mediaRef", entry.MediaRef)
	return nil
}

func (s *PostgresStore) QueueLength() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM publish_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue length failed: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListQueue() ([]QueueEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, media_ref, enqueued_at FROM publish_queue ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue failed: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queue iteration failed: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) LoadSchedulerState() (models.SchedulerState, error) {
	var state models.SchedulerState
	var nextSendAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT is_paused, next_send_at FROM scheduler_state WHERE id = 1`,
	).Scan(&state.IsPaused, &nextSendAt)
	if err == sql.ErrNoRows {
		return models.SchedulerState{}, nil
	}
	if err != nil {
		return models.SchedulerState{}, fmt.Errorf("load scheduler state failed: %w", err)
	}
	if nextSendAt.Valid {
		state.NextSendAt = nextSendAt.Time
	}
	return state, nil
}

func (s *PostgresStore) SaveSchedulerState(state models.SchedulerState) error {
	var nextSendAt interface{}
	if !state.NextSendAt.IsZero() {
		nextSendAt = state.NextSendAt
	}
	_, err := s.db.Exec(
		`INSERT INTO scheduler_state (id, is_paused, next_send_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET is_paused = EXCLUDED.is_paused, next_send_at = EXCLUDED.next_send_at`,
		state.IsPaused, nextSendAt,
	)
	if err != nil {
		return fmt.Errorf("save scheduler state failed: %w", err)
	}
	slog.Debug("PostgresStore.SaveSchedulerState", "paused", state.IsPaused, "unscheduled", state.Unscheduled())
	return nil
}

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/util"
)

// Compile-time checks that SQLiteStore implements the queue interfaces.
var (
	_ QueueRepo          = (*SQLiteStore)(nil)
	_ SchedulerStateRepo = (*SQLiteStore)(nil)
)

func (s *SQLiteStore) Enqueue(mediaRef string) (string, error) {
	if mediaRef == "" {
		return "", models.ErrEmptyMediaRef
	}
	id := util.GenerateQueueEntryID()
	now := time.Now()

	// Tail position = max(position)+1; COALESCE covers the empty queue.
	_, err := s.db.Exec(
		`INSERT INTO publish_queue (id, position, media_ref, enqueued_at)
		 VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM publish_queue), ?, ?)`,
		id, mediaRef, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}
	slog.Debug("SQLiteStore.Enqueue", "id", id, "mediaRef", mediaRef)
	return id, nil
}

func (s *SQLiteStore) PopHead() (*QueueEntry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("pop head begin failed: %w", err)
	}
	defer tx.Rollback()

	var entry QueueEntry
	err = tx.QueryRow(
		`SELECT id, media_ref, enqueued_at FROM publish_queue ORDER BY position ASC LIMIT 1`,
	).Scan(&entry.ID, &entry.MediaRef, &entry.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop head select failed: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM publish_queue WHERE id = ?`, entry.ID); err != nil {
		return nil, fmt.Errorf("pop head delete failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pop head commit failed: %w", err)
	}
	slog.Debug("SQLiteStore.PopHead", "id", entry.ID, "mediaRef", entry.MediaRef)
	return &entry, nil
}

func (s *SQLiteStore) PushHead(entry QueueEntry) error {
	// Head position = min(position)-1, so the entry retries before everything
	// enqueued after it.
	_, err := s.db.Exec(
		`INSERT INTO publish_queue (id, position, media_ref, enqueued_at)
		 VALUES (?, (SELECT COALESCE(MIN(position), 0) - 1 FROM publish_queue), ?, ?)`,
		entry.ID, entry.MediaRef, entry.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("push head failed: %w", err)
	}
	slog.Debug("SQLiteStore.PushHead", "id", entry.ID, "mediaRef", entry.MediaRef)
	return nil
}

func (s *SQLiteStore) QueueLength() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM publish_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue length failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListQueue() ([]QueueEntry, error) {
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

func (s *SQLiteStore) LoadSchedulerState() (models.SchedulerState, error) {
	var state models.SchedulerState
	var paused int
	var nextSendAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT is_paused, next_send_at FROM scheduler_state WHERE id = 1`,
	).Scan(&paused, &nextSendAt)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load scheduler state failed: %w", err)
	}
	state.IsPaused = paused != 0
	if nextSendAt.Valid {
		state.NextSendAt = nextSendAt.Time
	}
	return state, nil
}

func (s *SQLiteStore) SaveSchedulerState(state models.SchedulerState) error {
	paused := 0
	if state.IsPaused {
		paused = 1
	}
	var nextSendAt interface{}
	if !state.NextSendAt.IsZero() {
		nextSendAt = state.NextSendAt
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO scheduler_state (id, is_paused, next_send_at) VALUES (1, ?, ?)`,
		paused, nextSendAt,
	)
	if err != nil {
		return fmt.Errorf("save scheduler state failed: %w", err)
	}
	slog.Debug("SQLiteStore.SaveSchedulerState", "paused", state.IsPaused, "unscheduled", state.Unscheduled())
	return nil
}

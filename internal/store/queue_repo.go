// Package store provides the QueueRepo and SchedulerStateRepo interfaces for
// restart-safe publishing.
package store

import (
	"time"

	"github.com/picstream/photogate/internal/models"
)

// QueueEntry is one durable publish queue item. Entries are strictly FIFO;
// the persisted order equals the logical order across restarts.
type QueueEntry struct {
	ID         string    `json:"id"`
	MediaRef   string    `json:"media_ref"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueRepo defines the interface for the durable publish queue.
type QueueRepo interface {
	// Enqueue appends a media reference to the tail and returns the entry ID.
	Enqueue(mediaRef string) (string, error)

	// PopHead removes and returns the head entry, or nil if the queue is
	// empty. The removal is committed before the entry is returned.
	PopHead() (*QueueEntry, error)

	// PushHead re-inserts an entry at the head of the queue. Used to retry a
	// failed publish without losing its FIFO position.
	PushHead(entry QueueEntry) error

	// QueueLength returns the number of queued entries.
	QueueLength() (int, error)

	// ListQueue returns all entries in FIFO order.
	ListQueue() ([]QueueEntry, error)
}

// SchedulerStateRepo persists the publish scheduler state so pauses and the
// next send time survive restarts.
type SchedulerStateRepo interface {
	// LoadSchedulerState returns the persisted state. A store that has never
	// saved state returns the zero value (running, unscheduled).
	LoadSchedulerState() (models.SchedulerState, error)

	// SaveSchedulerState replaces the persisted state.
	SaveSchedulerState(state models.SchedulerState) error
}

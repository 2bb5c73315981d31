// Package store provides the HashRepo interface for the perceptual dedup index.
package store

import (
	"time"
)

// HashRecord maps a perceptual hash to the message that first introduced it.
// Write-once: the first writer wins and later inserts of the same hash are
// no-ops, never overwrites.
type HashRecord struct {
	Hash            string    `json:"hash"`
	OriginMessageID int       `json:"origin_message_id"`
	OriginChatID    int64     `json:"origin_chat_id"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
}

// HashRepo defines the interface for the durable dedup index.
type HashRepo interface {
	// Exists checks whether a hash is already recorded.
	Exists(hash string) (bool, error)

	// LookupOrigin returns the record for a hash, or nil if absent.
	LookupOrigin(hash string) (*HashRecord, error)

	// InsertIfAbsent records a hash. Returns true iff this call performed
	// the insert; a concurrent insert of the same hash loses silently and
	// gets false. The stored origin is never overwritten.
	InsertIfAbsent(rec HashRecord) (bool, error)

	// AllHashes returns every recorded hash, oldest first. Used by the
	// distance-threshold matcher; volume is tens of images per hour, so a
	// full scan is acceptable.
	AllHashes() ([]HashRecord, error)
}

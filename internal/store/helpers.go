package store

import (
	"database/sql"
	"fmt"
)

// scanHashRecord scans a HashRecord from sql.Rows.
func scanHashRecord(rows *sql.Rows) (HashRecord, error) {
	var rec HashRecord
	err := rows.Scan(&rec.Hash, &rec.OriginMessageID, &rec.OriginChatID, &rec.FirstSeenAt)
	if err != nil {
		return rec, fmt.Errorf("scan hash record failed: %w", err)
	}
	return rec, nil
}

// scanQueueEntry scans a QueueEntry from sql.Rows.
func scanQueueEntry(rows *sql.Rows) (QueueEntry, error) {
	var entry QueueEntry
	err := rows.Scan(&entry.ID, &entry.MediaRef, &entry.EnqueuedAt)
	if err != nil {
		return entry, fmt.Errorf("scan queue entry failed: %w", err)
	}
	return entry, nil
}

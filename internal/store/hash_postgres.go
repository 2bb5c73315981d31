package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Compile-time check that PostgresStore implements HashRepo.
var _ HashRepo = (*PostgresStore)(nil)

func (s *PostgresStore) Exists(hash string) (bool, error) {
	var h string
	err := s.db.QueryRow(`SELECT hash FROM photo_hashes WHERE hash = $1`, hash).Scan(&h)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hash exists check failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) LookupOrigin(hash string) (*HashRecord, error) {
	var rec HashRecord
	err := s.db.QueryRow(
		`SELECT hash, origin_message_id, origin_chat_id, first_seen_at FROM photo_hashes WHERE hash = $1`,
		hash,
	).Scan(&rec.Hash, &rec.OriginMessageID, &rec.OriginChatID, &rec.FirstSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hash lookup failed: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) InsertIfAbsent(rec HashRecord) (bool, error) {
	// ON CONFLICT DO NOTHING swallows the constraint violation for the losing
	// writer; RowsAffected tells winner from loser.
	result, err := s.db.Exec(
		`INSERT INTO photo_hashes (hash, origin_message_id, origin_chat_id, first_seen_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (hash) DO NOTHING`,
		rec.Hash, rec.OriginMessageID, rec.OriginChatID, rec.FirstSeenAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert hash failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert hash rows affected failed: %w", err)
	}
	inserted := n > 0
	slog.Debug("PostgresStore.InsertIfAbsent", "hash", rec.Hash, "inserted", inserted, "originMessageID", rec.OriginMessageID)
	return inserted, nil
}

func (s *PostgresStore) AllHashes() ([]HashRecord, error) {
	rows, err := s.db.Query(
		`SELECT hash, origin_message_id, origin_chat_id, first_seen_at FROM photo_hashes ORDER BY first_seen_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list hashes failed: %w", err)
	}
	defer rows.Close()

	var records []HashRecord
	for rows.Next() {
		rec, err := scanHashRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list hashes iteration failed: %w", err)
	}
	return records, nil
}

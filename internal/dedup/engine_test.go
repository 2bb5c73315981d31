package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/picstream/photogate/internal/hashing"
	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/store"
)

// memHashRepo is an in-memory HashRepo for engine tests.
type memHashRepo struct {
	mu      sync.Mutex
	records map[string]store.HashRecord
	failAll bool
}

func newMemHashRepo() *memHashRepo {
	return &memHashRepo{records: make(map[string]store.HashRecord)}
}

func (r *memHashRepo) Exists(hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return false, errors.New("mock repo failure")
	}
	_, ok := r.records[hash]
	return ok, nil
}

func (r *memHashRepo) LookupOrigin(hash string) (*store.HashRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("mock repo failure")
	}
	rec, ok := r.records[hash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memHashRepo) InsertIfAbsent(record store.HashRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return false, errors.New("mock repo failure")
	}
	if _, ok := r.records[record.Hash]; ok {
		return false, nil
	}
	r.records[record.Hash] = record
	return true, nil
}

func (r *memHashRepo) AllHashes() ([]store.HashRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("mock repo failure")
	}
	var all []store.HashRecord
	for _, rec := range r.records {
		all = append(all, rec)
	}
	return all, nil
}

// byteDownloader returns the media reference itself as image bytes.
type byteDownloader struct {
	err error
}

func (d *byteDownloader) Download(_ context.Context, mediaRef string) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []byte(mediaRef), nil
}

// contentHasher hashes bytes to a stable hex string, so two events with the
// same media reference collide exactly like two identical photos.
type contentHasher struct {
	err error
}

func (h *contentHasher) Hash(data []byte) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	var sum uint64
	for _, b := range data {
		sum = sum*31 + uint64(b)
	}
	return fmt.Sprintf("%016x", sum), nil
}

func photoEvent(messageID int) models.PhotoEvent {
	return models.PhotoEvent{
		SenderID:   42,
		MessageID:  messageID,
		ChatID:     -100,
		ReceivedAt: time.Now(),
		MediaRef:   "photo-a",
	}
}

func newTestEngine(repo store.HashRepo, dl Downloader, h hashing.Hasher) *Engine {
	matcher, _ := hashing.NewMatcher(hashing.StrategyExact, 0)
	return NewEngine(repo, h, matcher, dl)
}

func TestProcessAcceptsFirstSighting(t *testing.T) {
	repo := newMemHashRepo()
	engine := newTestEngine(repo, &byteDownloader{}, &contentHasher{})

	verdict := engine.Process(context.Background(), photoEvent(10))
	if verdict.Status != models.DedupAccepted {
		t.Fatalf("status = %v, want DedupAccepted", verdict.Status)
	}
	if verdict.Hash == "" {
		t.Error("accepted verdict missing hash")
	}

	rec, err := repo.LookupOrigin(verdict.Hash)
	if err != nil || rec == nil {
		t.Fatalf("accepted hash not recorded: %v", err)
	}
	if rec.OriginMessageID != 10 {
		t.Errorf("origin message = %d, want 10", rec.OriginMessageID)
	}
}

func TestProcessRejectsDuplicate(t *testing.T) {
	repo := newMemHashRepo()
	engine := newTestEngine(repo, &byteDownloader{}, &contentHasher{})

	if v := engine.Process(context.Background(), photoEvent(10)); v.Status != models.DedupAccepted {
		t.Fatalf("first photo: status = %v, want DedupAccepted", v.Status)
	}

	verdict := engine.Process(context.Background(), photoEvent(20))
	if verdict.Status != models.DedupRejected {
		t.Fatalf("second photo: status = %v, want DedupRejected", verdict.Status)
	}
	if verdict.OriginMessageID != 10 {
		t.Errorf("origin message = %d, want 10", verdict.OriginMessageID)
	}
	if verdict.OriginChatID != -100 {
		t.Errorf("origin chat = %d, want -100", verdict.OriginChatID)
	}
}

func TestProcessSkipsOnDownloadFailure(t *testing.T) {
	repo := newMemHashRepo()
	engine := newTestEngine(repo, &byteDownloader{err: errors.New("file expired")}, &contentHasher{})

	verdict := engine.Process(context.Background(), photoEvent(10))
	if verdict.Status != models.DedupSkipped {
		t.Fatalf("status = %v, want DedupSkipped", verdict.Status)
	}

	// Fail open means fail unrecorded: nothing must land in the index.
	all, _ := repo.AllHashes()
	if len(all) != 0 {
		t.Errorf("skipped photo recorded %d hashes, want 0", len(all))
	}
}

func TestProcessSkipsOnHashFailure(t *testing.T) {
	repo := newMemHashRepo()
	engine := newTestEngine(repo, &byteDownloader{}, &contentHasher{err: models.ErrUndecodableImage})

	verdict := engine.Process(context.Background(), photoEvent(10))
	if verdict.Status != models.DedupSkipped {
		t.Errorf("status = %v, want DedupSkipped", verdict.Status)
	}
}

func TestProcessSkipsOnRepoFailure(t *testing.T) {
	repo := newMemHashRepo()
	repo.failAll = true
	engine := newTestEngine(repo, &byteDownloader{}, &contentHasher{})

	verdict := engine.Process(context.Background(), photoEvent(10))
	if verdict.Status != models.DedupSkipped {
		t.Errorf("status = %v, want DedupSkipped", verdict.Status)
	}
}

// raceRepo reports no match but refuses the insert, simulating a concurrent
// identical photo winning the index race.
type raceRepo struct {
	*memHashRepo
	winner store.HashRecord
}

func (r *raceRepo) LookupOrigin(hash string) (*store.HashRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[hash]; !ok {
		return nil, nil
	}
	rec := r.winner
	return &rec, nil
}

func (r *raceRepo) InsertIfAbsent(record store.HashRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// The concurrent winner lands between the match check and this insert.
	r.records[record.Hash] = r.winner
	return false, nil
}

func TestProcessLostInsertRace(t *testing.T) {
	repo := &raceRepo{
		memHashRepo: newMemHashRepo(),
		winner:      store.HashRecord{OriginMessageID: 7, OriginChatID: -100},
	}
	engine := newTestEngine(repo, &byteDownloader{}, &contentHasher{})

	verdict := engine.Process(context.Background(), photoEvent(20))
	if verdict.Status != models.DedupRejected {
		t.Fatalf("status = %v, want DedupRejected", verdict.Status)
	}
	if verdict.OriginMessageID != 7 {
		t.Errorf("origin message = %d, want the race winner 7", verdict.OriginMessageID)
	}
}

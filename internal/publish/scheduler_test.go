package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/store"
	"github.com/picstream/photogate/internal/util"
)

// memQueue is an in-memory QueueRepo plus SchedulerStateRepo for tests.
type memQueue struct {
	mu      sync.Mutex
	entries []store.QueueEntry
	state   models.SchedulerState
}

func (q *memQueue) Enqueue(mediaRef string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if mediaRef == "" {
		return "", models.ErrEmptyMediaRef
	}
	id := util.GenerateQueueEntryID()
	q.entries = append(q.entries, store.QueueEntry{ID: id, MediaRef: mediaRef, EnqueuedAt: time.Now()})
	return id, nil
}

func (q *memQueue) PopHead() (*store.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, nil
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return &head, nil
}

func (q *memQueue) PushHead(entry store.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]store.QueueEntry{entry}, q.entries...)
	return nil
}

func (q *memQueue) QueueLength() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

func (q *memQueue) ListQueue() ([]store.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]store.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out, nil
}

func (q *memQueue) LoadSchedulerState() (models.SchedulerState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state, nil
}

func (q *memQueue) SaveSchedulerState(state models.SchedulerState) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = state
	return nil
}

// publishRecorder records publish attempts and can be told to fail.
type publishRecorder struct {
	mu       sync.Mutex
	sent     []string
	failNext int
	notify   chan string
}

func newPublishRecorder() *publishRecorder {
	return &publishRecorder{notify: make(chan string, 16)}
}

func (r *publishRecorder) publish(_ context.Context, mediaRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return errors.New("send failed")
	}
	r.sent = append(r.sent, mediaRef)
	r.notify <- mediaRef
	return nil
}

func (r *publishRecorder) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestPublishNowSendsHead(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	if _, err := s.Enqueue("photo-a"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := s.Enqueue("photo-b"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := s.PublishNow(); err != nil {
		t.Fatalf("publish now failed: %v", err)
	}

	select {
	case ref := <-rec.notify:
		if ref != "photo-a" {
			t.Errorf("published %q, want photo-a", ref)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}

	length, _ := q.QueueLength()
	if length != 1 {
		t.Errorf("queue length = %d, want 1", length)
	}
}

func TestPublishNowEmptyQueue(t *testing.T) {
	q := &memQueue{}
	s := NewScheduler(q, q, newPublishRecorder().publish, time.Hour)
	defer s.Stop()

	if err := s.PublishNow(); !errors.Is(err, models.ErrEmptyQueue) {
		t.Errorf("got %v, want ErrEmptyQueue", err)
	}
}

func TestPublishNowWhilePaused(t *testing.T) {
	q := &memQueue{}
	s := NewScheduler(q, q, newPublishRecorder().publish, time.Hour)
	defer s.Stop()

	s.Enqueue("photo-a")
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := s.PublishNow(); !errors.Is(err, models.ErrSchedulerPaused) {
		t.Errorf("got %v, want ErrSchedulerPaused", err)
	}
}

func TestFailedPublishRequeuesAtHead(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	rec.failNext = 1
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	s.Enqueue("photo-a")
	s.Enqueue("photo-b")
	before, _ := q.LoadSchedulerState()

	if err := s.PublishNow(); err != nil {
		t.Fatalf("publish now failed: %v", err)
	}

	entries, _ := q.ListQueue()
	if len(entries) != 2 {
		t.Fatalf("queue length after failed send = %d, want 2", len(entries))
	}
	if entries[0].MediaRef != "photo-a" || entries[1].MediaRef != "photo-b" {
		t.Errorf("order after failed send = [%s, %s], want [photo-a, photo-b]", entries[0].MediaRef, entries[1].MediaRef)
	}

	// A failed attempt must not advance the persisted next send time.
	after, _ := q.LoadSchedulerState()
	if !after.NextSendAt.Equal(before.NextSendAt) {
		t.Errorf("next send advanced on failure: %v -> %v", before.NextSendAt, after.NextSendAt)
	}
	if rec.sentCount() != 0 {
		t.Errorf("sent %d items, want 0", rec.sentCount())
	}
}

func TestPauseSuppressesTimer(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, 30*time.Millisecond)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Enqueue("photo-a")
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	select {
	case ref := <-rec.notify:
		t.Errorf("paused scheduler published %q", ref)
	case <-time.After(120 * time.Millisecond):
	}

	state, length := s.Status()
	if !state.IsPaused {
		t.Error("status should report paused")
	}
	if length != 1 {
		t.Errorf("queue length = %d, want 1", length)
	}
}

func TestResumeSendsImmediately(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Pause()
	s.Enqueue("photo-a")

	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	select {
	case ref := <-rec.notify:
		if ref != "photo-a" {
			t.Errorf("published %q, want photo-a", ref)
		}
	case <-time.After(time.Second):
		t.Fatal("resume did not trigger a send")
	}

	state, _ := s.Status()
	if state.IsPaused {
		t.Error("status should report running after resume")
	}
	if state.Unscheduled() {
		t.Error("next send time should be armed after a successful send")
	}
}

func TestResumeIdempotent(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	s.Enqueue("photo-a")
	// Resume on a running scheduler is a no-op, not a send.
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	select {
	case ref := <-rec.notify:
		t.Errorf("resume of a running scheduler published %q", ref)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestEmptyQueueTickUnschedules(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Pause()
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	state, _ := s.Status()
	if !state.Unscheduled() {
		t.Errorf("next send = %v after empty tick, want unscheduled", state.NextSendAt)
	}

	// The next enqueue re-arms scheduling.
	s.Enqueue("photo-a")
	state, _ = s.Status()
	if state.Unscheduled() {
		t.Error("enqueue on an unscheduled scheduler should arm a next send time")
	}
}

func TestStartRecoversPersistedSchedule(t *testing.T) {
	q := &memQueue{}
	q.state = models.SchedulerState{NextSendAt: time.Now().Add(-time.Minute)}
	q.Enqueue("photo-a")

	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	// An overdue next send time fires right after start.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case ref := <-rec.notify:
		if ref != "photo-a" {
			t.Errorf("published %q, want photo-a", ref)
		}
	case <-time.After(time.Second):
		t.Fatal("overdue send never fired")
	}
}

func TestStartPausedStaysQuiet(t *testing.T) {
	q := &memQueue{}
	q.state = models.SchedulerState{IsPaused: true, NextSendAt: time.Now().Add(-time.Minute)}
	q.Enqueue("photo-a")

	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, time.Hour)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case ref := <-rec.notify:
		t.Errorf("paused scheduler published %q at start", ref)
	case <-time.After(120 * time.Millisecond):
	}
}

func TestEnqueueWhileUnscheduledArmsTimer(t *testing.T) {
	q := &memQueue{}
	rec := newPublishRecorder()
	s := NewScheduler(q, q, rec.publish, 30*time.Millisecond)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Empty queue at start leaves the scheduler unscheduled; the first
	// enqueue must get the item out one interval later without any override.
	s.Enqueue("photo-a")

	select {
	case ref := <-rec.notify:
		if ref != "photo-a" {
			t.Errorf("published %q, want photo-a", ref)
		}
	case <-time.After(time.Second):
		t.Fatal("enqueued item never published")
	}
}

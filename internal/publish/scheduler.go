// Package publish implements the durable publish queue scheduler.
//
// The scheduler republishes queued media references one at a time on an
// interval, with manual pause/resume/publish-now overrides. Queue contents
// and scheduler state live in the store, so pauses and the next send time
// survive restarts. Exactly one send attempt is in flight at any moment.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/store"
)

// DefaultInterval is the default spacing between scheduled publishes.
const DefaultInterval = time.Hour

// PublishFunc performs the actual outbound publish of a media reference.
type PublishFunc func(ctx context.Context, mediaRef string) error

// Scheduler owns the publish queue and scheduler state. All mutating
// operations are serialized by its mutex, so pop-and-persist and the
// pause/resume read-modify-write are atomic from the caller's point of view.
type Scheduler struct {
	mu        sync.Mutex
	queue     store.QueueRepo
	stateRepo store.SchedulerStateRepo
	publish   PublishFunc
	interval  time.Duration

	state   models.SchedulerState
	timer   *time.Timer
	sending bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a publish scheduler over the given repos.
func NewScheduler(queue store.QueueRepo, stateRepo store.SchedulerStateRepo, publish PublishFunc, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		queue:     queue,
		stateRepo: stateRepo,
		publish:   publish,
		interval:  interval,
	}
}

// Start loads the persisted state and arms the timer. A next send time in the
// past fires immediately; an unscheduled state with a non-empty queue is
// given a fresh interval rather than being published at boot.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	state, err := s.stateRepo.LoadSchedulerState()
	if err != nil {
		return fmt.Errorf("load scheduler state: %w", err)
	}
	s.state = state

	length, err := s.queue.QueueLength()
	if err != nil {
		return fmt.Errorf("load publish queue: %w", err)
	}
	slog.Info("Scheduler.Start: recovered persisted state", "paused", state.IsPaused, "unscheduled", state.Unscheduled(), "queueLength", length)

	if s.state.IsPaused {
		return nil
	}
	if s.state.Unscheduled() && length > 0 {
		s.state.NextSendAt = time.Now().Add(s.interval)
		s.persistLocked()
	}
	s.armLocked()
	return nil
}

// Stop cancels the interval timer and any in-flight send context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	if s.cancel != nil {
		s.cancel()
	}
}

// Enqueue appends a media reference to the durable queue. Allowed while
// paused or armed; if the scheduler is running but unscheduled (empty-queue
// sentinel), a fresh interval is armed so the new item goes out promptly.
func (s *Scheduler) Enqueue(mediaRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.queue.Enqueue(mediaRef)
	if err != nil {
		return "", err
	}
	if !s.state.IsPaused && s.state.Unscheduled() {
		s.state.NextSendAt = time.Now().Add(s.interval)
		s.persistLocked()
		s.armLocked()
	}
	return id, nil
}

// Pause stops scheduled publishing. Idempotent. The armed timer is cancelled
// so it cannot fire after the pause.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsPaused {
		return nil
	}
	s.stopTimerLocked()
	s.state.IsPaused = true
	s.persistLocked()
	slog.Info("Scheduler.Pause: publishing paused")
	return nil
}

// Resume restarts scheduled publishing, recomputes the next send time and
// immediately attempts one send before re-arming the interval timer.
// Idempotent.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if !s.state.IsPaused {
		s.mu.Unlock()
		return nil
	}
	s.state.IsPaused = false
	s.state.NextSendAt = time.Now().Add(s.interval)
	s.persistLocked()
	ctx := s.ctx
	s.mu.Unlock()

	slog.Info("Scheduler.Resume: publishing resumed")
	s.attemptSend(ctx)
	return nil
}

// PublishNow performs one send without waiting for the timer. Returns
// models.ErrSchedulerPaused while paused and models.ErrSendInFlight while a
// send is already running; neither produces a second attempt.
func (s *Scheduler) PublishNow() error {
	s.mu.Lock()
	if s.state.IsPaused {
		s.mu.Unlock()
		return models.ErrSchedulerPaused
	}
	if s.sending {
		s.mu.Unlock()
		return models.ErrSendInFlight
	}
	length, err := s.queue.QueueLength()
	if err == nil && length == 0 {
		s.mu.Unlock()
		return models.ErrEmptyQueue
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.attemptSend(ctx)
	return nil
}

// Status returns a point-in-time snapshot of the scheduler.
func (s *Scheduler) Status() (models.SchedulerState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	length, err := s.queue.QueueLength()
	if err != nil {
		slog.Error("Scheduler.Status: queue length failed", "error", err)
	}
	return s.state, length
}

// attemptSend pops the queue head and publishes it. On success the next send
// time advances by one interval. On failure the item goes back to the head of
// the queue, the next send time is not advanced, and a retry tick is armed
// one interval out. An empty queue clears the next send time to the
// unscheduled sentinel instead of advancing it.
func (s *Scheduler) attemptSend(ctx context.Context) {
	s.mu.Lock()
	if s.state.IsPaused || s.sending {
		s.mu.Unlock()
		return
	}
	s.sending = true

	entry, err := s.queue.PopHead()
	if err != nil {
		slog.Error("Scheduler.attemptSend: queue pop failed", "error", err)
		s.sending = false
		s.armAfterLocked(s.interval)
		s.mu.Unlock()
		return
	}
	if entry == nil {
		s.state.NextSendAt = time.Time{}
		s.persistLocked()
		s.stopTimerLocked()
		s.sending = false
		s.mu.Unlock()
		slog.Debug("Scheduler.attemptSend: queue empty, unscheduled")
		return
	}
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	err = s.publish(ctx, entry.MediaRef)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false

	if err != nil {
		slog.Error("Scheduler.attemptSend: publish failed, requeueing at head", "error", err, "mediaRef", entry.MediaRef)
		if pushErr := s.queue.PushHead(*entry); pushErr != nil {
			// The item is out of the durable queue and the re-insert failed;
			// this is the one path that can lose an entry, so shout.
			slog.Error("Scheduler.attemptSend: head requeue failed, entry dropped", "error", pushErr, "id", entry.ID, "mediaRef", entry.MediaRef)
		}
		// NextSendAt stays where it was; the retry tick comes one interval out.
		s.armAfterLocked(s.interval)
		return
	}

	slog.Info("Scheduler.attemptSend: published", "id", entry.ID, "mediaRef", entry.MediaRef)
	s.state.NextSendAt = time.Now().Add(s.interval)
	s.persistLocked()
	s.armLocked()
}

// armLocked arms the timer for the persisted next send time. No-op when
// paused or unscheduled. A past due time fires immediately. Caller holds the lock.
func (s *Scheduler) armLocked() {
	if s.state.IsPaused || s.state.Unscheduled() {
		return
	}
	s.armAfterLocked(time.Until(s.state.NextSendAt))
}

// armAfterLocked arms the timer after the given delay, replacing any pending
// timer. Caller holds the lock.
func (s *Scheduler) armAfterLocked(delay time.Duration) {
	s.stopTimerLocked()
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.attemptSend(ctx)
	})
}

// stopTimerLocked cancels the pending timer if any. Caller holds the lock.
func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// persistLocked saves the scheduler state, logging rather than failing on
// storage errors so a broken disk cannot take down publishing entirely.
// Caller holds the lock.
func (s *Scheduler) persistLocked() {
	if err := s.stateRepo.SaveSchedulerState(s.state); err != nil {
		slog.Error("Scheduler.persistLocked: save failed", "error", err)
	}
}

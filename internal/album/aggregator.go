// Package album groups multi-photo posts before processing.
//
// The chat platform delivers the photos of one album as separate events. The
// aggregator collects events sharing an album ID and flushes them as one
// batch after a fixed quiet period measured from the first photo. The timer
// is deliberately not reset by later arrivals: that bounds worst-case flush
// latency to the debounce duration regardless of how spread out the batch is.
package album

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/picstream/photogate/internal/models"
)

// DefaultDebounce is the quiet period from the first photo of an album.
const DefaultDebounce = 3 * time.Second

// closedTTL is how long a closed album ID is remembered so late stragglers
// are recognized and dropped instead of reopening the group.
const closedTTL = time.Hour

// FlushFunc receives one consolidated batch per album, sorted by message ID.
type FlushFunc func(albumID string, events []models.PhotoEvent)

// group is the per-album collecting state. A group is created on the first
// photo of a new album ID and destroyed exactly once when its timer fires.
type group struct {
	events      []models.PhotoEvent
	timer       *time.Timer
	firstSeenAt time.Time
}

// Aggregator batches photo events by album ID. Safe for concurrent use; the
// map mutex serializes event arrival against timer fires for the same album,
// so an event landing exactly as the timer fires cannot race the flush.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	flush    FlushFunc
	groups   map[string]*group
	closed   map[string]time.Time
	stopped  bool
}

// NewAggregator creates an aggregator that calls flush once per album batch.
func NewAggregator(debounce time.Duration, flush FlushFunc) *Aggregator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Aggregator{
		debounce: debounce,
		flush:    flush,
		groups:   make(map[string]*group),
		closed:   make(map[string]time.Time),
	}
}

// Add routes one photo event into its album group. The first event of a new
// album arms the debounce timer; later events only append. Events for an
// already-closed album are dropped and logged, since reopening a closed album
// risks double-processing.
func (a *Aggregator) Add(event models.PhotoEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		slog.Warn("Aggregator.Add: dropping event, aggregator stopped", "albumID", event.AlbumID, "messageID", event.MessageID)
		return
	}

	a.pruneClosed(time.Now())

	if _, wasClosed := a.closed[event.AlbumID]; wasClosed {
		slog.Warn("Aggregator.Add: dropping straggler for closed album", "albumID", event.AlbumID, "messageID", event.MessageID)
		return
	}

	g := a.groups[event.AlbumID]
	if g == nil {
		albumID := event.AlbumID
		g = &group{firstSeenAt: time.Now()}
		g.timer = time.AfterFunc(a.debounce, func() {
			a.fire(albumID)
		})
		a.groups[albumID] = g
		slog.Debug("Aggregator.Add: new album group", "albumID", albumID, "debounce", a.debounce)
	}
	g.events = append(g.events, event)
}

// fire flushes a group when its debounce timer expires. A fire for a group
// that is already gone (stopped, or flushed by Stop) is a no-op.
func (a *Aggregator) fire(albumID string) {
	a.mu.Lock()
	g := a.groups[albumID]
	if g == nil {
		a.mu.Unlock()
		return
	}
	delete(a.groups, albumID)
	a.closed[albumID] = time.Now()
	events := g.events
	a.mu.Unlock()

	// Platform delivery order is not guaranteed to match message ID order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].MessageID < events[j].MessageID
	})

	slog.Debug("Aggregator.fire: flushing album", "albumID", albumID, "count", len(events))
	a.flush(albumID, events)
}

// ActiveCount returns the number of albums currently collecting.
func (a *Aggregator) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop cancels all pending timers and drops unflushed groups. Timers that
// already fired expire as no-ops against the cleared map.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	for albumID, g := range a.groups {
		g.timer.Stop()
		slog.Debug("Aggregator.Stop: dropping unflushed album", "albumID", albumID, "count", len(g.events))
	}
	a.groups = make(map[string]*group)
}

// pruneClosed forgets closed album IDs past the TTL. Called with the lock held.
func (a *Aggregator) pruneClosed(now time.Time) {
	horizon := now.Add(-closedTTL)
	for id, closedAt := range a.closed {
		if closedAt.Before(horizon) {
			delete(a.closed, id)
		}
	}
}

// Package flood implements sliding-window rate classification for photo events.
//
// The guard keeps one timestamp window per sender and one counter per album.
// Classification never touches chat state; it only returns a verdict and the
// Coordinator decides whether a warning message goes out.
package flood

import (
	"log/slog"
	"sync"
	"time"

	"github.com/picstream/photogate/internal/models"
)

// Default thresholds, matching the observed production values.
const (
	DefaultWindow          = 10 * time.Second
	DefaultSenderThreshold = 3
	DefaultAlbumThreshold  = 2
	DefaultRetention       = time.Hour
)

// Config holds Flood Guard tuning parameters.
type Config struct {
	// Window is the sliding window duration W.
	Window time.Duration
	// SenderThreshold flags a sender once their in-window count reaches it.
	SenderThreshold int
	// AlbumThreshold flags an album once its photo count exceeds it.
	AlbumThreshold int
	// WarnCooldown, when non-zero, overrides the one-warning-per-window
	// debounce with a fixed cooldown before the next warning is allowed.
	WarnCooldown time.Duration
	// Retention is how long idle sender and album state is kept before GC.
	Retention time.Duration
	// Clock supplies the current time; defaults to time.Now.
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.SenderThreshold <= 0 {
		c.SenderThreshold = DefaultSenderThreshold
	}
	if c.AlbumThreshold <= 0 {
		c.AlbumThreshold = DefaultAlbumThreshold
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// senderWindow is the per-sender sliding window state.
type senderWindow struct {
	times       []time.Time
	warnedUntil time.Time
	lastSeen    time.Time
}

// albumCounter is the per-album counter. The warned flag is one-shot: an
// album is warned at most once in its lifetime.
type albumCounter struct {
	count    int
	warned   bool
	lastSeen time.Time
}

// Guard classifies photo events as allowed or flagged. Safe for concurrent use.
type Guard struct {
	mu      sync.Mutex
	cfg     Config
	senders map[int64]*senderWindow
	albums  map[string]*albumCounter
}

// NewGuard creates a Flood Guard with the given configuration.
func NewGuard(cfg Config) *Guard {
	cfg.applyDefaults()
	return &Guard{
		cfg:     cfg,
		senders: make(map[int64]*senderWindow),
		albums:  make(map[string]*albumCounter),
	}
}

// RecordSender records one photo from a sender and classifies it. The window
// is pruned lazily on every call; entries older than W are dropped before the
// new timestamp is appended.
func (g *Guard) RecordSender(senderID int64) models.FloodVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.cfg.Clock()
	g.sweep(now)

	w := g.senders[senderID]
	if w == nil {
		w = &senderWindow{}
		g.senders[senderID] = w
	}
	w.lastSeen = now

	cutoff := now.Add(-g.cfg.Window)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = append(kept, now)

	if len(w.times) < g.cfg.SenderThreshold {
		return models.FloodAllowed
	}

	if now.Before(w.warnedUntil) {
		return models.FloodFlaggedQuiet
	}

	if g.cfg.WarnCooldown > 0 {
		w.warnedUntil = now.Add(g.cfg.WarnCooldown)
	} else {
		// One warning per window: suppress until the window naturally clears.
		w.warnedUntil = now.Add(g.cfg.Window)
	}
	slog.Debug("Guard.RecordSender: sender flagged", "senderID", senderID, "count", len(w.times), "warnedUntil", w.warnedUntil)
	return models.FloodFlagged
}

// RecordAlbum records one photo of an album and classifies it. The first
// classification past the threshold is Flagged; all later ones are quiet
// because the warned flag is never reset.
func (g *Guard) RecordAlbum(albumID string) models.FloodVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.cfg.Clock()
	g.sweep(now)

	a := g.albums[albumID]
	if a == nil {
		a = &albumCounter{}
		g.albums[albumID] = a
	}
	a.count++
	a.lastSeen = now

	if a.count <= g.cfg.AlbumThreshold {
		return models.FloodAllowed
	}
	if a.warned {
		return models.FloodFlaggedQuiet
	}
	a.warned = true
	slog.Debug("Guard.RecordAlbum: album flagged", "albumID", albumID, "count", a.count)
	return models.FloodFlagged
}

// sweep garbage-collects sender and album state idle past the retention
// horizon. Called with the guard lock held.
func (g *Guard) sweep(now time.Time) {
	horizon := now.Add(-g.cfg.Retention)
	for id, w := range g.senders {
		if w.lastSeen.Before(horizon) {
			delete(g.senders, id)
		}
	}
	for id, a := range g.albums {
		if a.lastSeen.Before(horizon) {
			delete(g.albums, id)
		}
	}
}

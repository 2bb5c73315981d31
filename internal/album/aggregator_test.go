package album

import (
	"testing"
	"time"

	"github.com/picstream/photogate/internal/models"
)

type flushRecorder struct {
	batches chan []models.PhotoEvent
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{batches: make(chan []models.PhotoEvent, 4)}
}

func (r *flushRecorder) flush(albumID string, events []models.PhotoEvent) {
	r.batches <- events
}

func albumEvent(albumID string, messageID int) models.PhotoEvent {
	return models.PhotoEvent{
		SenderID:   42,
		MessageID:  messageID,
		ChatID:     -100,
		AlbumID:    albumID,
		ReceivedAt: time.Now(),
		MediaRef:   "file-ref",
	}
}

func TestAggregatorFlushesSorted(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAggregator(60*time.Millisecond, rec.flush)
	defer agg.Stop()

	// Out-of-order delivery: the batch still flushes sorted by message ID.
	agg.Add(albumEvent("alb1", 5))
	agg.Add(albumEvent("alb1", 3))
	agg.Add(albumEvent("alb1", 4))

	select {
	case events := <-rec.batches:
		if len(events) != 3 {
			t.Fatalf("flushed %d events, want 3", len(events))
		}
		for i, want := range []int{3, 4, 5} {
			if events[i].MessageID != want {
				t.Errorf("event %d messageID = %d, want %d", i, events[i].MessageID, want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("album never flushed")
	}
}

func TestAggregatorTimerNotReset(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAggregator(80*time.Millisecond, rec.flush)
	defer agg.Stop()

	start := time.Now()
	agg.Add(albumEvent("alb1", 1))
	time.Sleep(50 * time.Millisecond)
	// A late arrival must not push the flush out another debounce period.
	agg.Add(albumEvent("alb1", 2))

	select {
	case events := <-rec.batches:
		elapsed := time.Since(start)
		if len(events) != 2 {
			t.Fatalf("flushed %d events, want 2", len(events))
		}
		if elapsed >= 140*time.Millisecond {
			t.Errorf("flush took %v, timer was reset by the second event", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("album never flushed")
	}
}

func TestAggregatorDropsStragglers(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAggregator(40*time.Millisecond, rec.flush)
	defer agg.Stop()

	agg.Add(albumEvent("alb1", 1))

	select {
	case <-rec.batches:
	case <-time.After(2 * time.Second):
		t.Fatal("album never flushed")
	}

	// A straggler for the closed album must not reopen the group.
	agg.Add(albumEvent("alb1", 2))
	if n := agg.ActiveCount(); n != 0 {
		t.Errorf("active count = %d after straggler, want 0", n)
	}
	select {
	case events := <-rec.batches:
		t.Errorf("straggler produced a second flush: %v", events)
	case <-time.After(120 * time.Millisecond):
	}
}

func TestAggregatorIndependentAlbums(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAggregator(40*time.Millisecond, rec.flush)
	defer agg.Stop()

	agg.Add(albumEvent("alb1", 1))
	agg.Add(albumEvent("alb2", 2))

	if n := agg.ActiveCount(); n != 2 {
		t.Errorf("active count = %d, want 2", n)
	}

	got := 0
	timeout := time.After(2 * time.Second)
	for got < 2 {
		select {
		case events := <-rec.batches:
			if len(events) != 1 {
				t.Errorf("flushed %d events, want 1", len(events))
			}
			got++
		case <-timeout:
			t.Fatalf("only %d of 2 albums flushed", got)
		}
	}
}

func TestAggregatorStopDropsPending(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAggregator(40*time.Millisecond, rec.flush)

	agg.Add(albumEvent("alb1", 1))
	agg.Stop()

	select {
	case events := <-rec.batches:
		t.Errorf("stopped aggregator flushed: %v", events)
	case <-time.After(120 * time.Millisecond):
	}

	// Events after Stop are dropped.
	agg.Add(albumEvent("alb2", 2))
	if n := agg.ActiveCount(); n != 0 {
		t.Errorf("active count = %d after stop, want 0", n)
	}
}

// Package pipeline wires the photo event pipeline together.
//
// The Coordinator routes each inbound photo event through the Flood Guard,
// the Album Aggregator and the Dedup Engine, and turns verdicts into ordered
// outbound chat actions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/picstream/photogate/internal/album"
	"github.com/picstream/photogate/internal/dedup"
	"github.com/picstream/photogate/internal/flood"
	"github.com/picstream/photogate/internal/messaging"
	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/publish"
)

// Config holds Coordinator routing parameters.
type Config struct {
	// AdminUserID is the exempt administrative identity; its events bypass
	// every subsystem untouched. Zero means no exemption.
	AdminUserID int64
	// SenderLimit and AlbumLimit only feed the warning texts; the actual
	// thresholds live in the Flood Guard.
	SenderLimit int
	AlbumLimit  int
}

// Coordinator routes photo events and emits outbound actions.
type Coordinator struct {
	cfg        Config
	guard      *flood.Guard
	aggregator *album.Aggregator
	engine     *dedup.Engine
	scheduler  *publish.Scheduler
	svc        messaging.Service
}

// NewCoordinator creates a Coordinator. The aggregator must be constructed by
// the caller with c.FlushAlbum as its flush callback (see NewPipeline in
// cmd/photogate for the wiring).
func NewCoordinator(cfg Config, guard *flood.Guard, engine *dedup.Engine, scheduler *publish.Scheduler, svc messaging.Service) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		guard:     guard,
		engine:    engine,
		scheduler: scheduler,
		svc:       svc,
	}
	return c
}

// SetAggregator attaches the album aggregator. Separate from the constructor
// because the aggregator's flush callback needs the Coordinator.
func (c *Coordinator) SetAggregator(a *album.Aggregator) {
	c.aggregator = a
}

// Run consumes inbound events until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("Coordinator.Run: pipeline started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Coordinator.Run: stopping")
			return
		case event, ok := <-c.svc.Events():
			if !ok {
				slog.Info("Coordinator.Run: event channel closed")
				return
			}
			c.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent routes one photo event. Exempt senders bypass everything.
// Flood classification always runs first; a flagged event still proceeds to
// aggregation and dedup, flagging only adds a side-channel warning. Singles
// skip the aggregator; album photos are batched and dedup-checked at flush.
func (c *Coordinator) HandleEvent(ctx context.Context, event models.PhotoEvent) {
	if c.cfg.AdminUserID != 0 && event.SenderID == c.cfg.AdminUserID {
		slog.Debug("Coordinator.HandleEvent: admin bypass", "messageID", event.MessageID)
		return
	}

	if event.IsAlbum() {
		if c.guard.RecordAlbum(event.AlbumID) == models.FloodFlagged {
			c.warn(ctx, event, fmt.Sprintf(
				"📸 This album has more than %d photos! Please check the rules in the pinned message.",
				c.albumLimit()))
		}
		c.aggregator.Add(event)
		return
	}

	if c.guard.RecordSender(event.SenderID) == models.FloodFlagged {
		c.warn(ctx, event, fmt.Sprintf(
			"📸 Please don't send more than %d photos in a row! Check the rules in the pinned message.",
			c.senderLimit()))
	}

	// Dedup involves download and storage I/O; run it off the event loop so
	// unrelated events are not blocked behind it.
	go func() {
		verdict := c.engine.Process(ctx, event)
		c.act(ctx, event, verdict, true)
	}()
}

// FlushAlbum receives one consolidated album batch from the aggregator,
// already sorted by message ID, and dedup-checks it photo by photo. One
// confirmation covers the whole batch.
func (c *Coordinator) FlushAlbum(albumID string, events []models.PhotoEvent) {
	ctx := context.Background()
	accepted := 0
	var last models.PhotoEvent
	for _, event := range events {
		verdict := c.engine.Process(ctx, event)
		c.act(ctx, event, verdict, false)
		if verdict.Status == models.DedupAccepted || verdict.Status == models.DedupSkipped {
			accepted++
			last = event
		}
	}
	if accepted > 0 {
		c.confirm(ctx, last, fmt.Sprintf("✅ Added %d photo(s) to the publish queue.", accepted))
	}
	slog.Debug("Coordinator.FlushAlbum: batch processed", "albumID", albumID, "total", len(events), "accepted", accepted)
}

// act maps one dedup verdict to its outbound action set. Rejected photos get
// warn-then-delete, strictly in that order; accepted (and skipped, which fail
// open) photos are enqueued for republishing.
func (c *Coordinator) act(ctx context.Context, event models.PhotoEvent, verdict models.DedupVerdict, confirmEach bool) {
	switch verdict.Status {
	case models.DedupRejected:
		actions := []models.Action{
			{
				Kind:    models.ActionSendText,
				ChatID:  event.ChatID,
				Text:    c.duplicateWarning(event, verdict),
				ReplyTo: event.MessageID,
			},
			{
				Kind:      models.ActionDeleteMessage,
				ChatID:    event.ChatID,
				MessageID: event.MessageID,
			},
		}
		if err := messaging.Execute(ctx, c.svc, actions); err != nil {
			if errors.Is(err, models.ErrMessageNotFound) {
				// The duplicate is already gone; nothing left to remove.
				slog.Debug("Coordinator.act: duplicate already deleted", "messageID", event.MessageID)
				return
			}
			slog.Error("Coordinator.act: duplicate handling failed", "error", err, "messageID", event.MessageID)
		}

	case models.DedupAccepted, models.DedupSkipped:
		if _, err := c.scheduler.Enqueue(event.MediaRef); err != nil {
			slog.Error("Coordinator.act: enqueue failed", "error", err, "messageID", event.MessageID)
			return
		}
		if confirmEach {
			c.confirm(ctx, event, "✅ Added to the publish queue.")
		}
	}
}

// warn sends a side-channel warning replying to the offending message.
// Warning failures never block the pipeline.
func (c *Coordinator) warn(ctx context.Context, event models.PhotoEvent, text string) {
	if err := c.svc.SendText(ctx, event.ChatID, text, event.MessageID); err != nil {
		slog.Error("Coordinator.warn: warning send failed", "error", err, "messageID", event.MessageID)
	}
}

// confirm sends an enqueue confirmation replying to the accepted message.
func (c *Coordinator) confirm(ctx context.Context, event models.PhotoEvent, text string) {
	if err := c.svc.SendText(ctx, event.ChatID, text, event.MessageID); err != nil {
		slog.Error("Coordinator.confirm: confirmation send failed", "error", err, "messageID", event.MessageID)
	}
}

// duplicateWarning builds the warning for a rejected photo, mentioning the
// sender and referencing the message that posted the photo first.
func (c *Coordinator) duplicateWarning(event models.PhotoEvent, verdict models.DedupVerdict) string {
	name := event.SenderName
	if name == "" {
		name = fmt.Sprintf("user %d", event.SenderID)
	}
	return fmt.Sprintf("⚠️ %s, this photo was already posted earlier (message %d)!", name, verdict.OriginMessageID)
}

func (c *Coordinator) senderLimit() int {
	if c.cfg.SenderLimit > 0 {
		return c.cfg.SenderLimit
	}
	return flood.DefaultSenderThreshold - 1
}

func (c *Coordinator) albumLimit() int {
	if c.cfg.AlbumLimit > 0 {
		return c.cfg.AlbumLimit
	}
	return flood.DefaultAlbumThreshold
}

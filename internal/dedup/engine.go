// Package dedup implements the perceptual duplicate check for photo events.
//
// The engine downloads the photo, hashes it, and consults the durable hash
// index. Failures lean open: a photo that cannot be downloaded, hashed or
// checked passes through unrecorded, because wrongly deleting original
// content is worse than admitting an occasional duplicate.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/picstream/photogate/internal/hashing"
	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/store"
)

// Downloader fetches image bytes for a media reference.
type Downloader interface {
	Download(ctx context.Context, mediaRef string) ([]byte, error)
}

// Engine decides accept/reject per photo.
type Engine struct {
	repo       store.HashRepo
	hasher     hashing.Hasher
	matcher    hashing.Matcher
	downloader Downloader
}

// NewEngine creates a dedup engine.
func NewEngine(repo store.HashRepo, hasher hashing.Hasher, matcher hashing.Matcher, downloader Downloader) *Engine {
	return &Engine{repo: repo, hasher: hasher, matcher: matcher, downloader: downloader}
}

// Process checks one photo event against the hash index. Verdicts:
// accepted (hash recorded, first sighting), rejected (a stored hash matched;
// the verdict names the origin message), or skipped (download/hash/storage
// failure, fail open).
func (e *Engine) Process(ctx context.Context, event models.PhotoEvent) models.DedupVerdict {
	data, err := e.downloader.Download(ctx, event.MediaRef)
	if err != nil {
		slog.Error("Engine.Process: download failed, passing photo through", "error", err, "messageID", event.MessageID, "mediaRef", event.MediaRef)
		return models.DedupVerdict{Status: models.DedupSkipped}
	}

	hash, err := e.hasher.Hash(data)
	if err != nil {
		slog.Error("Engine.Process: hashing failed, passing photo through", "error", err, "messageID", event.MessageID)
		return models.DedupVerdict{Status: models.DedupSkipped}
	}

	match, err := e.matcher.Match(hash, e.repo)
	if err != nil {
		slog.Error("Engine.Process: hash index unavailable, passing photo through", "error", err, "messageID", event.MessageID)
		return models.DedupVerdict{Status: models.DedupSkipped, Hash: hash}
	}
	if match != nil {
		slog.Info("Engine.Process: duplicate detected", "messageID", event.MessageID, "originMessageID", match.OriginMessageID, "hash", hash)
		return rejected(hash, match)
	}

	inserted, err := e.repo.InsertIfAbsent(store.HashRecord{
		Hash:            hash,
		OriginMessageID: event.MessageID,
		OriginChatID:    event.ChatID,
		FirstSeenAt:     time.Now(),
	})
	if err != nil {
		slog.Error("Engine.Process: hash insert failed, passing photo through", "error", err, "messageID", event.MessageID)
		return models.DedupVerdict{Status: models.DedupSkipped, Hash: hash}
	}
	if !inserted {
		// Lost an insert race: an identical hash landed between the match
		// check and the insert. The stored origin wins.
		origin, err := e.repo.LookupOrigin(hash)
		if err != nil || origin == nil {
			slog.Error("Engine.Process: lost insert race but origin unavailable, passing photo through", "error", err, "messageID", event.MessageID)
			return models.DedupVerdict{Status: models.DedupSkipped, Hash: hash}
		}
		return rejected(hash, origin)
	}

	slog.Debug("Engine.Process: photo accepted", "messageID", event.MessageID, "hash", hash)
	return models.DedupVerdict{Status: models.DedupAccepted, Hash: hash}
}

func rejected(hash string, origin *store.HashRecord) models.DedupVerdict {
	return models.DedupVerdict{
		Status:          models.DedupRejected,
		Hash:            hash,
		OriginMessageID: origin.OriginMessageID,
		OriginChatID:    origin.OriginChatID,
	}
}

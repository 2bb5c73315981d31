// Package messaging defines the chat-platform boundary for PhotoGate.
//
// The pipeline core never talks to a chat platform directly; it consumes
// inbound photo events and emits outbound actions through this interface so
// the platform client can be swapped or mocked.
package messaging

import (
	"context"

	"github.com/picstream/photogate/internal/models"
)

// Service defines a pluggable chat client abstraction. All methods that reach
// the platform take a context because they are latency-bearing network calls.
type Service interface {
	// SendText sends a text message to a chat, optionally replying to a
	// message (replyTo = 0 means no reply).
	SendText(ctx context.Context, chatID int64, text string, replyTo int) error

	// DeleteMessage removes a message from a chat. Returns
	// models.ErrMessageNotFound (possibly wrapped) when the message is gone.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// SendPhoto publishes a photo by media reference to a chat.
	SendPhoto(ctx context.Context, chatID int64, mediaRef string) error

	// Download fetches the image bytes behind a media reference.
	Download(ctx context.Context, mediaRef string) ([]byte, error)

	// Start begins background processing (e.g. update polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns the channel of inbound photo events.
	Events() <-chan models.PhotoEvent
}

// Execute runs an ordered action list against the service. Execution stops at
// the first failed action so a delete never happens when its warning failed.
func Execute(ctx context.Context, svc Service, actions []models.Action) error {
	for _, action := range actions {
		var err error
		switch action.Kind {
		case models.ActionSendText:
			err = svc.SendText(ctx, action.ChatID, action.Text, action.ReplyTo)
		case models.ActionDeleteMessage:
			err = svc.DeleteMessage(ctx, action.ChatID, action.MessageID)
		case models.ActionSendPhoto:
			err = svc.SendPhoto(ctx, action.ChatID, action.MediaRef)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

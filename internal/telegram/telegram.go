// Package telegram implements the chat-platform boundary on the Telegram Bot
// API using long polling.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/picstream/photogate/internal/models"
)

// defaultMediaMaxBytes is the default max download size (20MB, Telegram Bot API limit).
const defaultMediaMaxBytes int64 = 20 * 1024 * 1024

// eventBuffer bounds the inbound event channel so a slow pipeline applies
// backpressure to the polling loop instead of growing memory.
const eventBuffer = 64

// Config holds Telegram client configuration.
type Config struct {
	// Token is the bot token; required.
	Token string
	// ChatID restricts processing to one monitored conversation when set.
	ChatID int64
	// MediaMaxBytes caps photo downloads; defaults to the Bot API limit.
	MediaMaxBytes int64
}

// Client connects to Telegram and translates photo messages into PhotoEvents.
// It implements messaging.Service.
type Client struct {
	bot        *telego.Bot
	cfg        Config
	httpClient *http.Client
	events     chan models.PhotoEvent
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram client from config.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	if cfg.MediaMaxBytes == 0 {
		cfg.MediaMaxBytes = defaultMediaMaxBytes
	}
	return &Client{
		bot:        bot,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		events:     make(chan models.PhotoEvent, eventBuffer),
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	go func() {
		defer close(c.pollDone)
		for update := range updates {
			c.handleUpdate(update)
		}
		close(c.events)
	}()
	return nil
}

// Stop shuts down the polling loop and waits for it to exit.
func (c *Client) Stop() error {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		<-c.pollDone
	}
	slog.Info("telegram bot stopped")
	return nil
}

// Events returns the inbound photo event channel. Closed on shutdown.
func (c *Client) Events() <-chan models.PhotoEvent {
	return c.events
}

// handleUpdate converts a photo message update into a PhotoEvent.
func (c *Client) handleUpdate(update telego.Update) {
	msg := update.Message
	if msg == nil || len(msg.Photo) == 0 || msg.From == nil {
		return
	}
	if c.cfg.ChatID != 0 && msg.Chat.ID != c.cfg.ChatID {
		return
	}

	// Telegram delivers several resolutions per photo; the last is the largest.
	photo := msg.Photo[len(msg.Photo)-1]

	c.events <- models.PhotoEvent{
		SenderID:   msg.From.ID,
		SenderName: senderName(msg.From),
		MessageID:  msg.MessageID,
		ChatID:     msg.Chat.ID,
		AlbumID:    msg.MediaGroupID,
		ReceivedAt: time.Now(),
		MediaRef:   photo.FileID,
	}
}

// SendText sends a text message, optionally as a reply.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, replyTo int) error {
	params := &telego.SendMessageParams{
		ChatID: tu.ID(chatID),
		Text:   text,
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// DeleteMessage removes a message. A message that is already gone maps to
// models.ErrMessageNotFound so callers can fail open.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	if err != nil {
		if strings.Contains(err.Error(), "message to delete not found") {
			return fmt.Errorf("delete message %d: %w", messageID, models.ErrMessageNotFound)
		}
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

// SendPhoto republishes a photo by its file ID.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, mediaRef string) error {
	_, err := c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID: tu.ID(chatID),
		Photo:  telego.InputFile{FileID: mediaRef},
	})
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// Download fetches the image bytes behind a Telegram file ID.
func (c *Client) Download(ctx context.Context, mediaRef string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: mediaRef})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path for file_id %s", mediaRef)
	}
	if int64(file.FileSize) > c.cfg.MediaMaxBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, c.cfg.MediaMaxBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MediaMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > c.cfg.MediaMaxBytes {
		return nil, fmt.Errorf("file exceeds max size during download: %d bytes", len(data))
	}
	return data, nil
}

// senderName builds the display name used in warnings: @username when
// available, first name otherwise.
func senderName(user *telego.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	return user.FirstName
}

// Package models defines the core data structures for PhotoGate.
//
// It includes the inbound photo event, dedup verdicts, outbound chat actions,
// and the persisted scheduler state, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Error variables for better error handling and testability
var (
	ErrEmptyMediaRef    = errors.New("media ref cannot be empty")
	ErrSchedulerPaused  = errors.New("scheduler is paused")
	ErrSendInFlight     = errors.New("a send attempt is already in flight")
	ErrMessageNotFound  = errors.New("referenced message no longer exists")
	ErrEmptyQueue       = errors.New("publish queue is empty")
	ErrUndecodableImage = errors.New("image could not be decoded")
)

// PhotoEvent is a single inbound photo delivered by the chat platform.
// AlbumID is empty for standalone photos; for multi-photo posts the platform
// assigns the same AlbumID to every message of the group. Immutable once
// created; processed exactly once by the pipeline.
type PhotoEvent struct {
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	MessageID  int       `json:"message_id"`
	ChatID     int64     `json:"chat_id"`
	AlbumID    string    `json:"album_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	MediaRef   string    `json:"media_ref"`
}

// IsAlbum reports whether the event belongs to a multi-photo post.
func (e PhotoEvent) IsAlbum() bool {
	return e.AlbumID != ""
}

// FloodVerdict is the Flood Guard classification of an event.
type FloodVerdict string

const (
	// FloodAllowed means the event is within the sender's rate budget.
	FloodAllowed FloodVerdict = "allowed"
	// FloodFlagged means the event exceeded the budget and a warning is due.
	FloodFlagged FloodVerdict = "flagged"
	// FloodFlaggedQuiet means the event exceeded the budget but the sender
	// or album was already warned, so no further warning is sent.
	FloodFlaggedQuiet FloodVerdict = "flagged_quiet"
)

// DedupStatus is the Dedup Engine outcome for a single photo.
type DedupStatus string

const (
	DedupAccepted DedupStatus = "accepted"
	DedupRejected DedupStatus = "rejected"
	// DedupSkipped means hashing or storage failed and the photo passed
	// through without a dedup check (fail open).
	DedupSkipped DedupStatus = "skipped"
)

// DedupVerdict carries the outcome of a dedup check. For rejected photos it
// names the message that first introduced the matching hash.
type DedupVerdict struct {
	Status          DedupStatus `json:"status"`
	Hash            string      `json:"hash,omitempty"`
	OriginMessageID int         `json:"origin_message_id,omitempty"`
	OriginChatID    int64       `json:"origin_chat_id,omitempty"`
}

// ActionKind identifies an outbound chat action emitted by the Coordinator.
type ActionKind string

const (
	ActionSendText      ActionKind = "send_text"
	ActionDeleteMessage ActionKind = "delete_message"
	ActionSendPhoto     ActionKind = "send_photo"
)

// Action is one outbound instruction for the chat client. Actions emitted for
// a single event are ordered; the client must execute them in order (a
// duplicate is always warned about before it is deleted).
type Action struct {
	Kind      ActionKind `json:"kind"`
	ChatID    int64      `json:"chat_id"`
	Text      string     `json:"text,omitempty"`
	ReplyTo   int        `json:"reply_to,omitempty"`
	MessageID int        `json:"message_id,omitempty"`
	MediaRef  string     `json:"media_ref,omitempty"`
}

// SchedulerState is the persisted state of the publish scheduler. NextSendAt
// is the zero time when the scheduler is unscheduled (empty queue sentinel).
type SchedulerState struct {
	IsPaused   bool      `json:"is_paused"`
	NextSendAt time.Time `json:"next_send_at"`
}

// Unscheduled reports whether no send is currently scheduled.
func (s SchedulerState) Unscheduled() bool {
	return s.NextSendAt.IsZero()
}

// StatusResponse is the administrative status snapshot returned by the API.
type StatusResponse struct {
	Paused       bool       `json:"paused"`
	NextSendAt   *time.Time `json:"next_send_at,omitempty"`
	QueueLength  int        `json:"queue_length"`
	ActiveAlbums int        `json:"active_albums"`
}

// APIResponse is the standard envelope for administrative API responses.
type APIResponse struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Success creates a successful API response.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Error: message}
}

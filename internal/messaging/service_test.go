package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/picstream/photogate/internal/models"
)

// mockService records calls and fails on demand.
type mockService struct {
	mu         sync.Mutex
	calls      []string
	failSend   bool
	failDelete error
	events     chan models.PhotoEvent
}

func newMockService() *mockService {
	return &mockService{events: make(chan models.PhotoEvent)}
}

func (m *mockService) SendText(_ context.Context, chatID int64, text string, replyTo int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errors.New("mock send failure")
	}
	m.calls = append(m.calls, "send_text")
	return nil
}

func (m *mockService) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	m.calls = append(m.calls, "delete_message")
	return nil
}

func (m *mockService) SendPhoto(_ context.Context, chatID int64, mediaRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "send_photo")
	return nil
}

func (m *mockService) Download(_ context.Context, mediaRef string) ([]byte, error) {
	return []byte(mediaRef), nil
}

func (m *mockService) Start(_ context.Context) error { return nil }

func (m *mockService) Stop() error { return nil }

func (m *mockService) Events() <-chan models.PhotoEvent { return m.events }

func (m *mockService) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func TestExecuteRunsInOrder(t *testing.T) {
	svc := newMockService()
	actions := []models.Action{
		{Kind: models.ActionSendText, ChatID: -100, Text: "warning"},
		{Kind: models.ActionDeleteMessage, ChatID: -100, MessageID: 5},
		{Kind: models.ActionSendPhoto, ChatID: -100, MediaRef: "photo-a"},
	}

	if err := Execute(context.Background(), svc, actions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := svc.recorded()
	want := []string{"send_text", "delete_message", "send_photo"}
	if len(got) != len(want) {
		t.Fatalf("recorded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	svc := newMockService()
	svc.failSend = true
	actions := []models.Action{
		{Kind: models.ActionSendText, ChatID: -100, Text: "warning"},
		{Kind: models.ActionDeleteMessage, ChatID: -100, MessageID: 5},
	}

	if err := Execute(context.Background(), svc, actions); err == nil {
		t.Fatal("expected error from failed send")
	}
	// The delete must not run when its warning failed.
	if got := svc.recorded(); len(got) != 0 {
		t.Errorf("recorded %v, want no calls", got)
	}
}

func TestExecuteSurfacesDeleteError(t *testing.T) {
	svc := newMockService()
	svc.failDelete = models.ErrMessageNotFound
	actions := []models.Action{
		{Kind: models.ActionSendText, ChatID: -100, Text: "warning"},
		{Kind: models.ActionDeleteMessage, ChatID: -100, MessageID: 5},
	}

	err := Execute(context.Background(), svc, actions)
	if !errors.Is(err, models.ErrMessageNotFound) {
		t.Errorf("got %v, want ErrMessageNotFound", err)
	}
	got := svc.recorded()
	if len(got) != 1 || got[0] != "send_text" {
		t.Errorf("recorded %v, want [send_text]", got)
	}
}

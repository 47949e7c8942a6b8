package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"tutor-chat-service/internal/models"
	"tutor-chat-service/internal/repositories"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeTransport records outbound frames as decoded JSON objects.
type fakeTransport struct {
	mu     sync.Mutex
	frames []map[string]any
	fail   bool
	closed bool
}

func (f *fakeTransport) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errBrokenPipe
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		return err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Frames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.frames...)
}

func (f *fakeTransport) Types() []string {
	var types []string
	for _, frame := range f.Frames() {
		types = append(types, frame["type"].(string))
	}
	return types
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSessions map[int]models.ChatSession

func (s fakeSessions) GetChatSession(_ context.Context, sessionID int) (models.ChatSession, error) {
	session, ok := s[sessionID]
	if !ok {
		return models.ChatSession{}, repositories.ErrSessionNotFound
	}
	return session, nil
}

func intPtr(v int) *int { return &v }

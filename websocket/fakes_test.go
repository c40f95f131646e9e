package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/models"
	"github.com/CUknot/marketplace_chat/store"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	mu         sync.Mutex
	messages   map[string]*models.Message
	seq        int
	failCreate bool
	failRead   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]*models.Message)}
}

func (s *fakeStore) Create(_ context.Context, in store.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, fmt.Errorf("%w: database unreachable", store.ErrPersistence)
	}
	s.seq++
	now := time.Now().UTC()
	msg := &models.Message{
		ID:          fmt.Sprintf("m%d", s.seq),
		Content:     in.Content,
		SenderID:    in.Sender.UserID,
		SenderName:  in.Sender.DisplayName(),
		SenderEmail: in.Sender.Email,
		ReceiverID:  in.ReceiverID,
		RoomID:      in.RoomID,
		ListingID:   in.ListingID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.messages[msg.ID] = msg
	copied := *msg
	return &copied, nil
}

func (s *fakeStore) MarkRead(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, fmt.Errorf("%w: database unreachable", store.ErrPersistence)
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg.Read = true
	copied := *msg
	return &copied, nil
}

func (s *fakeStore) all() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, *msg)
	}
	return out
}

type fakeTokens struct {
	tokens map[string]string
	err    error
}

func (f *fakeTokens) FindPushToken(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.tokens[userID], nil
}

type pushCall struct {
	token, title, body string
	data               map[string]string
}

type fakeBridge struct {
	calls chan pushCall
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{calls: make(chan pushCall, 16)}
}

func (b *fakeBridge) Send(_ context.Context, token, title, body string, data map[string]string) {
	b.calls <- pushCall{token: token, title: title, body: body, data: data}
}

type testEnv struct {
	hub    *Hub
	store  *fakeStore
	tokens *fakeTokens
	bridge *fakeBridge
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		hub:    NewHub(),
		store:  newFakeStore(),
		tokens: &fakeTokens{tokens: map[string]string{"bob": "ExponentPushToken[bob]"}},
		bridge: newFakeBridge(),
	}
	env.engine = NewEngine(env.hub, env.store, env.tokens, env.bridge, nil, zaptest.NewLogger(t))
	return env
}

func (env *testEnv) connect(userID, name string) *Client {
	c := newClient(env.hub, nil, auth.Identity{UserID: userID, Name: name}, 16)
	env.hub.Register(c)
	return c
}

type receivedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, c *Client) receivedFrame {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if !ok {
			t.Fatalf("client %s closed while waiting for frame", c.identity.UserID)
		}
		var f receivedFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame on %s", c.identity.UserID)
	}
	return receivedFrame{}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.identity.UserID, raw)
	default:
	}
}

func expectNoPush(t *testing.T, b *fakeBridge) {
	t.Helper()
	select {
	case call := <-b.calls:
		t.Fatalf("unexpected push: %+v", call)
	default:
	}
}

var errLookup = errors.New("token service down")

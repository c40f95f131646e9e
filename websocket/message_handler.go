package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/events"
	"github.com/CUknot/marketplace_chat/metrics"
	"github.com/CUknot/marketplace_chat/models"
	"github.com/CUknot/marketplace_chat/push"
	"github.com/CUknot/marketplace_chat/store"
	"go.uber.org/zap"
)

const (
	pushTitle = "Yeni Mesaj"

	sendFailedMessage = "Failed to send message"
	readFailedMessage = "Failed to mark message as read"
	notFoundMessage   = "Message not found"

	defaultDetachedTimeout = 15 * time.Second
)

// MessageStore is the persistence the engine needs
type MessageStore interface {
	Create(ctx context.Context, in store.NewMessage) (*models.Message, error)
	MarkRead(ctx context.Context, id string) (*models.Message, error)
}

// Engine decodes inbound frames and performs persist-then-fan-out for each event
type Engine struct {
	hub       *Hub
	messages  MessageStore
	tokens    store.TokenLookup
	push      push.Bridge
	publisher events.Publisher
	log       *zap.Logger

	detachedTimeout time.Duration
	detached        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewEngine(hub *Hub, messages MessageStore, tokens store.TokenLookup, bridge push.Bridge, publisher events.Publisher, log *zap.Logger) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		hub:             hub,
		messages:        messages,
		tokens:          tokens,
		push:            bridge,
		publisher:       publisher,
		log:             log,
		detachedTimeout: defaultDetachedTimeout,
	}
}

// Wait blocks until every detached push and publish task has finished
func (e *Engine) Wait() {
	e.detached.Wait()
}

// Stop refuses new sends and detached work, then waits for what is in flight
func (e *Engine) Stop() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.detached.Wait()
}

func (e *Engine) stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// HandleFrame processes one inbound frame to completion. Unknown events and
// malformed payloads are ignored so one bad client never affects the others.
func (e *Engine) HandleFrame(ctx context.Context, client *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		e.log.Debug("ignoring malformed frame", zap.String("conn_id", client.id), zap.Error(err))
		return
	}

	switch frame.Type {
	case EventJoinRoom:
		roomID, ok := decodeRoomID(frame.Payload)
		if !ok {
			e.log.Debug("ignoring join without room id", zap.String("conn_id", client.id))
			return
		}
		e.Join(client, roomID)
	case EventChatMessage:
		var payload SendPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			e.log.Debug("ignoring malformed chat message", zap.String("conn_id", client.id), zap.Error(err))
			return
		}
		e.SendMessage(ctx, client, payload)
	case EventMessageRead:
		var payload ReadPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			e.log.Debug("ignoring malformed read receipt", zap.String("conn_id", client.id), zap.Error(err))
			return
		}
		e.MarkRead(ctx, client, payload)
	default:
		e.log.Debug("ignoring unknown event", zap.String("conn_id", client.id), zap.String("type", frame.Type))
	}
}

// Join records the client in the room
func (e *Engine) Join(client *Client, roomID string) {
	if e.hub.Join(client, roomID) {
		e.log.Debug("joined room",
			zap.String("conn_id", client.id), zap.String("user_id", client.identity.UserID), zap.String("room_id", roomID))
	}
}

func admitted(client *Client) bool {
	switch client.State() {
	case StateAuthenticated, StateJoined:
		return true
	}
	return false
}

// ErrInactive is returned by Send when the engine is shutting down
var ErrInactive = errors.New("engine stopped")

// SendMessage handles a chat message from a websocket connection. Persistence
// failures are reported to that connection only.
func (e *Engine) SendMessage(ctx context.Context, client *Client, payload SendPayload) {
	if !admitted(client) {
		e.log.Debug("ignoring chat message from inactive connection", zap.String("conn_id", client.id))
		return
	}

	if _, err := e.Send(ctx, client.identity, payload); err != nil {
		if errors.Is(err, ErrInactive) {
			return
		}
		e.replyError(client, EventChatMessage, ChatError{Error: sendFailedMessage, Code: CodePersistence})
	}
}

// Send persists a message from sender, broadcasts it to the room and notifies
// the receiver's device. It is shared by the websocket and REST entry points.
func (e *Engine) Send(ctx context.Context, sender auth.Identity, payload SendPayload) (*models.Message, error) {
	if e.stopped() {
		return nil, ErrInactive
	}

	message, err := e.messages.Create(ctx, store.NewMessage{
		Content:    payload.Content,
		Sender:     sender,
		ReceiverID: payload.ReceiverID,
		RoomID:     payload.RoomID,
		ListingID:  payload.ListingID,
	})
	if err != nil {
		e.log.Error("persist chat message failed",
			zap.String("user_id", sender.UserID), zap.String("room_id", payload.RoomID), zap.Error(err))
		return nil, err
	}
	metrics.MessagesPersisted.Inc()

	frame, err := encodeFrame(EventChatMessage, message)
	if err != nil {
		e.log.Error("encode chat message failed", zap.String("message_id", message.ID), zap.Error(err))
		return message, nil
	}
	e.hub.BroadcastToRoom(payload.RoomID, frame)

	// Push failures are only logged and never reach the sender. Push is
	// attempted even when the receiver is live in the room.
	e.detach(func(ctx context.Context) {
		e.notifyReceiver(ctx, message)
		e.publish(ctx, message.ID, events.MessageCreated, message)
	})
	return message, nil
}

// MarkRead flags the message read and broadcasts the receipt to the supplied room.
// Only members of that room may mark messages read.
func (e *Engine) MarkRead(ctx context.Context, client *Client, payload ReadPayload) {
	if !admitted(client) {
		e.log.Debug("ignoring read receipt from inactive connection", zap.String("conn_id", client.id))
		return
	}
	if e.stopped() {
		return
	}
	if !client.inRoom(payload.RoomID) {
		e.log.Debug("ignoring read receipt for a room not joined",
			zap.String("conn_id", client.id), zap.String("room_id", payload.RoomID))
		return
	}

	if _, err := e.messages.MarkRead(ctx, payload.MessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.replyError(client, EventMessageRead, ChatError{Error: notFoundMessage, Code: CodeNotFound})
			return
		}
		e.log.Error("mark read failed", zap.String("message_id", payload.MessageID), zap.Error(err))
		e.replyError(client, EventMessageRead, ChatError{Error: readFailedMessage, Code: CodePersistence})
		return
	}

	receipt := ReadReceipt{MessageID: payload.MessageID, ReaderID: client.identity.UserID}
	frame, err := encodeFrame(EventMessageRead, receipt)
	if err != nil {
		e.log.Error("encode read receipt failed", zap.Error(err))
		return
	}
	e.hub.BroadcastToRoom(payload.RoomID, frame)

	e.detach(func(ctx context.Context) {
		e.publish(ctx, payload.MessageID, events.MessageRead, receipt)
	})
}

// replyError sends a chat error to the originating connection only
func (e *Engine) replyError(client *Client, event string, chatErr ChatError) {
	metrics.ChatErrors.WithLabelValues(event, chatErr.Code).Inc()
	frame, err := encodeFrame(EventChatError, chatErr)
	if err != nil {
		return
	}
	if !client.enqueue(frame) {
		e.log.Debug("chat error not delivered", zap.String("conn_id", client.id))
	}
}

func (e *Engine) detach(task func(ctx context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.detached.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.detached.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.detachedTimeout)
		defer cancel()
		task(ctx)
	}()
}

func (e *Engine) notifyReceiver(ctx context.Context, message *models.Message) {
	if e.tokens == nil || e.push == nil || message.ReceiverID == "" {
		return
	}

	token, err := e.tokens.FindPushToken(ctx, message.ReceiverID)
	if err != nil {
		e.log.Warn("push token lookup failed", zap.String("user_id", message.ReceiverID), zap.Error(err))
		return
	}
	if token == "" {
		return
	}

	body := fmt.Sprintf("%s: %s", message.SenderName, message.Content)
	e.push.Send(ctx, token, pushTitle, body, map[string]string{
		"senderId":  message.SenderID,
		"messageId": message.ID,
	})
}

func (e *Engine) publish(ctx context.Context, key, eventType string, data interface{}) {
	if err := e.publisher.Publish(ctx, key, eventType, data); err != nil {
		e.log.Warn("publish event failed", zap.String("type", eventType), zap.String("key", key), zap.Error(err))
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/models"
)

func decodeMessage(t *testing.T, f receivedFrame) models.Message {
	t.Helper()
	if f.Type != EventChatMessage {
		t.Fatalf("expected %q frame, got %q", EventChatMessage, f.Type)
	}
	var msg models.Message
	if err := json.Unmarshal(f.Payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func decodeChatError(t *testing.T, f receivedFrame) ChatError {
	t.Helper()
	if f.Type != EventChatError {
		t.Fatalf("expected %q frame, got %q", EventChatError, f.Type)
	}
	var ce ChatError
	if err := json.Unmarshal(f.Payload, &ce); err != nil {
		t.Fatalf("decode chat error: %v", err)
	}
	return ce
}

func TestSendMessageBroadcastsToRoomAndPushes(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	bob := env.connect("bob", "Bob")
	outsider := env.connect("carol", "Carol")

	env.engine.HandleFrame(context.Background(), alice, []byte(`{"type":"join room","payload":"conv_1"}`))
	env.engine.HandleFrame(context.Background(), bob, []byte(`{"type":"join room","payload":"conv_1"}`))
	env.engine.HandleFrame(context.Background(), alice, []byte(
		`{"type":"chat message","payload":{"content":"hi","receiverId":"bob","roomId":"conv_1","listingId":"l42"}}`))

	got := decodeMessage(t, readFrame(t, bob))
	if got.Content != "hi" || got.SenderID != "alice" || got.ReceiverID != "bob" || got.ListingID != "l42" {
		t.Fatalf("unexpected message for bob: %+v", got)
	}
	if got.ID == "" || got.CreatedAt.IsZero() || got.Read {
		t.Fatalf("expected persisted unread message with id and timestamp: %+v", got)
	}

	echo := decodeMessage(t, readFrame(t, alice))
	if echo.ID != got.ID {
		t.Fatalf("sender echo has id %s, want %s", echo.ID, got.ID)
	}
	expectNoFrame(t, outsider)

	stored := env.store.all()
	if len(stored) != 1 || stored[0].Read {
		t.Fatalf("expected exactly one unread stored message, got %+v", stored)
	}

	env.engine.Wait()
	select {
	case call := <-env.bridge.calls:
		if call.token != "ExponentPushToken[bob]" || call.title != "Yeni Mesaj" || call.body != "Alice: hi" {
			t.Fatalf("unexpected push: %+v", call)
		}
		if call.data["senderId"] != "alice" || call.data["messageId"] != got.ID {
			t.Fatalf("unexpected push data: %+v", call.data)
		}
	case <-time.After(time.Second):
		t.Fatal("expected push notification")
	}
}

func TestSenderIdentityComesFromConnection(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	env.hub.Join(alice, "conv_1")

	env.engine.HandleFrame(context.Background(), alice, []byte(
		`{"type":"chat message","payload":{"content":"hi","receiverId":"bob","roomId":"conv_1","senderId":"mallory","senderName":"Mallory"}}`))

	msg := decodeMessage(t, readFrame(t, alice))
	if msg.SenderID != "alice" || msg.SenderName != "Alice" {
		t.Fatalf("sender was spoofed: %+v", msg)
	}
	env.engine.Wait()
}

func TestSendPersistenceFailureRepliesToSenderOnly(t *testing.T) {
	env := newTestEnv(t)
	env.store.failCreate = true
	alice := env.connect("alice", "Alice")
	bob := env.connect("bob", "Bob")
	env.hub.Join(alice, "conv_1")
	env.hub.Join(bob, "conv_1")

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})

	ce := decodeChatError(t, readFrame(t, alice))
	if ce.Code != CodePersistence || ce.Error == "" {
		t.Fatalf("unexpected chat error: %+v", ce)
	}
	expectNoFrame(t, bob)

	env.engine.Wait()
	expectNoPush(t, env.bridge)
}

func TestSendWithoutRoomPersistsWithoutBroadcast(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	bob := env.connect("bob", "Bob")
	env.hub.Join(alice, "conv_1")
	env.hub.Join(bob, "conv_1")

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob"})

	if got := len(env.store.all()); got != 1 {
		t.Fatalf("expected message persisted, got %d", got)
	}
	expectNoFrame(t, alice)
	expectNoFrame(t, bob)
	env.engine.Wait()
}

func TestPushLookupFailureDoesNotAffectBroadcast(t *testing.T) {
	env := newTestEnv(t)
	env.tokens.err = errLookup
	alice := env.connect("alice", "Alice")
	bob := env.connect("bob", "Bob")
	env.hub.Join(bob, "conv_1")

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})

	decodeMessage(t, readFrame(t, bob))
	expectNoFrame(t, alice)
	env.engine.Wait()
	expectNoPush(t, env.bridge)
}

func TestNoPushWithoutRegisteredToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "dave", RoomID: "conv_1"})

	env.engine.Wait()
	expectNoPush(t, env.bridge)
}

func TestDisconnectedClientCannotSend(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	env.hub.Unregister(alice)

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})
	env.engine.MarkRead(context.Background(), alice, ReadPayload{MessageID: "m1", RoomID: "conv_1"})

	if got := len(env.store.all()); got != 0 {
		t.Fatalf("expected nothing persisted, got %d", got)
	}
}

func TestMarkReadBroadcastsReceipt(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	bob := env.connect("bob", "Bob")
	env.hub.Join(alice, "conv_1")
	env.hub.Join(bob, "conv_1")

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})
	msg := decodeMessage(t, readFrame(t, bob))
	readFrame(t, alice)

	for i := 0; i < 2; i++ {
		env.engine.HandleFrame(context.Background(), bob, []byte(
			`{"type":"message read","payload":{"messageId":"`+msg.ID+`","roomId":"conv_1"}}`))

		for _, c := range []*Client{alice, bob} {
			f := readFrame(t, c)
			if f.Type != EventMessageRead {
				t.Fatalf("expected read receipt, got %q", f.Type)
			}
			var receipt ReadReceipt
			if err := json.Unmarshal(f.Payload, &receipt); err != nil {
				t.Fatalf("decode receipt: %v", err)
			}
			if receipt.MessageID != msg.ID || receipt.ReaderID != "bob" {
				t.Fatalf("unexpected receipt: %+v", receipt)
			}
		}
	}

	if stored := env.store.all(); !stored[0].Read {
		t.Fatal("expected message marked read")
	}
	env.engine.Wait()
}

func TestMarkReadUnknownMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	bob := env.connect("bob", "Bob")
	env.hub.Join(alice, "conv_1")
	env.hub.Join(bob, "conv_1")

	env.engine.MarkRead(context.Background(), bob, ReadPayload{MessageID: "xyz", RoomID: "conv_1"})

	ce := decodeChatError(t, readFrame(t, bob))
	if ce.Code != CodeNotFound {
		t.Fatalf("expected not_found code, got %+v", ce)
	}
	expectNoFrame(t, alice)
}

func TestMarkReadPersistenceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.failRead = true
	bob := env.connect("bob", "Bob")
	env.hub.Join(bob, "conv_1")

	env.engine.MarkRead(context.Background(), bob, ReadPayload{MessageID: "m1", RoomID: "conv_1"})

	ce := decodeChatError(t, readFrame(t, bob))
	if ce.Code != CodePersistence {
		t.Fatalf("expected persistence code, got %+v", ce)
	}
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")

	frames := []string{
		`not json`,
		`{"type":"dance","payload":{}}`,
		`{"type":"join room","payload":""}`,
		`{"type":"join room","payload":42}`,
		`{"type":"chat message","payload":"oops"}`,
		`{"type":"message read","payload":[1,2]}`,
	}
	for _, f := range frames {
		env.engine.HandleFrame(context.Background(), alice, []byte(f))
	}

	expectNoFrame(t, alice)
	if len(alice.Rooms()) != 0 {
		t.Fatalf("expected no rooms joined, got %v", alice.Rooms())
	}
	if len(env.store.all()) != 0 {
		t.Fatal("expected nothing persisted")
	}
}

func TestJoinAcceptsObjectPayload(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")

	env.engine.HandleFrame(context.Background(), alice, []byte(`{"type":"join room","payload":{"roomId":"listing_5"}}`))

	if env.hub.MemberCount("listing_5") != 1 {
		t.Fatal("expected alice to join listing_5")
	}
}

func TestMarkReadRequiresRoomMembership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	mallory := env.connect("mallory", "Mallory")
	env.hub.Join(alice, "conv_1")

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})
	msg := decodeMessage(t, readFrame(t, alice))

	env.engine.HandleFrame(context.Background(), mallory, []byte(
		`{"type":"message read","payload":{"messageId":"`+msg.ID+`","roomId":"conv_1"}}`))

	expectNoFrame(t, alice)
	expectNoFrame(t, mallory)
	if stored := env.store.all(); len(stored) != 1 || stored[0].Read {
		t.Fatalf("non-member must not mark messages read: %+v", stored)
	}
	env.engine.Wait()
}

func TestStoppedEngineRefusesNewWork(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect("alice", "Alice")
	env.hub.Join(alice, "conv_1")

	env.engine.Stop()

	env.engine.SendMessage(context.Background(), alice, SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})
	if _, err := env.engine.Send(context.Background(), alice.identity, SendPayload{Content: "hi", ReceiverID: "bob"}); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}

	expectNoFrame(t, alice)
	expectNoPush(t, env.bridge)
	if len(env.store.all()) != 0 {
		t.Fatal("expected nothing persisted after stop")
	}
}

func TestSendFromRESTIdentityBroadcastsAndPushes(t *testing.T) {
	env := newTestEnv(t)
	bob := env.connect("bob", "Bob")
	env.hub.Join(bob, "conv_1")

	msg, err := env.engine.Send(context.Background(), auth.Identity{UserID: "alice", Name: "Alice"},
		SendPayload{Content: "hi", ReceiverID: "bob", RoomID: "conv_1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	got := decodeMessage(t, readFrame(t, bob))
	if got.ID != msg.ID || got.SenderID != "alice" {
		t.Fatalf("unexpected broadcast: %+v", got)
	}

	env.engine.Wait()
	select {
	case call := <-env.bridge.calls:
		if call.body != "Alice: hi" {
			t.Fatalf("unexpected push body %q", call.body)
		}
	case <-time.After(time.Second):
		t.Fatal("expected push notification")
	}
}

package websocket

import (
	"encoding/json"
	"strings"
)

// Event names shared with the web and mobile clients
const (
	EventJoinRoom    = "join room"
	EventChatMessage = "chat message"
	EventMessageRead = "message read"
	EventChatError   = "chat error"
)

// Error codes carried in chat error payloads
const (
	CodePersistence = "persistence_error"
	CodeNotFound    = "not_found"
)

// Frame is the JSON envelope of every websocket text frame
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SendPayload is the client's chat message request. Sender fields are
// deliberately absent: the sender is the authenticated connection.
type SendPayload struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId"`
	RoomID     string `json:"roomId"`
	ListingID  string `json:"listingId,omitempty"`
}

type ReadPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// ReadReceipt is broadcast to the room after a successful mark-read
type ReadReceipt struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

type ChatError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func encodeFrame(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(outboundFrame{Type: eventType, Payload: payload})
}

// decodeRoomID accepts the room id as a bare JSON string or as {"roomId": "..."}
func decodeRoomID(raw json.RawMessage) (string, bool) {
	var roomID string
	if err := json.Unmarshal(raw, &roomID); err == nil {
		roomID = strings.TrimSpace(roomID)
		return roomID, roomID != ""
	}

	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		obj.RoomID = strings.TrimSpace(obj.RoomID)
		return obj.RoomID, obj.RoomID != ""
	}
	return "", false
}

package realtime

import (
	"encoding/json"
	"strings"

	"marketchat/internal/app/dto"
	domainchat "marketchat/internal/domain/chat"
)

// Client to server events.
const (
	EventJoin        = "join"
	EventChatStarted = "chat:started"
	EventMessageSend = "message:send"
	EventAck         = "ack"
)

const (
	userRoomPrefix    = "user:"
	listingRoomPrefix = "listing:"
)

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

func ListingRoom(listingID string) string {
	return listingRoomPrefix + listingID
}

// Frame is the envelope of every message on the socket in both directions.
// Ack is an opaque client chosen id echoed back on the reply.
type Frame struct {
	Event string          `json:"event"`
	Ack   json.RawMessage `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	ListingID string `json:"listingId"`
}

type chatStartedPayload struct {
	ListingID string `json:"listingId"`
	SellerID  string `json:"sellerId"`
}

type sendPayload struct {
	ConversationID string `json:"conversationId"`
	ListingID      string `json:"listingId"`
	To             string `json:"to"`
	Text           string `json:"text"`
}

// AckResult answers a request frame.
type AckResult struct {
	OK    bool             `json:"ok"`
	Msg   *dto.ChatMessage `json:"msg,omitempty"`
	Error domainchat.Kind  `json:"error,omitempty"`
}

func ackError(err error) AckResult {
	return AckResult{OK: false, Error: domainchat.KindOf(err)}
}

func ackFailure(kind domainchat.Kind) AckResult {
	return AckResult{OK: false, Error: kind}
}

func encodeFrame(event string, ack json.RawMessage, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Ack: ack, Data: data})
}

// handshakeUserID extracts the caller id from the upgrade request inputs.
func handshakeUserID(query, header string) string {
	if id := strings.TrimSpace(query); id != "" {
		return id
	}
	return strings.TrimSpace(header)
}

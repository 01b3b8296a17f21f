package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/dto"
	chatservice "marketchat/internal/app/services/chat"
	"marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
)

type gatewayFixture struct {
	server  *httptest.Server
	hub     *Hub
	gateway *Gateway
	svc     *chatservice.Service
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	svc := &chatservice.Service{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Notifications: memory.NewNotificationRepository(),
		Users: memory.NewUserDirectory(
			domainuser.User{ID: "buyer", Name: "Bea", Active: true},
			domainuser.User{ID: "seller", Name: "Sam", Active: true},
		),
		Listings: memory.NewListingCatalog(
			listings.Summary{ID: "L1", SellerID: "seller", Title: "Bike", Type: listings.TypeSale},
		),
		Notifier: hub,
	}
	gw := NewGateway(hub, svc, GatewayConfig{PongWait: 5 * time.Second}, nil)

	router := gin.New()
	router.GET("/ws", gw.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return &gatewayFixture{server: srv, hub: hub, gateway: gw, svc: svc}
}

func (f *gatewayFixture) dial(t *testing.T, query url.Values) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query.Encode()
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// connect dials as user and waits for a join ack, so the user room is
// registered before the test goes on.
func (f *gatewayFixture) connect(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(t, url.Values{"userId": {user}})
	require.NoError(t, err)
	send(t, conn, EventJoin, "1", map[string]string{"listingId": "L1"})
	frame := waitFor(t, conn, EventAck)
	var ack AckResult
	require.NoError(t, json.Unmarshal(frame.Data, &ack))
	require.True(t, ack.OK)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event, ack string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame := Frame{Event: event, Data: raw}
	if ack != "" {
		frame.Ack = json.RawMessage(`"` + ack + `"`)
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func waitFor(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == event {
			return frame
		}
	}
}

func TestHandshakeWithoutUserIsRejected(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := f.dial(t, url.Values{})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeWithToken(t *testing.T) {
	f := newGatewayFixture(t)
	tokens, err := security.NewHMACTokens("s3cret")
	require.NoError(t, err)
	f.gateway.Tokens = tokens

	raw, err := tokens.Issue("buyer", time.Hour)
	require.NoError(t, err)
	_, _, err = f.dial(t, url.Values{"token": {raw}})
	require.NoError(t, err)

	_, resp, err := f.dial(t, url.Values{"token": {"forged"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = f.dial(t, url.Values{"userId": {"buyer"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.gateway.AllowUserID = true
	_, _, err = f.dial(t, url.Values{"userId": {"buyer"}})
	require.NoError(t, err)
}

func TestSendDeliversToRecipientOnly(t *testing.T) {
	f := newGatewayFixture(t)
	buyer := f.connect(t, "buyer")
	seller := f.connect(t, "seller")

	send(t, buyer, EventMessageSend, "42", map[string]string{"listingId": "L1", "to": "seller", "text": " hello "})

	ackFrame := waitFor(t, buyer, EventAck)
	assert.JSONEq(t, `"42"`, string(ackFrame.Ack))
	var ack AckResult
	require.NoError(t, json.Unmarshal(ackFrame.Data, &ack))
	require.True(t, ack.OK)
	require.NotNil(t, ack.Msg)
	assert.Equal(t, "hello", ack.Msg.Text)

	var got dto.ChatMessage
	require.NoError(t, json.Unmarshal(waitFor(t, seller, dto.EventMessageNew).Data, &got))
	assert.Equal(t, ack.Msg.ID, got.ID)
	assert.Equal(t, "buyer", got.From)

	var note dto.NotificationPush
	require.NoError(t, json.Unmarshal(waitFor(t, seller, dto.EventNotificationNew).Data, &note))
	assert.Equal(t, int64(1), note.UnreadCount)
	assert.Equal(t, "L1", note.ListingID)

	// No echo to the sender: the next frame it reads answers its own join.
	send(t, buyer, EventJoin, "2", map[string]string{"listingId": "L1"})
	require.NoError(t, buyer.SetReadDeadline(time.Now().Add(3*time.Second)))
	var next Frame
	require.NoError(t, buyer.ReadJSON(&next))
	assert.Equal(t, EventAck, next.Event)
	assert.JSONEq(t, `"2"`, string(next.Ack))
}

func TestSendFailureIsAcknowledgedWithKind(t *testing.T) {
	f := newGatewayFixture(t)
	buyer := f.connect(t, "buyer")

	cases := map[string]map[string]string{
		"empty_message":       {"listingId": "L1", "to": "seller", "text": "   "},
		"self_chat_forbidden": {"listingId": "L1", "to": "buyer", "text": "hi"},
		"bad_request":         {"text": "hi"},
	}
	for kind, payload := range cases {
		send(t, buyer, EventMessageSend, kind, payload)
		frame := waitFor(t, buyer, EventAck)
		var ack AckResult
		require.NoError(t, json.Unmarshal(frame.Data, &ack))
		assert.False(t, ack.OK, kind)
		assert.Equal(t, kind, string(ack.Error))
	}
}

func TestUnknownEventIsRejected(t *testing.T) {
	f := newGatewayFixture(t)
	buyer := f.connect(t, "buyer")

	send(t, buyer, "rooms:list", "x", nil)
	frame := waitFor(t, buyer, EventAck)
	var ack AckResult
	require.NoError(t, json.Unmarshal(frame.Data, &ack))
	assert.False(t, ack.OK)
	assert.Equal(t, "bad_request", string(ack.Error))
}

func TestChatStartedNotifiesSeller(t *testing.T) {
	f := newGatewayFixture(t)
	buyer := f.connect(t, "buyer")
	seller := f.connect(t, "seller")

	send(t, buyer, EventChatStarted, "", map[string]string{"listingId": "L1", "sellerId": "seller"})

	var note dto.NotificationPush
	require.NoError(t, json.Unmarshal(waitFor(t, seller, dto.EventNotificationNew).Data, &note))
	assert.Equal(t, "chat_started", note.Type)
	assert.Equal(t, int64(1), note.UnreadCount)

	n, err := f.svc.UnreadNotifications(context.Background(), "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

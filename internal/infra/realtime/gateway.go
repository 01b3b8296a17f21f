package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/dto"
	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
)

// ChatCore is what the gateway needs from the chat service.
type ChatCore interface {
	SendMessage(ctx context.Context, p chatservice.SendParams) (*domainchat.Message, error)
	ChatStarted(ctx context.Context, listingID domainchat.ListingID, buyerID, sellerID domainchat.UserID) chatservice.Outcome
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// PresenceTracker records which users have a live connection somewhere.
type PresenceTracker interface {
	Connected(ctx context.Context, userID string) error
	Touch(ctx context.Context, userID string) error
	Disconnected(ctx context.Context, userID string) error
}

type GatewayConfig struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	PongWait       time.Duration
}

type Gateway struct {
	Hub      *Hub
	Chat     ChatCore
	Tokens   TokenVerifier
	Presence PresenceTracker
	Logger   *slog.Logger
	// AllowUserID accepts a bare userId when token verification is on.
	AllowUserID bool

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongWait     time.Duration
}

func NewGateway(hub *Hub, chat ChatCore, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Gateway{
		Hub:          hub,
		Chat:         chat,
		Logger:       logger,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
	}
	if g.pongWait <= 0 {
		g.pongWait = 60 * time.Second
	}
	if g.pingInterval <= 0 || g.pingInterval >= g.pongWait {
		g.pingInterval = g.pongWait * 9 / 10
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return g
}

// Handle upgrades the request and serves the connection until it closes.
func (g *Gateway) Handle(c *gin.Context) {
	userID, ok := g.authenticate(c.Request)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.Logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := newClient(conn, g.Hub)
	client.userID = userID
	client.advance(stateAuthenticated)
	g.Hub.join(client, UserRoom(userID))
	client.advance(stateJoined)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	g.presence(ctx, userID, PresenceTracker.Connected)
	g.Logger.Info("socket connected", "user_id", userID)

	go client.writePump(g.pingInterval)
	client.readPump(ctx, g.pongWait, g.dispatch)

	g.Hub.leaveAll(client)
	g.presence(ctx, userID, PresenceTracker.Disconnected)
	g.Logger.Info("socket disconnected", "user_id", userID)
}

// authenticate resolves the caller: a verified bearer token when a verifier
// is configured and a token is present, else the opaque userId handshake value.
func (g *Gateway) authenticate(r *http.Request) (string, bool) {
	if g.Tokens != nil {
		raw := strings.TrimSpace(r.URL.Query().Get("token"))
		if raw == "" {
			raw = bearer(r.Header.Get("Authorization"))
		}
		if raw != "" {
			id, err := g.Tokens.Verify(raw)
			if err != nil {
				g.Logger.Debug("socket token rejected", "error", err)
				return "", false
			}
			return id, true
		}
		if !g.AllowUserID {
			return "", false
		}
	}
	id := handshakeUserID(r.URL.Query().Get("userId"), r.Header.Get("X-User-ID"))
	return id, id != ""
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, frame Frame) {
	if c.State() != stateJoined {
		return
	}
	g.presence(ctx, c.userID, PresenceTracker.Touch)
	switch frame.Event {
	case EventJoin:
		var p joinPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || strings.TrimSpace(p.ListingID) == "" {
			g.ack(c, frame, ackFailure(domainchat.KindBadRequest))
			return
		}
		g.Hub.join(c, ListingRoom(strings.TrimSpace(p.ListingID)))
		g.ack(c, frame, AckResult{OK: true})
	case EventChatStarted:
		var p chatStartedPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return
		}
		outcome := g.Chat.ChatStarted(ctx, domainchat.ListingID(p.ListingID), domainchat.UserID(c.userID), domainchat.UserID(p.SellerID))
		g.Logger.Debug("chat started via socket", "user_id", c.userID, "listing_id", p.ListingID, "outcome", outcome)
	case EventMessageSend:
		var p sendPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			g.ack(c, frame, ackFailure(domainchat.KindBadRequest))
			return
		}
		msg, err := g.Chat.SendMessage(ctx, chatservice.SendParams{
			Sender:         domainchat.UserID(c.userID),
			ConversationID: domainchat.ConversationID(p.ConversationID),
			ListingID:      domainchat.ListingID(p.ListingID),
			RecipientID:    domainchat.UserID(p.To),
			Text:           p.Text,
		})
		if err != nil {
			kind := domainchat.KindOf(err)
			if kind == domainchat.KindServerError {
				g.Logger.Error("socket send failed", "user_id", c.userID, "error", err)
			}
			g.ack(c, frame, ackError(err))
			return
		}
		view := dto.MapMessage(msg)
		g.ack(c, frame, AckResult{OK: true, Msg: &view})
	default:
		g.ack(c, frame, ackFailure(domainchat.KindBadRequest))
	}
}

func (g *Gateway) ack(c *Client, frame Frame, result AckResult) {
	if len(frame.Ack) == 0 {
		return
	}
	c.reply(EventAck, frame.Ack, result)
}

func (g *Gateway) presence(ctx context.Context, userID string, op func(PresenceTracker, context.Context, string) error) {
	if g.Presence == nil {
		return
	}
	if err := op(g.Presence, ctx, userID); err != nil {
		g.Logger.Debug("presence update failed", "user_id", userID, "error", err)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

func bearer(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

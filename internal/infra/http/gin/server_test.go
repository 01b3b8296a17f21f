package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/dto"
	chatservice "marketchat/internal/app/services/chat"
	"marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/config"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
)

type apiFixture struct {
	router http.Handler
	svc    *chatservice.Service
	tokens *security.HMACTokens
}

type staticPresence map[string]bool

func (p staticPresence) Online(_ context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = p[id]
	}
	return out, nil
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	users := memory.NewUserDirectory(
		domainuser.User{ID: "buyer", Name: "Bea", Email: "bea@example.com", Active: true},
		domainuser.User{ID: "seller", Name: "Sam", Email: "sam@example.com", Active: true},
		domainuser.User{ID: "outsider", Name: "Oscar", Active: true},
		domainuser.User{ID: "banned", Name: "Ben", Active: false},
	)
	svc := &chatservice.Service{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Notifications: memory.NewNotificationRepository(),
		Users:         users,
		Listings: memory.NewListingCatalog(
			listings.Summary{ID: "L1", SellerID: "seller", Title: "Bike", Type: listings.TypeSale},
		),
	}
	tokens, err := security.NewHMACTokens("s3cret")
	require.NoError(t, err)

	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:          ChatHandler{Chat: svc},
		Notifications: NotificationHandler{Chat: svc},
		Presence:      PresenceHandler{Presence: staticPresence{"seller": true}},
		AuthMiddleware: AuthMiddleware{
			Tokens:          tokens,
			Users:           users,
			TrustUserHeader: true,
		}.Handle,
	})
	return &apiFixture{router: router, svc: svc, tokens: tokens}
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *apiFixture) start(t *testing.T) dto.StartChatResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/chat/start", "buyer", map[string]string{"listingId": "L1", "sellerId": "seller"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.StartChatResponse](t, rec)
}

func TestRoutesRequirePrincipal(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/v1/chat/conversations", "/api/v1/notifications", "/api/v1/presence?ids=a"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/chat/conversations", "banned", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/chat/conversations", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerTokenAuthenticates(t *testing.T) {
	f := newAPIFixture(t)
	raw, err := f.tokens.Issue("seller", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestStartSendReadFlow(t *testing.T) {
	f := newAPIFixture(t)
	started := f.start(t)
	convID := started.Conversation.ID
	assert.Empty(t, started.Messages)
	assert.Equal(t, "Bike", started.Conversation.Listing.Title)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/"+convID+"/messages", "buyer", map[string]string{"text": "Is it still available?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[dto.ChatMessage](t, rec)
	assert.Equal(t, "seller", sent.To)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/conversations", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	convs := decode[[]dto.Conversation](t, rec)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, "Is it still available?", convs[0].LastMessage)

	rec = f.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "seller", nil)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/chat/"+convID+"/read", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"unreadCount":0}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/chat/"+convID+"/messages?limit=10", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]dto.ChatMessage](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/thread?listingId=L1&otherId=buyer", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]dto.ChatMessage](t, rec), 1)
}

func TestEditAndDeleteMessage(t *testing.T) {
	f := newAPIFixture(t)
	convID := f.start(t).Conversation.ID
	rec := f.do(t, http.MethodPost, "/api/v1/chat/"+convID+"/messages", "buyer", map[string]string{"text": "helo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decode[dto.ChatMessage](t, rec)

	rec = f.do(t, http.MethodPatch, "/api/v1/chat/message/"+msg.ID, "seller", map[string]string{"text": "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodPatch, "/api/v1/chat/message/"+msg.ID, "buyer", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decode[dto.ChatMessage](t, rec)
	assert.Equal(t, "hello", edited.Text)
	assert.NotNil(t, edited.EditedAt)

	rec = f.do(t, http.MethodDelete, "/api/v1/chat/message/"+msg.ID, "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/chat/message/"+msg.ID, "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	f := newAPIFixture(t)
	convID := f.start(t).Conversation.ID

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		kind   string
	}{
		{"self chat", http.MethodPost, "/api/v1/chat/start", "seller", map[string]string{"listingId": "L1", "sellerId": "seller"}, http.StatusBadRequest, "self_chat_forbidden"},
		{"unknown listing", http.MethodPost, "/api/v1/chat/start", "buyer", map[string]string{"listingId": "nope", "sellerId": "seller"}, http.StatusNotFound, "not_found"},
		{"missing fields", http.MethodPost, "/api/v1/chat/start", "buyer", map[string]string{"listingId": "L1"}, http.StatusBadRequest, "bad_request"},
		{"empty text", http.MethodPost, "/api/v1/chat/" + convID + "/messages", "buyer", map[string]string{"text": "  "}, http.StatusBadRequest, "empty_message"},
		{"outsider sends", http.MethodPost, "/api/v1/chat/" + convID + "/messages", "outsider", map[string]string{"text": "hi"}, http.StatusForbidden, "not_participant"},
		{"outsider reads", http.MethodGet, "/api/v1/chat/" + convID + "/messages", "outsider", nil, http.StatusForbidden, "forbidden"},
		{"unknown conversation", http.MethodPost, "/api/v1/chat/missing/read", "buyer", nil, http.StatusNotFound, "not_found"},
		{"bad cursor", http.MethodGet, "/api/v1/chat/" + convID + "/messages?before=yesterday", "buyer", nil, http.StatusBadRequest, "bad_request"},
		{"unknown notification", http.MethodPatch, "/api/v1/notifications/nope/read", "buyer", nil, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	f := newAPIFixture(t)
	convID := f.start(t).Conversation.ID
	f.do(t, http.MethodPost, "/api/v1/chat/"+convID+"/messages", "buyer", map[string]string{"text": "one"})

	rec := f.do(t, http.MethodDelete, "/api/v1/chat/"+convID, "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/chat/thread?listingId=L1&otherId=seller", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]dto.ChatMessage](t, rec))
}

func TestNotificationEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	convID := f.start(t).Conversation.ID
	f.do(t, http.MethodPost, "/api/v1/chat/"+convID+"/messages", "buyer", map[string]string{"text": "ping"})

	rec := f.do(t, http.MethodGet, "/api/v1/notifications?limit=5", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]dto.Notification](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "chat_message", items[0].Type)
	assert.Equal(t, convID, items[0].Meta.ConversationID)

	rec = f.do(t, http.MethodPatch, "/api/v1/notifications/"+items[0].ID+"/read", "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/v1/notifications/"+items[0].ID+"/read", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"unreadCount":0}`, rec.Body.String())
}

func TestPresenceEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/presence?ids=seller,%20buyer", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"seller":true,"buyer":false}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/presence", "buyer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

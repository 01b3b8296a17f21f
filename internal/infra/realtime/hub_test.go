package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// detachedClient is a client with no socket; frames pile up in send.
func detachedClient(hub *Hub, userID string) *Client {
	c := newClient(nil, hub)
	c.userID = userID
	c.advance(stateJoined)
	hub.join(c, UserRoom(userID))
	return c
}

func drain(c *Client) []Frame {
	var out []Frame
	for {
		select {
		case raw := <-c.send:
			var f Frame
			if err := json.Unmarshal(raw, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func TestHubDeliversToEveryConnectionOfUser(t *testing.T) {
	hub := NewHub(nil)
	phone := detachedClient(hub, "u1")
	laptop := detachedClient(hub, "u1")
	other := detachedClient(hub, "u2")

	require.NoError(t, hub.EmitToUser(context.Background(), "u1", "message:new", map[string]string{"text": "hi"}))

	assert.Len(t, drain(phone), 1)
	assert.Len(t, drain(laptop), 1)
	assert.Empty(t, drain(other))
	assert.Equal(t, 2, hub.Members(UserRoom("u1")))
}

func TestHubLeaveAllForgetsEmptyRooms(t *testing.T) {
	hub := NewHub(nil)
	c := detachedClient(hub, "u1")
	hub.join(c, ListingRoom("L1"))

	hub.leaveAll(c)

	assert.Zero(t, hub.Members(UserRoom("u1")))
	assert.Zero(t, hub.Members(ListingRoom("L1")))
	assert.Empty(t, hub.rooms)
}

func TestHubClosesSlowConnections(t *testing.T) {
	hub := NewHub(nil)
	slow := detachedClient(hub, "u1")
	for i := 0; i < sendBuffer; i++ {
		require.True(t, slow.enqueue([]byte(`{}`)))
	}

	delivered := hub.Deliver(UserRoom("u1"), []byte(`{"event":"x"}`))

	assert.Zero(t, delivered)
	assert.Equal(t, stateClosed, slow.State())
	assert.False(t, slow.enqueue([]byte(`{}`)))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://market.example/"})
	req := func(origin string) bool {
		r := httptest.NewRequest("GET", "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return check(r)
	}
	assert.True(t, req("https://market.example"))
	assert.True(t, req(""))
	assert.False(t, req("https://evil.example"))

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	assert.True(t, originChecker(nil)(r))
}

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBridgeRoundTrip(t *testing.T) {
	client := redisForTest(t)
	hub := NewHub(nil)
	c := detachedClient(hub, "u1")
	bridge := NewRedisBridge(client, "marketchat:test:"+time.Now().Format("150405.000000"), hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridge.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = bridge.EmitToUser(ctx, "u1", "notification:new", map[string]int{"unreadCount": 3})
		return len(c.send) > 0
	}, 3*time.Second, 50*time.Millisecond)

	frames := drain(c)
	require.NotEmpty(t, frames)
	assert.Equal(t, "notification:new", frames[0].Event)
	assert.JSONEq(t, `{"unreadCount":3}`, string(frames[0].Data))
}

func TestPresenceCountsConnections(t *testing.T) {
	client := redisForTest(t)
	p := NewPresence(client, time.Minute)
	ctx := context.Background()
	user := "presence-" + time.Now().Format("150405.000000")

	require.NoError(t, p.Connected(ctx, user))
	require.NoError(t, p.Connected(ctx, user))
	require.NoError(t, p.Disconnected(ctx, user))

	online, err := p.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, p.Disconnected(ctx, user))
	online, err = p.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.False(t, online)

	states, err := p.Online(ctx, []string{user, "nobody"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{user: false, "nobody": false}, states)
}

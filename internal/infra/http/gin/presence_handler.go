package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
)

const maxPresenceIDs = 100

type PresenceHTTP interface {
	Online(c *gin.Context)
}

// OnlineChecker reports which of the given users hold a live connection.
type OnlineChecker interface {
	Online(ctx context.Context, ids []string) (map[string]bool, error)
}

type PresenceHandler struct {
	Presence OnlineChecker
	Logger   *slog.Logger
}

// Online answers GET /presence?ids=a,b,c.
func (h PresenceHandler) Online(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	var ids []string
	for _, part := range strings.Split(c.Query("ids"), ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || len(ids) > maxPresenceIDs {
		badRequest(c, "ids must list between 1 and 100 users")
		return
	}
	states, err := h.Presence.Online(c.Request.Context(), ids)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("presence lookup failed", "error", err)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, states)
}

var _ PresenceHTTP = (*PresenceHandler)(nil)

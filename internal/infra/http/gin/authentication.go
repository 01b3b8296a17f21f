package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	domainuser "marketchat/internal/domain/user"
)

const principalContextKey = "marketchat.principal"

type principal struct {
	ID    string
	Name  string
	Email string
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// AuthMiddleware attaches the caller to the request when a valid bearer
// token names an active user. Requests without one pass through and are
// rejected by the handlers that need a principal.
type AuthMiddleware struct {
	Tokens TokenVerifier
	Users  domainuser.Directory
	// TrustUserHeader accepts X-User-ID as the identity. Local runs only.
	TrustUserHeader bool
	Logger          *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	userID, ok := m.identify(c)
	if !ok {
		c.Next()
		return
	}
	p := principal{ID: userID}
	if m.Users != nil {
		u, err := m.Users.ByID(c.Request.Context(), domainuser.ID(userID))
		if err != nil {
			if !errors.Is(err, domainuser.ErrNotFound) && m.Logger != nil {
				m.Logger.Warn("principal lookup failed", "user_id", userID, "error", err)
			}
			c.Next()
			return
		}
		if !u.Active {
			c.Next()
			return
		}
		p.Name, p.Email = u.Name, u.Email
	}
	setPrincipal(c, p)
	c.Next()
}

func (m AuthMiddleware) identify(c *gin.Context) (string, bool) {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" && m.Tokens != nil {
		id, err := m.Tokens.Verify(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("token validation failed", "error", err)
			}
			return "", false
		}
		return id, true
	}
	if m.TrustUserHeader {
		if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
			return id, true
		}
	}
	return "", false
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireUser(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

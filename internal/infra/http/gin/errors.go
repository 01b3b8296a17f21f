package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	domainchat "marketchat/internal/domain/chat"
)

func statusFor(kind domainchat.Kind) int {
	switch kind {
	case domainchat.KindSelfChat, domainchat.KindBadRequest, domainchat.KindEmptyMessage:
		return http.StatusBadRequest
	case domainchat.KindNotParticipant, domainchat.KindForbidden:
		return http.StatusForbidden
	case domainchat.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondChatError writes the error body and logs server errors only.
func respondChatError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	kind := domainchat.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("chat request failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": kind, "message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": domainchat.KindBadRequest, "message": message})
}

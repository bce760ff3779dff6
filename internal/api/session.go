package api

import (
	"context"
	"net/http"

	"configurator-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionCookie  = "session_id"
	customerCookie = "customer_id"
	sessionHeader  = "X-Session-ID"
	customerHeader = "X-Customer-ID"

	sessionIDKey  = "sessionID"
	customerIDKey = "customerID"

	sessionCookieMaxAge = 60 * 60 * 24
)

// SessionEvents announces session lifecycle changes
type SessionEvents interface {
	PublishSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error
	PublishSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error
}

func readIdentity(c *gin.Context, cookie, header string) string {
	if value, err := c.Cookie(cookie); err == nil && value != "" {
		return value
	}
	return c.GetHeader(header)
}

func validUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

// requireSession rejects requests without a session and customer id
func requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := readIdentity(c, sessionCookie, sessionHeader)
		customerID := readIdentity(c, customerCookie, customerHeader)

		if !validUUID(sessionID) || !validUUID(customerID) {
			failure(c, http.StatusUnauthorized, apiErrors("401", "Missing or invalid session"))
			c.Abort()
			return
		}

		c.Set(sessionIDKey, sessionID)
		c.Set(customerIDKey, customerID)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (string, string) {
	return c.GetString(sessionIDKey), c.GetString(customerIDKey)
}

// createSession starts a session for the caller, reusing a customer id that
// is already present
func (h *Handler) createSession(c *gin.Context) {
	customerID := readIdentity(c, customerCookie, customerHeader)
	if !validUUID(customerID) {
		customerID = uuid.New().String()
	}
	sessionID := uuid.New().String()

	event := &models.SessionStartedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeSessionStarted),
		SessionID:  sessionID,
		CustomerID: customerID,
	}
	if err := h.sessions.PublishSessionStarted(c.Request.Context(), event); err != nil {
		h.logger.Error("Failed to publish session started",
			zap.String("session_id", sessionID),
			zap.Error(err))
		failure(c, http.StatusServiceUnavailable, apiErrors("503", "Unable to start session"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sessionID, sessionCookieMaxAge, "/", "", false, true)
	c.SetCookie(customerCookie, customerID, sessionCookieMaxAge, "/", "", false, true)
	c.Header(sessionHeader, sessionID)
	c.Header(customerHeader, customerID)
	c.Status(http.StatusNoContent)
}

// deleteSession clears the session cookies and announces the session end
func (h *Handler) deleteSession(c *gin.Context) {
	sessionID := readIdentity(c, sessionCookie, sessionHeader)
	customerID := readIdentity(c, customerCookie, customerHeader)

	if validUUID(sessionID) {
		event := &models.SessionEndedEvent{
			BaseEvent:  models.NewBaseEvent(models.EventTypeSessionEnded),
			SessionID:  sessionID,
			CustomerID: customerID,
		}
		if err := h.sessions.PublishSessionEnded(c.Request.Context(), event); err != nil {
			h.logger.Warn("Failed to publish session ended",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

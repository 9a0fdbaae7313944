package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"healthmate/internal/models"
	"healthmate/internal/orchestrator"
	"healthmate/internal/worker"
)

// featureTimeout bounds one feature run including the model call.
const featureTimeout = 2 * time.Minute

type featureResult struct {
	resp           *models.NormalizedResponse
	conversationID string
	err            error
}

// runFeature builds the handler for one feature endpoint. The body is the
// free-form feature payload; conversation_id inside it pins the run to an
// existing session. The run itself goes through the dispatcher so requests
// of one user execute in order.
func (h *Handler) runFeature(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := h.authorizedUserID(c)
		if !ok {
			return
		}

		payload := map[string]any{}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&payload); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		conversationID, _ := payload["conversation_id"].(string)
		if conversationID != "" {
			session, ok := h.ownedSession(c, userID, conversationID)
			if !ok {
				return
			}
			if !session.IsActive {
				c.JSON(http.StatusConflict, gin.H{"error": "session is closed"})
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), featureTimeout)
		defer cancel()

		done := make(chan featureResult, 1)
		h.dispatcher.Submit(worker.Job{
			UserID:  userID,
			Feature: feature,
			Run: func() {
				resp, convID, err := h.engine.Run(ctx, feature, userID, payload, conversationID)
				done <- featureResult{resp: resp, conversationID: convID, err: err}
			},
		})

		var result featureResult
		select {
		case result = <-done:
		case <-ctx.Done():
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
			return
		}

		if result.err != nil {
			switch {
			case errors.Is(result.err, orchestrator.ErrUnknownFeature):
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown feature"})
			case errors.Is(result.err, orchestrator.ErrContextUnavailable):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user context unavailable"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": result.err.Error()})
			}
			return
		}

		body := gin.H{
			"result":      result.resp.Fields,
			"is_fallback": result.resp.IsFallback,
		}
		if result.conversationID != "" {
			body["conversation_id"] = result.conversationID
		}
		c.JSON(http.StatusOK, body)
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.conversations.Sessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []*models.ConversationSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) getSessionMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, ok := h.ownedSession(c, userID, c.Param("conversation_id"))
	if !ok {
		return
	}
	limit := 50
	var messages []*models.Message
	var err error
	if c.Query("important") == "true" {
		messages, err = h.conversations.ImportantMessages(c.Request.Context(), session.ConversationID, limit)
	} else {
		messages, err = h.conversations.Messages(c.Request.Context(), session.ConversationID, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  session,
		"messages": messages,
	})
}

func (h *Handler) closeSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, ok := h.ownedSession(c, userID, c.Param("conversation_id"))
	if !ok {
		return
	}
	if err := h.conversations.CloseSession(c.Request.Context(), session.ConversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedSession loads a session by id and checks it belongs to the caller.
func (h *Handler) ownedSession(c *gin.Context, userID int64, conversationID string) (*models.ConversationSession, bool) {
	session, err := h.conversations.Session(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if session.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session does not belong to user"})
		return nil, false
	}
	return session, true
}

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
	"github.com/aranticlabs/bugpin/backend/internal/services/webhook"
)

// integrationLookup is the slice of the integration store the webhook
// pipeline needs.
type integrationLookup interface {
	ByID(id uint) (*models.Integration, error)
}

// issueEventSink applies verified issue events to local reports.
type issueEventSink interface {
	HandleIssueEvent(ctx context.Context, integ *models.Integration, event *webhook.IssuesEvent) error
}

type WebhookHandler struct {
	integrations integrationLookup
	sync         issueEventSink
}

func NewWebhookHandler(db *gorm.DB, syncService *services.SyncService) *WebhookHandler {
	return &WebhookHandler{
		integrations: services.NewIntegrationService(db),
		sync:         syncService,
	}
}

// HandleGitHub ingests one webhook delivery from the tracker. The
// checks run in a fixed order: integration lookup, integration type,
// signature, JSON shape, then dispatch. Events that carry nothing
// actionable are acknowledged so the tracker does not redeliver them.
// POST /api/webhooks/github/:id
func (h *WebhookHandler) HandleGitHub(c *gin.Context) {
	integrationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "integration not found"})
		return
	}

	integ, err := h.integrations.ByID(uint(integrationID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "integration not found"})
		return
	}

	if integ.Type != models.IntegrationTypeGitHub {
		c.JSON(http.StatusBadRequest, gin.H{"error": "integration is not a github integration"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)
	if !webhook.VerifySignature(integ.WebhookSecret, body, signature) {
		services.LogWarning("webhook", "invalid_signature", "invalid webhook signature", nil, c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
			"integration_id": integ.ID,
			"delivery_id":    c.GetHeader(webhook.DeliveryHeader),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	switch c.GetHeader(webhook.EventHeader) {
	case webhook.EventPing:
		c.JSON(http.StatusOK, gin.H{"message": "pong"})

	case webhook.EventIssues:
		var event webhook.IssuesEvent
		if err := json.Unmarshal(body, &event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		switch event.Action {
		case webhook.ActionOpened, webhook.ActionClosed, webhook.ActionReopened:
			ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
			defer cancel()
			if err := h.sync.HandleIssueEvent(ctx, integ, &event); err != nil {
				services.LogError("webhook", "dispatch_failed", err.Error(), nil, c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
					"integration_id": integ.ID,
					"issue_number":   event.Issue.Number,
					"action":         event.Action,
				})
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply issue event"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": "webhook handled"})
		default:
			// Edits, labels, assignments and the rest never move a report.
			c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
		}

	default:
		c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
	}
}

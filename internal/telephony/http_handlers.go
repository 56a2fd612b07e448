package telephony

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"collections-engine/internal/calls"
	"collections-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// OutcomeApplier moves a CallLog to its terminal state.
type OutcomeApplier interface {
	ApplyOutcome(ctx context.Context, o calls.Outcome) (calls.CallLog, error)
}

// OutcomeWebhookHandler converts the provider webhook to calls.Outcome and
// delegates to the applier. No business logic here.
type OutcomeWebhookHandler struct {
	Applier OutcomeApplier

	// Secret must match the X-Webhook-Secret header. Empty disables the check.
	Secret string

	Now func() time.Time
}

func (h OutcomeWebhookHandler) HandleCallOutcome(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Applier == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "outcome applier not configured"})
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	payload, err := ParseOutcomePayload(c.Request.Body)
	if err != nil {
		log.Warn("outcome webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	out := payload.ToOutcome(h.Now().UTC())
	cl, err := h.Applier.ApplyOutcome(c.Request.Context(), out)
	switch {
	case err == nil:
	case errors.Is(err, calls.ErrNotFound):
		log.Warn("outcome for unknown call", "provider_call_id", out.ProviderCallID)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	case errors.Is(err, calls.ErrAlreadyTerminal):
		log.Warn("conflicting outcome ignored", "provider_call_id", out.ProviderCallID, "status", out.Status)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already has a different outcome"})
		return
	default:
		log.Error("apply outcome failed", "provider_call_id", out.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "apply outcome failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": cl.ID, "status": cl.Status})
}

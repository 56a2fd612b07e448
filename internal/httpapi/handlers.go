package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"collections-engine/internal/audit"
	"collections-engine/internal/auth"
	"collections-engine/internal/calls"
	"collections-engine/internal/observer"
	"collections-engine/internal/policy"
	"collections-engine/internal/rbac"
	"collections-engine/internal/reporting"
	"collections-engine/internal/rules"
	"collections-engine/internal/scheduler"
	"collections-engine/internal/settings"
	"collections-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Engine is the control surface of scheduler.Engine.
type Engine interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	Tick(ctx context.Context) (scheduler.TickResult, error)
	Schedule() scheduler.Schedule
	Subscribe(buffer int) (<-chan observer.Event, func())
	Config() scheduler.Config
}

type CallLister interface {
	ListCallLogs(ctx context.Context, f calls.Filter) ([]calls.CallLog, error)
}

type PolicyView interface {
	Current() *policy.Snapshot
}

// Handlers groups HTTP handlers for dependency injection.
// Handlers stay thin and delegate to internal services.
type Handlers struct {
	Auth     *auth.Manager
	Engine   Engine
	Settings *settings.Service
	Calls    CallLister
	Reports  *reporting.Service
	Rules    *rules.Service
	Audit    *audit.Service
	Policy   PolicyView

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// actor reads the caller identity set by auth.RequireAccessToken.
func actor(c *gin.Context) audit.Actor {
	op, _ := auth.OperatorFrom(c.Request.Context())
	return audit.Actor{UserID: op.UserID, Role: op.Role, IP: c.ClientIP()}
}

// fail maps domain errors to a status and writes {error}.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrPrecondition),
		errors.Is(err, settings.ErrNotConfigured):
		status = http.StatusPreconditionFailed
	case errors.Is(err, scheduler.ErrTickInProgress),
		errors.Is(err, scheduler.ErrLeaseHeld),
		errors.Is(err, scheduler.ErrStopped):
		status = http.StatusConflict
	case errors.Is(err, settings.ErrInvalid),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, audit.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, rules.ErrNotFound),
		errors.Is(err, calls.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error()}
	var ve *settings.ValidationError
	if errors.As(err, &ve) {
		body["fields"] = ve.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	running := h.Engine != nil && h.Engine.IsRunning()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "engine_running": running})
}

// --- Auth ---

type tokenRequest struct {
	Key    string `json:"key"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IssueToken exchanges the operator key for a token pair. Role defaults to viewer.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleViewer
	}
	if req.UserID == "" || !rbac.Valid(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid role are required"})
		return
	}
	pair, err := h.Auth.ExchangeKey(h.now(), req.Key, req.UserID, req.Role)
	if errors.Is(err, auth.ErrBadOperatorKey) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me echoes the caller identity.
func (h Handlers) Me(c *gin.Context) {
	op, ok := auth.OperatorFrom(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, op)
}

package main

import (
	"collections-engine/internal/httpapi"
	"collections-engine/internal/rbac"
	"collections-engine/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook telephony.OutcomeWebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Healthz)

	// Provider webhooks (public, shared-secret header).
	r.POST("/webhooks/provider/calls", webhook.HandleCallOutcome)

	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/token", h.IssueToken)
		authGroup.POST("/refresh", h.RefreshToken)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		// Read-only views; every role.
		v1.GET("/engine/status", h.EngineStatus)
		v1.GET("/schedule", h.GetSchedule)
		v1.GET("/schedule/stream", h.StreamSchedule)
		v1.GET("/calls", h.ListCalls)
		v1.GET("/reports/calls", h.CallsReport)
		v1.GET("/reports/voices", h.VoicesReport)
		v1.GET("/rules", h.ListRules)
		v1.GET("/policy", h.GetPolicy)

		// ENGINE control
		engine := v1.Group("/engine")
		engine.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			engine.POST("/start", h.StartEngine)
			engine.POST("/stop", h.StopEngine)
			engine.POST("/tick", h.TriggerTick)
		}

		// RULES
		rules := v1.Group("/rules")
		rules.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			rules.POST("", h.AddRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.DELETE("", h.ClearPendingRules)
		}

		// SETTINGS (read is masked; write is admin only, admins pass every RequireAnyRole)
		settings := v1.Group("/settings")
		{
			settings.GET("", rbac.RequireAnyRole(rbac.RoleSupervisor), h.GetSettings)
			settings.PUT("", rbac.RequireAnyRole(rbac.RoleAdmin), h.PutSettings)
		}

		// AUDIT (admin only)
		v1.GET("/audit", rbac.RequireAnyRole(rbac.RoleAdmin), h.ListAudit)
	}
}

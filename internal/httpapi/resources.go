package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"collections-engine/internal/audit"
	"collections-engine/internal/calls"
	"collections-engine/internal/reporting"
	"collections-engine/internal/settings"

	"github.com/gin-gonic/gin"
)

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.Filter{
		Status:    calls.Status(c.Query("status")),
		AccountID: c.Query("account_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}
	var err error
	if f.From, err = parseTime(c.Query("from")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	if f.To, err = parseTime(c.Query("to")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}

	out, err := h.Calls.ListCallLogs(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out, "limit": f.EffectiveLimit()})
}

// parseTime accepts RFC3339 or a YYYY-MM-DD date (UTC midnight). Empty is zero.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, v)
}

// --- Reports ---

func (h Handlers) reportRange(c *gin.Context) (reporting.TimeRange, bool) {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return reporting.TimeRange{}, false
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return reporting.TimeRange{}, false
	}
	if to.IsZero() {
		to = h.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	return reporting.TimeRange{From: from, To: to}, true
}

func (h Handlers) CallsReport(c *gin.Context) {
	r, ok := h.reportRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), r)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) VoicesReport(c *gin.Context) {
	r, ok := h.reportRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.VoiceBreakdown(c.Request.Context(), r)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"range": r, "voices": out})
}

// --- Settings ---

func (h Handlers) GetSettings(c *gin.Context) {
	st, err := h.Settings.Get(c.Request.Context())
	if errors.Is(err, settings.ErrNotConfigured) {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": true, "settings": st.Masked()})
}

func (h Handlers) PutSettings(c *gin.Context) {
	var in settings.Settings
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	st, err := h.Settings.Put(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventSettingsUpdated, "", "provider settings updated")
	c.JSON(http.StatusOK, gin.H{"configured": true, "settings": st.Masked()})
}

// --- Rules ---

type addRuleRequest struct {
	RuleText string `json:"rule_text"`
}

func (h Handlers) ListRules(c *gin.Context) {
	out, err := h.Rules.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (h Handlers) AddRule(c *gin.Context) {
	var req addRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	r, err := h.Rules.Add(c.Request.Context(), req.RuleText)
	if err != nil {
		fail(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventRuleAdded, r.ID, "")
	c.JSON(http.StatusCreated, r)
}

func (h Handlers) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.Rules.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventRuleDeleted, id, "")
	c.Status(http.StatusNoContent)
}

// ClearPendingRules requires ?pending=true so a bare DELETE cannot wipe the list.
func (h Handlers) ClearPendingRules(c *gin.Context) {
	if c.Query("pending") != "true" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "pending=true required"})
		return
	}
	n, err := h.Rules.ClearPending(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventRulesCleared, "", strconv.Itoa(n)+" pending rules cleared")
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// --- Policy ---

func (h Handlers) GetPolicy(c *gin.Context) {
	p := h.Policy.Current()
	if p == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no policy loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":            p.Source,
		"loaded_at":         p.LoadedAt,
		"workable_statuses": p.Workable.Included(),
		"voices":            p.Voices,
		"from_numbers":      p.FromNumbers,
		"default_timezone":  p.Calendar.DefaultLocation().String(),
		"holidays":          p.Calendar.Holidays(),
	})
}

// ListAudit returns operator actions newest first, filtered by type, actor and since.
func (h Handlers) ListAudit(c *gin.Context) {
	f := audit.Filter{
		Type:        audit.EventType(c.Query("type")),
		ActorUserID: c.Query("actor"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}
	var err error
	if f.Since, err = parseTime(c.Query("since")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}

	out, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": out, "limit": f.EffectiveLimit()})
}

package httpapi

import (
	"io"
	"net/http"
	"time"

	"collections-engine/internal/audit"
	"collections-engine/internal/scheduler"

	"github.com/gin-gonic/gin"
)

const sseKeepAlive = 25 * time.Second

type engineStatus struct {
	Running        bool                         `json:"running"`
	PeriodSeconds  float64                      `json:"period_seconds"`
	MaxConcurrency int                          `json:"max_concurrency"`
	LastTickAt     *time.Time                   `json:"last_tick_at,omitempty"`
	Day            string                       `json:"day,omitempty"`
	Today          map[scheduler.PlanStatus]int `json:"today,omitempty"`
	PolicySource   string                       `json:"policy_source,omitempty"`
}

func (h Handlers) EngineStatus(c *gin.Context) {
	cfg := h.Engine.Config()
	st := engineStatus{
		Running:        h.Engine.IsRunning(),
		PeriodSeconds:  cfg.Period.Seconds(),
		MaxConcurrency: cfg.MaxConcurrency,
	}
	if s := h.Engine.Schedule(); !s.GeneratedAt.IsZero() {
		at := s.GeneratedAt
		st.LastTickAt = &at
		st.Day = s.Day
		st.Today = s.Counts()
	}
	if h.Policy != nil {
		if p := h.Policy.Current(); p != nil {
			st.PolicySource = p.Source
		}
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) StartEngine(c *gin.Context) {
	if err := h.Engine.Start(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventEngineStarted, "", "engine started")
	c.JSON(http.StatusOK, gin.H{"running": h.Engine.IsRunning()})
}

func (h Handlers) StopEngine(c *gin.Context) {
	h.Engine.Stop()
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventEngineStopped, "", "engine stopped")
	c.JSON(http.StatusOK, gin.H{"running": h.Engine.IsRunning()})
}

// TriggerTick runs one tick now. A stopped engine answers 409.
func (h Handlers) TriggerTick(c *gin.Context) {
	res, err := h.Engine.Tick(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), actor(c), audit.EventTickTriggered, "", "manual tick")
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Schedule())
}

// StreamSchedule relays observer events as server-sent events until the client leaves.
func (h Handlers) StreamSchedule(c *gin.Context) {
	events, unsub := h.Engine.Subscribe(32)
	defer unsub()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("schedule", h.Engine.Schedule())
	c.Writer.Flush()

	ping := time.NewTicker(sseKeepAlive)
	defer ping.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{"time": h.now().UTC()})
			return true
		}
	})
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"collections-engine/internal/cadence"
	"collections-engine/internal/calendar"
	"collections-engine/internal/calls"
	"collections-engine/internal/dispatcher"
	"collections-engine/internal/eligibility"
	"collections-engine/internal/observer"
	"collections-engine/internal/rotation"
	"collections-engine/internal/settings"
	"collections-engine/internal/telephony"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// TickResult summarizes one tick.
type TickResult struct {
	Considered int
	Eligible   int
	Dispatched int
	Rejected   int
	Unknown    int
	Skipped    int
	Truncated  bool
}

// Tick runs one evaluate-plan-dispatch pass. It returns ErrStopped unless the
// engine is running, ErrTickInProgress if another tick is running in this
// process, and ErrLeaseHeld if one is running elsewhere. Stop cuts off the
// launches of a tick already underway. A failing pair never aborts the tick.
func (e *Engine) Tick(ctx context.Context) (res TickResult, err error) {
	runCtx, running := e.runContext()
	if !running {
		return res, ErrStopped
	}
	if !e.tickMu.TryLock() {
		return res, ErrTickInProgress
	}
	defer e.tickMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(runCtx, cancel)
	defer unlink()

	if e.d.Lease != nil {
		release, lerr := e.d.Lease.Acquire(ctx)
		if lerr != nil {
			if errors.Is(lerr, ErrLeaseHeld) {
				e.log.Debug("tick skipped; lease held elsewhere")
			}
			return res, lerr
		}
		defer release()
	}

	ctx, span := e.tracer.Start(ctx, "scheduler.Tick")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tick panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("scheduler: tick panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tick failed")
		}
	}()

	started := e.clock()
	pol := e.d.Policy.Current()
	if pol == nil {
		return res, fmt.Errorf("%w: no campaign policy loaded", ErrPrecondition)
	}
	st, err := e.d.Settings.Require(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	accts, err := e.d.Accounts.ListWorkableAccounts(ctx, pol.Workable.Included())
	if err != nil {
		return res, fmt.Errorf("scheduler: list accounts: %w", err)
	}

	window := calendar.NewWindow(pol.Calendar, e.cfg.WindowStart, e.cfg.WindowEnd)
	filter := eligibility.New(window, e.d.Cadence)
	now := started

	plan := Schedule{
		Day:         now.In(pol.Calendar.DefaultLocation()).Format(time.DateOnly),
		GeneratedAt: now.UTC(),
		Excluded:    map[eligibility.Reason]int{},
	}
	// Rows of one account can normalize to the same number; only the first is planned.
	seen := map[cadence.Key]bool{}
	for _, a := range accts {
		for _, p := range a.Phones {
			plan.Considered++
			k := eligibility.KeyFor(a.ID, p)
			if k.Phone != "" {
				e.d.Cadence.Observe(k, p.LastCalled, p.LastEngagedAt)
			}
			dec := filter.Evaluate(pol.Workable, a, p, now)
			if dec.Eligible && seen[k] {
				dec.Eligible, dec.Reason = false, eligibility.ReasonDuplicateNumber
			}
			if !dec.Eligible {
				plan.Excluded[dec.Reason]++
				if dec.Reason == eligibility.ReasonCooldown {
					plan.Cooldowns = append(plan.Cooldowns, CooldownHold{
						AccountID: a.ID,
						PhoneID:   p.ID,
						Phone:     dec.E164,
						Until:     e.d.Cadence.CooldownUntil(k).UTC(),
					})
				}
				continue
			}
			seen[k] = true
			_, end := window.Bounds(dec.AreaCode, now)
			at := now.Add(e.randDuration(end.Sub(now)))
			plan.Calls = append(plan.Calls, PlannedCall{
				AccountID:     a.ID,
				AccountNumber: a.AccountNumber,
				DebtorName:    a.DebtorName,
				PhoneID:       p.ID,
				Phone:         dec.E164,
				AreaCode:      dec.AreaCode,
				Timezone:      dec.Location.String(),
				PlannedAt:     at.UTC(),
				LocalTime:     at.In(dec.Location).Format("15:04"),
				Status:        PlanPending,
			})
		}
	}
	sortPlan(plan.Calls)
	res.Considered = plan.Considered
	res.Eligible = len(plan.Calls)
	span.SetAttributes(
		attribute.Int("considered", res.Considered),
		attribute.Int("eligible", res.Eligible),
	)

	pools := rotation.Pools{Voices: pol.Voices, FromNumbers: pol.FromNumbers, DefaultFrom: st.FromNumber}
	e.dispatchPlan(ctx, plan.Calls, pools, st)

	for _, c := range plan.Calls {
		switch c.Status {
		case PlanDispatched:
			res.Dispatched++
		case PlanRejected:
			res.Rejected++
		case PlanUnknown:
			res.Unknown++
		case PlanSkipped:
			res.Skipped++
		case PlanPending:
			plan.Truncated = true
		}
	}
	res.Truncated = plan.Truncated

	e.mergePlan(plan)
	e.d.Bus.Publish(observer.Event{Type: observer.TypeScheduleUpdated, Time: e.clock().UTC(), Data: res})
	e.log.Info("tick finished",
		"considered", res.Considered,
		"eligible", res.Eligible,
		"dispatched", res.Dispatched,
		"rejected", res.Rejected,
		"unknown", res.Unknown,
		"skipped", res.Skipped,
		"truncated", res.Truncated,
		"took", e.clock().Sub(started),
	)
	return res, nil
}

// dispatchPlan launches plan entries in order with at most MaxConcurrency in
// flight. New launches stop once the tick budget elapses or ctx is cancelled;
// launched calls run on a context that survives both.
func (e *Engine) dispatchPlan(ctx context.Context, plan []PlannedCall, pools rotation.Pools, st settings.Settings) {
	launchCtx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()
	callCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrency)

	for i := range plan {
		if launchCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Each worker owns plan[i].
			plan[i] = e.dispatchOne(launchCtx, callCtx, plan[i], pools, st)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) dispatchOne(launchCtx, callCtx context.Context, pc PlannedCall, pools rotation.Pools, st settings.Settings) (out PlannedCall) {
	out = pc
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("dispatch panicked", "account_id", pc.AccountID, "panic", r, "stack", string(debug.Stack()))
			out.Status = PlanSkipped
			out.Error = fmt.Sprint(r)
		}
	}()

	if launchCtx.Err() != nil {
		return out
	}
	if d := e.randDuration(e.cfg.Jitter); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-launchCtx.Done():
			t.Stop()
			return out
		}
	}

	a := e.d.Rotation.Assign(callCtx, pc.AccountID, pools)
	out.Voice = a.Voice
	out.FromNumber = a.FromNumber

	cl, err := e.d.Dispatcher.Dispatch(callCtx, dispatcher.Request{
		AccountID:  pc.AccountID,
		PhoneID:    pc.PhoneID,
		E164:       pc.Phone,
		Assignment: a,
		Settings:   st,
	})
	out.CallLogID = cl.ID
	switch {
	case err == nil:
		out.Status = PlanDispatched
	case telephony.IsRejection(err) || cl.Status == calls.StatusFailed:
		out.Status = PlanRejected
		out.Error = err.Error()
	case errors.Is(err, dispatcher.ErrSkipped):
		out.Status = PlanSkipped
		out.Error = err.Error()
	default:
		out.Status = PlanUnknown
		out.Error = err.Error()
	}
	return out
}

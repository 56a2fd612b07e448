package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"collections-engine/internal/cadence"
	"collections-engine/internal/calls"
	"collections-engine/internal/rotation"
	"collections-engine/internal/settings"
	"collections-engine/internal/telephony"
	"collections-engine/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is the persistence contract the dispatcher needs.
type Repository interface {
	// InsertInitiated writes l and sets the phone's last_called to l.CallTime
	// in one transaction.
	InsertInitiated(ctx context.Context, l calls.CallLog) error
	UpdateCallLog(ctx context.Context, id string, p calls.Patch) error

	// TransitionCallLog applies p only if the row is still in status from.
	// It returns the row as stored after the call and whether p was applied.
	TransitionCallLog(ctx context.Context, id string, from calls.Status, p calls.Patch) (calls.CallLog, bool, error)

	GetCallLog(ctx context.Context, id string) (calls.CallLog, error)
	GetCallLogByProviderID(ctx context.Context, providerCallID string) (calls.CallLog, error)

	// TouchPhone max-merges last_called and, when non-nil, last_engaged_at.
	TouchPhone(ctx context.Context, phoneID string, lastCalled time.Time, engagedAt *time.Time) error
}

// SlotGate bounds in-flight provider calls across processes.
type SlotGate interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Notifier receives terminal outcomes, e.g. the observer bus.
type Notifier interface {
	OutcomeApplied(l calls.CallLog)
}

var (
	// ErrSkipped means nothing was written; the pair is reconsidered next tick.
	ErrSkipped = errors.New("dispatcher: dispatch skipped")

	ErrAlreadyTerminal = calls.ErrAlreadyTerminal
)

// Request is one planned call.
type Request struct {
	AccountID string
	PhoneID   string
	// E164 is the normalized destination.
	E164       string
	Assignment rotation.Assignment
	Settings   settings.Settings
}

type Dispatcher struct {
	repo     Repository
	provider telephony.OutboundProvider
	cadence  *cadence.Tracker
	gate     SlotGate
	notify   Notifier

	log    *slog.Logger
	tracer trace.Tracer
	clock  func() time.Time
	newID  func() string
}

type Option func(*Dispatcher)

func WithSlotGate(g SlotGate) Option { return func(d *Dispatcher) { d.gate = g } }

func WithNotifier(n Notifier) Option { return func(d *Dispatcher) { d.notify = n } }

func WithClock(fn func() time.Time) Option { return func(d *Dispatcher) { d.clock = fn } }

func WithIDs(fn func() string) Option { return func(d *Dispatcher) { d.newID = fn } }

func New(repo Repository, provider telephony.OutboundProvider, tracker *cadence.Tracker, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:     repo,
		provider: provider,
		cadence:  tracker,
		log:      logger.Component(log, "dispatcher"),
		tracer:   otel.Tracer("collections-engine/dispatcher"),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch writes the CallLog as initiated, then calls the provider.
//
//   - accepted: the log keeps status initiated and gains the provider call id.
//   - rejected: the log moves to failed; the returned error is a *telephony.ProviderError.
//   - unknown outcome after the insert: the log stays initiated and the error wraps
//     telephony.ErrUnavailable. It is never retried automatically.
//   - anything before the insert: nothing is written and the error wraps ErrSkipped.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (calls.CallLog, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.Dispatch", trace.WithAttributes(
		attribute.String("account_id", req.AccountID),
		attribute.String("voice", req.Assignment.Voice),
	))
	defer span.End()

	if req.E164 == "" || req.AccountID == "" {
		return calls.CallLog{}, fmt.Errorf("%w: account and destination are required", ErrSkipped)
	}

	if d.gate != nil {
		ok, err := d.gate.Acquire(ctx)
		if err != nil {
			span.RecordError(err)
			return calls.CallLog{}, fmt.Errorf("%w: in-flight gate: %v", ErrSkipped, err)
		}
		if !ok {
			span.SetStatus(codes.Error, "in-flight cap reached")
			return calls.CallLog{}, fmt.Errorf("%w: in-flight cap reached", ErrSkipped)
		}
		defer d.gate.Release(context.WithoutCancel(ctx))
	}

	now := d.clock().UTC()
	cl := calls.CallLog{
		ID:          d.newID(),
		AccountID:   req.AccountID,
		PhoneID:     req.PhoneID,
		PhoneNumber: req.E164,
		Status:      calls.StatusInitiated,
		VoiceUsed:   req.Assignment.Voice,
		FromNumber:  req.Assignment.FromNumber,
		CallTime:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.repo.InsertInitiated(ctx, cl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return calls.CallLog{}, fmt.Errorf("%w: insert call log: %v", ErrSkipped, err)
	}
	span.SetAttributes(attribute.String("call_log_id", cl.ID))
	if d.cadence != nil {
		d.cadence.RecordCall(cadence.Key{AccountID: req.AccountID, Phone: req.E164}, now)
	}

	log := d.log.With("call_log_id", cl.ID, "account_id", cl.AccountID)

	res, err := d.provider.PlaceCall(ctx, telephony.CallRequest{
		APIKey:             req.Settings.APIKey,
		Endpoint:           req.Settings.Endpoint,
		To:                 req.E164,
		From:               req.Assignment.FromNumber,
		Voice:              req.Assignment.Voice,
		QualityModel:       req.Settings.Model,
		MaxDurationSeconds: req.Settings.MaxDurationSeconds,
		Record:             req.Settings.Record,
		PathwayID:          req.Settings.PathwayID,
		Metadata:           map[string]string{telephony.MetadataCallLogID: cl.ID},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")

		if telephony.IsRejection(err) {
			failed := calls.StatusFailed
			msg := err.Error()
			var pe *telephony.ProviderError
			if errors.As(err, &pe) {
				msg = pe.Message
			}
			p := calls.Patch{Status: &failed, ErrorMessage: &msg, UpdatedAt: d.clock().UTC()}
			updated, applied, uerr := d.repo.TransitionCallLog(context.WithoutCancel(ctx), cl.ID, calls.StatusInitiated, p)
			if uerr != nil {
				log.Error("mark call failed", "err", uerr)
				p.Apply(&cl)
				return cl, err
			}
			if !applied {
				log.Warn("call log already moved on before rejection was recorded", "status", updated.Status)
			}
			log.Warn("provider rejected call", "provider_error", msg)
			return updated, err
		}

		log.Warn("provider outcome unknown; call log left initiated", "err", err)
		return cl, err
	}

	span.SetAttributes(attribute.String("provider_call_id", res.ProviderCallID))
	cl.ProviderCallID = res.ProviderCallID
	pid := res.ProviderCallID
	if uerr := d.repo.UpdateCallLog(context.WithoutCancel(ctx), cl.ID, calls.Patch{ProviderCallID: &pid, UpdatedAt: d.clock().UTC()}); uerr != nil {
		// The outcome webhook still finds the row through the echoed call_log_id.
		log.Error("record provider call id", "provider_call_id", pid, "err", uerr)
	}
	log.Info("call dispatched", "provider_call_id", pid, "voice", cl.VoiceUsed, "from", cl.FromNumber)
	return cl, nil
}

// ApplyOutcome moves a CallLog to its terminal status exactly once. Repeating
// the same terminal status is a no-op; a different one is ErrAlreadyTerminal.
func (d *Dispatcher) ApplyOutcome(ctx context.Context, o calls.Outcome) (calls.CallLog, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.ApplyOutcome", trace.WithAttributes(
		attribute.String("provider_call_id", o.ProviderCallID),
		attribute.String("status", string(o.Status)),
	))
	defer span.End()

	if !o.Status.IsTerminal() {
		return calls.CallLog{}, fmt.Errorf("%w: outcome status %q is not terminal", calls.ErrInvalidTransition, o.Status)
	}

	cl, err := d.find(ctx, o)
	if err != nil {
		span.RecordError(err)
		return calls.CallLog{}, err
	}

	if cl.Status.IsTerminal() {
		return d.settled(cl, o)
	}

	at := o.At
	if at.IsZero() {
		at = d.clock().UTC()
	}
	st := o.Status
	p := calls.Patch{
		Status:          &st,
		DurationSeconds: o.DurationSeconds,
		Engaged:         &o.Engaged,
		UpdatedAt:       d.clock().UTC(),
	}
	if o.RecordingURL != "" {
		p.RecordingURL = &o.RecordingURL
	}
	if o.Transcript != "" {
		p.Transcript = &o.Transcript
	}
	if o.ErrorMessage != "" {
		p.ErrorMessage = &o.ErrorMessage
	}
	if cl.ProviderCallID == "" && o.ProviderCallID != "" {
		p.ProviderCallID = &o.ProviderCallID
	}

	updated, applied, err := d.repo.TransitionCallLog(ctx, cl.ID, calls.StatusInitiated, p)
	if err != nil {
		span.RecordError(err)
		return calls.CallLog{}, fmt.Errorf("dispatcher: apply outcome: %w", err)
	}
	if !applied {
		// Another delivery won the race.
		return d.settled(updated, o)
	}

	d.sideEffects(ctx, updated, o.Engaged, at)
	d.log.Info("call outcome applied",
		"call_log_id", updated.ID,
		"account_id", updated.AccountID,
		"status", updated.Status,
		"engaged", updated.Engaged,
	)
	if d.notify != nil {
		d.notify.OutcomeApplied(updated)
	}
	return updated, nil
}

func (d *Dispatcher) find(ctx context.Context, o calls.Outcome) (calls.CallLog, error) {
	if o.CallLogID != "" {
		cl, err := d.repo.GetCallLog(ctx, o.CallLogID)
		if err == nil || !errors.Is(err, calls.ErrNotFound) || o.ProviderCallID == "" {
			return cl, err
		}
	}
	if o.ProviderCallID == "" {
		return calls.CallLog{}, calls.ErrNotFound
	}
	return d.repo.GetCallLogByProviderID(ctx, o.ProviderCallID)
}

func (d *Dispatcher) settled(cl calls.CallLog, o calls.Outcome) (calls.CallLog, error) {
	if cl.Status == o.Status {
		return cl, nil
	}
	return cl, fmt.Errorf("%w: %s is %s, outcome says %s", ErrAlreadyTerminal, cl.ID, cl.Status, o.Status)
}

// sideEffects updates cadence and the phone row. Both are max-merges, so a
// replayed outcome changes nothing.
func (d *Dispatcher) sideEffects(ctx context.Context, cl calls.CallLog, engaged bool, at time.Time) {
	key := cadence.Key{AccountID: cl.AccountID, Phone: cl.PhoneNumber}
	if d.cadence != nil {
		d.cadence.RecordCall(key, cl.CallTime)
		if engaged {
			d.cadence.RecordEngagement(key, at)
		}
	}
	if cl.PhoneID == "" {
		return
	}
	var engagedAt *time.Time
	if engaged {
		engagedAt = &at
	}
	if err := d.repo.TouchPhone(ctx, cl.PhoneID, cl.CallTime, engagedAt); err != nil {
		d.log.Error("update phone after outcome", "call_log_id", cl.ID, "phone_id", cl.PhoneID, "err", err)
	}
}

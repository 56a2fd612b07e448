package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"collections-engine/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	// ListEvents returns matching events newest first, at most f.EffectiveLimit().
	ListEvents(ctx context.Context, f Filter) ([]Event, error)
}

// Service records operator actions. Audit is internal-only.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: logger.Component(log, "audit"), clock: time.Now}
}

var (
	ErrInvalidEvent  = errors.New("audit: invalid event")
	ErrInvalidFilter = errors.New("audit: invalid filter")
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event and only logs a failure.
func (s *Service) Record(ctx context.Context, a Actor, t EventType, targetID, message string) {
	if s == nil {
		return
	}
	err := s.Append(ctx, Event{
		Type:        t,
		ActorUserID: a.UserID,
		ActorRole:   a.Role,
		IPAddress:   a.IP,
		TargetID:    targetID,
		Message:     message,
	})
	if err != nil {
		s.log.Warn("audit append failed", "type", t, "actor", a.UserID, "err", err)
	}
}

// List returns recorded events newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if f.Type != "" && !Known(f.Type) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, f.Type)
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	return s.repo.ListEvents(ctx, f)
}

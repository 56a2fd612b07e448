package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"collections-engine/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Reads only.
type Repository interface {
	CallLogsBetween(ctx context.Context, from, to time.Time) ([]calls.CallLog, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) load(ctx context.Context, r TimeRange) ([]calls.CallLog, error) {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	return s.repo.CallLogsBetween(ctx, r.From, r.To)
}

func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	rows, err := s.load(ctx, r)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r}
	withDuration := 0
	for _, c := range rows {
		out.TotalCalls++
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
			withDuration++
		}
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.Engaged {
			out.EngagedCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusNoAnswer:
			out.NoAnswerCalls++
		case calls.StatusVoicemail:
			out.VoicemailCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusInitiated, calls.StatusQueued:
			out.PendingCalls++
		}
	}
	if withDuration > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / withDuration
	}
	if settled := out.TotalCalls - out.PendingCalls; settled > 0 {
		out.ConnectionRate = float64(out.CompletedCalls) / float64(settled)
		out.EngagementRate = float64(out.EngagedCalls) / float64(settled)
	}
	return out, nil
}

// VoiceBreakdown reports settled calls per voice, sorted by voice.
func (s *Service) VoiceBreakdown(ctx context.Context, r TimeRange) ([]VoiceStats, error) {
	rows, err := s.load(ctx, r)
	if err != nil {
		return nil, err
	}
	byVoice := map[string]*VoiceStats{}
	for _, c := range rows {
		if !c.Status.IsTerminal() {
			continue
		}
		v := byVoice[c.VoiceUsed]
		if v == nil {
			v = &VoiceStats{Voice: c.VoiceUsed}
			byVoice[c.VoiceUsed] = v
		}
		v.Attempted++
		if c.Status == calls.StatusCompleted {
			v.Connected++
		}
		if c.Engaged {
			v.Engaged++
		}
	}
	out := make([]VoiceStats, 0, len(byVoice))
	for _, v := range byVoice {
		if v.Attempted > 0 {
			v.EngagementRate = float64(v.Engaged) / float64(v.Attempted)
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Voice < out[j].Voice })
	return out, nil
}

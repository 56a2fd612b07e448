package rules

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxRuleLength bounds rule_text in runes.
const MaxRuleLength = 2000

var (
	ErrNotFound    = errors.New("rules: rule not found")
	ErrInvalidRule = errors.New("rules: invalid rule")
)

type Repository interface {
	InsertRule(ctx context.Context, r Rule) error
	// ListRules returns rules newest first.
	ListRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, id string) error
	// DeletePendingRules removes rules that are not implemented and reports how many.
	DeletePendingRules(ctx context.Context) (int, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Add(ctx context.Context, text string) (Rule, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > MaxRuleLength {
		return Rule{}, ErrInvalidRule
	}
	r := Rule{ID: uuid.NewString(), RuleText: text, CreatedAt: s.clock().UTC()}
	if err := s.repo.InsertRule(ctx, r); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func (s *Service) List(ctx context.Context) ([]Rule, error) {
	return s.repo.ListRules(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	return s.repo.DeleteRule(ctx, id)
}

// ClearPending drops every rule not yet implemented.
func (s *Service) ClearPending(ctx context.Context) (int, error) {
	return s.repo.DeletePendingRules(ctx)
}

package settings

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// Repository persists the single settings row.
type Repository interface {
	GetSettings(ctx context.Context) (Settings, bool, error)
	PutSettings(ctx context.Context, s Settings) error
}

var (
	// ErrNotConfigured means no settings, or settings without credentials/pathway.
	ErrNotConfigured = errors.New("settings: provider not configured")
	ErrInvalid       = errors.New("settings: invalid settings")
)

// ValidationError lists field -> failed rule. It matches ErrInvalid.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrInvalid.Error(), strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Service loads settings on first use and serves the cached copy until
// Invalidate or Put.
type Service struct {
	repo     Repository
	validate *validator.Validate
	clock    func() time.Time

	mu     sync.RWMutex
	cached *Settings

	loads singleflight.Group
}

func NewService(repo Repository) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{repo: repo, validate: v, clock: time.Now}
}

// Get returns the cached settings, loading them if needed.
// Absence is not cached, so a later Put or external write is picked up.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	c := s.cached
	s.mu.RUnlock()
	if c != nil {
		return *c, nil
	}
	if s.repo == nil {
		return Settings{}, errors.New("settings: repository not configured")
	}

	v, err, _ := s.loads.Do("settings", func() (any, error) {
		st, ok, err := s.repo.GetSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("settings: load: %w", err)
		}
		if !ok {
			return nil, ErrNotConfigured
		}
		st = st.WithDefaults()
		s.mu.Lock()
		s.cached = &st
		s.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

// Require returns settings that are valid for dispatch.
func (s *Service) Require(ctx context.Context) (Settings, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	if strings.TrimSpace(st.APIKey) == "" || strings.TrimSpace(st.PathwayID) == "" {
		return Settings{}, fmt.Errorf("%w: api_key and pathway_id are required", ErrNotConfigured)
	}
	if err := s.Validate(st); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// Invalidate drops the cache; the next Get reloads.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) Validate(st Settings) error {
	err := s.validate.Struct(st)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, ve := range ves {
		out.Fields[ve.Field()] = ve.Tag()
	}
	return out
}

// Put validates, persists and re-caches. An empty or masked API key keeps the
// stored key so a masked read can be written back unchanged.
func (s *Service) Put(ctx context.Context, in Settings) (Settings, error) {
	if s.repo == nil {
		return Settings{}, errors.New("settings: repository not configured")
	}
	in.APIKey = strings.TrimSpace(in.APIKey)
	in.PathwayID = strings.TrimSpace(in.PathwayID)
	in.FromNumber = strings.TrimSpace(in.FromNumber)
	in.Endpoint = strings.TrimSpace(in.Endpoint)

	if in.APIKey == "" || strings.HasPrefix(in.APIKey, maskPrefix) {
		cur, ok, err := s.repo.GetSettings(ctx)
		if err != nil {
			return Settings{}, fmt.Errorf("settings: load: %w", err)
		}
		if ok {
			in.APIKey = cur.APIKey
		} else {
			in.APIKey = ""
		}
	}

	in = in.WithDefaults()
	if err := s.Validate(in); err != nil {
		return Settings{}, err
	}
	in.UpdatedAt = s.clock().UTC()
	if err := s.repo.PutSettings(ctx, in); err != nil {
		return Settings{}, fmt.Errorf("settings: save: %w", err)
	}

	s.mu.Lock()
	cp := in
	s.cached = &cp
	s.mu.Unlock()
	return in, nil
}

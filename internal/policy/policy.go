package policy

import (
	"errors"
	"fmt"
	"time"

	"collections-engine/internal/accounts"
	"collections-engine/internal/calendar"
	"collections-engine/internal/rotation"
	"collections-engine/internal/telephony"
)

// File is the on-disk campaign policy. A nil list means "use the default";
// an explicit empty holidays list means "no holidays".
type File struct {
	WorkableStatuses []accounts.Status  `json:"workable_statuses"`
	Voices           []string           `json:"voices"`
	FromNumbers      []string           `json:"from_numbers"`
	Holidays         []calendar.Holiday `json:"holidays"`
}

// Snapshot is the compiled policy a tick reads once at its start.
type Snapshot struct {
	Workable    accounts.WorkableSet
	Voices      []string
	FromNumbers []string
	Calendar    *calendar.Calendar

	Source   string
	Hash     uint64
	LoadedAt time.Time
}

var ErrInvalidPolicy = errors.New("policy: invalid policy")

// Compile validates f and resolves defaults against base.
func Compile(f File, base *calendar.Calendar) (*Snapshot, error) {
	if base == nil {
		return nil, errors.New("policy: base calendar is nil")
	}
	s := &Snapshot{}

	if f.WorkableStatuses == nil {
		s.Workable = accounts.DefaultWorkableSet()
	} else {
		s.Workable = accounts.WorkableSet{}
		for _, st := range f.WorkableStatuses {
			if !st.Valid() {
				return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPolicy, st)
			}
			s.Workable[st] = true
		}
	}

	if f.Voices == nil {
		s.Voices = append([]string(nil), rotation.DefaultVoices...)
	} else {
		for _, v := range f.Voices {
			if v == "" {
				return nil, fmt.Errorf("%w: empty voice id", ErrInvalidPolicy)
			}
		}
		if len(f.Voices) == 0 {
			return nil, fmt.Errorf("%w: voices must not be empty", ErrInvalidPolicy)
		}
		s.Voices = dedupe(f.Voices)
	}

	for _, n := range f.FromNumbers {
		e := telephony.NormalizeE164(n)
		if e == "" {
			return nil, fmt.Errorf("%w: bad from number %q", ErrInvalidPolicy, n)
		}
		s.FromNumbers = append(s.FromNumbers, e)
	}
	s.FromNumbers = dedupe(s.FromNumbers)

	if f.Holidays == nil {
		s.Calendar = base
	} else {
		cal, err := base.WithHolidays(f.Holidays)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
		s.Calendar = cal
	}
	return s, nil
}

// Default is the policy used when no file is configured.
func Default(base *calendar.Calendar) *Snapshot {
	s, err := Compile(File{}, base)
	if err != nil {
		// Compile(File{}) only fails on a nil base.
		panic(err)
	}
	s.Source = "default"
	return s
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

package rotation

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"collections-engine/pkg/logger"
	"collections-engine/pkg/utils"
)

// DefaultVoices is the voice persona pool used when no policy file overrides it.
var DefaultVoices = []string{"nat", "josh", "rachel", "emily"}

// State is the last persona and originating number used for an account.
type State struct {
	LastVoice      string `json:"last_voice"`
	LastFromNumber string `json:"last_from_number"`
}

// Store persists rotation state so a restart does not reset it.
type Store interface {
	Get(ctx context.Context, accountID string) (State, bool, error)
	Put(ctx context.Context, accountID string, s State) error
}

// Pools are the candidates for one assignment, snapshotted per tick.
type Pools struct {
	Voices      []string
	FromNumbers []string

	// DefaultFrom is used when FromNumbers is empty.
	DefaultFrom string
}

type Assignment struct {
	Voice      string
	FromNumber string
}

// Policy picks a voice and an originating number per account, never repeating
// the previous pick while the pool has an alternative. Choice and commit happen
// under the account's exclusive lock.
type Policy struct {
	store Store
	locks *utils.KeyedRWMutex
	log   *slog.Logger

	cacheMu sync.RWMutex
	cache   map[string]State

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewPolicy(store Store, rng *rand.Rand, log *slog.Logger) *Policy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Policy{
		store: store,
		locks: utils.NewKeyedRWMutex(0),
		log:   logger.Component(log, "rotation"),
		cache: map[string]State{},
		rng:   rng,
	}
}

// Assign chooses and commits both values for accountID.
func (p *Policy) Assign(ctx context.Context, accountID string, pools Pools) Assignment {
	unlock := p.locks.Lock(accountID)
	defer unlock()

	st := p.load(ctx, accountID)
	a := Assignment{
		Voice:      p.pick(pools.Voices, st.LastVoice),
		FromNumber: p.pick(pools.FromNumbers, st.LastFromNumber),
	}
	if a.FromNumber == "" {
		a.FromNumber = pools.DefaultFrom
	}
	p.commit(ctx, accountID, State{LastVoice: a.Voice, LastFromNumber: a.FromNumber})
	return a
}

// NextVoice rotates only the voice.
func (p *Policy) NextVoice(ctx context.Context, accountID string, voices []string) string {
	unlock := p.locks.Lock(accountID)
	defer unlock()

	st := p.load(ctx, accountID)
	st.LastVoice = p.pick(voices, st.LastVoice)
	p.commit(ctx, accountID, st)
	return st.LastVoice
}

// NextOriginatingNumber rotates only the originating number.
func (p *Policy) NextOriginatingNumber(ctx context.Context, accountID string, numbers []string, fallback string) string {
	unlock := p.locks.Lock(accountID)
	defer unlock()

	st := p.load(ctx, accountID)
	n := p.pick(numbers, st.LastFromNumber)
	if n == "" {
		n = fallback
	}
	st.LastFromNumber = n
	p.commit(ctx, accountID, st)
	return n
}

// Last returns the committed state for accountID.
func (p *Policy) Last(ctx context.Context, accountID string) State {
	unlock := p.locks.RLock(accountID)
	defer unlock()
	return p.load(ctx, accountID)
}

// load must be called with the account lock held.
func (p *Policy) load(ctx context.Context, accountID string) State {
	p.cacheMu.RLock()
	st, ok := p.cache[accountID]
	p.cacheMu.RUnlock()
	if ok {
		return st
	}

	st, found, err := p.store.Get(ctx, accountID)
	if err != nil {
		// Losing state costs one possible repeat, never a missed call.
		p.log.Warn("rotation state read failed", "account_id", accountID, "err", err)
		return State{}
	}
	if found {
		p.cacheMu.Lock()
		p.cache[accountID] = st
		p.cacheMu.Unlock()
	}
	return st
}

// commit must be called with the account lock held.
func (p *Policy) commit(ctx context.Context, accountID string, st State) {
	p.cacheMu.Lock()
	p.cache[accountID] = st
	p.cacheMu.Unlock()

	if err := p.store.Put(ctx, accountID, st); err != nil {
		p.log.Warn("rotation state write failed", "account_id", accountID, "err", err)
	}
}

func (p *Policy) pick(pool []string, last string) string {
	candidates := make([]string, 0, len(pool))
	for _, v := range pool {
		if v != "" && v != last {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		// Single-entry pool degrades to always returning it.
		for _, v := range pool {
			if v != "" {
				return v
			}
		}
		return ""
	}
	p.rngMu.Lock()
	i := p.rng.Intn(len(candidates))
	p.rngMu.Unlock()
	return candidates[i]
}

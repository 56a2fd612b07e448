package rotation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"collections-engine/pkg/logger"
)

type recordingStore struct {
	MemoryStore
	mu     sync.Mutex
	voices []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: MemoryStore{state: map[string]State{}}}
}

func (r *recordingStore) Put(ctx context.Context, accountID string, s State) error {
	r.mu.Lock()
	r.voices = append(r.voices, s.LastVoice)
	r.mu.Unlock()
	return r.MemoryStore.Put(ctx, accountID, s)
}

func TestNextVoice_NeverRepeatsConsecutively(t *testing.T) {
	p := NewPolicy(nil, rand.New(rand.NewSource(1)), logger.Discard())
	ctx := context.Background()
	prev := ""
	for i := 0; i < 200; i++ {
		v := p.NextVoice(ctx, "a1", DefaultVoices)
		if v == prev {
			t.Fatalf("voice repeated at step %d: %s", i, v)
		}
		prev = v
	}
}

func TestNextVoice_SingleVoiceDegrades(t *testing.T) {
	p := NewPolicy(nil, rand.New(rand.NewSource(1)), logger.Discard())
	for i := 0; i < 3; i++ {
		if v := p.NextVoice(context.Background(), "a1", []string{"nat"}); v != "nat" {
			t.Fatalf("expected nat, got %q", v)
		}
	}
}

func TestNextOriginatingNumber_FallsBack(t *testing.T) {
	p := NewPolicy(nil, rand.New(rand.NewSource(1)), logger.Discard())
	if n := p.NextOriginatingNumber(context.Background(), "a1", nil, "+13125550100"); n != "+13125550100" {
		t.Fatalf("expected fallback number, got %q", n)
	}
	pool := []string{"+13125550101", "+13125550102"}
	a := p.NextOriginatingNumber(context.Background(), "a1", pool, "")
	b := p.NextOriginatingNumber(context.Background(), "a1", pool, "")
	if a == b {
		t.Fatalf("expected exclude-last on numbers, got %s twice", a)
	}
}

func TestAssign_ConcurrentSameAccountNeverRepeats(t *testing.T) {
	store := newRecordingStore()
	p := NewPolicy(store, rand.New(rand.NewSource(7)), logger.Discard())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Assign(ctx, "a1", Pools{Voices: DefaultVoices, DefaultFrom: "+13125550100"})
		}()
	}
	wg.Wait()

	if len(store.voices) != 64 {
		t.Fatalf("expected 64 commits, got %d", len(store.voices))
	}
	for i := 1; i < len(store.voices); i++ {
		if store.voices[i] == store.voices[i-1] {
			t.Fatalf("consecutive voices equal at %d: %s", i, store.voices[i])
		}
	}
}

func TestAssign_ResumesFromStore(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Put(context.Background(), "a1", State{LastVoice: "nat"})
	for i := 0; i < 10; i++ {
		fresh := NewPolicy(store, rand.New(rand.NewSource(int64(i))), logger.Discard())
		before := fresh.Last(context.Background(), "a1").LastVoice
		a := fresh.Assign(context.Background(), "a1", Pools{Voices: DefaultVoices})
		if a.Voice == before {
			t.Fatalf("expected restart to honor stored last voice %s", before)
		}
	}
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, accountID string) (State, bool, error) {
	return State{}, false, errors.New("redis down")
}
func (failingStore) Put(ctx context.Context, accountID string, s State) error {
	return errors.New("redis down")
}

func TestAssign_StoreFailureStillRotatesInMemory(t *testing.T) {
	p := NewPolicy(failingStore{}, rand.New(rand.NewSource(1)), logger.Discard())
	prev := ""
	for i := 0; i < 20; i++ {
		a := p.Assign(context.Background(), "a1", Pools{Voices: DefaultVoices})
		if a.Voice == prev {
			t.Fatalf("expected in-memory rotation despite store errors")
		}
		prev = a.Voice
	}
}

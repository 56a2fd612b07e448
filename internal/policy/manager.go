package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"collections-engine/internal/calendar"
	"collections-engine/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Manager owns the current policy snapshot. Reads are lock-free; a reload
// swaps the pointer, so a tick that already read Current keeps its copy.
type Manager struct {
	path string
	base *calendar.Calendar
	log  *slog.Logger
	now  func() time.Time

	cur atomic.Pointer[Snapshot]

	// OnChange, if set, runs after each committed reload.
	OnChange func(*Snapshot)
}

// NewManager starts with the default policy. path may be empty.
func NewManager(path string, base *calendar.Calendar, log *slog.Logger) *Manager {
	m := &Manager{path: path, base: base, log: logger.Component(log, "policy"), now: time.Now}
	m.cur.Store(Default(base))
	return m
}

func (m *Manager) Path() string { return m.path }

// Current returns the latest good snapshot.
func (m *Manager) Current() *Snapshot {
	return m.cur.Load()
}

// Load reads and commits the file. Without a path the defaults stay.
func (m *Manager) Load() (*Snapshot, error) {
	if m.path == "" {
		return m.Current(), nil
	}
	s, err := m.parse()
	if err != nil {
		return nil, err
	}
	m.commit(s)
	return s, nil
}

func (m *Manager) parse() (*Snapshot, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", m.path, err)
	}
	f, err := decode(m.path, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, m.path, err)
	}
	s, err := Compile(f, m.base)
	if err != nil {
		return nil, err
	}
	s.Source = m.path
	s.Hash = hashBytes(b)
	s.LoadedAt = m.now().UTC()
	return s, nil
}

func (m *Manager) commit(s *Snapshot) {
	m.cur.Store(s)
	if m.OnChange != nil {
		m.OnChange(s)
	}
}

// reload keeps the last good policy when the file is missing or invalid.
func (m *Manager) reload() {
	s, err := m.parse()
	if err != nil {
		m.log.Warn("policy reload rejected; keeping last good policy", "path", m.path, "err", err)
		return
	}
	if prev := m.Current(); prev != nil && prev.Hash != 0 && prev.Hash == s.Hash {
		m.log.Debug("policy unchanged; skipping", "path", m.path)
		return
	}
	m.commit(s)
	m.log.Info("policy reloaded",
		"path", m.path,
		"workable", len(s.Workable.Included()),
		"voices", len(s.Voices),
		"from_numbers", len(s.FromNumbers),
		"holidays", len(s.Calendar.Holidays()),
	)
}

// Watch reloads the file on change until ctx is done. Events are debounced so
// editors that write in several steps trigger one reload.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return errors.New("policy: no file to watch")
	}
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, m.reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("policy watch init failed", "dir", dir, "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		m.log.Debug("policy watcher started", "dir", dir, "file", file)

		// Runs until the watcher breaks; the outer loop then recreates it.
		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					debounce()
					continue
				}
				m.log.Warn("policy watcher error", "err", err)
			}
		}
		_ = w.Close()
	}
}

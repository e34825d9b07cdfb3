package tcp

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode"

	"newsdist/internal/session"
)

var (
	ErrEmptyName = errors.New("subscriber name is empty")
	ErrNameTaken = errors.New("subscriber name already registered")
)

// Registry maps subscriber names (unique, case-sensitive) to live sessions.
// The lock covers map operations only, never network writes.
type Registry struct {
	sessions map[string]*session.Session
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
	}
}

// SanitizeName drops control characters and surrounding whitespace.
func SanitizeName(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(cleaned)
}

// Add inserts s under name. The presence check and the insert are one atomic step.
func (r *Registry) Add(name string, s *session.Session) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[name]; exists {
		return ErrNameTaken
	}
	r.sessions[name] = s
	return nil
}

// Remove deletes name only if it still maps to s, so a stale session can never
// evict a newer holder of the same name. It reports whether an entry was removed.
func (r *Registry) Remove(name string, s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[name]
	if !exists || current != s {
		return false
	}
	delete(r.sessions, name)
	return true
}

func (r *Registry) Get(name string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[name]
	return s, exists
}

// Snapshot returns every registered session at call time.
func (r *Registry) Snapshot() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SnapshotNames returns the sessions registered under names, plus the names
// that are not registered.
func (r *Registry) SnapshotNames(names []string) (found []*session.Session, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(names))
	found = make([]*session.Session, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if s, exists := r.sessions[name]; exists {
			found = append(found, s)
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and single-node development
// runs. Entries are held in insertion order and filtered on read.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemStore) Query(ctx context.Context, f Filter, limit, offset int) ([]Entry, error) {
	matched := s.filtered(f)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemStore) Count(ctx context.Context, f Filter) (int, error) {
	return len(s.filtered(f)), nil
}

func (s *MemStore) StatsBySeverity(ctx context.Context, clinicID string, from, to time.Time) (map[Severity]int, error) {
	counts := make(map[Severity]int)
	for _, e := range s.filtered(Filter{ClinicID: clinicID, From: from, To: to}) {
		counts[e.Severity]++
	}
	return counts, nil
}

func (s *MemStore) filtered(f Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matches(e Entry, f Filter) bool {
	if f.ClinicID != "" && e.ClinicID != f.ClinicID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.OccurredAt.After(f.To) {
		return false
	}
	if f.SecurityOnly && !isSecurityRelevant(e) {
		return false
	}
	return true
}

func isSecurityRelevant(e Entry) bool {
	if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
		return true
	}
	for _, a := range securityActions {
		if e.Action == a {
			return true
		}
	}
	return false
}

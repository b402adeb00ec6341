package matrix

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Suggestions is the free-entry autocomplete list: every distinct cell value
// seen in the grid plus values added during the session. Values are
// de-duplicated case-insensitively and the first spelling wins.
type Suggestions struct {
	mu     sync.RWMutex
	values []string
	folded map[string]struct{}
}

// BuildSuggestions projects the given cell values into a suggestion list.
func BuildSuggestions(values []string) *Suggestions {
	s := &Suggestions{folded: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.add(v)
	}
	sort.Strings(s.values)
	return s
}

// Add appends value and reports whether it was new.
func (s *Suggestions) Add(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(value)
}

func (s *Suggestions) add(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	key := fold(value)
	if _, ok := s.folded[key]; ok {
		return false
	}
	s.folded[key] = struct{}{}
	s.values = append(s.values, value)
	return true
}

// List returns a copy of the suggestions.
func (s *Suggestions) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Match returns up to limit suggestions containing query, prefix matches
// first. limit <= 0 means no limit.
func (s *Suggestions) Match(query string, limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := fold(strings.TrimSpace(query))
	var prefix, contains []string
	for _, v := range s.values {
		fv := fold(v)
		switch {
		case strings.HasPrefix(fv, q):
			prefix = append(prefix, v)
		case strings.Contains(fv, q):
			contains = append(contains, v)
		}
	}
	out := append(prefix, contains...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Contains reports whether value is already suggested.
func (s *Suggestions) Contains(value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.folded[fold(strings.TrimSpace(value))]
	return ok
}

// cases.Caser is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

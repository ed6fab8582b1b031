package query

import (
	"slices"

	"github.com/MikeSquared-Agency/glossa/internal/store"
)

// Selection tracks which history rows are checked for bulk delete.
type Selection struct {
	checked map[string]bool
	all     bool
}

func NewSelection() *Selection {
	return &Selection{checked: make(map[string]bool)}
}

// SelectAll checks every entry of view and leaves other keys untouched.
func (s *Selection) SelectAll(view []store.Entry) {
	for _, e := range view {
		s.checked[e.Timestamp] = true
	}
	s.all = true
}

// UnselectAll unchecks every entry of view and clears the "all" flag.
func (s *Selection) UnselectAll(view []store.Entry) {
	for _, e := range view {
		delete(s.checked, e.Timestamp)
	}
	s.all = false
}

// Set checks or unchecks one key. Unchecking clears the "all" flag.
func (s *Selection) Set(key string, on bool) {
	if on {
		s.checked[key] = true
		return
	}
	delete(s.checked, key)
	s.all = false
}

func (s *Selection) All() bool { return s.all }

func (s *Selection) Selected(key string) bool { return s.checked[key] }

// Keys returns the checked keys in sorted order.
func (s *Selection) Keys() []string {
	keys := make([]string, 0, len(s.checked))
	for k, on := range s.checked {
		if on {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Clear drops every check and the "all" flag.
func (s *Selection) Clear() {
	clear(s.checked)
	s.all = false
}

// Retain drops checks for keys that are no longer in entries.
func (s *Selection) Retain(entries []store.Entry) {
	live := make(map[string]bool, len(entries))
	for _, e := range entries {
		live[e.Timestamp] = true
	}
	for k := range s.checked {
		if !live[k] {
			delete(s.checked, k)
		}
	}
}

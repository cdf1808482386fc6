package editor

import (
	"slices"
	"sync"
)

// Selection is the ordered set of selected block ids. It drops ids that
// disappear from the store.
type Selection struct {
	mu       sync.Mutex
	store    *BlockStore
	ids      []string
	onChange func(ids []string)
	unsub    func()
}

// NewSelection tracks store. onChange, if set, receives the new id list after
// every effective change.
func NewSelection(store *BlockStore, onChange func(ids []string)) *Selection {
	s := &Selection{store: store, onChange: onChange}
	s.unsub = store.Subscribe(func(c Change) {
		if c.Kind == ChangeRemoved || c.Kind == ChangeReplaced {
			s.prune()
		}
	})
	return s
}

// Close detaches the selection from its store.
func (s *Selection) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

// Select makes id the selection, or toggles it into/out of the selection when
// multi is set. Unknown ids are ignored.
func (s *Selection) Select(id string, multi bool) []string {
	if !s.store.Has(id) {
		return s.IDs()
	}
	s.mu.Lock()
	before := slices.Clone(s.ids)
	switch {
	case !multi:
		s.ids = []string{id}
	case slices.Contains(s.ids, id):
		s.ids = slices.DeleteFunc(s.ids, func(x string) bool { return x == id })
	default:
		s.ids = append(s.ids, id)
	}
	out := slices.Clone(s.ids)
	s.mu.Unlock()

	if !slices.Equal(before, out) {
		s.emit(out)
	}
	return out
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	had := len(s.ids) > 0
	s.ids = nil
	s.mu.Unlock()
	if had {
		s.emit(nil)
	}
}

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids)
}

func (s *Selection) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.ids, id)
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Selection) prune() {
	s.mu.Lock()
	kept := s.ids[:0:0]
	for _, id := range s.ids {
		if s.store.Has(id) {
			kept = append(kept, id)
		}
	}
	changed := len(kept) != len(s.ids)
	s.ids = kept
	out := slices.Clone(kept)
	s.mu.Unlock()

	if changed {
		s.emit(out)
	}
}

func (s *Selection) emit(ids []string) {
	if s.onChange != nil {
		s.onChange(ids)
	}
}

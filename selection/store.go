package selection

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrInvalidBBox = errors.New("bounding box must have positive width and height")
	ErrInvalidPage = errors.New("page index must be non-negative")
)

// Selection is a rectangular region on one page tagged with a removal method.
type Selection struct {
	ID     string
	Page   int
	BBox   BBox
	Method Method
}

type selectionJSON struct {
	ID     string     `json:"id"`
	Page   int        `json:"page"`
	BBox   BBox       `json:"bbox"`
	Method MethodKind `json:"method"`
	Color  string     `json:"color,omitempty"`
}

func (s Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(selectionJSON{
		ID:     s.ID,
		Page:   s.Page,
		BBox:   s.BBox,
		Method: s.Method.Kind(),
		Color:  ColorOf(s.Method),
	})
}

// Patch carries the fields Update may change. Nil fields are left alone.
type Patch struct {
	BBox   *BBox
	Method Method
}

// Store holds every selection of a session in insertion order.
type Store struct {
	mu    sync.RWMutex
	items []Selection
	newID func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{newID: uuid.NewString}
}

// Add normalizes bbox and appends a new selection. It returns the new id.
func (s *Store) Add(page int, bbox BBox, method Method) (string, error) {
	if page < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	bbox = bbox.Normalize()
	if !bbox.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidBBox, bbox)
	}
	if method == nil {
		method = DefaultMethod()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.items = append(s.items, Selection{ID: id, Page: page, BBox: bbox, Method: method})
	return id, nil
}

// Remove deletes the selection with the given id. Unknown ids are ignored.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.DeleteFunc(s.items, func(sel Selection) bool { return sel.ID == id })
}

// Update merges patch into the selection with the given id. Unknown ids are
// ignored whatever the patch holds. A patched bbox is normalized and must stay
// non-degenerate.
func (s *Store) Update(id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return nil
	}
	if patch.BBox != nil {
		bbox := patch.BBox.Normalize()
		if !bbox.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidBBox, bbox)
		}
		s.items[i].BBox = bbox
	}
	if patch.Method != nil {
		s.items[i].Method = patch.Method
	}
	return nil
}

// Clear removes every selection.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Get returns the selection with the given id.
func (s *Store) Get(id string) (Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return Selection{}, false
	}
	return s.items[i], true
}

// Len is the number of stored selections across all pages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All yields every selection in insertion order.
func (s *Store) All() iter.Seq[Selection] {
	return func(yield func(Selection) bool) {
		for _, sel := range s.snapshot() {
			if !yield(sel) {
				return
			}
		}
	}
}

// ListForPage yields the selections on page in insertion order. Each range
// over the returned sequence reads a fresh snapshot.
func (s *Store) ListForPage(page int) iter.Seq[Selection] {
	return func(yield func(Selection) bool) {
		for _, sel := range s.snapshot() {
			if sel.Page != page {
				continue
			}
			if !yield(sel) {
				return
			}
		}
	}
}

func (s *Store) snapshot() []Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.items, func(sel Selection) bool { return sel.ID == id })
}

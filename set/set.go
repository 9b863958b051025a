package set

import (
	"errors"
	"sync"
)

// Returned when an added key already exists in the set.
var ErrCollision = errors.New("key already exists")

// Returned when a requested item does not exist in the set.
var ErrMissing = errors.New("item does not exist")

// Returned when a nil item is added. Nil values are invalid.
var ErrNil = errors.New("item value must not be nil")

// Set is a concurrency-safe collection of items, unique by key.
type Set struct {
	sync.RWMutex
	lookup map[string]Item
}

// New creates a new set.
func New() *Set {
	return &Set{
		lookup: map[string]Item{},
	}
}

// Clear removes all items and returns them.
func (s *Set) Clear() []Item {
	s.Lock()
	items := make([]Item, 0, len(s.lookup))
	for _, item := range s.lookup {
		items = append(items, item)
	}
	s.lookup = map[string]Item{}
	s.Unlock()
	return items
}

// Len returns the size of the set right now.
func (s *Set) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.lookup)
}

// In checks if an item exists in this set.
func (s *Set) In(key string) bool {
	s.RLock()
	_, ok := s.lookup[key]
	s.RUnlock()
	return ok
}

// Get returns an item with the given key.
func (s *Set) Get(key string) (Item, error) {
	s.RLock()
	item, ok := s.lookup[key]
	s.RUnlock()

	if !ok {
		return nil, ErrMissing
	}
	return item, nil
}

// AddNew adds an item to this set if it does not exist already.
func (s *Set) AddNew(item Item) error {
	if item.Value() == nil {
		return ErrNil
	}
	key := item.Key()

	s.Lock()
	defer s.Unlock()

	if _, found := s.lookup[key]; found {
		return ErrCollision
	}
	s.lookup[key] = item
	return nil
}

// RemoveIf removes the item stored under key only if match approves it.
func (s *Set) RemoveIf(key string, match func(Item) bool) error {
	s.Lock()
	defer s.Unlock()

	item, found := s.lookup[key]
	if !found || !match(item) {
		return ErrMissing
	}
	delete(s.lookup, key)
	return nil
}

// Snapshot returns the items present right now. The returned slice is owned by
// the caller and is not affected by later changes to the set.
func (s *Set) Snapshot() []Item {
	s.RLock()
	defer s.RUnlock()
	r := make([]Item, 0, len(s.lookup))
	for _, item := range s.lookup {
		r = append(r, item)
	}
	return r
}

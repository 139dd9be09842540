package session

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// Store holds the trader's selected legs in insertion order.
// Identity for dedup is the business key (kind, strike, underlying); the
// generated id is only a handle. Not safe for concurrent use: the session
// loop is its only writer.
type Store struct {
	order []string
	byID  map[string]*domain.Selection
	byKey map[domain.LegKey]string
	newID func() string
}

// NewStore returns an empty store that issues UUID handles.
func NewStore() *Store {
	return &Store{
		byID:  make(map[string]*domain.Selection),
		byKey: make(map[domain.LegKey]string),
		newID: uuid.NewString,
	}
}

// Add appends a buy selection for req. If a leg with the same business key
// exists it is returned unchanged and added is false.
func (s *Store) Add(req domain.LegRequest) (sel domain.Selection, added bool) {
	key := req.Key()
	if id, ok := s.byKey[key]; ok {
		return *s.byID[id], false
	}

	sel = domain.Selection{
		ID:         s.newID(),
		Kind:       req.Kind,
		Strike:     req.Strike,
		Symbol:     req.Symbol,
		Underlying: key.Underlying,
		Expiry:     strings.TrimSpace(req.Expiry),
		Action:     domain.ActionBuy,
	}
	s.order = append(s.order, sel.ID)
	s.byID[sel.ID] = &sel
	s.byKey[key] = sel.ID
	return sel, true
}

// UpdateAction sets the action of id. changed is false when the action was
// already a; ok is false for an unknown id.
func (s *Store) UpdateAction(id string, a domain.Action) (prev domain.Action, changed, ok bool) {
	sel, ok := s.byID[id]
	if !ok {
		return "", false, false
	}
	prev = sel.Action
	if prev == a {
		return prev, false, true
	}
	sel.Action = a
	return prev, true, true
}

// Remove deletes id keeping the order of the remaining legs.
func (s *Store) Remove(id string) (domain.Selection, bool) {
	sel, ok := s.byID[id]
	if !ok {
		return domain.Selection{}, false
	}
	delete(s.byID, id)
	delete(s.byKey, sel.Key())
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	return *sel, true
}

// Clear empties the store and returns what it held, in order.
func (s *Store) Clear() []domain.Selection {
	out := s.List()
	s.order = nil
	clear(s.byID)
	clear(s.byKey)
	return out
}

// Get returns a copy of the selection with id.
func (s *Store) Get(id string) (domain.Selection, bool) {
	sel, ok := s.byID[id]
	if !ok {
		return domain.Selection{}, false
	}
	return *sel, true
}

// Lookup finds a selection by business key.
func (s *Store) Lookup(key domain.LegKey) (domain.Selection, bool) {
	id, ok := s.byKey[key]
	if !ok {
		return domain.Selection{}, false
	}
	return *s.byID[id], true
}

// List returns a copy of every selection in insertion order.
func (s *Store) List() []domain.Selection {
	out := make([]domain.Selection, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

func (s *Store) Len() int { return len(s.order) }

// Package state holds the client-side collections and the optimistic save flow.
package state

import (
	"sync"

	"github.com/stanstork/alumni-sync/internal/models"
)

type entry struct {
	key     uint64
	contact models.Contact
}

// Store is the local view of contacts and events.
type Store struct {
	mu       sync.RWMutex
	contacts []entry
	archived []models.Contact
	nextKey  uint64

	Events  *EventList
	Current *EventSlot
}

func NewStore() *Store {
	return &Store{Events: &EventList{}, Current: &EventSlot{}}
}

// SetContacts replaces the active contacts, e.g. after a full load.
func (s *Store) SetContacts(contacts []models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = make([]entry, len(contacts))
	for i, c := range contacts {
		s.nextKey++
		s.contacts[i] = entry{key: s.nextKey, contact: c}
	}
}

func (s *Store) Contacts() []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Contact, len(s.contacts))
	for i, e := range s.contacts {
		out[i] = e.contact
	}
	return out
}

func (s *Store) SetArchived(contacts []models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append([]models.Contact(nil), contacts...)
}

func (s *Store) Archived() []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Contact(nil), s.archived...)
}

// undo restores the store to its state before one optimistic transition.
type undo func()

func (s *Store) indexByID(id int64) int {
	for i, e := range s.contacts {
		if e.contact.ID != nil && *e.contact.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByKey(key uint64) int {
	for i, e := range s.contacts {
		if e.key == key {
			return i
		}
	}
	return -1
}

// stage applies c locally and returns the entry key and how to undo it.
func (s *Store) stage(c models.Contact) (uint64, undo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID != nil {
		if i := s.indexByID(*c.ID); i >= 0 {
			prev := s.contacts[i]
			s.contacts[i].contact = c
			return prev.key, func() {
				if j := s.indexByKey(prev.key); j >= 0 {
					s.contacts[j] = prev
				}
			}
		}
	}

	s.nextKey++
	key := s.nextKey
	s.contacts = append(s.contacts, entry{key: key, contact: c})
	return key, func() {
		if j := s.indexByKey(key); j >= 0 {
			s.contacts = append(s.contacts[:j], s.contacts[j+1:]...)
		}
	}
}

// confirm swaps the staged entry for the server's copy.
func (s *Store) confirm(key uint64, saved models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByKey(key); i >= 0 {
		s.contacts[i].contact = saved
	}
}

func (s *Store) revert(u undo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u()
}

// stageArchive moves a contact to the archived list.
func (s *Store) stageArchive(id int64) (undo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByID(id)
	if i < 0 {
		return nil, false
	}
	moved := s.contacts[i]
	s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
	archived := moved.contact
	archived.Active = false
	s.archived = append(s.archived, archived)

	return func() {
		for j, a := range s.archived {
			if a.ID != nil && *a.ID == id {
				s.archived = append(s.archived[:j], s.archived[j+1:]...)
				break
			}
		}
		s.contacts = append(s.contacts, moved)
	}, true
}

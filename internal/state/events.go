package state

import (
	"sync"

	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/realtime"
)

func cloneEvent(e models.Event) models.Event {
	e.Attendance = append([]models.Attendance(nil), e.Attendance...)
	return e
}

// EventList is the locally held list of active events.
type EventList struct {
	mu     sync.RWMutex
	events []models.Event
}

var _ realtime.Holder = (*EventList)(nil)

func (l *EventList) Set(events []models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = make([]models.Event, len(events))
	for i, e := range events {
		l.events[i] = cloneEvent(e)
	}
}

// Events returns a copy of the list.
func (l *EventList) Events() []models.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Event, len(l.events))
	for i, e := range l.events {
		out[i] = cloneEvent(e)
	}
	return out
}

// Get returns a copy of the event with id.
func (l *EventList) Get(id int64) (models.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.events {
		if e.ID != nil && *e.ID == id {
			return cloneEvent(e), true
		}
	}
	return models.Event{}, false
}

func (l *EventList) IDs() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]int64, 0, len(l.events))
	for _, e := range l.events {
		if e.ID != nil {
			ids = append(ids, *e.ID)
		}
	}
	return ids
}

func (l *EventList) ApplyChange(c realtime.Change) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := false
	for i := range l.events {
		if realtime.PatchEvent(&l.events[i], c) {
			held = true
		}
	}
	return held
}

// EventSlot is the event currently open in a detail view.
type EventSlot struct {
	mu    sync.RWMutex
	event *models.Event
}

var _ realtime.Holder = (*EventSlot)(nil)

func (s *EventSlot) Set(e models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneEvent(e)
	s.event = &c
}

func (s *EventSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event = nil
}

// Get returns a copy of the held event.
func (s *EventSlot) Get() (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.event == nil {
		return models.Event{}, false
	}
	return cloneEvent(*s.event), true
}

func (s *EventSlot) ApplyChange(c realtime.Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return realtime.PatchEvent(s.event, c)
}

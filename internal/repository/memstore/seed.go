package memstore

import (
	"sort"

	"github.com/stanstork/alumni-sync/internal/models"
)

// SeedLocation adds a location row with city and country and returns its key.
func (s *Store) SeedLocation(label, city, country string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := models.Location{ID: s.nextID(), Label: label, City: city, Country: country}
	s.d.locations[loc.ID] = loc
	return loc.ID
}

// SeedDimension adds a lookup row.
func (s *Store) SeedDimension(dim models.Dimension, label string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := models.DimensionEntry{Key: s.nextID(), Label: label}
	s.d.dims[dim] = append(s.d.dims[dim], entry)
	return entry.Key
}

// SeedTeamMember adds a team member row.
func (s *Store) SeedTeamMember(first, last, email, role string, active bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.d.team = append(s.d.team, map[string]interface{}{
		"id":         id,
		"first_name": first,
		"last_name":  last,
		"email":      email,
		"role":       role,
		"active":     active,
	})
	return id
}

// SetContactColumn writes a raw column on an existing contact row.
func (s *Store) SetContactColumn(id int64, column string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.d.contacts[id]; ok {
		c[column] = normalize(value)
	}
}

// DimensionCount returns how many rows exist for dim.
func (s *Store) DimensionCount(dim models.Dimension) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dim == models.DimensionLocation {
		return len(s.d.locations)
	}
	return len(s.d.dims[dim])
}

// ContactCount returns the number of contact rows, active or not.
func (s *Store) ContactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.contacts)
}

// EventCount returns the number of event rows, active or not.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.events)
}

// EmailRecords returns every email row ordered by key.
func (s *Store) EmailRecords() []models.EmailRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EmailRecord, 0, len(s.d.emails))
	for _, rec := range s.d.emails {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddressLinkRows returns every address link ordered by key.
func (s *Store) AddressLinkRows() []models.AddressLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AddressLink, 0, len(s.d.links))
	for _, l := range s.d.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AttendanceRows returns every attendance row in insertion order.
func (s *Store) AttendanceRows() []models.Attendance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Attendance, 0, len(s.d.attendance))
	for _, a := range s.d.attendance {
		out = append(out, models.Attendance{EventID: a.eventID, ContactID: a.contactID, Status: a.status})
	}
	return out
}

// Tokens returns every invite token.
func (s *Store) Tokens() []models.InviteToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.InviteToken, 0, len(s.d.tokens))
	for _, t := range s.d.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

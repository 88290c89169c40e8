package models

import (
	"fmt"
	"time"
)

// RSVPStatus is the three-state answer of an invited contact.
type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "pending"
	RSVPGoing    RSVPStatus = "going"
	RSVPNotGoing RSVPStatus = "not_going"
)

// ParseRSVPStatus accepts the canonical values plus a few legacy spellings.
func ParseRSVPStatus(s string) (RSVPStatus, error) {
	switch s {
	case "pending", "":
		return RSVPPending, nil
	case "going", "attending", "yes":
		return RSVPGoing, nil
	case "not_going", "not-going", "not_attending", "no":
		return RSVPNotGoing, nil
	}
	return "", fmt.Errorf("unknown rsvp status %q", s)
}

// Terminal reports whether the status is a final answer.
func (s RSVPStatus) Terminal() bool {
	return s == RSVPGoing || s == RSVPNotGoing
}

// Attendance links one event to one persisted contact.
type Attendance struct {
	EventID     int64      `json:"event_id"`
	ContactID   int64      `json:"contact_id"`
	ContactName string     `json:"contact_name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Status      RSVPStatus `json:"rsvp_status"`
}

// Event is a scheduled gathering.
type Event struct {
	ID          *int64       `json:"id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Date        *time.Time   `json:"date,omitempty"`
	Time        string       `json:"time,omitempty"`
	LocationID  *int64       `json:"location_id,omitempty"`
	Location    string       `json:"location,omitempty"`
	Active      bool         `json:"active"`
	Attendance  []Attendance `json:"attendance"`
}

// Persisted reports whether the event has an identity key.
func (e Event) Persisted() bool {
	return e.ID != nil
}

// AttendeeIndex returns the position of contactID in the attendance list or -1.
func (e Event) AttendeeIndex(contactID int64) int {
	for i, a := range e.Attendance {
		if a.ContactID == contactID {
			return i
		}
	}
	return -1
}

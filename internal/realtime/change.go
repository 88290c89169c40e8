// Package realtime folds attendance change notifications into locally held events.
package realtime

import (
	"fmt"
	"strings"

	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/tidwall/gjson"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one attendance row delta.
type Change struct {
	Op        Op
	EventID   int64
	ContactID int64
	Status    models.RSVPStatus
}

var changePaths = struct {
	op, eventID, contactID, status []string
}{
	op:        []string{"op", "type", "eventType"},
	eventID:   []string{"event_id", "eventId", "new.event_id", "record.event_id", "old.event_id", "old_record.event_id"},
	contactID: []string{"contact_id", "contactId", "new.contact_id", "record.contact_id", "old.contact_id", "old_record.contact_id"},
	status:    []string{"rsvp_status", "rsvpStatus", "new.rsvp_status", "record.rsvp_status"},
}

func firstOf(doc gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if r := doc.Get(p); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// ParseChange decodes a notification payload.
func ParseChange(payload []byte) (Change, error) {
	if !gjson.ValidBytes(payload) {
		return Change{}, fmt.Errorf("change payload is not valid JSON")
	}
	doc := gjson.ParseBytes(payload)

	var c Change
	switch strings.ToLower(firstOf(doc, changePaths.op).String()) {
	case "insert":
		c.Op = OpInsert
	case "update", "":
		c.Op = OpUpdate
	case "delete":
		c.Op = OpDelete
	default:
		return Change{}, fmt.Errorf("unknown change op %q", firstOf(doc, changePaths.op).String())
	}

	c.EventID = firstOf(doc, changePaths.eventID).Int()
	c.ContactID = firstOf(doc, changePaths.contactID).Int()
	if c.EventID == 0 || c.ContactID == 0 {
		return Change{}, fmt.Errorf("change payload lacks event or contact id")
	}

	status, err := models.ParseRSVPStatus(strings.ToLower(firstOf(doc, changePaths.status).String()))
	if err != nil {
		return Change{}, err
	}
	c.Status = status
	return c, nil
}

// PatchEvent applies c to e in place. Applying the same change again leaves e as it
// is. It reports whether e holds the changed event.
func PatchEvent(e *models.Event, c Change) bool {
	if e == nil || e.ID == nil || *e.ID != c.EventID {
		return false
	}
	i := e.AttendeeIndex(c.ContactID)
	switch c.Op {
	case OpDelete:
		if i >= 0 {
			e.Attendance = append(e.Attendance[:i:i], e.Attendance[i+1:]...)
		}
	default:
		if i >= 0 {
			e.Attendance[i].Status = c.Status
		} else {
			e.Attendance = append(e.Attendance, models.Attendance{EventID: c.EventID, ContactID: c.ContactID, Status: c.Status})
		}
	}
	return true
}

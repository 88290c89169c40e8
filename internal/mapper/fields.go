// Package mapper converts joined row documents into domain entities and back.
//
// Every logical field is read through an ordered list of paths. The first path that
// yields a non-empty value wins, which keeps rows from older join shapes and renamed
// columns readable. Nested joins may arrive as an object or as a one-element array;
// both are normalized to "first element or null" before a path segment is read.
package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Accessor is an ordered list of dotted paths for one logical field.
type Accessor []string

// ContactFields documents where each contact attribute may be found.
var ContactFields = struct {
	ID, FirstName, LastName, FullName                       Accessor
	College, Program, Company, Occupation, Location         Accessor
	AlumniType                                              Accessor
	CollegeID, ProgramID, CompanyID, OccupationID           Accessor
	LocationID, AlumniTypeID                                Accessor
	Email, EmailID, Verified                                Accessor
	Phone, GraduationDate, Address, AddressLinkID, Active   Accessor
	LocationCity, LocationCountry                           Accessor
}{
	ID:              Accessor{"id", "contact_id", "contact.id"},
	FirstName:       Accessor{"first_name", "firstName", "contact.first_name"},
	LastName:        Accessor{"last_name", "lastName", "contact.last_name"},
	FullName:        Accessor{"full_name", "fullName", "contact.full_name"},
	College:         Accessor{"college.label", "college.name", "college_name", "college"},
	Program:         Accessor{"program.label", "program.name", "program_name", "program"},
	Company:         Accessor{"company.label", "company.name", "company_name", "company"},
	Occupation:      Accessor{"occupation.label", "occupation.name", "occupation_name", "occupation"},
	Location:        Accessor{"location.label", "location.name", "location_name", "location"},
	AlumniType:      Accessor{"alumni_type.label", "alumni_type.name", "alumni_type_name", "alumni_type"},
	CollegeID:       Accessor{"college_id", "college.id", "collegeId"},
	ProgramID:       Accessor{"program_id", "program.id", "programId"},
	CompanyID:       Accessor{"company_id", "company.id", "companyId"},
	OccupationID:    Accessor{"occupation_id", "occupation.id", "occupationId"},
	LocationID:      Accessor{"location_id", "location.id", "locationId"},
	AlumniTypeID:    Accessor{"alumni_type_id", "alumni_type.id", "alumniTypeId"},
	Email:           Accessor{"email.address", "email.email", "email_address", "email"},
	EmailID:         Accessor{"email_id", "email.id", "emailId"},
	Verified:        Accessor{"email.verified", "email_verified", "verified"},
	Phone:           Accessor{"contact_number", "phone", "phone_number", "contactNumber"},
	GraduationDate:  Accessor{"graduation_date", "graduationDate", "graduated_on"},
	Address:         Accessor{"address", "address_text"},
	AddressLinkID:   Accessor{"address_link_id", "address_link.id", "addressLinkId"},
	Active:          Accessor{"active", "is_active"},
	LocationCity:    Accessor{"location.city"},
	LocationCountry: Accessor{"location.country"},
}

// EventFields documents where each event attribute may be found.
var EventFields = struct {
	ID, Title, Description, Date, Time                   Accessor
	LocationID, Location, LocationCity, LocationCountry Accessor
	Active                                              Accessor
}{
	ID:              Accessor{"id", "event_id"},
	Title:           Accessor{"title", "name", "event_title"},
	Description:     Accessor{"description", "details"},
	Date:            Accessor{"date", "event_date"},
	Time:            Accessor{"time", "event_time", "start_time"},
	LocationID:      Accessor{"location_id", "location.id", "locationId"},
	Location:        Accessor{"location.label", "location.name", "location_name", "location"},
	LocationCity:    Accessor{"location.city"},
	LocationCountry: Accessor{"location.country"},
	Active:          Accessor{"active", "is_active"},
}

// AttendanceFields documents where each attendance attribute may be found.
var AttendanceFields = struct {
	EventID, ContactID, Status, FullName, FirstName, LastName, Email Accessor
}{
	EventID:   Accessor{"event_id", "eventId", "event.id"},
	ContactID: Accessor{"contact_id", "contactId", "contact.id"},
	Status:    Accessor{"rsvp_status", "rsvpStatus", "status"},
	FullName:  Accessor{"contact_name", "contact.full_name", "name"},
	FirstName: Accessor{"contact.first_name", "first_name"},
	LastName:  Accessor{"contact.last_name", "last_name"},
	Email:     Accessor{"email", "contact.email.address", "email.address"},
}

// TeamMemberFields documents where each team member attribute may be found.
var TeamMemberFields = struct {
	ID, FirstName, LastName, FullName, Email, Role, Active Accessor
}{
	ID:        Accessor{"id", "team_member_id"},
	FirstName: Accessor{"first_name", "firstName"},
	LastName:  Accessor{"last_name", "lastName"},
	FullName:  Accessor{"full_name", "fullName", "name"},
	Email:     Accessor{"email", "email_address", "email.address"},
	Role:      Accessor{"role", "position", "title"},
	Active:    Accessor{"active", "is_active"},
}

// first normalizes a join result: arrays yield their first element, null yields an
// empty result.
func first(r gjson.Result) gjson.Result {
	if r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return gjson.Result{}
		}
		return items[0]
	}
	if r.Type == gjson.Null {
		return gjson.Result{}
	}
	return r
}

// lookup walks a dotted path, normalizing each nested join on the way.
func lookup(doc gjson.Result, path string) gjson.Result {
	cur := first(doc)
	for _, seg := range strings.Split(path, ".") {
		if !cur.IsObject() {
			return gjson.Result{}
		}
		cur = first(cur.Get(seg))
		if !cur.Exists() {
			return gjson.Result{}
		}
	}
	return cur
}

// String returns the first non-blank scalar text for the accessor.
func (a Accessor) String(doc gjson.Result) string {
	for _, path := range a {
		r := lookup(doc, path)
		switch r.Type {
		case gjson.String:
			if s := strings.TrimSpace(r.Str); s != "" {
				return s
			}
		case gjson.Number:
			return r.Raw
		}
	}
	return ""
}

// Int64 returns the first integer value for the accessor.
func (a Accessor) Int64(doc gjson.Result) *int64 {
	for _, path := range a {
		r := lookup(doc, path)
		switch r.Type {
		case gjson.Number:
			v := r.Int()
			return &v
		case gjson.String:
			if v, err := strconv.ParseInt(strings.TrimSpace(r.Str), 10, 64); err == nil {
				return &v
			}
		}
	}
	return nil
}

// Bool returns the first boolean value for the accessor, or def.
func (a Accessor) Bool(doc gjson.Result, def bool) bool {
	for _, path := range a {
		r := lookup(doc, path)
		switch r.Type {
		case gjson.True:
			return true
		case gjson.False:
			return false
		case gjson.String:
			if v, err := strconv.ParseBool(strings.TrimSpace(r.Str)); err == nil {
				return v
			}
		}
	}
	return def
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"}

// Date returns the first parsable date for the accessor, truncated to the day.
func (a Accessor) Date(doc gjson.Result) *time.Time {
	for _, path := range a {
		s := Accessor{path}.String(doc)
		if s == "" {
			continue
		}
		if d, err := ParseDate(s); err == nil {
			return &d
		}
	}
	return nil
}

// ParseDate accepts a calendar date or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parse(row []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(row) {
		return gjson.Result{}, fmt.Errorf("row is not valid JSON")
	}
	return gjson.ParseBytes(row), nil
}

package mapper

import (
	"regexp"
	"strings"

	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

// RowToEvent maps one event row plus the attendance rows that belong to it.
// Attendance rows for other events are ignored.
func RowToEvent(row repository.Row, attendance []repository.Row) (models.Event, error) {
	doc, err := parse(row)
	if err != nil {
		return models.Event{}, err
	}
	f := EventFields

	e := models.Event{
		ID:          f.ID.Int64(doc),
		Title:       f.Title.String(doc),
		Description: f.Description.String(doc),
		Date:        f.Date.Date(doc),
		Time:        normalizeClock(f.Time.String(doc)),
		LocationID:  f.LocationID.Int64(doc),
		Active:      f.Active.Bool(doc, true),
		Attendance:  []models.Attendance{},
	}
	if name := f.Location.String(doc); name != "" {
		e.Location = LocationLabel(models.Location{
			Label:   name,
			City:    f.LocationCity.String(doc),
			Country: f.LocationCountry.String(doc),
		})
	}

	for _, ar := range attendance {
		a, err := RowToAttendance(ar)
		if err != nil {
			return models.Event{}, err
		}
		if e.ID != nil && a.EventID != *e.ID {
			continue
		}
		e.Attendance = append(e.Attendance, a)
	}
	return e, nil
}

// RowToAttendance maps one attendance row. A missing or unknown status reads as pending.
func RowToAttendance(row repository.Row) (models.Attendance, error) {
	doc, err := parse(row)
	if err != nil {
		return models.Attendance{}, err
	}
	f := AttendanceFields

	a := models.Attendance{Email: models.NormalizeEmail(f.Email.String(doc))}
	if id := f.EventID.Int64(doc); id != nil {
		a.EventID = *id
	}
	if id := f.ContactID.Int64(doc); id != nil {
		a.ContactID = *id
	}
	status, err := models.ParseRSVPStatus(strings.ToLower(f.Status.String(doc)))
	if err != nil {
		status = models.RSVPPending
	}
	a.Status = status

	a.ContactName = f.FullName.String(doc)
	if a.ContactName == "" {
		a.ContactName = models.JoinName(f.FirstName.String(doc), f.LastName.String(doc))
	}
	return a, nil
}

// EventsFromRows maps events and distributes attendance rows by event id.
func EventsFromRows(rows, attendance []repository.Row) ([]models.Event, error) {
	byEvent := make(map[int64][]repository.Row)
	for _, ar := range attendance {
		doc, err := parse(ar)
		if err != nil {
			return nil, err
		}
		if id := AttendanceFields.EventID.Int64(doc); id != nil {
			byEvent[*id] = append(byEvent[*id], ar)
		}
	}

	out := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		doc, err := parse(row)
		if err != nil {
			return nil, err
		}
		var own []repository.Row
		if id := EventFields.ID.Int64(doc); id != nil {
			own = byEvent[*id]
		}
		e, err := RowToEvent(row, own)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// EventToUpsertPayload builds the upsert columns for e. The location key must already
// be resolved. Like contacts, active is only written when the event is new.
func EventToUpsertPayload(e models.Event) repository.Payload {
	var p repository.Payload
	if e.ID != nil {
		p.Set("id", *e.ID)
	}
	p.Set("title", strings.TrimSpace(e.Title))
	p.Set("description", nullString(strings.TrimSpace(e.Description)))
	if e.Date != nil {
		p.Set("date", e.Date.UTC().Format("2006-01-02"))
	} else {
		p.Set("date", nil)
	}
	p.Set("time", nullString(normalizeClock(e.Time)))
	p.Set("location_id", nullable(e.LocationID))
	if e.ID == nil {
		p.Set("active", e.Active)
	}
	return p
}

// normalizeClock keeps HH:MM from values like "18:30:00".
func normalizeClock(s string) string {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return strings.TrimSpace(s)
	}
	hour := m[1]
	if len(hour) == 1 {
		hour = "0" + hour
	}
	return hour + ":" + m[2]
}

// RowToTeamMember maps one team member row.
func RowToTeamMember(row repository.Row) (models.TeamMember, error) {
	doc, err := parse(row)
	if err != nil {
		return models.TeamMember{}, err
	}
	f := TeamMemberFields

	m := models.TeamMember{
		FirstName: f.FirstName.String(doc),
		LastName:  f.LastName.String(doc),
		Email:     models.NormalizeEmail(f.Email.String(doc)),
		Role:      f.Role.String(doc),
		Active:    f.Active.Bool(doc, true),
		ID:        f.ID.Int64(doc),
	}
	m.FullName = f.FullName.String(doc)
	if m.FullName == "" {
		m.FullName = models.JoinName(m.FirstName, m.LastName)
	}
	return m, nil
}

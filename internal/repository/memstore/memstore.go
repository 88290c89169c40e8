// Package memstore is an in-memory repository.Store for tests. It enforces the same
// foreign keys and unique constraints as the Postgres schema and can simulate missing
// optional columns, permission failures and injected faults.
package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
)

type attendanceRow struct {
	id        int64
	eventID   int64
	contactID int64
	status    models.RSVPStatus
}

type data struct {
	nextID     int64
	contacts   map[int64]map[string]interface{}
	events     map[int64]map[string]interface{}
	attendance []attendanceRow
	dims       map[models.Dimension][]models.DimensionEntry
	locations  map[int64]models.Location
	links      map[int64]models.AddressLink
	emails     map[int64]models.EmailRecord
	tokens     map[string]models.InviteToken
	team       []map[string]interface{}
}

func newData() *data {
	return &data{
		contacts:  map[int64]map[string]interface{}{},
		events:    map[int64]map[string]interface{}{},
		dims:      map[models.Dimension][]models.DimensionEntry{},
		locations: map[int64]models.Location{},
		links:     map[int64]models.AddressLink{},
		emails:    map[int64]models.EmailRecord{},
		tokens:    map[string]models.InviteToken{},
	}
}

func (d *data) clone() *data {
	c := newData()
	c.nextID = d.nextID
	for id, row := range d.contacts {
		c.contacts[id] = copyRow(row)
	}
	for id, row := range d.events {
		c.events[id] = copyRow(row)
	}
	c.attendance = append([]attendanceRow(nil), d.attendance...)
	for dim, entries := range d.dims {
		c.dims[dim] = append([]models.DimensionEntry(nil), entries...)
	}
	for k, v := range d.locations {
		c.locations[k] = v
	}
	for k, v := range d.links {
		c.links[k] = v
	}
	for k, v := range d.emails {
		c.emails[k] = v
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	for _, row := range d.team {
		c.team = append(c.team, copyRow(row))
	}
	return c
}

func copyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu      sync.Mutex
	d       *data
	missing map[capability.Feature]bool
	denied  map[models.Dimension]bool
	faults  map[string]error
	ops     []string
	hook    func(op string)
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store with every optional feature present.
func New() *Store {
	return &Store{
		d:       newData(),
		missing: map[capability.Feature]bool{},
		denied:  map[models.Dimension]bool{},
		faults:  map[string]error{},
	}
}

// WithoutFeature makes queries using f fail like a remote store lacking the column.
func (s *Store) WithoutFeature(f capability.Feature) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing[f] = true
	return s
}

// DenyInsert makes inserts into dim fail with insufficient_privilege.
func (s *Store) DenyInsert(dim models.Dimension) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[dim] = true
	return s
}

// FailOn makes every call of op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// OnOp registers a callback invoked (without the store lock) before each op runs.
func (s *Store) OnOp(fn func(op string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Ops returns the operations executed so far, in order.
func (s *Store) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// begin records op, runs the hook, and locks the store. Callers must call s.mu.Unlock.
func (s *Store) begin(op string) error {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(op)
	}

	s.mu.Lock()
	s.ops = append(s.ops, op)
	if err, ok := s.faults[op]; ok {
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.d.nextID++
	return s.d.nextID
}

func (s *Store) Contacts() repository.ContactRepository         { return contacts{s} }
func (s *Store) Events() repository.EventRepository             { return events{s} }
func (s *Store) Attendance() repository.AttendanceRepository    { return attendance{s} }
func (s *Store) Dimensions() repository.DimensionRepository     { return dimensions{s} }
func (s *Store) Locations() repository.LocationRepository       { return locations{s} }
func (s *Store) AddressLinks() repository.AddressLinkRepository { return addressLinks{s} }
func (s *Store) Emails() repository.EmailRepository             { return emails{s} }
func (s *Store) InviteTokens() repository.InviteTokenRepository { return tokens{s} }
func (s *Store) TeamMembers() repository.TeamMemberRepository   { return team{s} }

// InTx snapshots the data and restores it when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(repository.Store) error) error {
	if err := s.begin("tx.begin"); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.ops = append(s.ops, "tx.rollback")
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.ops = append(s.ops, "tx.commit")
	s.mu.Unlock()
	return nil
}

func undefinedColumn(name string) error {
	return &pq.Error{Code: "42703", Message: fmt.Sprintf(`column %q does not exist`, name)}
}

func undefinedTable(name string) error {
	return &pq.Error{Code: "42P01", Message: fmt.Sprintf(`relation %q does not exist`, name)}
}

func foreignKey(detail string) error {
	return &pq.Error{Code: "23503", Message: "violates foreign key constraint " + detail}
}

func uniqueViolation(detail string) error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint " + detail}
}

func noRows() error {
	return sql.ErrNoRows
}

func marshal(v interface{}) repository.Row {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memstore: marshal row: %v", err))
	}
	return repository.Row(b)
}

// normalize turns typed nil pointers and pointer values into plain JSON-able values.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format("2006-01-02")
	case time.Time:
		return x.Format("2006-01-02")
	case int:
		return int64(x)
	}
	return v
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	}
	return 0, false
}

func applyPayload(row map[string]interface{}, p repository.Payload) {
	for i, c := range p.Columns {
		row[c] = normalize(p.Values[i])
	}
}

func (s *Store) dimensionJSON(dim models.Dimension, id interface{}) interface{} {
	key, ok := asInt64(id)
	if !ok {
		return nil
	}
	if dim == models.DimensionLocation {
		loc, ok := s.d.locations[key]
		if !ok {
			return nil
		}
		return map[string]interface{}{"id": loc.ID, "label": loc.Label, "city": nullIfEmpty(loc.City), "country": nullIfEmpty(loc.Country)}
	}
	for _, e := range s.d.dims[dim] {
		if e.Key == key {
			return map[string]interface{}{"id": e.Key, "label": e.Label}
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) dimensionExists(dim models.Dimension, id interface{}) bool {
	if id == nil {
		return true
	}
	return s.dimensionJSON(dim, id) != nil
}

// ---- contacts ----

type contacts struct{ s *Store }

var contactDimColumns = map[string]models.Dimension{
	"college_id":    models.DimensionCollege,
	"program_id":    models.DimensionProgram,
	"company_id":    models.DimensionCompany,
	"occupation_id": models.DimensionOccupation,
	"location_id":   models.DimensionLocation,
}

func (r contacts) checkShape(shape capability.Shape) error {
	if shape.AlumniType && r.s.missing[capability.FeatureAlumniType] {
		return undefinedTable("alumni_type")
	}
	if shape.AddressLink && r.s.missing[capability.FeatureAddressLink] {
		return undefinedColumn("c.address_link_id")
	}
	return nil
}

func (r contacts) rowJSON(id int64, shape capability.Shape) repository.Row {
	s := r.s
	c := s.d.contacts[id]
	out := map[string]interface{}{
		"id":              id,
		"first_name":      c["first_name"],
		"last_name":       c["last_name"],
		"contact_number":  c["contact_number"],
		"graduation_date": c["graduation_date"],
		"address":         c["address"],
		"active":          c["active"],
		"email_id":        c["email_id"],
	}
	for col, dim := range contactDimColumns {
		out[col] = c[col]
		out[string(dim)] = s.dimensionJSON(dim, c[col])
	}
	out["email"] = nil
	if emailID, ok := asInt64(c["email_id"]); ok {
		if rec, ok := s.d.emails[emailID]; ok {
			out["email"] = map[string]interface{}{"id": rec.ID, "address": rec.Address, "verified": rec.Verified}
		}
	}
	if shape.AlumniType {
		out["alumni_type_id"] = c["alumni_type_id"]
		out["alumni_type"] = s.dimensionJSON(models.DimensionAlumniType, c["alumni_type_id"])
	}
	if shape.AddressLink {
		out["address_link_id"] = c["address_link_id"]
	}
	return marshal(out)
}

func (r contacts) List(_ context.Context, active bool, shape capability.Shape) ([]repository.Row, error) {
	s := r.s
	if err := s.begin("contact.list"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	if err := r.checkShape(shape); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(s.d.contacts))
	for id, c := range s.d.contacts {
		if a, _ := c["active"].(bool); a == active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]repository.Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.rowJSON(id, shape))
	}
	return out, nil
}

func (r contacts) Get(_ context.Context, id int64, shape capability.Shape) (repository.Row, error) {
	s := r.s
	if err := s.begin("contact.get"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	if err := r.checkShape(shape); err != nil {
		return nil, err
	}
	if _, ok := s.d.contacts[id]; !ok {
		return nil, noRows()
	}
	return r.rowJSON(id, shape), nil
}

func (r contacts) Upsert(_ context.Context, p repository.Payload) (int64, error) {
	s := r.s
	if err := s.begin("contact.upsert"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	for _, col := range p.Columns {
		if col == "alumni_type_id" && s.missing[capability.FeatureAlumniType] {
			return 0, undefinedColumn("alumni_type_id")
		}
		if col == "address_link_id" && s.missing[capability.FeatureAddressLink] {
			return 0, undefinedColumn("address_link_id")
		}
	}
	row := map[string]interface{}{}
	applyPayload(row, p)
	for col, dim := range contactDimColumns {
		if v, ok := row[col]; ok && !s.dimensionExists(dim, v) {
			return 0, foreignKey("contact_" + col + "_fkey")
		}
	}
	if v, ok := row["email_id"]; ok && v != nil {
		id, _ := asInt64(v)
		if _, ok := s.d.emails[id]; !ok {
			return 0, foreignKey("contact_email_id_fkey")
		}
	}

	id, hasID := asInt64(row["id"])
	if hasID {
		if existing, ok := s.d.contacts[id]; ok {
			for k, v := range row {
				existing[k] = v
			}
			return id, nil
		}
	} else {
		id = s.nextID()
	}
	row["id"] = id
	if _, ok := row["active"]; !ok {
		row["active"] = true
	}
	s.d.contacts[id] = row
	return id, nil
}

func (r contacts) SetAddressLink(_ context.Context, contactID, linkID int64) error {
	s := r.s
	if err := s.begin("contact.set_address_link"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	if s.missing[capability.FeatureAddressLink] {
		return undefinedColumn("address_link_id")
	}
	c, ok := s.d.contacts[contactID]
	if !ok {
		return noRows()
	}
	if _, ok := s.d.links[linkID]; !ok {
		return foreignKey("contact_address_link_id_fkey")
	}
	c["address_link_id"] = linkID
	return nil
}

func (r contacts) SetActive(_ context.Context, id int64, active bool) error {
	s := r.s
	if err := s.begin("contact.set_active"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	c, ok := s.d.contacts[id]
	if !ok {
		return noRows()
	}
	c["active"] = active
	return nil
}

func (r contacts) IsActive(_ context.Context, id int64) (bool, error) {
	s := r.s
	if err := s.begin("contact.is_active"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	defer s.mu.Unlock()
	c, ok := s.d.contacts[id]
	if !ok {
		return false, noRows()
	}
	active, _ := c["active"].(bool)
	return active, nil
}

func (r contacts) Delete(_ context.Context, id int64) error {
	s := r.s
	if err := s.begin("contact.delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.d.contacts[id]; !ok {
		return noRows()
	}
	for _, a := range s.d.attendance {
		if a.contactID == id {
			return foreignKey("attendance_contact_id_fkey")
		}
	}
	for _, l := range s.d.links {
		if l.ContactID == id {
			return foreignKey("address_link_contact_id_fkey")
		}
	}
	delete(s.d.contacts, id)
	return nil
}

// ---- events ----

type events struct{ s *Store }

func (r events) rowJSON(id int64) repository.Row {
	e := r.s.d.events[id]
	return marshal(map[string]interface{}{
		"id":          id,
		"title":       e["title"],
		"description": e["description"],
		"date":        e["date"],
		"time":        e["time"],
		"location_id": e["location_id"],
		"active":      e["active"],
		"location":    r.s.dimensionJSON(models.DimensionLocation, e["location_id"]),
	})
}

func (r events) List(_ context.Context, active bool) ([]repository.Row, error) {
	s := r.s
	if err := s.begin("event.list"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.d.events))
	for id, e := range s.d.events {
		if a, _ := e["active"].(bool); a == active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]repository.Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.rowJSON(id))
	}
	return out, nil
}

func (r events) Get(_ context.Context, id int64) (repository.Row, error) {
	s := r.s
	if err := s.begin("event.get"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	if _, ok := s.d.events[id]; !ok {
		return nil, noRows()
	}
	return r.rowJSON(id), nil
}

func (r events) Upsert(_ context.Context, p repository.Payload) (int64, error) {
	s := r.s
	if err := s.begin("event.upsert"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()
	row := map[string]interface{}{}
	applyPayload(row, p)
	if v, ok := row["location_id"]; ok && !s.dimensionExists(models.DimensionLocation, v) {
		return 0, foreignKey("event_location_id_fkey")
	}
	id, hasID := asInt64(row["id"])
	if hasID {
		if existing, ok := s.d.events[id]; ok {
			for k, v := range row {
				existing[k] = v
			}
			return id, nil
		}
	} else {
		id = s.nextID()
	}
	row["id"] = id
	if _, ok := row["active"]; !ok {
		row["active"] = true
	}
	s.d.events[id] = row
	return id, nil
}

func (r events) SetActive(_ context.Context, id int64, active bool) error {
	s := r.s
	if err := s.begin("event.set_active"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	e, ok := s.d.events[id]
	if !ok {
		return noRows()
	}
	e["active"] = active
	return nil
}

func (r events) IsActive(_ context.Context, id int64) (bool, error) {
	s := r.s
	if err := s.begin("event.is_active"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	defer s.mu.Unlock()
	e, ok := s.d.events[id]
	if !ok {
		return false, noRows()
	}
	active, _ := e["active"].(bool)
	return active, nil
}

func (r events) Delete(_ context.Context, id int64) error {
	s := r.s
	if err := s.begin("event.delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	if _, ok := s.d.events[id]; !ok {
		return noRows()
	}
	for _, a := range s.d.attendance {
		if a.eventID == id {
			return foreignKey("attendance_event_id_fkey")
		}
	}
	// invite_token.event_id cascades.
	for k, t := range s.d.tokens {
		if t.EventID == id {
			delete(s.d.tokens, k)
		}
	}
	delete(s.d.events, id)
	return nil
}

// ---- attendance ----

type attendance struct{ s *Store }

func (r attendance) ListByEvents(_ context.Context, eventIDs []int64, shape capability.Shape) ([]repository.Row, error) {
	s := r.s
	if err := s.begin("attendance.list"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	if shape.RSVPStatus && s.missing[capability.FeatureRSVPStatus] {
		return nil, undefinedColumn("a.rsvp_status")
	}
	wanted := map[int64]bool{}
	for _, id := range eventIDs {
		wanted[id] = true
	}
	rows := append([]attendanceRow(nil), s.d.attendance...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].eventID != rows[j].eventID {
			return rows[i].eventID < rows[j].eventID
		}
		return rows[i].id < rows[j].id
	})

	var out []repository.Row
	for _, a := range rows {
		if !wanted[a.eventID] {
			continue
		}
		c := s.d.contacts[a.contactID]
		doc := map[string]interface{}{
			"event_id":   a.eventID,
			"contact_id": a.contactID,
			"contact":    map[string]interface{}{"id": a.contactID, "first_name": c["first_name"], "last_name": c["last_name"]},
			"email":      nil,
		}
		if emailID, ok := asInt64(c["email_id"]); ok {
			doc["email"] = s.d.emails[emailID].Address
		}
		if shape.RSVPStatus {
			doc["rsvp_status"] = string(a.status)
		}
		out = append(out, marshal(doc))
	}
	return out, nil
}

func (r attendance) Insert(_ context.Context, eventID int64, contactIDs []int64, status models.RSVPStatus, shape capability.Shape) (int64, error) {
	s := r.s
	if err := s.begin("attendance.insert"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()
	if shape.RSVPStatus && s.missing[capability.FeatureRSVPStatus] {
		return 0, undefinedColumn("rsvp_status")
	}
	if _, ok := s.d.events[eventID]; !ok {
		return 0, foreignKey("attendance_event_id_fkey")
	}
	for _, cid := range contactIDs {
		if _, ok := s.d.contacts[cid]; !ok {
			return 0, foreignKey("attendance_contact_id_fkey")
		}
	}
	if !shape.RSVPStatus {
		status = models.RSVPPending
	}
	var inserted int64
	for _, cid := range contactIDs {
		exists := false
		for _, a := range s.d.attendance {
			if a.eventID == eventID && a.contactID == cid {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		s.d.attendance = append(s.d.attendance, attendanceRow{id: s.nextID(), eventID: eventID, contactID: cid, status: status})
		inserted++
	}
	return inserted, nil
}

func (r attendance) SetStatusByEmail(_ context.Context, eventID int64, email string, status models.RSVPStatus) (int64, error) {
	s := r.s
	if err := s.begin("attendance.set_status"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()
	if s.missing[capability.FeatureRSVPStatus] {
		return 0, undefinedColumn("rsvp_status")
	}
	var n int64
	for i, a := range s.d.attendance {
		if a.eventID != eventID {
			continue
		}
		emailID, ok := asInt64(s.d.contacts[a.contactID]["email_id"])
		if !ok {
			continue
		}
		if strings.EqualFold(s.d.emails[emailID].Address, email) {
			s.d.attendance[i].status = status
			n++
		}
	}
	return n, nil
}

func (r attendance) DeleteByContact(_ context.Context, contactID int64) (int64, error) {
	return r.deleteWhere("attendance.delete_by_contact", func(a attendanceRow) bool { return a.contactID == contactID })
}

func (r attendance) DeleteByEvent(_ context.Context, eventID int64) (int64, error) {
	return r.deleteWhere("attendance.delete_by_event", func(a attendanceRow) bool { return a.eventID == eventID })
}

func (r attendance) deleteWhere(op string, match func(attendanceRow) bool) (int64, error) {
	s := r.s
	if err := s.begin(op); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()
	kept := s.d.attendance[:0:0]
	var n int64
	for _, a := range s.d.attendance {
		if match(a) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.d.attendance = kept
	return n, nil
}

// ---- dimensions ----

type dimensions struct{ s *Store }

func (r dimensions) Find(_ context.Context, dim models.Dimension, label string) (models.DimensionEntry, error) {
	s := r.s
	if err := s.begin("dimension.find." + string(dim)); err != nil {
		s.mu.Unlock()
		return models.DimensionEntry{}, err
	}
	defer s.mu.Unlock()
	if dim == models.DimensionAlumniType && s.missing[capability.FeatureAlumniType] {
		return models.DimensionEntry{}, undefinedTable("alumni_type")
	}
	if dim == models.DimensionLocation {
		for _, loc := range s.d.locations {
			if loc.Label == label {
				return models.DimensionEntry{Key: loc.ID, Label: loc.Label}, nil
			}
		}
		return models.DimensionEntry{}, noRows()
	}
	for _, e := range s.d.dims[dim] {
		if e.Label == label {
			return e, nil
		}
	}
	return models.DimensionEntry{}, noRows()
}

func (r dimensions) Insert(_ context.Context, dim models.Dimension, label string) (models.DimensionEntry, error) {
	s := r.s
	if err := s.begin("dimension.insert." + string(dim)); err != nil {
		s.mu.Unlock()
		return models.DimensionEntry{}, err
	}
	defer s.mu.Unlock()
	if !dim.Valid() {
		return models.DimensionEntry{}, fmt.Errorf("unknown dimension %q", dim)
	}
	if dim == models.DimensionAlumniType && s.missing[capability.FeatureAlumniType] {
		return models.DimensionEntry{}, undefinedTable("alumni_type")
	}
	if s.denied[dim] {
		return models.DimensionEntry{}, &pq.Error{Code: "42501", Message: "permission denied for table " + string(dim)}
	}
	if dim == models.DimensionLocation {
		for _, loc := range s.d.locations {
			if loc.Label == label {
				return models.DimensionEntry{}, uniqueViolation("location_label_key")
			}
		}
		loc := models.Location{ID: s.nextID(), Label: label}
		s.d.locations[loc.ID] = loc
		return models.DimensionEntry{Key: loc.ID, Label: label}, nil
	}
	for _, e := range s.d.dims[dim] {
		if e.Label == label {
			return models.DimensionEntry{}, uniqueViolation(string(dim) + "_label_key")
		}
	}
	entry := models.DimensionEntry{Key: s.nextID(), Label: label}
	s.d.dims[dim] = append(s.d.dims[dim], entry)
	return entry, nil
}

type locations struct{ s *Store }

func (r locations) ByIDs(_ context.Context, ids []int64) ([]models.Location, error) {
	s := r.s
	if err := s.begin("location.by_ids"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []models.Location
	for _, id := range ids {
		if loc, ok := s.d.locations[id]; ok {
			out = append(out, loc)
		}
	}
	return out, nil
}

// ---- address links ----

type addressLinks struct{ s *Store }

func (r addressLinks) ByContacts(_ context.Context, contactIDs []int64) ([]models.AddressLink, error) {
	s := r.s
	if err := s.begin("address_link.by_contacts"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	if s.missing[capability.FeatureAddressLink] {
		return nil, undefinedTable("address_link")
	}
	wanted := map[int64]bool{}
	for _, id := range contactIDs {
		wanted[id] = true
	}
	var out []models.AddressLink
	for _, l := range s.d.links {
		if wanted[l.ContactID] {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r addressLinks) Insert(_ context.Context, contactID, locationID int64) (int64, error) {
	s := r.s
	if err := s.begin("address_link.insert"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()
	if s.missing[capability.FeatureAddressLink] {
		return 0, undefinedTable("address_link")
	}
	if _, ok := s.d.contacts[contactID]; !ok {
		return 0, foreignKey("address_link_contact_id_fkey")
	}
	if _, ok := s.d.locations[locationID]; !ok {
		return 0, foreignKey("address_link_location_id_fkey")
	}
	link := models.AddressLink{ID: s.nextID(), ContactID: contactID, LocationID: locationID}
	s.d.links[link.ID] = link
	return link.ID, nil
}

func (r addressLinks) Update(_ context.Context, linkID, locationID int64) error {
	s := r.s
	if err := s.begin("address_link.update"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	link, ok := s.d.links[linkID]
	if !ok {
		return noRows()
	}
	if _, ok := s.d.locations[locationID]; !ok {
		return foreignKey("address_link_location_id_fkey")
	}
	link.LocationID = locationID
	s.d.links[linkID] = link
	return nil
}

func (r addressLinks) DeleteByContact(_ context.Context, contactID int64) (int64, error) {
	s := r.s
	if err := s.begin("address_link.delete_by_contact"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()
	if s.missing[capability.FeatureAddressLink] {
		return 0, undefinedTable("address_link")
	}
	var n int64
	for id, l := range s.d.links {
		if l.ContactID == contactID {
			delete(s.d.links, id)
			if c, ok := s.d.contacts[contactID]; ok {
				if linkID, ok := asInt64(c["address_link_id"]); ok && linkID == id {
					c["address_link_id"] = nil
				}
			}
			n++
		}
	}
	return n, nil
}

// ---- emails ----

type emails struct{ s *Store }

func (r emails) FindByAddress(_ context.Context, address string) (models.EmailRecord, error) {
	s := r.s
	if err := s.begin("email.find"); err != nil {
		s.mu.Unlock()
		return models.EmailRecord{}, err
	}
	defer s.mu.Unlock()
	for _, rec := range s.d.emails {
		if strings.EqualFold(rec.Address, address) {
			return rec, nil
		}
	}
	return models.EmailRecord{}, noRows()
}

func (r emails) Insert(_ context.Context, address string, verified bool) (models.EmailRecord, error) {
	s := r.s
	if err := s.begin("email.insert"); err != nil {
		s.mu.Unlock()
		return models.EmailRecord{}, err
	}
	defer s.mu.Unlock()
	for _, rec := range s.d.emails {
		if strings.EqualFold(rec.Address, address) {
			return models.EmailRecord{}, uniqueViolation("email_address_key")
		}
	}
	rec := models.EmailRecord{ID: s.nextID(), Address: address, Verified: verified}
	s.d.emails[rec.ID] = rec
	return rec, nil
}

func (r emails) SetVerified(_ context.Context, id int64, verified bool) error {
	s := r.s
	if err := s.begin("email.set_verified"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()
	rec, ok := s.d.emails[id]
	if !ok {
		return noRows()
	}
	rec.Verified = verified
	s.d.emails[id] = rec
	return nil
}

// ---- invite tokens ----

type tokens struct{ s *Store }

func tokenKey(eventID int64, email string) string {
	return fmt.Sprintf("%d|%s", eventID, strings.ToLower(email))
}

func (r tokens) Upsert(_ context.Context, token models.InviteToken) (models.InviteToken, error) {
	s := r.s
	if err := s.begin("invite_token.upsert"); err != nil {
		s.mu.Unlock()
		return models.InviteToken{}, err
	}
	defer s.mu.Unlock()
	if _, ok := s.d.events[token.EventID]; !ok {
		return models.InviteToken{}, foreignKey("invite_token_event_id_fkey")
	}
	key := tokenKey(token.EventID, token.Email)
	for k, t := range s.d.tokens {
		if k != key && t.TokenHash == token.TokenHash {
			return models.InviteToken{}, uniqueViolation("invite_token_token_hash_key")
		}
	}
	token.UsedAt = nil
	s.d.tokens[key] = token
	return token, nil
}

func (r tokens) GetByHash(_ context.Context, tokenHash string) (models.InviteToken, error) {
	s := r.s
	if err := s.begin("invite_token.get"); err != nil {
		s.mu.Unlock()
		return models.InviteToken{}, err
	}
	defer s.mu.Unlock()
	for _, t := range s.d.tokens {
		if t.TokenHash == tokenHash {
			return t, nil
		}
	}
	return models.InviteToken{}, noRows()
}

func (r tokens) MarkUsed(_ context.Context, tokenHash string, status models.RSVPStatus, now time.Time) (models.InviteToken, error) {
	s := r.s
	if err := s.begin("invite_token.mark_used"); err != nil {
		s.mu.Unlock()
		return models.InviteToken{}, err
	}
	defer s.mu.Unlock()
	for k, t := range s.d.tokens {
		if t.TokenHash != tokenHash {
			continue
		}
		if t.UsedAt != nil || !now.Before(t.ExpiresAt) {
			return models.InviteToken{}, noRows()
		}
		used := now
		t.UsedAt = &used
		t.Status = status
		s.d.tokens[k] = t
		return t, nil
	}
	return models.InviteToken{}, noRows()
}

// ---- team ----

type team struct{ s *Store }

func (r team) List(_ context.Context) ([]repository.Row, error) {
	s := r.s
	if err := s.begin("team_member.list"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()
	var out []repository.Row
	for _, row := range s.d.team {
		if active, _ := row["active"].(bool); active {
			out = append(out, marshal(row))
		}
	}
	return out, nil
}

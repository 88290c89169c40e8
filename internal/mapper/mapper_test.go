package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
	"github.com/stanstork/alumni-sync/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowToContactReadsJoinedRow(t *testing.T) {
	row := repository.Row(`{
		"id": 12,
		"first_name": " Grace ",
		"last_name": "Hopper",
		"contact_number": "(555) 010-2030",
		"graduation_date": "1934-06-01",
		"active": true,
		"email_id": 3,
		"email": {"id": 3, "address": "grace@navy.mil", "verified": true},
		"college_id": 5,
		"college": {"id": 5, "label": "Yale"},
		"program": [{"id": 6, "label": "Mathematics"}],
		"company": null,
		"location_id": 9,
		"location": {"id": 9, "label": "Arlington", "city": "Arlington", "country": "USA"},
		"alumni_type": [],
		"address_link_id": 41
	}`)

	c, err := RowToContact(row)
	require.NoError(t, err)
	require.NotNil(t, c.ID)
	assert.Equal(t, int64(12), *c.ID)
	assert.Equal(t, "Grace", c.FirstName)
	assert.Equal(t, "Grace Hopper", c.FullName)
	assert.Equal(t, "5550102030", c.Phone)
	require.NotNil(t, c.GraduationDate)
	assert.Equal(t, "1934-06-01", c.GraduationDate.Format("2006-01-02"))
	assert.Equal(t, "grace@navy.mil", c.Email)
	assert.Equal(t, models.Verified, c.Verification)
	assert.Equal(t, "Yale", c.College)
	assert.Equal(t, int64(5), *c.CollegeID)
	assert.Equal(t, "Mathematics", c.Program)
	assert.Empty(t, c.Company)
	assert.Empty(t, c.AlumniType)
	assert.Equal(t, "Arlington • Arlington, USA", c.Location)
	assert.Equal(t, int64(41), *c.AddressLinkID)
	assert.True(t, c.Active)
}

func TestRowToContactFieldVariants(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		check func(t *testing.T, c models.Contact)
	}{
		{
			name: "camel case names",
			row:  `{"firstName":"Alan","lastName":"Turing"}`,
			check: func(t *testing.T, c models.Contact) {
				assert.Equal(t, "Alan Turing", c.FullName)
			},
		},
		{
			name: "explicit full name wins",
			row:  `{"first_name":"Alan","last_name":"Turing","full_name":"A. M. Turing"}`,
			check: func(t *testing.T, c models.Contact) {
				assert.Equal(t, "A. M. Turing", c.FullName)
			},
		},
		{
			name: "nested contact name from a join path",
			row:  `{"contact":[{"first_name":"Ada","last_name":"King"}]}`,
			check: func(t *testing.T, c models.Contact) {
				assert.Equal(t, "Ada", c.FirstName)
				assert.Equal(t, "King", c.LastName)
			},
		},
		{
			name: "dimension label by name and flat column",
			row:  `{"college":{"name":"MIT"},"company_name":"IBM","occupation":"Engineer"}`,
			check: func(t *testing.T, c models.Contact) {
				assert.Equal(t, "MIT", c.College)
				assert.Equal(t, "IBM", c.Company)
				assert.Equal(t, "Engineer", c.Occupation)
			},
		},
		{
			name: "verification defaults to unverified",
			row:  `{"first_name":"X","email":"x@y.com"}`,
			check: func(t *testing.T, c models.Contact) {
				assert.Equal(t, "x@y.com", c.Email)
				assert.Equal(t, models.Unverified, c.Verification)
			},
		},
		{
			name: "rfc3339 graduation date",
			row:  `{"graduation_date":"2015-05-20T00:00:00Z"}`,
			check: func(t *testing.T, c models.Contact) {
				require.NotNil(t, c.GraduationDate)
				assert.Equal(t, time.May, c.GraduationDate.Month())
			},
		},
		{
			name: "missing active reads as active",
			row:  `{"id":"7"}`,
			check: func(t *testing.T, c models.Contact) {
				assert.True(t, c.Active)
				assert.Equal(t, int64(7), *c.ID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := RowToContact(repository.Row(tt.row))
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestRowToContactRejectsInvalidJSON(t *testing.T) {
	_, err := RowToContact(repository.Row(`{"id":`))
	assert.Error(t, err)
}

func TestContactToUpsertPayloadFollowsShape(t *testing.T) {
	grad := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	c := models.Contact{
		ID:             models.Int64(4),
		FirstName:      "Ada",
		LastName:       "Lovelace",
		CollegeID:      models.Int64(1),
		AlumniTypeID:   models.Int64(2),
		AddressLinkID:  models.Int64(3),
		Phone:          "+1 555 0100",
		GraduationDate: &grad,
		Active:         true,
	}

	full := ContactToUpsertPayload(c, capability.Full())
	v, ok := full.Get("id")
	require.True(t, ok)
	assert.Equal(t, int64(4), v)
	v, _ = full.Get("contact_number")
	assert.Equal(t, "15550100", v)
	v, _ = full.Get("graduation_date")
	assert.Equal(t, "2020-06-01", v)
	v, _ = full.Get("program_id")
	assert.Nil(t, v)
	_, ok = full.Get("alumni_type_id")
	assert.True(t, ok)
	_, ok = full.Get("address_link_id")
	assert.True(t, ok)
	_, ok = full.Get("active")
	assert.False(t, ok, "updates leave active to archive and restore")

	reduced := ContactToUpsertPayload(models.Contact{FirstName: "New"}, capability.Shape{})
	_, ok = reduced.Get("id")
	assert.False(t, ok, "new contacts are inserted without an id")
	_, ok = reduced.Get("alumni_type_id")
	assert.False(t, ok)
	_, ok = reduced.Get("address_link_id")
	assert.False(t, ok)
	_, ok = reduced.Get("active")
	assert.True(t, ok)
}

func TestRowToEventWithAttendance(t *testing.T) {
	row := repository.Row(`{"id":7,"title":"Reunion","date":"2025-10-04","time":"18:30:00",
		"location_id":2,"location":{"id":2,"label":"Main Hall"},"active":true}`)
	attendance := []repository.Row{
		repository.Row(`{"event_id":7,"contact_id":3,"rsvp_status":"going","contact":{"first_name":"Ada","last_name":"King"},"email":"ADA@x.org"}`),
		repository.Row(`{"event_id":7,"contact_id":4}`),
		repository.Row(`{"event_id":8,"contact_id":5,"rsvp_status":"not_going"}`),
	}

	e, err := RowToEvent(row, attendance)
	require.NoError(t, err)
	assert.Equal(t, "Reunion", e.Title)
	assert.Equal(t, "18:30", e.Time)
	assert.Equal(t, "Main Hall", e.Location)
	require.Len(t, e.Attendance, 2)
	assert.Equal(t, models.RSVPGoing, e.Attendance[0].Status)
	assert.Equal(t, "Ada King", e.Attendance[0].ContactName)
	assert.Equal(t, "ada@x.org", e.Attendance[0].Email)
	assert.Equal(t, models.RSVPPending, e.Attendance[1].Status)
}

func TestEventsFromRowsDistributesAttendance(t *testing.T) {
	rows := []repository.Row{
		repository.Row(`{"id":1,"title":"A"}`),
		repository.Row(`{"id":2,"title":"B"}`),
	}
	attendance := []repository.Row{
		repository.Row(`{"event_id":2,"contact_id":9,"rsvp_status":"going"}`),
	}
	events, err := EventsFromRows(rows, attendance)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Empty(t, events[0].Attendance)
	require.Len(t, events[1].Attendance, 1)
	assert.Equal(t, int64(9), events[1].Attendance[0].ContactID)
}

func TestEventToUpsertPayload(t *testing.T) {
	p := EventToUpsertPayload(models.Event{Title: " Gala ", Time: "9:05", Active: true})
	_, ok := p.Get("id")
	assert.False(t, ok)
	v, _ := p.Get("title")
	assert.Equal(t, "Gala", v)
	v, _ = p.Get("time")
	assert.Equal(t, "09:05", v)
	v, _ = p.Get("date")
	assert.Nil(t, v)
	v, _ = p.Get("active")
	assert.Equal(t, true, v)

	update := EventToUpsertPayload(models.Event{ID: models.Int64(3), Title: "Gala"})
	_, ok = update.Get("active")
	assert.False(t, ok)
}

func TestRowToTeamMember(t *testing.T) {
	m, err := RowToTeamMember(repository.Row(`{"id":1,"firstName":"Sam","lastName":"Lee","email_address":"Sam@Office.edu","position":"Coordinator"}`))
	require.NoError(t, err)
	assert.Equal(t, "Sam Lee", m.FullName)
	assert.Equal(t, "sam@office.edu", m.Email)
	assert.Equal(t, "Coordinator", m.Role)
	assert.True(t, m.Active)
}

func TestLocationLabel(t *testing.T) {
	assert.Equal(t, "Campus • Porto, Portugal", LocationLabel(models.Location{Label: "Campus", City: "Porto", Country: "Portugal"}))
	assert.Equal(t, "Campus • Portugal", LocationLabel(models.Location{Label: "Campus", Country: "Portugal"}))
	assert.Equal(t, "Campus", LocationLabel(models.Location{Label: "Campus"}))
}

func TestHydrateAddressesUsesTwoLookups(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	linked := store.SeedLocation("Office", "Berlin", "Germany")
	direct := store.SeedLocation("Home", "Oslo", "Norway")

	var contacts []models.Contact
	for i := 0; i < 5; i++ {
		id, err := store.Contacts().Upsert(ctx, ContactToUpsertPayload(models.Contact{FirstName: "C", Active: true}, capability.Shape{}))
		require.NoError(t, err)
		contacts = append(contacts, models.Contact{ID: models.Int64(id), Address: "typed by hand"})
	}
	linkID, err := store.AddressLinks().Insert(ctx, *contacts[0].ID, linked)
	require.NoError(t, err)
	contacts[1].LocationID = models.Int64(direct)
	contacts = append(contacts, models.Contact{FirstName: "unsaved", Address: "kept"})

	before := len(store.Ops())
	require.NoError(t, HydrateAddresses(ctx, store, contacts, true))
	assert.Equal(t, []string{"address_link.by_contacts", "location.by_ids"}, store.Ops()[before:])

	assert.Equal(t, "Office • Berlin, Germany", contacts[0].Address)
	assert.Equal(t, linkID, *contacts[0].AddressLinkID)
	assert.Equal(t, "Home • Oslo, Norway", contacts[1].Address)
	assert.Equal(t, "typed by hand", contacts[2].Address)
	assert.Equal(t, "kept", contacts[5].Address)
}

func TestHydrateAddressesWithoutLinks(t *testing.T) {
	ctx := context.Background()
	store := memstore.New().WithoutFeature(capability.FeatureAddressLink)
	loc := store.SeedLocation("Lab", "", "")

	contacts := []models.Contact{{ID: models.Int64(100), LocationID: models.Int64(loc)}}
	require.NoError(t, HydrateAddresses(ctx, store, contacts, false))
	assert.Equal(t, "Lab", contacts[0].Address)
	assert.Equal(t, []string{"location.by_ids"}, store.Ops())
}

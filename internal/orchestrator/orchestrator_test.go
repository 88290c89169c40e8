package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/mapper"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
	"github.com/stanstork/alumni-sync/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newOrchestrator(store *memstore.Store) (*Orchestrator, *capability.Registry) {
	caps := capability.NewRegistry(zerolog.Nop())
	return New(store, caps, zerolog.Nop()), caps
}

func countOps(ops []string, name string) int {
	n := 0
	for _, op := range ops {
		if op == name {
			n++
		}
	}
	return n
}

func TestPersistCreatesDimensionOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	first, err := o.Persist(ctx, models.Contact{FirstName: "Ada", College: "Engineering"})
	require.NoError(t, err)
	second, err := o.Persist(ctx, models.Contact{FirstName: "Alan", College: "Engineering"})
	require.NoError(t, err)

	require.NotNil(t, first.Contact.CollegeID)
	require.NotNil(t, second.Contact.CollegeID)
	assert.Equal(t, *first.Contact.CollegeID, *second.Contact.CollegeID)
	assert.Equal(t, "Engineering", second.Contact.College)
	assert.Equal(t, 1, store.DimensionCount(models.DimensionCollege))
	assert.True(t, first.Contact.Active)
}

func TestPersistUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	created, err := o.Persist(ctx, models.Contact{FirstName: "Ada", LastName: "Byron", Phone: "555-0100"})
	require.NoError(t, err)
	require.NotNil(t, created.Contact.ID)

	edit := created.Contact
	edit.LastName = "Lovelace"
	updated, err := o.Persist(ctx, edit)
	require.NoError(t, err)

	assert.Equal(t, *created.Contact.ID, *updated.Contact.ID)
	assert.Equal(t, "Ada Lovelace", updated.Contact.FullName)
	assert.Equal(t, "5550100", updated.Contact.Phone)
	assert.Equal(t, 1, store.ContactCount())
}

func TestSharedEmailStatusPropagates(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	a, err := o.Persist(ctx, models.Contact{FirstName: "A", Email: "x@y.com"})
	require.NoError(t, err)
	assert.Equal(t, models.Unverified, a.Contact.Verification)

	b, err := o.Persist(ctx, models.Contact{FirstName: "B", Email: " X@Y.com ", Verification: models.Verified})
	require.NoError(t, err)
	assert.Equal(t, *a.Contact.EmailID, *b.Contact.EmailID)

	records := store.EmailRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].Verified)

	all, err := o.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, c := range all {
		assert.Equal(t, models.Verified, c.Verification, c.FirstName)
	}
}

func TestPersistValidation(t *testing.T) {
	o, _ := newOrchestrator(memstore.New())
	tests := []struct {
		name    string
		contact models.Contact
	}{
		{"no name", models.Contact{Email: "a@b.c"}},
		{"two at signs", models.Contact{FirstName: "A", Email: "a@@b.c"}},
		{"no domain", models.Contact{FirstName: "A", Email: "a@"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Persist(context.Background(), tt.contact)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.KindValidationFailure))
		})
	}
}

func TestPersistBatchContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	invalid := models.Contact{Email: "x@y.com"}
	valid := models.Contact{FirstName: "B", Email: "x@y.com"}

	saved, err := o.PersistBatch(ctx, []models.Contact{invalid, valid})
	require.Len(t, saved, 1)
	assert.Equal(t, "B", saved[0].FirstName)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Contains(t, batchErr.Failed, 0)
	assert.True(t, apperrors.Is(batchErr.Failed[0], apperrors.KindValidationFailure))
	assert.Len(t, batchErr.Unwrap(), 1)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, 1, store.ContactCount())
}

func TestPersistBatchSeesEarlierDimensions(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	saved, err := o.PersistBatch(ctx, []models.Contact{
		{FirstName: "A", Company: "Initech"},
		{FirstName: "B", Company: "Initech"},
		{FirstName: "C", Company: "Initech"},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, 1, store.DimensionCount(models.DimensionCompany))
	assert.Equal(t, *saved[0].CompanyID, *saved[2].CompanyID)
}

func TestAddressLinkFailureIsPartialSuccess(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.FailOn("address_link.insert", errors.New("row-level security rejected insert"))
	o, _ := newOrchestrator(store)

	result, err := o.Persist(ctx, models.Contact{FirstName: "Ada", Location: "Lisbon"})
	require.NoError(t, err)
	assert.True(t, result.PartialSuccess())
	require.NotNil(t, result.Contact.ID)
	require.NotNil(t, result.Contact.LocationID)
	assert.Nil(t, result.Contact.AddressLinkID)
	assert.True(t, apperrors.Is(result.Warnings.Err(), apperrors.KindPartialSuccess))
	assert.Equal(t, 1, store.ContactCount())
}

func TestAddressLinkInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	created, err := o.Persist(ctx, models.Contact{FirstName: "Ada", Location: "Lisbon"})
	require.NoError(t, err)
	require.False(t, created.PartialSuccess())
	require.NotNil(t, created.Contact.AddressLinkID)
	assert.Equal(t, "Lisbon", created.Contact.Address)

	edit := created.Contact
	edit.Location = "Porto"
	moved, err := o.Persist(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, *created.Contact.AddressLinkID, *moved.Contact.AddressLinkID)

	links := store.AddressLinkRows()
	require.Len(t, links, 1)
	assert.Equal(t, *moved.Contact.LocationID, links[0].LocationID)
	assert.Contains(t, store.Ops(), "address_link.update")
}

func TestClearingLocationRemovesAddressLink(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	created, err := o.Persist(ctx, models.Contact{FirstName: "Ada", Location: "Lisbon"})
	require.NoError(t, err)
	require.NotNil(t, created.Contact.AddressLinkID)

	edit := created.Contact
	edit.Location = ""
	edit.LocationID = nil
	cleared, err := o.Persist(ctx, edit)
	require.NoError(t, err)
	assert.False(t, cleared.PartialSuccess())
	assert.Nil(t, cleared.Contact.AddressLinkID)
	assert.Empty(t, store.AddressLinkRows())
	assert.Contains(t, store.Ops(), "address_link.delete_by_contact")

	all, err := o.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].LocationID)
	assert.Empty(t, all[0].Address)
}

func TestClearingLocationFailureIsPartialSuccess(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	created, err := o.Persist(ctx, models.Contact{FirstName: "Ada", Location: "Lisbon"})
	require.NoError(t, err)

	store.FailOn("address_link.delete_by_contact", errors.New("row-level security rejected delete"))
	edit := created.Contact
	edit.Location = ""
	edit.LocationID = nil
	cleared, err := o.Persist(ctx, edit)
	require.NoError(t, err)
	assert.True(t, cleared.PartialSuccess())
	assert.True(t, apperrors.Is(cleared.Warnings.Err(), apperrors.KindPartialSuccess))
	assert.Len(t, store.AddressLinkRows(), 1)
}

func TestPersistDegradesWithoutOptionalSchema(t *testing.T) {
	ctx := context.Background()
	store := memstore.New().
		WithoutFeature(capability.FeatureAlumniType).
		WithoutFeature(capability.FeatureAddressLink)
	o, caps := newOrchestrator(store)

	result, err := o.Persist(ctx, models.Contact{FirstName: "Ada", AlumniType: "Graduate", Location: "Lisbon"})
	require.NoError(t, err)
	assert.False(t, result.PartialSuccess())
	assert.Nil(t, result.Contact.AlumniTypeID)
	assert.NotNil(t, result.Contact.LocationID)
	assert.False(t, caps.Supported(capability.FeatureAlumniType))
	assert.False(t, caps.Supported(capability.FeatureAddressLink))

	all, err := o.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Lisbon", all[0].Address)
}

func TestPersistPropagatesTransportFailure(t *testing.T) {
	store := memstore.New()
	store.FailOn("contact.upsert", context.DeadlineExceeded)
	o, _ := newOrchestrator(store)

	_, err := o.Persist(context.Background(), models.Contact{FirstName: "Ada"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientTransport))
	assert.Equal(t, 0, store.ContactCount())
}

func TestLoadArchivedSeparatesContacts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	a, err := o.Persist(ctx, models.Contact{FirstName: "Active"})
	require.NoError(t, err)
	b, err := o.Persist(ctx, models.Contact{FirstName: "Gone"})
	require.NoError(t, err)
	require.NoError(t, store.Contacts().SetActive(ctx, *b.Contact.ID, false))

	active, err := o.LoadAll(ctx)
	require.NoError(t, err)
	archived, err := o.LoadArchived(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Len(t, archived, 1)
	assert.Equal(t, *a.Contact.ID, *active[0].ID)
	assert.False(t, archived[0].Active)
}

func seedEvent(t *testing.T, store *memstore.Store, title string) int64 {
	t.Helper()
	id, err := store.Events().Upsert(context.Background(), mapper.EventToUpsertPayload(models.Event{Title: title, Active: true}))
	require.NoError(t, err)
	return id
}

func TestAddAttendeesNeverRetriesFullShape(t *testing.T) {
	ctx := context.Background()
	store := memstore.New().WithoutFeature(capability.FeatureRSVPStatus)
	o, caps := newOrchestrator(store)
	eventID := seedEvent(t, store, "Reunion")

	a, err := o.Persist(ctx, models.Contact{FirstName: "A"})
	require.NoError(t, err)
	b, err := o.Persist(ctx, models.Contact{FirstName: "B"})
	require.NoError(t, err)

	n, err := o.AddAttendees(ctx, eventID, []models.Contact{a.Contact})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, caps.Supported(capability.FeatureRSVPStatus))

	n, err = o.AddAttendees(ctx, eventID, []models.Contact{b.Contact, a.Contact})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// One failed full-shape attempt, then two reduced-shape inserts.
	assert.Equal(t, 3, countOps(store.Ops(), "attendance.insert"))
	assert.Len(t, store.AttendanceRows(), 2)
}

func TestAddAttendeesNothingToAdd(t *testing.T) {
	store := memstore.New()
	o, _ := newOrchestrator(store)
	eventID := seedEvent(t, store, "Gala")

	_, err := o.AddAttendees(context.Background(), eventID, []models.Contact{{FirstName: "Unsaved"}})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidationFailure))
	assert.Contains(t, err.Error(), "nothing to add")
	assert.Zero(t, countOps(store.Ops(), "attendance.insert"))
}

func TestAddAttendeesSkipsUnsavedContacts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)
	eventID := seedEvent(t, store, "Gala")

	saved, err := o.Persist(ctx, models.Contact{FirstName: "Saved"})
	require.NoError(t, err)

	n, err := o.AddAttendees(ctx, eventID, []models.Contact{{FirstName: "Unsaved"}, saved.Contact})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := o.LoadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].Attendance, 1)
	assert.Equal(t, models.RSVPPending, events[0].Attendance[0].Status)
	assert.Equal(t, "Saved", events[0].Attendance[0].ContactName)
}

func TestPersistEventResolvesLocation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	contact, err := o.Persist(ctx, models.Contact{FirstName: "Ada"})
	require.NoError(t, err)

	e, err := o.PersistEvent(ctx, models.Event{
		Title:      "Homecoming",
		Location:   "Main Hall",
		Time:       "18:30:00",
		Attendance: []models.Attendance{{ContactID: *contact.Contact.ID}},
	})
	require.NoError(t, err)
	require.NotNil(t, e.ID)
	require.NotNil(t, e.LocationID)
	assert.Equal(t, "Main Hall", e.Location)
	assert.Equal(t, "18:30", e.Time)
	assert.True(t, e.Active)
	require.Len(t, e.Attendance, 1)

	_, err = o.PersistEvent(ctx, models.Event{Title: "Bad", Attendance: []models.Attendance{{ContactName: "ghost"}}})
	assert.True(t, apperrors.Is(err, apperrors.KindValidationFailure))
}

func TestPersistEventBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	o, _ := newOrchestrator(store)

	saved, err := o.PersistEventBatch(ctx, []models.Event{{Title: ""}, {Title: "Picnic", Location: "Park"}, {Title: "Dinner", Location: "Park"}})
	require.Len(t, saved, 2)
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Contains(t, batchErr.Failed, 0)
	assert.Equal(t, *saved[0].LocationID, *saved[1].LocationID)

	archived, err := o.LoadArchivedEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestPersistAsyncDropsResultAfterTeardown(t *testing.T) {
	store := memstore.New()
	o, _ := newOrchestrator(store)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	store.OnOp(func(op string) {
		if op == "contact.upsert" {
			<-release
		}
	})

	results := o.PersistAsync(ctx, models.Contact{FirstName: "Ada"})
	cancel()
	close(release)

	_, ok := <-results
	assert.False(t, ok, "no result after the owning context is cancelled")
	assert.Equal(t, 1, store.ContactCount(), "the in-flight write still completes")
}

func TestPersistAsyncDeliversResult(t *testing.T) {
	o, _ := newOrchestrator(memstore.New())
	res, ok := <-o.PersistAsync(context.Background(), models.Contact{FirstName: "Ada"})
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, "Ada", res.Result.Contact.FullName)
}

func TestLoadTeam(t *testing.T) {
	store := memstore.New()
	store.SeedTeamMember("Sam", "Lee", "sam@office.edu", "Coordinator", true)
	store.SeedTeamMember("Old", "Timer", "old@office.edu", "Advisor", false)
	o, _ := newOrchestrator(store)

	team, err := o.LoadTeam(context.Background())
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "Sam Lee", team[0].FullName)
}

func TestConcurrencyModesAreNamed(t *testing.T) {
	assert.True(t, strings.HasSuffix(DimensionResolution, "parallel-safe"))
	assert.True(t, strings.HasSuffix(BatchPersist, "sequential-required"))
}

var _ repository.Store = (*memstore.Store)(nil)

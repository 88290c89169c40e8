package archive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/mapper"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memstore.Store
	manager   *Manager
	contactID int64
	eventID   int64
}

func newFixture(t *testing.T, store *memstore.Store, logs *bytes.Buffer) fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()
	if logs != nil {
		logger = zerolog.New(logs)
	}

	loc := store.SeedLocation("Office", "Berlin", "Germany")
	contactID, err := store.Contacts().Upsert(ctx, mapper.ContactToUpsertPayload(models.Contact{
		FirstName: "Ada", LastName: "Lovelace", LocationID: models.Int64(loc), Active: true,
	}, capability.Shape{}))
	require.NoError(t, err)
	eventID, err := store.Events().Upsert(ctx, mapper.EventToUpsertPayload(models.Event{Title: "Reunion", Active: true}))
	require.NoError(t, err)
	_, err = store.Attendance().Insert(ctx, eventID, []int64{contactID}, models.RSVPPending, capability.Shape{})
	require.NoError(t, err)
	if _, err := store.AddressLinks().Insert(ctx, contactID, loc); err != nil {
		require.True(t, apperrors.Is(err, apperrors.KindSchemaDrift))
	}

	return fixture{
		store:     store,
		manager:   NewManager(store, capability.NewRegistry(zerolog.Nop()), logger),
		contactID: contactID,
		eventID:   eventID,
	}
}

func TestArchiveRestoreLeavesContactUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memstore.New(), nil)

	before, err := f.store.Contacts().Get(ctx, f.contactID, capability.Full())
	require.NoError(t, err)

	require.NoError(t, f.manager.ArchiveContact(ctx, f.contactID))
	state, err := f.manager.ContactState(ctx, f.contactID)
	require.NoError(t, err)
	assert.Equal(t, Archived, state)

	require.NoError(t, f.manager.RestoreContact(ctx, f.contactID))
	after, err := f.store.Contacts().Get(ctx, f.contactID, capability.Full())
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Len(t, f.store.AttendanceRows(), 1)
	assert.Len(t, f.store.AddressLinkRows(), 1)
}

func TestArchiveRestoreLeavesEventUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memstore.New(), nil)

	before, err := f.store.Events().Get(ctx, f.eventID)
	require.NoError(t, err)
	require.NoError(t, f.manager.ArchiveEvent(ctx, f.eventID))
	require.NoError(t, f.manager.RestoreEvent(ctx, f.eventID))
	after, err := f.store.Events().Get(ctx, f.eventID)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestArchiveMissingContact(t *testing.T) {
	f := newFixture(t, memstore.New(), nil)
	err := f.manager.ArchiveContact(context.Background(), 9999)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestPurgeRequiresArchived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memstore.New(), nil)

	err := f.manager.PurgeContact(ctx, f.contactID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidationFailure))
	assert.Equal(t, 1, f.store.ContactCount())

	err = f.manager.PurgeEvent(ctx, f.eventID)
	assert.True(t, apperrors.Is(err, apperrors.KindValidationFailure))
}

func TestPurgeContactDeletesDependentsFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memstore.New(), nil)
	require.NoError(t, f.manager.ArchiveContact(ctx, f.contactID))

	before := len(f.store.Ops())
	require.NoError(t, f.manager.PurgeContact(ctx, f.contactID))

	var deletes []string
	for _, op := range f.store.Ops()[before:] {
		switch op {
		case "attendance.delete_by_contact", "address_link.delete_by_contact", "contact.delete":
			deletes = append(deletes, op)
		}
	}
	assert.Equal(t, []string{"attendance.delete_by_contact", "address_link.delete_by_contact", "contact.delete"}, deletes)
	assert.Equal(t, 0, f.store.ContactCount())
	assert.Empty(t, f.store.AttendanceRows())
	assert.Empty(t, f.store.AddressLinkRows())

	state, err := f.manager.ContactState(ctx, f.contactID)
	require.NoError(t, err)
	assert.Equal(t, Purged, state)
	assert.True(t, apperrors.Is(f.manager.PurgeContact(ctx, f.contactID), apperrors.KindNotFound))
}

func TestPurgeFaultLeavesNoOrphans(t *testing.T) {
	for _, op := range []string{"address_link.delete_by_contact", "contact.delete"} {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, memstore.New(), nil)
			require.NoError(t, f.manager.ArchiveContact(ctx, f.contactID))
			f.store.FailOn(op, errors.New("connection reset by peer"))

			require.Error(t, f.manager.PurgeContact(ctx, f.contactID))
			assert.Contains(t, f.store.Ops(), "tx.rollback")

			// Either everything is still there or nothing is; no dependent row points at
			// a missing contact.
			assert.Equal(t, 1, f.store.ContactCount())
			assert.Len(t, f.store.AttendanceRows(), 1)
			assert.Len(t, f.store.AddressLinkRows(), 1)
		})
	}
}

func TestPurgeReferentialViolationIsLoggedAsDefect(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	f := newFixture(t, memstore.New(), &logs)
	require.NoError(t, f.manager.ArchiveContact(ctx, f.contactID))
	f.store.FailOn("contact.delete", &pq.Error{Code: "23503", Message: "violates foreign key constraint"})

	err := f.manager.PurgeContact(ctx, f.contactID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindReferentialViolation))
	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), "foreign key violation during purge")
}

func TestPurgeWithoutAddressLinkTable(t *testing.T) {
	ctx := context.Background()
	store := memstore.New().WithoutFeature(capability.FeatureAddressLink)
	f := newFixture(t, store, nil)
	require.NoError(t, f.manager.ArchiveContact(ctx, f.contactID))

	require.NoError(t, f.manager.PurgeContact(ctx, f.contactID))
	assert.Equal(t, 0, store.ContactCount())
	assert.False(t, f.manager.caps.Supported(capability.FeatureAddressLink))
}

func TestPurgeEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memstore.New(), nil)
	require.NoError(t, f.manager.ArchiveEvent(ctx, f.eventID))

	require.NoError(t, f.manager.PurgeEvent(ctx, f.eventID))
	assert.Equal(t, 0, f.store.EventCount())
	assert.Empty(t, f.store.AttendanceRows())
	assert.Equal(t, 1, f.store.ContactCount())

	state, err := f.manager.EventState(ctx, f.eventID)
	require.NoError(t, err)
	assert.Equal(t, Purged, state)
}

package orchestrator

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/mapper"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
)

var attendanceFeatures = []capability.Feature{capability.FeatureRSVPStatus}

// LoadEvents returns the active events with their attendance.
func (o *Orchestrator) LoadEvents(ctx context.Context) ([]models.Event, error) {
	return o.loadEvents(ctx, true)
}

// LoadArchivedEvents returns the archived events with their attendance.
func (o *Orchestrator) LoadArchivedEvents(ctx context.Context) ([]models.Event, error) {
	return o.loadEvents(ctx, false)
}

func (o *Orchestrator) loadEvents(ctx context.Context, active bool) ([]models.Event, error) {
	rows, err := o.store.Events().List(ctx, active)
	if err != nil {
		return nil, errors.Wrap(apperrors.Wrap("event.list", err), "failed to load events")
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		e, err := mapper.RowToEvent(row, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map event row")
		}
		if e.ID != nil {
			ids = append(ids, *e.ID)
		}
	}

	attendance, err := o.listAttendance(ctx, ids)
	if err != nil {
		return nil, err
	}
	events, err := mapper.EventsFromRows(rows, attendance)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map events")
	}
	return events, nil
}

func (o *Orchestrator) listAttendance(ctx context.Context, eventIDs []int64) ([]repository.Row, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	rows, err := capability.Query(ctx, o.caps, attendanceFeatures, func(ctx context.Context, shape capability.Shape) ([]repository.Row, error) {
		return o.store.Attendance().ListByEvents(ctx, eventIDs, shape)
	})
	if err != nil {
		return nil, errors.Wrap(apperrors.Wrap("attendance.list", err), "failed to load attendance")
	}
	return rows, nil
}

// ValidateEvent checks the caller-supplied fields a save needs.
func ValidateEvent(e models.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return apperrors.Validation("event.validate", "event title is required")
	}
	for _, a := range e.Attendance {
		if a.ContactID == 0 {
			return apperrors.Validation("event.validate", "attendance requires a persisted contact")
		}
	}
	return nil
}

// PersistEvent resolves the event location and upserts the event row. New attendance
// entries on e are inserted as pending; existing ones are left untouched.
func (o *Orchestrator) PersistEvent(ctx context.Context, e models.Event) (models.Event, error) {
	if err := ValidateEvent(e); err != nil {
		return models.Event{}, err
	}
	if !e.Persisted() {
		e.Active = true
	}

	key, err := o.dims.EnsureKey(ctx, models.DimensionLocation, locationName(e.Location))
	if err != nil {
		return models.Event{}, errors.Wrap(err, "failed to resolve event location")
	}
	e.LocationID = key

	id, err := o.store.Events().Upsert(ctx, mapper.EventToUpsertPayload(e))
	if err != nil {
		return models.Event{}, errors.Wrap(apperrors.Wrap("event.upsert", err), "failed to upsert event")
	}

	if len(e.Attendance) > 0 {
		ids := make([]int64, 0, len(e.Attendance))
		for _, a := range e.Attendance {
			ids = append(ids, a.ContactID)
		}
		if _, err := o.insertAttendance(ctx, id, ids); err != nil {
			return models.Event{}, errors.Wrap(err, "failed to save attendance")
		}
	}
	return o.reloadEvent(ctx, id)
}

func (o *Orchestrator) reloadEvent(ctx context.Context, id int64) (models.Event, error) {
	row, err := o.store.Events().Get(ctx, id)
	if err != nil {
		return models.Event{}, errors.Wrap(apperrors.Wrap("event.get", err), "failed to re-read event")
	}
	attendance, err := o.listAttendance(ctx, []int64{id})
	if err != nil {
		return models.Event{}, err
	}
	return mapper.RowToEvent(row, attendance)
}

// PersistEventBatch saves events one at a time in order, attempting every entry.
func (o *Orchestrator) PersistEventBatch(ctx context.Context, events []models.Event) ([]models.Event, error) {
	saved := make([]models.Event, 0, len(events))
	batchErr := &BatchError{}
	for i, e := range events {
		out, err := o.PersistEvent(ctx, e)
		if err != nil {
			o.logger.Warn().Err(err).Int("entry", i).Msg("batch event failed")
			batchErr.add(i, e.Title, err)
			continue
		}
		saved = append(saved, out)
	}
	return saved, batchErr.orNil()
}

// AddAttendees links persisted contacts to an event as pending. Contacts without a key
// are skipped; if none remain the call fails. It returns the number of new rows.
func (o *Orchestrator) AddAttendees(ctx context.Context, eventID int64, contacts []models.Contact) (int64, error) {
	ids := make([]int64, 0, len(contacts))
	seen := map[int64]bool{}
	for _, c := range contacts {
		if c.ID == nil || seen[*c.ID] {
			continue
		}
		seen[*c.ID] = true
		ids = append(ids, *c.ID)
	}
	if len(ids) == 0 {
		return 0, apperrors.Validation("attendance.add", "nothing to add: no contact has a persisted id")
	}
	if skipped := len(contacts) - len(ids); skipped > 0 {
		o.logger.Debug().Int("skipped", skipped).Int64("event_id", eventID).Msg("skipped attendees without persisted id")
	}
	return o.insertAttendance(ctx, eventID, ids)
}

func (o *Orchestrator) insertAttendance(ctx context.Context, eventID int64, contactIDs []int64) (int64, error) {
	n, err := capability.Query(ctx, o.caps, attendanceFeatures, func(ctx context.Context, shape capability.Shape) (int64, error) {
		return o.store.Attendance().Insert(ctx, eventID, contactIDs, models.RSVPPending, shape)
	})
	if err != nil {
		return 0, apperrors.Wrap("attendance.insert", err)
	}
	return n, nil
}

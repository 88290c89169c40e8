// Package archive moves contacts and events through Active, Archived and Purged.
package archive

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/repository"
)

// State is the lifecycle position of an entity.
type State string

const (
	Active   State = "active"
	Archived State = "archived"
	Purged   State = "purged"
)

// step deletes one set of dependent rows for an entity.
type step struct {
	name string
	// optional steps are skipped when the remote store lacks the feature.
	optional *capability.Feature
	run      func(ctx context.Context, s repository.Store, id int64) error
}

var addressLinkFeature = capability.FeatureAddressLink

// Dependents are deleted before the owning row, in this order.
var contactPurgeSteps = []step{
	{name: "attendance", run: func(ctx context.Context, s repository.Store, id int64) error {
		_, err := s.Attendance().DeleteByContact(ctx, id)
		return err
	}},
	{name: "address_link", optional: &addressLinkFeature, run: func(ctx context.Context, s repository.Store, id int64) error {
		_, err := s.AddressLinks().DeleteByContact(ctx, id)
		return err
	}},
	{name: "contact", run: func(ctx context.Context, s repository.Store, id int64) error {
		return s.Contacts().Delete(ctx, id)
	}},
}

var eventPurgeSteps = []step{
	{name: "attendance", run: func(ctx context.Context, s repository.Store, id int64) error {
		_, err := s.Attendance().DeleteByEvent(ctx, id)
		return err
	}},
	{name: "event", run: func(ctx context.Context, s repository.Store, id int64) error {
		return s.Events().Delete(ctx, id)
	}},
}

type Manager struct {
	store  repository.Store
	caps   *capability.Registry
	logger zerolog.Logger
}

func NewManager(store repository.Store, caps *capability.Registry, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		caps:   caps,
		logger: logger.With().Str("component", "archive_lifecycle").Logger(),
	}
}

// ArchiveContact sets active=false. Nothing else changes.
func (m *Manager) ArchiveContact(ctx context.Context, id int64) error {
	if err := m.store.Contacts().SetActive(ctx, id, false); err != nil {
		return errors.Wrap(apperrors.Wrap("contact.archive", err), "failed to archive contact")
	}
	return nil
}

// RestoreContact sets active=true.
func (m *Manager) RestoreContact(ctx context.Context, id int64) error {
	if err := m.store.Contacts().SetActive(ctx, id, true); err != nil {
		return errors.Wrap(apperrors.Wrap("contact.restore", err), "failed to restore contact")
	}
	return nil
}

// PurgeContact permanently deletes an archived contact with its attendance and
// address link rows in one transaction.
func (m *Manager) PurgeContact(ctx context.Context, id int64) error {
	return m.purge(ctx, "contact", id, m.store.Contacts().IsActive, contactPurgeSteps)
}

func (m *Manager) ArchiveEvent(ctx context.Context, id int64) error {
	if err := m.store.Events().SetActive(ctx, id, false); err != nil {
		return errors.Wrap(apperrors.Wrap("event.archive", err), "failed to archive event")
	}
	return nil
}

func (m *Manager) RestoreEvent(ctx context.Context, id int64) error {
	if err := m.store.Events().SetActive(ctx, id, true); err != nil {
		return errors.Wrap(apperrors.Wrap("event.restore", err), "failed to restore event")
	}
	return nil
}

// PurgeEvent permanently deletes an archived event and its attendance rows.
func (m *Manager) PurgeEvent(ctx context.Context, id int64) error {
	return m.purge(ctx, "event", id, m.store.Events().IsActive, eventPurgeSteps)
}

// ContactState reports where a contact is in its lifecycle.
func (m *Manager) ContactState(ctx context.Context, id int64) (State, error) {
	return stateOf(ctx, m.store.Contacts().IsActive, id)
}

// EventState reports where an event is in its lifecycle.
func (m *Manager) EventState(ctx context.Context, id int64) (State, error) {
	return stateOf(ctx, m.store.Events().IsActive, id)
}

func stateOf(ctx context.Context, isActive func(context.Context, int64) (bool, error), id int64) (State, error) {
	active, err := isActive(ctx, id)
	switch {
	case apperrors.Is(err, apperrors.KindNotFound):
		return Purged, nil
	case err != nil:
		return "", apperrors.Wrap("archive.state", err)
	case active:
		return Active, nil
	}
	return Archived, nil
}

func (m *Manager) purge(ctx context.Context, entity string, id int64, isActive func(context.Context, int64) (bool, error), steps []step) error {
	state, err := stateOf(ctx, isActive, id)
	if err != nil {
		return errors.Wrapf(err, "failed to check %s state", entity)
	}
	switch state {
	case Purged:
		return apperrors.Newf(apperrors.KindNotFound, entity+".purge", "%s %d does not exist", entity, id)
	case Active:
		return apperrors.Newf(apperrors.KindValidationFailure, entity+".purge", "%s %d must be archived before purge", entity, id)
	}

	// A drift error aborts the transaction, so the whole purge is retried with the
	// reduced shape.
	err = m.caps.Run(ctx, []capability.Feature{capability.FeatureAddressLink}, func(ctx context.Context, shape capability.Shape) error {
		return m.store.InTx(ctx, func(tx repository.Store) error {
			for _, s := range steps {
				if s.optional != nil && !shape.Has(*s.optional) {
					continue
				}
				if err := s.run(ctx, tx, id); err != nil {
					return apperrors.Wrap(entity+".purge."+s.name, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		if apperrors.Is(err, apperrors.KindReferentialViolation) {
			m.logger.Error().Err(err).Str("entity", entity).Int64("id", id).
				Msg("foreign key violation during purge, dependent rows were not removed first")
		}
		return errors.Wrapf(err, "failed to purge %s", entity)
	}

	m.logger.Info().Str("entity", entity).Int64("id", id).Msg("purged")
	return nil
}

package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/mapper"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
	"golang.org/x/sync/errgroup"
)

var contactFeatures = []capability.Feature{capability.FeatureAlumniType, capability.FeatureAddressLink}

// PersistResult is a saved contact plus any auxiliary failures.
type PersistResult struct {
	Contact  models.Contact
	Warnings Warnings
}

// PartialSuccess reports whether the core save landed but an auxiliary write did not.
func (r PersistResult) PartialSuccess() bool {
	return len(r.Warnings) > 0
}

// LoadAll returns the active contacts with hydrated addresses.
func (o *Orchestrator) LoadAll(ctx context.Context) ([]models.Contact, error) {
	return o.loadContacts(ctx, true)
}

// LoadArchived returns the archived contacts with hydrated addresses.
func (o *Orchestrator) LoadArchived(ctx context.Context) ([]models.Contact, error) {
	return o.loadContacts(ctx, false)
}

func (o *Orchestrator) loadContacts(ctx context.Context, active bool) ([]models.Contact, error) {
	rows, err := capability.Query(ctx, o.caps, contactFeatures, func(ctx context.Context, shape capability.Shape) ([]repository.Row, error) {
		return o.store.Contacts().List(ctx, active, shape)
	})
	if err != nil {
		return nil, errors.Wrap(apperrors.Wrap("contact.list", err), "failed to load contacts")
	}

	contacts, err := mapper.ContactsFromRows(rows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map contact rows")
	}

	err = o.caps.Run(ctx, []capability.Feature{capability.FeatureAddressLink}, func(ctx context.Context, shape capability.Shape) error {
		return mapper.HydrateAddresses(ctx, o.store, contacts, shape.AddressLink)
	})
	if err != nil {
		return nil, errors.Wrap(apperrors.Wrap("contact.hydrate", err), "failed to hydrate addresses")
	}
	return contacts, nil
}

// ValidateContact checks the caller-supplied fields a save needs.
func ValidateContact(c models.Contact) error {
	if strings.TrimSpace(c.FirstName) == "" && strings.TrimSpace(c.LastName) == "" {
		return apperrors.Validation("contact.validate", "first or last name is required")
	}
	if email := c.NormalizedEmail(); email != "" {
		at := strings.Index(email, "@")
		if strings.Count(email, "@") != 1 || at == 0 || at == len(email)-1 {
			return apperrors.Validation("contact.validate", "email address is malformed")
		}
	}
	return nil
}

var contactDimensions = []models.Dimension{
	models.DimensionCollege,
	models.DimensionProgram,
	models.DimensionCompany,
	models.DimensionOccupation,
	models.DimensionLocation,
	models.DimensionAlumniType,
}

func contactLabel(c models.Contact, dim models.Dimension) string {
	switch dim {
	case models.DimensionCollege:
		return c.College
	case models.DimensionProgram:
		return c.Program
	case models.DimensionCompany:
		return c.Company
	case models.DimensionOccupation:
		return c.Occupation
	case models.DimensionLocation:
		return locationName(c.Location)
	case models.DimensionAlumniType:
		return c.AlumniType
	}
	return ""
}

// locationName strips the " • city, country" suffix added for display.
func locationName(label string) string {
	if i := strings.Index(label, " • "); i >= 0 {
		return strings.TrimSpace(label[:i])
	}
	return strings.TrimSpace(label)
}

func setContactKey(c *models.Contact, dim models.Dimension, key *int64) {
	switch dim {
	case models.DimensionCollege:
		c.CollegeID = key
	case models.DimensionProgram:
		c.ProgramID = key
	case models.DimensionCompany:
		c.CompanyID = key
	case models.DimensionOccupation:
		c.OccupationID = key
	case models.DimensionLocation:
		c.LocationID = key
	case models.DimensionAlumniType:
		c.AlumniTypeID = key
	}
}

// resolveDimensions resolves every label concurrently and waits for all of them.
func (o *Orchestrator) resolveDimensions(ctx context.Context, c *models.Contact) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, dim := range contactDimensions {
		dim := dim
		label := contactLabel(*c, dim)
		g.Go(func() error {
			var key *int64
			var err error
			if dim == models.DimensionAlumniType {
				key, err = o.ensureAlumniType(gctx, label)
			} else {
				key, err = o.dims.EnsureKey(gctx, dim, label)
			}
			if err != nil {
				return errors.Wrapf(err, "failed to resolve %s", dim)
			}
			mu.Lock()
			setContactKey(c, dim, key)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// ensureAlumniType resolves the optional classification, skipping it once the remote
// store is known to lack the table.
func (o *Orchestrator) ensureAlumniType(ctx context.Context, label string) (*int64, error) {
	return capability.Query(ctx, o.caps, []capability.Feature{capability.FeatureAlumniType}, func(ctx context.Context, shape capability.Shape) (*int64, error) {
		if !shape.AlumniType {
			return nil, nil
		}
		return o.dims.EnsureKey(ctx, models.DimensionAlumniType, label)
	})
}

// resolveEmail finds or creates the shared email record and brings its verification
// status in line with the contact.
func (o *Orchestrator) resolveEmail(ctx context.Context, c models.Contact) (*int64, error) {
	address := c.NormalizedEmail()
	if address == "" {
		return nil, nil
	}
	verified := c.Verification.Bool()
	emails := o.store.Emails()

	rec, err := emails.FindByAddress(ctx, address)
	if apperrors.Is(err, apperrors.KindNotFound) {
		rec, err = emails.Insert(ctx, address, verified)
		if apperrors.Is(err, apperrors.KindConflict) {
			rec, err = emails.FindByAddress(ctx, address)
		} else if err == nil {
			return models.Int64(rec.ID), nil
		}
	}
	if err != nil {
		return nil, apperrors.Wrap("email.resolve", err)
	}

	if rec.Verified != verified {
		if err := emails.SetVerified(ctx, rec.ID, verified); err != nil {
			return nil, apperrors.Wrap("email.set_verified", err)
		}
		o.logger.Debug().Int64("email_id", rec.ID).Bool("verified", verified).Msg("updated shared email verification")
	}
	return models.Int64(rec.ID), nil
}

// Persist validates c, resolves its foreign keys and upserts it. The returned contact
// is re-read from the store. A failed address link is reported in Warnings and does
// not undo the save.
func (o *Orchestrator) Persist(ctx context.Context, c models.Contact) (PersistResult, error) {
	if err := ValidateContact(c); err != nil {
		return PersistResult{}, err
	}
	if !c.Persisted() {
		c.Active = true
	}

	if err := o.resolveDimensions(ctx, &c); err != nil {
		return PersistResult{}, errors.Wrap(err, "failed to resolve dimensions")
	}

	emailID, err := o.resolveEmail(ctx, c)
	if err != nil {
		return PersistResult{}, errors.Wrap(err, "failed to resolve email record")
	}
	c.EmailID = emailID

	locationCleared, err := o.locationCleared(ctx, c)
	if err != nil {
		return PersistResult{}, errors.Wrap(err, "failed to read stored contact")
	}
	if locationCleared {
		// The display address came from the old location.
		c.Address = ""
		c.AddressLinkID = nil
	}

	id, err := capability.Query(ctx, o.caps, contactFeatures, func(ctx context.Context, shape capability.Shape) (int64, error) {
		return o.store.Contacts().Upsert(ctx, mapper.ContactToUpsertPayload(c, shape))
	})
	if err != nil {
		return PersistResult{}, errors.Wrap(apperrors.Wrap("contact.upsert", err), "failed to upsert contact")
	}

	saved, err := o.reloadContact(ctx, id)
	if err != nil {
		return PersistResult{}, errors.Wrap(err, "failed to re-read contact")
	}

	result := PersistResult{Contact: saved}
	switch {
	case !o.caps.Supported(capability.FeatureAddressLink):
	case c.LocationID != nil:
		linkID, err := o.writeAddressLink(ctx, id, *c.LocationID, saved.AddressLinkID)
		switch {
		case err != nil:
			o.logger.Warn().Err(err).Int64("contact_id", id).Msg("contact saved but address link failed")
			result.Warnings = append(result.Warnings, &apperrors.Error{Kind: apperrors.KindPartialSuccess, Op: "address_link", Err: err})
		case linkID != nil:
			result.Contact.AddressLinkID = linkID
		}
	case locationCleared:
		if err := o.removeAddressLink(ctx, id); err != nil {
			o.logger.Warn().Err(err).Int64("contact_id", id).Msg("contact saved but stale address link was not removed")
			result.Warnings = append(result.Warnings, &apperrors.Error{Kind: apperrors.KindPartialSuccess, Op: "address_link", Err: err})
		} else {
			result.Contact.AddressLinkID = nil
		}
	}
	if result.Contact.LocationID != nil && result.Contact.Location != "" {
		result.Contact.Address = result.Contact.Location
	}
	return result, nil
}

func (o *Orchestrator) reloadContact(ctx context.Context, id int64) (models.Contact, error) {
	row, err := capability.Query(ctx, o.caps, contactFeatures, func(ctx context.Context, shape capability.Shape) (repository.Row, error) {
		return o.store.Contacts().Get(ctx, id, shape)
	})
	if err != nil {
		return models.Contact{}, apperrors.Wrap("contact.get", err)
	}
	return mapper.RowToContact(row)
}

// locationCleared reports whether c is a stored contact that had a location and is
// being saved without one.
func (o *Orchestrator) locationCleared(ctx context.Context, c models.Contact) (bool, error) {
	if !c.Persisted() || c.LocationID != nil {
		return false, nil
	}
	stored, err := o.reloadContact(ctx, *c.ID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return stored.LocationID != nil || stored.AddressLinkID != nil, nil
}

// removeAddressLink deletes the contact's links. The contact pointer is cleared by the
// foreign key.
func (o *Orchestrator) removeAddressLink(ctx context.Context, contactID int64) error {
	return o.caps.Run(ctx, []capability.Feature{capability.FeatureAddressLink}, func(ctx context.Context, shape capability.Shape) error {
		if !shape.AddressLink {
			return nil
		}
		if _, err := o.store.AddressLinks().DeleteByContact(ctx, contactID); err != nil {
			return apperrors.Wrap("address_link.delete_by_contact", err)
		}
		return nil
	})
}

// writeAddressLink updates the contact's link or inserts one and backfills the pointer.
// A nil key with a nil error means the store turned out to lack address links.
func (o *Orchestrator) writeAddressLink(ctx context.Context, contactID, locationID int64, existing *int64) (*int64, error) {
	var linkID *int64
	err := o.caps.Run(ctx, []capability.Feature{capability.FeatureAddressLink}, func(ctx context.Context, shape capability.Shape) error {
		if !shape.AddressLink {
			return nil
		}
		links := o.store.AddressLinks()
		if existing != nil {
			err := links.Update(ctx, *existing, locationID)
			if err == nil {
				linkID = existing
				return nil
			}
			if !apperrors.Is(err, apperrors.KindNotFound) {
				return apperrors.Wrap("address_link.update", err)
			}
		}

		id, err := links.Insert(ctx, contactID, locationID)
		if err != nil {
			return apperrors.Wrap("address_link.insert", err)
		}
		if err := o.store.Contacts().SetAddressLink(ctx, contactID, id); err != nil {
			return apperrors.Wrap("contact.set_address_link", err)
		}
		linkID = models.Int64(id)
		return nil
	})
	return linkID, err
}

// PersistBatch saves contacts one at a time in order. Every entry is attempted; the
// saved contacts are returned with a *BatchError naming the entries that failed.
func (o *Orchestrator) PersistBatch(ctx context.Context, contacts []models.Contact) ([]models.Contact, error) {
	saved := make([]models.Contact, 0, len(contacts))
	batchErr := &BatchError{}
	for i, c := range contacts {
		result, err := o.Persist(ctx, c)
		if err != nil {
			o.logger.Warn().Err(err).Int("entry", i).Msg("batch entry failed")
			batchErr.add(i, c.DisplayName(), err)
			continue
		}
		if result.PartialSuccess() {
			o.logger.Warn().Err(result.Warnings.Err()).Int("entry", i).Msg("batch entry saved with warnings")
		}
		saved = append(saved, result.Contact)
	}
	return saved, batchErr.orNil()
}

// AsyncResult is delivered on the channel returned by PersistAsync.
type AsyncResult struct {
	Result PersistResult
	Err    error
}

// PersistAsync runs Persist in the background. The remote call is allowed to finish
// after ctx is cancelled, but its result is then dropped and the channel is closed
// without a value.
func (o *Orchestrator) PersistAsync(ctx context.Context, c models.Contact) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		result, err := o.Persist(context.WithoutCancel(ctx), c)
		if ctx.Err() != nil {
			o.logger.Debug().Err(ctx.Err()).Msg("dropping persist result after teardown")
			return
		}
		out <- AsyncResult{Result: result, Err: err}
	}()
	return out
}

// LoadTeam returns the active team members.
func (o *Orchestrator) LoadTeam(ctx context.Context) ([]models.TeamMember, error) {
	rows, err := o.store.TeamMembers().List(ctx)
	if err != nil {
		return nil, errors.Wrap(apperrors.Wrap("team_member.list", err), "failed to load team")
	}
	members := make([]models.TeamMember, 0, len(rows))
	for _, row := range rows {
		m, err := mapper.RowToTeamMember(row)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map team member row")
		}
		members = append(members, m)
	}
	return members, nil
}

package mapper

import (
	"context"
	"fmt"

	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
)

// AddressSource is the subset of the store used for address hydration.
type AddressSource interface {
	AddressLinks() repository.AddressLinkRepository
	Locations() repository.LocationRepository
}

// HydrateAddresses fills Address on each contact with at most two bulk lookups: the
// address links of all contacts, then the locations they point at. A contact without
// a link falls back to its direct location key, then to its existing address text.
// Links are skipped entirely when withLinks is false.
func HydrateAddresses(ctx context.Context, src AddressSource, contacts []models.Contact, withLinks bool) error {
	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		if c.ID != nil {
			ids = append(ids, *c.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	links := map[int64]models.AddressLink{}
	if withLinks {
		rows, err := src.AddressLinks().ByContacts(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load address links: %w", err)
		}
		pointed := map[int64]int64{}
		for _, c := range contacts {
			if c.ID != nil && c.AddressLinkID != nil {
				pointed[*c.ID] = *c.AddressLinkID
			}
		}
		for _, l := range rows {
			// Prefer the link the contact points at, else the oldest.
			if _, seen := links[l.ContactID]; !seen || pointed[l.ContactID] == l.ID {
				links[l.ContactID] = l
			}
		}
	}

	seen := map[int64]bool{}
	var locationIDs []int64
	addLocation := func(id int64) {
		if !seen[id] {
			seen[id] = true
			locationIDs = append(locationIDs, id)
		}
	}
	for _, c := range contacts {
		if c.ID == nil {
			continue
		}
		if l, ok := links[*c.ID]; ok {
			addLocation(l.LocationID)
		}
		if c.LocationID != nil {
			addLocation(*c.LocationID)
		}
	}

	locations := map[int64]models.Location{}
	if len(locationIDs) > 0 {
		rows, err := src.Locations().ByIDs(ctx, locationIDs)
		if err != nil {
			return fmt.Errorf("failed to load locations: %w", err)
		}
		for _, loc := range rows {
			locations[loc.ID] = loc
		}
	}

	for i := range contacts {
		c := &contacts[i]
		if c.ID == nil {
			continue
		}
		if l, ok := links[*c.ID]; ok {
			if loc, ok := locations[l.LocationID]; ok {
				c.Address = LocationLabel(loc)
				c.AddressLinkID = models.Int64(l.ID)
				continue
			}
		}
		if c.LocationID != nil {
			if loc, ok := locations[*c.LocationID]; ok {
				c.Address = LocationLabel(loc)
				continue
			}
		}
	}
	return nil
}

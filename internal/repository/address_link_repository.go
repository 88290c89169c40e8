package repository

import (
	"context"

	"github.com/lib/pq"
	"github.com/stanstork/alumni-sync/internal/models"
)

type AddressLinkRepository interface {
	ByContacts(ctx context.Context, contactIDs []int64) ([]models.AddressLink, error)
	Insert(ctx context.Context, contactID, locationID int64) (int64, error)
	Update(ctx context.Context, linkID, locationID int64) error
	DeleteByContact(ctx context.Context, contactID int64) (int64, error)
}

type addressLinkRepository struct {
	db DBTX
}

func (r *addressLinkRepository) ByContacts(ctx context.Context, contactIDs []int64) ([]models.AddressLink, error) {
	if len(contactIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, contact_id, location_id
		FROM address_link
		WHERE contact_id = ANY($1)
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(contactIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.AddressLink
	for rows.Next() {
		var link models.AddressLink
		if err := rows.Scan(&link.ID, &link.ContactID, &link.LocationID); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

func (r *addressLinkRepository) Insert(ctx context.Context, contactID, locationID int64) (int64, error) {
	const query = `
		INSERT INTO address_link (contact_id, location_id)
		VALUES ($1, $2)
		RETURNING id`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, contactID, locationID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *addressLinkRepository) Update(ctx context.Context, linkID, locationID int64) error {
	return execOne(ctx, r.db, `UPDATE address_link SET location_id = $1 WHERE id = $2`, locationID, linkID)
}

func (r *addressLinkRepository) DeleteByContact(ctx context.Context, contactID int64) (int64, error) {
	// contact.address_link_id is ON DELETE SET NULL, so the pointer clears itself.
	const query = `DELETE FROM address_link WHERE contact_id = $1`

	result, err := r.db.ExecContext(ctx, query, contactID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

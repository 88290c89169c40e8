package repository

import (
	"context"

	"github.com/stanstork/alumni-sync/internal/models"
)

type EmailRepository interface {
	FindByAddress(ctx context.Context, address string) (models.EmailRecord, error)
	Insert(ctx context.Context, address string, verified bool) (models.EmailRecord, error)
	SetVerified(ctx context.Context, id int64, verified bool) error
}

type emailRepository struct {
	db DBTX
}

func (r *emailRepository) FindByAddress(ctx context.Context, address string) (models.EmailRecord, error) {
	const query = `
		SELECT id, address, verified
		FROM email
		WHERE lower(address) = lower($1)
		LIMIT 1`

	var rec models.EmailRecord
	if err := r.db.QueryRowContext(ctx, query, address).Scan(&rec.ID, &rec.Address, &rec.Verified); err != nil {
		return models.EmailRecord{}, err
	}
	return rec, nil
}

func (r *emailRepository) Insert(ctx context.Context, address string, verified bool) (models.EmailRecord, error) {
	const query = `
		INSERT INTO email (address, verified)
		VALUES ($1, $2)
		RETURNING id, address, verified`

	var rec models.EmailRecord
	if err := r.db.QueryRowContext(ctx, query, address, verified).Scan(&rec.ID, &rec.Address, &rec.Verified); err != nil {
		return models.EmailRecord{}, err
	}
	return rec, nil
}

func (r *emailRepository) SetVerified(ctx context.Context, id int64, verified bool) error {
	return execOne(ctx, r.db, `UPDATE email SET verified = $1 WHERE id = $2`, verified, id)
}

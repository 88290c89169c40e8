package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/stanstork/alumni-sync/internal/capability"
)

type ContactRepository interface {
	List(ctx context.Context, active bool, shape capability.Shape) ([]Row, error)
	Get(ctx context.Context, id int64, shape capability.Shape) (Row, error)
	Upsert(ctx context.Context, payload Payload) (int64, error)
	SetAddressLink(ctx context.Context, contactID, linkID int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	IsActive(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type contactRepository struct {
	db DBTX
}

func contactSelect(shape capability.Shape) string {
	var b strings.Builder
	b.WriteString(`
		SELECT jsonb_build_object(
			'id', c.id,
			'first_name', c.first_name,
			'last_name', c.last_name,
			'contact_number', c.contact_number,
			'graduation_date', c.graduation_date,
			'address', c.address,
			'active', c.active,
			'email_id', c.email_id,
			'college_id', c.college_id,
			'program_id', c.program_id,
			'company_id', c.company_id,
			'occupation_id', c.occupation_id,
			'location_id', c.location_id,
			'email', CASE WHEN e.id IS NULL THEN NULL
				ELSE jsonb_build_object('id', e.id, 'address', e.address, 'verified', e.verified) END,
			'college', to_jsonb(col),
			'program', to_jsonb(prg),
			'company', to_jsonb(cmp),
			'occupation', to_jsonb(occ),
			'location', to_jsonb(loc)`)
	if shape.AlumniType {
		b.WriteString(`,
			'alumni_type_id', c.alumni_type_id,
			'alumni_type', to_jsonb(aty)`)
	}
	if shape.AddressLink {
		b.WriteString(`,
			'address_link_id', c.address_link_id`)
	}
	b.WriteString(`
		)
		FROM contact c
		LEFT JOIN email e ON e.id = c.email_id
		LEFT JOIN college col ON col.id = c.college_id
		LEFT JOIN program prg ON prg.id = c.program_id
		LEFT JOIN company cmp ON cmp.id = c.company_id
		LEFT JOIN occupation occ ON occ.id = c.occupation_id
		LEFT JOIN location loc ON loc.id = c.location_id`)
	if shape.AlumniType {
		b.WriteString(`
		LEFT JOIN alumni_type aty ON aty.id = c.alumni_type_id`)
	}
	return b.String()
}

func (r *contactRepository) List(ctx context.Context, active bool, shape capability.Shape) ([]Row, error) {
	query := contactSelect(shape) + `
		WHERE c.active = $1
		ORDER BY c.last_name, c.first_name, c.id`

	rows, err := r.db.QueryContext(ctx, query, active)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (r *contactRepository) Get(ctx context.Context, id int64, shape capability.Shape) (Row, error) {
	query := contactSelect(shape) + `
		WHERE c.id = $1`

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&raw); err != nil {
		return nil, err
	}
	return Row(raw), nil
}

func (r *contactRepository) Upsert(ctx context.Context, payload Payload) (int64, error) {
	if len(payload.Columns) == 0 {
		return 0, fmt.Errorf("empty contact payload")
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, upsertQuery("contact", payload), payload.Values...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *contactRepository) SetAddressLink(ctx context.Context, contactID, linkID int64) error {
	const query = `UPDATE contact SET address_link_id = $1 WHERE id = $2`
	return execOne(ctx, r.db, query, linkID, contactID)
}

func (r *contactRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `UPDATE contact SET active = $1 WHERE id = $2`
	return execOne(ctx, r.db, query, active, id)
}

func (r *contactRepository) IsActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `SELECT active FROM contact WHERE id = $1`, id).Scan(&active)
	return active, err
}

func (r *contactRepository) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `DELETE FROM contact WHERE id = $1`, id)
}

package repository

import "context"

type TeamMemberRepository interface {
	List(ctx context.Context) ([]Row, error)
}

type teamMemberRepository struct {
	db DBTX
}

func (r *teamMemberRepository) List(ctx context.Context) ([]Row, error) {
	const query = `
		SELECT to_jsonb(t)
		FROM team_member t
		WHERE t.active
		ORDER BY t.last_name, t.first_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

package repository

import (
	"context"
	"fmt"
)

type EventRepository interface {
	List(ctx context.Context, active bool) ([]Row, error)
	Get(ctx context.Context, id int64) (Row, error)
	Upsert(ctx context.Context, payload Payload) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
	IsActive(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type eventRepository struct {
	db DBTX
}

const eventSelect = `
	SELECT jsonb_build_object(
		'id', ev.id,
		'title', ev.title,
		'description', ev.description,
		'date', ev."date",
		'time', ev."time",
		'location_id', ev.location_id,
		'active', ev.active,
		'location', to_jsonb(loc)
	)
	FROM event ev
	LEFT JOIN location loc ON loc.id = ev.location_id`

func (r *eventRepository) List(ctx context.Context, active bool) ([]Row, error) {
	query := eventSelect + `
		WHERE ev.active = $1
		ORDER BY ev."date" DESC NULLS LAST, ev.id`

	rows, err := r.db.QueryContext(ctx, query, active)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (r *eventRepository) Get(ctx context.Context, id int64) (Row, error) {
	var raw []byte
	if err := r.db.QueryRowContext(ctx, eventSelect+` WHERE ev.id = $1`, id).Scan(&raw); err != nil {
		return nil, err
	}
	return Row(raw), nil
}

func (r *eventRepository) Upsert(ctx context.Context, payload Payload) (int64, error) {
	if len(payload.Columns) == 0 {
		return 0, fmt.Errorf("empty event payload")
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, upsertQuery("event", payload), payload.Values...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *eventRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return execOne(ctx, r.db, `UPDATE event SET active = $1 WHERE id = $2`, active, id)
}

func (r *eventRepository) IsActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `SELECT active FROM event WHERE id = $1`, id).Scan(&active)
	return active, err
}

func (r *eventRepository) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `DELETE FROM event WHERE id = $1`, id)
}

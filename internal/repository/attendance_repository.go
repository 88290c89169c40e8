package repository

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/models"
)

type AttendanceRepository interface {
	ListByEvents(ctx context.Context, eventIDs []int64, shape capability.Shape) ([]Row, error)
	Insert(ctx context.Context, eventID int64, contactIDs []int64, status models.RSVPStatus, shape capability.Shape) (int64, error)
	SetStatusByEmail(ctx context.Context, eventID int64, email string, status models.RSVPStatus) (int64, error)
	DeleteByContact(ctx context.Context, contactID int64) (int64, error)
	DeleteByEvent(ctx context.Context, eventID int64) (int64, error)
}

type attendanceRepository struct {
	db DBTX
}

func (r *attendanceRepository) ListByEvents(ctx context.Context, eventIDs []int64, shape capability.Shape) ([]Row, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(`
		SELECT jsonb_build_object(
			'event_id', a.event_id,
			'contact_id', a.contact_id,`)
	if shape.RSVPStatus {
		b.WriteString(`
			'rsvp_status', a.rsvp_status,`)
	}
	b.WriteString(`
			'contact', jsonb_build_object('id', c.id, 'first_name', c.first_name, 'last_name', c.last_name),
			'email', e.address
		)
		FROM attendance a
		JOIN contact c ON c.id = a.contact_id
		LEFT JOIN email e ON e.id = c.email_id
		WHERE a.event_id = ANY($1)
		ORDER BY a.event_id, a.id`)

	rows, err := r.db.QueryContext(ctx, b.String(), pq.Array(eventIDs))
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (r *attendanceRepository) Insert(ctx context.Context, eventID int64, contactIDs []int64, status models.RSVPStatus, shape capability.Shape) (int64, error) {
	query := `
		INSERT INTO attendance (event_id, contact_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (event_id, contact_id) DO NOTHING`
	args := []interface{}{eventID, pq.Array(contactIDs)}
	if shape.RSVPStatus {
		query = `
		INSERT INTO attendance (event_id, contact_id, rsvp_status)
		SELECT $1, unnest($2::bigint[]), $3
		ON CONFLICT (event_id, contact_id) DO NOTHING`
		args = append(args, string(status))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *attendanceRepository) SetStatusByEmail(ctx context.Context, eventID int64, email string, status models.RSVPStatus) (int64, error) {
	const query = `
		UPDATE attendance a
		SET rsvp_status = $1
		FROM contact c
		JOIN email e ON e.id = c.email_id
		WHERE a.contact_id = c.id
			AND a.event_id = $2
			AND lower(e.address) = lower($3)`

	result, err := r.db.ExecContext(ctx, query, string(status), eventID, email)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *attendanceRepository) DeleteByContact(ctx context.Context, contactID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE contact_id = $1`, contactID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *attendanceRepository) DeleteByEvent(ctx context.Context, eventID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

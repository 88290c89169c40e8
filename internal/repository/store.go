package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Row is one JSON document produced by a join query. Nested joins appear as objects
// or arrays depending on the relationship cardinality.
type Row = json.RawMessage

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Contacts() ContactRepository
	Events() EventRepository
	Attendance() AttendanceRepository
	Dimensions() DimensionRepository
	Locations() LocationRepository
	AddressLinks() AddressLinkRepository
	Emails() EmailRepository
	InviteTokens() InviteTokenRepository
	TeamMembers() TeamMemberRepository

	// InTx runs fn against a transactional view of the store. fn's error rolls back.
	InTx(ctx context.Context, fn func(Store) error) error
}

type store struct {
	db   *sql.DB
	conn DBTX
}

// NewStore returns a Postgres-backed store.
func NewStore(db *sql.DB) Store {
	return &store{db: db, conn: db}
}

func (s *store) Contacts() ContactRepository         { return &contactRepository{db: s.conn} }
func (s *store) Events() EventRepository             { return &eventRepository{db: s.conn} }
func (s *store) Attendance() AttendanceRepository    { return &attendanceRepository{db: s.conn} }
func (s *store) Dimensions() DimensionRepository     { return &dimensionRepository{db: s.conn} }
func (s *store) Locations() LocationRepository       { return &locationRepository{db: s.conn} }
func (s *store) AddressLinks() AddressLinkRepository { return &addressLinkRepository{db: s.conn} }
func (s *store) Emails() EmailRepository             { return &emailRepository{db: s.conn} }
func (s *store) InviteTokens() InviteTokenRepository { return &inviteTokenRepository{db: s.conn} }
func (s *store) TeamMembers() TeamMemberRepository   { return &teamMemberRepository{db: s.conn} }

func (s *store) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(&store{conn: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Payload is an ordered column/value list for one upsert.
type Payload struct {
	Columns []string
	Values  []interface{}
}

// Set appends or replaces a column value.
func (p *Payload) Set(column string, value interface{}) {
	for i, c := range p.Columns {
		if c == column {
			p.Values[i] = value
			return
		}
	}
	p.Columns = append(p.Columns, column)
	p.Values = append(p.Values, value)
}

// Get returns the value for column.
func (p Payload) Get(column string) (interface{}, bool) {
	for i, c := range p.Columns {
		if c == column {
			return p.Values[i], true
		}
	}
	return nil, false
}

// upsertQuery builds an insert keyed on id that updates every other column on conflict.
func upsertQuery(table string, p Payload) string {
	placeholders := make([]string, len(p.Columns))
	updates := make([]string, 0, len(p.Columns))
	for i, c := range p.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quote(c), quote(c)))
		}
	}
	quoted := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		quoted[i] = quote(c)
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) %s RETURNING id",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "), conflict,
	)
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, Row(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// execOne runs a statement that must touch at least one row.
func execOne(ctx context.Context, db DBTX, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

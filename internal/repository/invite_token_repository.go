package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stanstork/alumni-sync/internal/models"
)

type InviteTokenRepository interface {
	Upsert(ctx context.Context, token models.InviteToken) (models.InviteToken, error)
	GetByHash(ctx context.Context, tokenHash string) (models.InviteToken, error)
	MarkUsed(ctx context.Context, tokenHash string, status models.RSVPStatus, now time.Time) (models.InviteToken, error)
}

type inviteTokenRepository struct {
	db DBTX
}

const inviteTokenColumns = `event_id, email, token_hash, status, issued_at, expires_at, used_at`

// Upsert replaces any earlier token for the same (event_id, email), used or not.
func (r *inviteTokenRepository) Upsert(ctx context.Context, token models.InviteToken) (models.InviteToken, error) {
	const query = `
		INSERT INTO invite_token (event_id, email, token_hash, status, issued_at, expires_at, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
		ON CONFLICT (event_id, email) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			status = EXCLUDED.status,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			used_at = NULL
		RETURNING ` + inviteTokenColumns

	row := r.db.QueryRowContext(ctx, query,
		token.EventID,
		token.Email,
		token.TokenHash,
		string(token.Status),
		token.IssuedAt,
		token.ExpiresAt,
	)
	return scanInviteToken(row)
}

func (r *inviteTokenRepository) GetByHash(ctx context.Context, tokenHash string) (models.InviteToken, error) {
	query := `SELECT ` + inviteTokenColumns + ` FROM invite_token WHERE token_hash = $1`
	return scanInviteToken(r.db.QueryRowContext(ctx, query, tokenHash))
}

// MarkUsed redeems a token only if it is unused and unexpired at now. It returns
// sql.ErrNoRows when no row qualified.
func (r *inviteTokenRepository) MarkUsed(ctx context.Context, tokenHash string, status models.RSVPStatus, now time.Time) (models.InviteToken, error) {
	query := `
		UPDATE invite_token
		SET used_at = $3, status = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $3
		RETURNING ` + inviteTokenColumns

	return scanInviteToken(r.db.QueryRowContext(ctx, query, tokenHash, string(status), now))
}

func scanInviteToken(scanner interface {
	Scan(dest ...interface{}) error
}) (models.InviteToken, error) {
	var (
		token  models.InviteToken
		status string
		usedAt sql.NullTime
	)
	if err := scanner.Scan(
		&token.EventID,
		&token.Email,
		&token.TokenHash,
		&status,
		&token.IssuedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		return models.InviteToken{}, err
	}

	token.Status = models.RSVPStatus(status)
	if usedAt.Valid {
		t := usedAt.Time
		token.UsedAt = &t
	}
	return token, nil
}

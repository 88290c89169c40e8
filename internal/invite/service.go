// Package invite issues and redeems one-time RSVP tokens and paces invitation email.
package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
	"go.uber.org/multierr"
	"golang.org/x/crypto/blake2b"
)

const (
	tokenBytes = 32
	DefaultTTL = 72 * time.Hour
)

// IssuedToken carries the raw token. It exists only in memory and in the email.
type IssuedToken struct {
	EventID   int64
	Email     string
	Raw       string
	ExpiresAt time.Time
}

// Redemption is the result of a successful claim.
type Redemption struct {
	EventID int64
	Email   string
	Status  models.RSVPStatus
	// Attendees is how many attendance rows took the new status.
	Attendees int64
}

type Service struct {
	store  repository.Store
	caps   *capability.Registry
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(store repository.Store, caps *capability.Registry, secret string, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	s := &Service{
		store:  store,
		caps:   caps,
		key:    key,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger.With().Str("component", "invite_tokens").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hash is the keyed BLAKE2b-256 digest stored in place of the raw token.
func (s *Service) Hash(raw string) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// Key length is bounded in NewService.
		panic(err)
	}
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

func newRawToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IssueOne creates or replaces the token for (eventID, email). Reissuing resets the
// used marker, the status and the expiry.
func (s *Service) IssueOne(ctx context.Context, eventID int64, email string) (IssuedToken, error) {
	email = normalizeEmail(email)
	if email == "" {
		return IssuedToken{}, apperrors.Validation("invite.issue", "email is required")
	}
	raw, err := newRawToken()
	if err != nil {
		return IssuedToken{}, err
	}

	now := s.now().UTC()
	stored, err := s.store.InviteTokens().Upsert(ctx, models.InviteToken{
		EventID:   eventID,
		Email:     email,
		TokenHash: s.Hash(raw),
		Status:    models.RSVPPending,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return IssuedToken{}, apperrors.Wrap("invite_token.upsert", err)
	}

	s.logger.Debug().Int64("event_id", eventID).Str("email", email).Time("expires_at", stored.ExpiresAt).Msg("issued invite token")
	return IssuedToken{EventID: eventID, Email: email, Raw: raw, ExpiresAt: stored.ExpiresAt}, nil
}

// Issue issues a token per email. Failures are collected and do not stop the rest.
func (s *Service) Issue(ctx context.Context, eventID int64, emails []string) ([]IssuedToken, error) {
	var (
		issued []IssuedToken
		errs   error
	)
	for _, email := range emails {
		t, err := s.IssueOne(ctx, eventID, email)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", email, err))
			continue
		}
		issued = append(issued, t)
	}
	return issued, errs
}

// Redeem consumes the token and applies the claimed RSVP to attendance rows of the
// token's event whose contact uses the token's email. It succeeds at most once.
func (s *Service) Redeem(ctx context.Context, raw string, claimed models.RSVPStatus) (Redemption, error) {
	if claimed != models.RSVPGoing && claimed != models.RSVPNotGoing {
		return Redemption{}, apperrors.Validation("invite.redeem", "claimedStatus must be going or not_going")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Redemption{}, apperrors.Validation("invite.redeem", "token is required")
	}

	hash := s.Hash(raw)
	now := s.now().UTC()
	var out Redemption

	// A drift error aborts the transaction, so the whole claim is retried without
	// the attendance update.
	err := s.caps.Run(ctx, []capability.Feature{capability.FeatureRSVPStatus}, func(ctx context.Context, shape capability.Shape) error {
		return s.store.InTx(ctx, func(tx repository.Store) error {
			token, err := tx.InviteTokens().MarkUsed(ctx, hash, claimed, now)
			if err != nil {
				return err
			}
			out = Redemption{EventID: token.EventID, Email: token.Email, Status: claimed}
			if !shape.RSVPStatus {
				return nil
			}
			n, err := tx.Attendance().SetStatusByEmail(ctx, token.EventID, token.Email, claimed)
			if err != nil {
				return err
			}
			out.Attendees = n
			return nil
		})
	})
	if err == nil {
		s.logger.Info().Int64("event_id", out.EventID).Str("status", string(claimed)).Int64("attendees", out.Attendees).Msg("invite redeemed")
		return out, nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return Redemption{}, apperrors.Wrap("invite.redeem", err)
	}

	rerr := &RedeemError{Reason: s.classifyMiss(ctx, hash, now)}
	s.logger.Warn().Str("reason", string(rerr.Reason)).Msg("invite redemption rejected")
	return Redemption{}, rerr
}

func (s *Service) classifyMiss(ctx context.Context, hash string, now time.Time) Reason {
	token, err := s.store.InviteTokens().GetByHash(ctx, hash)
	switch {
	case err != nil:
		return ReasonNotFound
	case token.IsUsed():
		return ReasonAlreadyUsed
	case token.IsExpired(now):
		return ReasonExpired
	}
	// Lost a race with another claim between the update and this read.
	return ReasonAlreadyUsed
}

// Reason is the internal cause of a rejected redemption.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonExpired     Reason = "expired"
	ReasonAlreadyUsed Reason = "already_used"
)

// PublicReasonInvalid is the only reason shown to the claimant.
const PublicReasonInvalid = "invalid_or_expired"

type RedeemError struct {
	Reason Reason
}

func (e *RedeemError) Error() string {
	return fmt.Sprintf("invite token rejected: %s", e.Reason)
}

// PublicReason hides which of the internal reasons applied.
func (e *RedeemError) PublicReason() string {
	return PublicReasonInvalid
}

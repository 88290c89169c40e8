// Package dimension resolves free-text labels to lookup table keys with find-or-create
// semantics.
package dimension

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/repository"
)

// ConcurrencyMode documents how callers may schedule EnsureKey calls. Lookups for
// different dimensions are independent and may run concurrently.
const ConcurrencyMode = "DimensionResolution: parallel-safe"

type Resolver struct {
	repo   repository.DimensionRepository
	logger zerolog.Logger
}

func NewResolver(repo repository.DimensionRepository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger.With().Str("component", "dimension_resolver").Logger(),
	}
}

// EnsureKey returns the key for label in dim, creating the row when absent. A nil key
// with a nil error means the owning entity should be saved without the link.
func (r *Resolver) EnsureKey(ctx context.Context, dim models.Dimension, label string) (*int64, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	if !dim.Valid() {
		return nil, apperrors.Newf(apperrors.KindValidationFailure, "dimension.ensure", "unknown dimension %q", dim)
	}

	entry, err := r.repo.Find(ctx, dim, label)
	if err == nil {
		return models.Int64(entry.Key), nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, apperrors.Wrap("dimension.find", err)
	}

	entry, err = r.repo.Insert(ctx, dim, label)
	if err == nil {
		r.logger.Debug().Str("dimension", string(dim)).Str("label", label).Int64("key", entry.Key).Msg("created dimension entry")
		return models.Int64(entry.Key), nil
	}

	switch apperrors.Classify(err) {
	case apperrors.KindConflict:
		// Lost a race with a concurrent insert of the same label.
		entry, rerr := r.repo.Find(ctx, dim, label)
		if rerr == nil {
			return models.Int64(entry.Key), nil
		}
		r.logger.Warn().Err(rerr).Str("dimension", string(dim)).Str("label", label).
			Msg("dimension entry missing after conflicting insert, continuing without link")
		return nil, nil
	case apperrors.KindPermissionDenied:
		r.logger.Warn().Err(err).Str("dimension", string(dim)).Str("label", label).
			Msg("dimension insert not permitted, continuing without link")
		return nil, nil
	}
	return nil, apperrors.Wrap("dimension.insert", err)
}

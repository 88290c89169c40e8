// Package orchestrator loads and persists contacts and events against the remote store,
// composing dimension resolution, entity mapping and schema capability downgrades.
package orchestrator

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/dimension"
	"github.com/stanstork/alumni-sync/internal/repository"
	"go.uber.org/multierr"
)

// Concurrency modes of the batch operations. Dimension lookups inside one persist run
// in parallel; entries of a batch persist run one after another so later entries see
// dimension rows created by earlier ones.
const (
	DimensionResolution = dimension.ConcurrencyMode
	BatchPersist        = "BatchPersist: sequential-required"
)

type Orchestrator struct {
	store  repository.Store
	caps   *capability.Registry
	dims   *dimension.Resolver
	logger zerolog.Logger
}

func New(store repository.Store, caps *capability.Registry, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		caps:   caps,
		dims:   dimension.NewResolver(store.Dimensions(), logger),
		logger: logger.With().Str("component", "sync_orchestrator").Logger(),
	}
}

// Warnings collects auxiliary failures that did not undo the core write.
type Warnings []error

// Err combines the warnings into one PartialSuccess error, or nil.
func (w Warnings) Err() error {
	if len(w) == 0 {
		return nil
	}
	return &apperrors.Error{Kind: apperrors.KindPartialSuccess, Op: "persist", Err: multierr.Combine(w...)}
}

// BatchError reports the failed entries of a batch persist by position.
type BatchError struct {
	Failed map[int]error
	err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of the batch entries failed: %v", len(e.Failed), e.err)
}

func (e *BatchError) Unwrap() []error {
	return multierr.Errors(e.err)
}

func (e *BatchError) add(index int, label string, err error) {
	if e.Failed == nil {
		e.Failed = map[int]error{}
	}
	e.Failed[index] = err
	e.err = multierr.Append(e.err, fmt.Errorf("entry %d (%s): %w", index, label, err))
}

func (e *BatchError) orNil() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e
}

package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Holder is a local collection that may contain events. Apply patches every held copy
// of the changed event and reports whether it held one.
type Holder interface {
	ApplyChange(c Change) bool
}

// HolderFunc adapts a function to Holder.
type HolderFunc func(c Change) bool

func (f HolderFunc) ApplyChange(c Change) bool { return f(c) }

type Reconciler struct {
	feed   Feed
	logger zerolog.Logger

	mu      sync.Mutex
	holders map[int]Holder
	nextID  int
	watched map[int64]bool
	stopped bool
}

func NewReconciler(feed Feed, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		feed:    feed,
		logger:  logger.With().Str("component", "realtime_reconciler").Logger(),
		holders: map[int]Holder{},
		watched: map[int64]bool{},
	}
}

// Watch adds event ids to the filter. Until the first call every event is relevant.
func (r *Reconciler) Watch(eventIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range eventIDs {
		r.watched[id] = true
	}
}

// Unwatch removes event ids from the filter.
func (r *Reconciler) Unwatch(eventIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range eventIDs {
		delete(r.watched, id)
	}
}

// Register adds a holder and returns a function that removes it.
func (r *Reconciler) Register(h Holder) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.holders[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.holders, id)
	}
}

// Apply patches every registered holder containing the event and returns how many
// were patched. Nothing is applied after Run has stopped.
func (r *Reconciler) Apply(c Change) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return 0
	}
	if len(r.watched) > 0 && !r.watched[c.EventID] {
		return 0
	}
	patched := 0
	for _, h := range r.holders {
		if h.ApplyChange(c) {
			patched++
		}
	}
	return patched
}

// Run consumes the feed until ctx is done or the feed closes. On return the feed is
// closed and no further patches are applied.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.stop()

	changes := r.feed.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-changes:
			if !ok {
				r.logger.Info().Msg("change feed closed")
				return nil
			}
			c, err := ParseChange(payload)
			if err != nil {
				r.logger.Warn().Err(err).Str("payload", string(payload)).Msg("ignoring malformed change")
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n := r.Apply(c)
			r.logger.Debug().
				Str("op", string(c.Op)).
				Int64("event_id", c.EventID).
				Int64("contact_id", c.ContactID).
				Str("rsvp_status", string(c.Status)).
				Int("holders", n).
				Msg("applied attendance change")
		}
	}
}

func (r *Reconciler) stop() {
	r.mu.Lock()
	r.stopped = true
	r.holders = map[int]Holder{}
	r.mu.Unlock()

	if err := r.feed.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to close change feed")
	}
}

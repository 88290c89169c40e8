package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
	"github.com/stanstork/alumni-sync/internal/models"
	"github.com/stanstork/alumni-sync/internal/orchestrator"
	"github.com/stanstork/alumni-sync/internal/realtime"
)

type OutcomeKind string

const (
	Confirmed OutcomeKind = "confirmed"
	Warned    OutcomeKind = "warned"
	Reverted  OutcomeKind = "reverted"
)

// Outcome settles one optimistic transition.
type Outcome struct {
	Kind    OutcomeKind
	Contact models.Contact
	Err     error
}

type ContactPersister interface {
	Persist(ctx context.Context, c models.Contact) (orchestrator.PersistResult, error)
}

type ContactArchiver interface {
	ArchiveContact(ctx context.Context, id int64) error
}

// Session applies local transitions immediately and settles them against the
// backend in the background.
type Session struct {
	store     *Store
	persister ContactPersister
	archiver  ContactArchiver
	logger    zerolog.Logger

	mu         sync.Mutex
	closed     bool
	wg         sync.WaitGroup
	unregister []func()
}

func NewSession(store *Store, persister ContactPersister, archiver ContactArchiver, logger zerolog.Logger) *Session {
	return &Session{
		store:     store,
		persister: persister,
		archiver:  archiver,
		logger:    logger.With().Str("component", "state_session").Logger(),
	}
}

// Attach registers the store's event holders with the reconciler. They are
// detached on Close.
func (s *Session) Attach(r *realtime.Reconciler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregister = append(s.unregister, r.Register(s.store.Events), r.Register(s.store.Current))
}

// settle runs fn under the session lock unless the session is closed or ctx is done.
func (s *Session) settle(ctx context.Context, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// SaveContact applies c to the store before returning. The channel yields one
// Outcome, or closes without one if the session or ctx ends first.
func (s *Session) SaveContact(ctx context.Context, c models.Contact) <-chan Outcome {
	out := make(chan Outcome, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(out)
		return out
	}
	key, undo := s.store.stage(c)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(out)

		result, err := s.persister.Persist(context.WithoutCancel(ctx), c)
		var o Outcome
		applied := s.settle(ctx, func() {
			switch {
			case err != nil:
				s.store.revert(undo)
				o = Outcome{Kind: Reverted, Contact: c, Err: err}
			case result.PartialSuccess():
				s.store.confirm(key, result.Contact)
				o = Outcome{Kind: Warned, Contact: result.Contact, Err: result.Warnings.Err()}
			default:
				s.store.confirm(key, result.Contact)
				o = Outcome{Kind: Confirmed, Contact: result.Contact}
			}
		})
		if !applied {
			s.logger.Debug().Msg("dropping save outcome after teardown")
			return
		}
		if o.Kind == Reverted {
			s.logger.Warn().Err(err).Msg("save failed, reverted local change")
		}
		out <- o
	}()
	return out
}

// ArchiveContact moves the contact to the archived list immediately and restores
// it if the backend rejects the change.
func (s *Session) ArchiveContact(ctx context.Context, id int64) <-chan Outcome {
	out := make(chan Outcome, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(out)
		return out
	}
	undo, ok := s.store.stageArchive(id)
	if !ok {
		s.mu.Unlock()
		out <- Outcome{Kind: Reverted, Err: apperrors.New(apperrors.KindNotFound, "state.ArchiveContact", "contact is not held locally")}
		close(out)
		return out
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(out)

		err := s.archiver.ArchiveContact(context.WithoutCancel(ctx), id)
		o := Outcome{Kind: Confirmed}
		applied := s.settle(ctx, func() {
			if err != nil {
				s.store.revert(undo)
				o = Outcome{Kind: Reverted, Err: err}
			}
		})
		if applied {
			out <- o
		}
	}()
	return out
}

// Close stops all further state writes and detaches event holders. Pending
// operations still complete against the backend.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()

	for _, fn := range unregister {
		fn()
	}
}

// Wait blocks until every in-flight operation has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

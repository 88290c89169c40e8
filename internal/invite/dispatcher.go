package invite

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/notification"
)

const (
	DefaultBatchSize  = 2
	DefaultBatchDelay = time.Second
)

// Delivery is one message addressed to one recipient.
type Delivery struct {
	Email   string
	Message notification.Message
}

// Result is the per-recipient outcome of a dispatch.
type Result struct {
	Email string
	OK    bool
	Err   error
}

// Dispatcher sends messages in fixed-size batches. Messages inside a batch go out
// concurrently; the next batch starts only after the delay has passed since the
// previous batch finished.
type Dispatcher struct {
	mailer    notification.Mailer
	batchSize int
	delay     time.Duration
	logger    zerolog.Logger
}

func NewDispatcher(mailer notification.Mailer, batchSize int, delay time.Duration, logger zerolog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = 0
	}
	return &Dispatcher{
		mailer:    mailer,
		batchSize: batchSize,
		delay:     delay,
		logger:    logger.With().Str("component", "invite_dispatcher").Logger(),
	}
}

// Dispatch sends every delivery and returns results in input order. A failed send
// never stops the others. If ctx ends between batches the remaining recipients are
// reported as failed with ctx's error.
func (d *Dispatcher) Dispatch(ctx context.Context, deliveries []Delivery) []Result {
	results := make([]Result, len(deliveries))
	runID := uuid.NewString()
	logger := d.logger.With().Str("dispatch_id", runID).Logger()

	for start := 0; start < len(deliveries); start += d.batchSize {
		end := start + d.batchSize
		if end > len(deliveries) {
			end = len(deliveries)
		}

		if err := d.pause(ctx, start); err != nil {
			for i := start; i < len(deliveries); i++ {
				results[i] = Result{Email: deliveries[i].Email, Err: err}
			}
			logger.Warn().Err(err).Int("skipped", len(deliveries)-start).Msg("dispatch interrupted")
			return results
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				del := deliveries[i]
				err := d.mailer.Send(ctx, del.Message)
				results[i] = Result{Email: del.Email, OK: err == nil, Err: err}
				if err != nil {
					logger.Warn().Err(err).Str("email", del.Email).Msg("failed to send invite")
				}
			}(i)
		}
		wg.Wait()
		logger.Debug().Int("from", start).Int("to", end).Msg("batch sent")
	}
	return results
}

// pause waits out the inter-batch delay before every batch but the first.
func (d *Dispatcher) pause(ctx context.Context, start int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if start == 0 || d.delay == 0 {
		return nil
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

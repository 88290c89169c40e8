package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Feed delivers raw change payloads until closed.
type Feed interface {
	Changes() <-chan []byte
	Close() error
}

// PQFeed listens on a Postgres NOTIFY channel.
type PQFeed struct {
	listener *pq.Listener
	out      chan []byte
	done     chan struct{}
	once     sync.Once
	logger   zerolog.Logger
}

const pingInterval = 90 * time.Second

func NewPQFeed(dsn, channel string, logger zerolog.Logger) (*PQFeed, error) {
	logger = logger.With().Str("component", "realtime_feed").Str("channel", channel).Logger()
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn().Err(err).Int("event", int(ev)).Msg("listener connection event")
		}
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, report)
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	f := &PQFeed{
		listener: listener,
		out:      make(chan []byte, 64),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go f.pump()
	return f, nil
}

func (f *PQFeed) pump() {
	defer close(f.out)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected; notifications sent while down are lost.
				f.logger.Info().Msg("listener reconnected")
				continue
			}
			select {
			case f.out <- []byte(n.Extra):
			case <-f.done:
				return
			}
		case <-ticker.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn().Err(err).Msg("listener ping failed")
				}
			}()
		}
	}
}

func (f *PQFeed) Changes() <-chan []byte {
	return f.out
}

func (f *PQFeed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.listener.Close()
	})
	return err
}

// ChanFeed is an in-process feed.
type ChanFeed struct {
	ch      chan []byte
	done    chan struct{}
	senders sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewChanFeed(buffer int) *ChanFeed {
	return &ChanFeed{ch: make(chan []byte, buffer), done: make(chan struct{})}
}

// Publish queues a payload, blocking while the buffer is full. It returns false once
// the feed is closed, including when Close interrupts a blocked send.
func (f *ChanFeed) Publish(payload []byte) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.senders.Add(1)
	f.mu.Unlock()
	defer f.senders.Done()

	select {
	case f.ch <- payload:
		return true
	case <-f.done:
		return false
	}
}

func (f *ChanFeed) Changes() <-chan []byte {
	return f.ch
}

// Close releases blocked publishers, then closes the change channel.
func (f *ChanFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)
	f.senders.Wait()
	close(f.ch)
	return nil
}

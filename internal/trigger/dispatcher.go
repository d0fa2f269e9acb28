package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

var (
	// ErrTooManyRetries indicates a delivery did not succeed within
	// MaxAttempts.
	ErrTooManyRetries = errors.New("too many retries")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("dispatcher closed")
)

const (
	DefaultWorkers     = 4
	DefaultMaxAttempts = 3
	DefaultQueueSize   = 64
	DefaultBackoff     = 50 * time.Millisecond
)

type Option func(*Dispatcher)

func WithWorkers(n int) Option { return func(d *Dispatcher) { d.workers = n } }
func WithMaxAttempts(n int) Option { return func(d *Dispatcher) { d.maxAttempts = n } }
func WithQueueSize(n int) Option { return func(d *Dispatcher) { d.queueSize = n } }
func WithBackoff(b time.Duration) Option { return func(d *Dispatcher) { d.backoff = b } }
func WithLogger(log *zap.Logger) Option { return func(d *Dispatcher) { d.log = log } }
func WithObserver(o *metrics.Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher queues events and delivers them to registered handlers from a
// fixed pool of workers. It implements platform.EventSink.
type Dispatcher struct {
	registry    *Registry
	workers     int
	maxAttempts int
	queueSize   int
	backoff     time.Duration
	log         *zap.Logger
	observer    *metrics.Observer

	queue chan platform.Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	errMu   sync.Mutex
	dropped error
}

var _ platform.EventSink = (*Dispatcher)(nil)

// NewDispatcher starts the worker pool. Close must be called to stop it.
func NewDispatcher(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		workers:     DefaultWorkers,
		maxAttempts: DefaultMaxAttempts,
		queueSize:   DefaultQueueSize,
		backoff:     DefaultBackoff,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	d.queue = make(chan platform.Event, d.queueSize)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Publish enqueues ev for the handler named by ev.Target. It blocks while
// the queue is full unless ctx is done.
func (d *Dispatcher) Publish(ctx context.Context, ev platform.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.registry.Lookup(ev.Target); !ok {
		return stackerr.Precondition(ev.Target, stackerr.ErrUnknownHandler, "no handler for event %s", ev.ID)
	}
	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, waits for queued ones to be delivered and
// returns the errors of deliveries that exhausted their attempts.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()

	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.dropped
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev platform.Event) {
	log := d.log.With(
		zap.String("event", ev.ID),
		zap.String("bucket", ev.Bucket),
		zap.String("key", ev.Key),
		zap.String("handler", ev.Target))

	h, ok := d.registry.Lookup(ev.Target)
	if !ok {
		d.drop(log, ev, stackerr.ErrUnknownHandler)
		return
	}

	ctx := context.Background()
	err := do(d.maxAttempts, func(attempt int) (bool, error) {
		if attempt > 1 {
			d.observer.ObserveDelivery("retried")
			time.Sleep(d.backoff * time.Duration(attempt-1))
		}
		return false, h.Handle(ctx, ev)
	})
	if err != nil {
		d.drop(log, ev, err)
		return
	}
	d.observer.ObserveDelivery("delivered")
	log.Debug("event delivered")
}

func (d *Dispatcher) drop(log *zap.Logger, ev platform.Event, err error) {
	d.observer.ObserveDelivery("dropped")
	log.Error("event delivery failed", zap.Error(err))
	d.errMu.Lock()
	d.dropped = multierr.Append(d.dropped, fmt.Errorf("event %s (%s/%s): %w", ev.ID, ev.Bucket, ev.Key, err))
	d.errMu.Unlock()
}

// do calls f until it succeeds, asks to stop, or max attempts are used.
func do(max int, f func(int) (bool, error)) error {
	var errs error
	attempt := 1
	for {
		stop, err := f(attempt)
		if err == nil {
			return nil
		}
		if stop {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, pkgerrors.WithMessage(err, fmt.Sprintf("attempt %d", attempt)))
		attempt++
		if attempt > max {
			return multierr.Append(errs, ErrTooManyRetries)
		}
	}
}

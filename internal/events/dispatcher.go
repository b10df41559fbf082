package events

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/gorules/internal/telemetry"
	"github.com/rs/zerolog"
)

const (
	defaultQueueSize  = 1000
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
	defaultTimeout    = 10 * time.Second
)

// Sink delivers one event to an external system.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Name() string
	Close() error
}

// Options tunes a Dispatcher. Zero values select the defaults.
type Options struct {
	QueueSize   int
	MaxRetries  int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

// Dispatcher queues events and delivers them to a Sink from a single worker.
// Delivery order matches Publish order.
type Dispatcher struct {
	sink    Sink
	log     zerolog.Logger
	opts    Options
	queue   chan Event
	done    chan struct{}
	closed  int32 // atomic flag to prevent double-close
	started int32
	sleep   func(time.Duration)
}

// NewDispatcher creates a dispatcher for sink. Call Start before publishing.
func NewDispatcher(sink Sink, opts Options, log zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Dispatcher{
		sink:  sink,
		log:   log.With().Str("component", "events").Str("sink", sink.Name()).Logger(),
		opts:  opts,
		queue: make(chan Event, opts.QueueSize),
		done:  make(chan struct{}),
		sleep: time.Sleep,
	}
}

// Start begins processing events from the queue.
func (d *Dispatcher) Start() {
	if !atomic.CompareAndSwapInt32(&d.started, 0, 1) {
		return
	}
	go d.worker()
}

// Close stops accepting events, waits for the queue to drain and closes the
// sink. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}
	close(d.queue)
	if atomic.LoadInt32(&d.started) == 1 {
		<-d.done
	}
	return d.sink.Close()
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full or the dispatcher is closed the event is dropped and counted.
func (d *Dispatcher) Publish(ev Event) {
	if atomic.LoadInt32(&d.closed) == 1 {
		telemetry.EventsDropped.WithLabelValues("closed").Inc()
		return
	}
	defer func() {
		// Close raced with the send above.
		if recover() != nil {
			telemetry.EventsDropped.WithLabelValues("closed").Inc()
		}
	}()
	select {
	case d.queue <- ev:
		d.log.Debug().Str("event", ev.Type).Str("rule_id", ev.Resource.ID).Int("queue_len", len(d.queue)).Msg("event queued")
	default:
		telemetry.EventsDropped.WithLabelValues("queue_full").Inc()
		d.log.Warn().Str("event", ev.Type).Str("rule_id", ev.Resource.ID).Int("queue_size", d.opts.QueueSize).Msg("queue full, dropping event")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliverWithRetry(ev)
	}
}

// deliverWithRetry sends ev, backing off 2^attempt * BaseBackoff between tries.
func (d *Dispatcher) deliverWithRetry(ev Event) {
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		start := time.Now()
		err := d.sink.Send(ctx, ev)
		cancel()

		if err == nil {
			d.log.Debug().Str("event", ev.Type).Str("rule_id", ev.Resource.ID).
				Dur("duration", time.Since(start)).Int("attempt", attempt+1).Msg("event delivered")
			return
		}

		if attempt < d.opts.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * d.opts.BaseBackoff
			d.log.Warn().Err(err).Str("event", ev.Type).Int("attempt", attempt+1).
				Dur("retry_in", backoff).Msg("delivery failed")
			d.sleep(backoff)
			continue
		}
		telemetry.EventsDropped.WithLabelValues("delivery_failed").Inc()
		d.log.Error().Err(err).Str("event", ev.Type).Str("rule_id", ev.Resource.ID).
			Int("attempts", attempt+1).Msg("delivery failed permanently")
	}
}

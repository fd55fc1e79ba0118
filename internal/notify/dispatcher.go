package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 64

// Dispatcher sends messages in the background. Delivery is best effort:
// failures are logged and dropped, there is no retry and no dead letter, and
// callers never observe the outcome.
type Dispatcher struct {
	mailer      Mailer
	logger      *slog.Logger
	queue       chan Message
	sendTimeout time.Duration
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given mailer. mailer may be
// nil, in which case every message is dropped with a logged notice.
func NewDispatcher(mailer Mailer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mailer:      mailer,
		logger:      logger,
		queue:       make(chan Message, defaultQueueSize),
		sendTimeout: 30 * time.Second,
		stop:        make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop signals the worker to stop and waits for it. Queued messages that have
// not been picked up yet are abandoned.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Enqueue hands a message to the background worker. It never blocks: when the
// queue is full the message is dropped with a logged warning.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message", "to", msg.To, "subject", msg.Subject)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case msg := <-d.queue:
			d.deliver(msg)
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	if d.mailer == nil {
		d.logger.Info("mailer not configured, dropping notification", "to", msg.To)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("notification delivery failed", "to", msg.To, "subject", msg.Subject, "err", err)
		return
	}
	d.logger.Info("notification sent", "to", msg.To, "subject", msg.Subject)
}

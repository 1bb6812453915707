package services

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/remote"
	"attendees/internal/structures"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultQueueSize = 1024
	defaultRetryMax  = 3
)

// CountNotifierInterface pushes joined counts to the event service off the
// request path.
type CountNotifierInterface interface {
	Notify(event models.Principal)
	Start(ctx context.Context)
	Stop()
}

// JoinedCounter reports the current number of joins for an event.
type JoinedCounter interface {
	JoinedCount(event models.Principal) int
}

type CountNotifier struct {
	events   remote.EventClientInterface
	counter  JoinedCounter
	logger   providers.Logger
	metrics  providers.MetricsProviderInterface
	retryMax uint
	timeout  time.Duration

	queue   chan models.Principal
	mu      sync.Mutex
	pending map[models.Principal]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCountNotifier(conf *structures.Config, events remote.EventClientInterface, counter JoinedCounter, logger providers.Logger, metrics providers.MetricsProviderInterface) CountNotifierInterface {
	size := conf.Remote.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	retryMax := conf.Remote.RetryMax
	if retryMax == 0 {
		retryMax = defaultRetryMax
	}
	return &CountNotifier{
		events:   events,
		counter:  counter,
		logger:   logger,
		metrics:  metrics,
		retryMax: retryMax,
		timeout:  conf.Remote.Timeout,
		queue:    make(chan models.Principal, size),
		pending:  make(map[models.Principal]struct{}),
	}
}

// Notify queues event for a count push. An event already waiting in the
// queue is not queued twice; the worker reads the count when it sends.
func (n *CountNotifier) Notify(event models.Principal) {
	n.mu.Lock()
	if _, ok := n.pending[event]; ok {
		n.mu.Unlock()
		return
	}
	n.pending[event] = struct{}{}
	n.mu.Unlock()

	select {
	case n.queue <- event:
	default:
		n.mu.Lock()
		delete(n.pending, event)
		n.mu.Unlock()
		n.metrics.IncNotificationsDropped()
		n.logger.Warnf(providers.TypeRemote, "Count queue full, dropped update for %s", event)
	}
}

func (n *CountNotifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go n.run(ctx)
}

func (n *CountNotifier) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}

func (n *CountNotifier) run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			n.mu.Lock()
			delete(n.pending, event)
			n.mu.Unlock()
			n.send(ctx, event)
		}
	}
}

func (n *CountNotifier) send(ctx context.Context, event models.Principal) {
	count := n.counter.JoinedCount(event)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := n.callContext(ctx)
		defer cancel()
		err := n.events.UpdateAttendeeCount(callCtx, event, count)
		if err != nil && models.KindOf(err) != models.KindRemoteCallFailed {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(n.retryMax))
	if err != nil {
		n.logger.Errorf(providers.TypeRemote, "Count update for %s (%d) failed: %s", event, count, err)
		return
	}
	n.logger.Debugf(providers.TypeRemote, "Count update for %s sent: %d", event, count)
}

func (n *CountNotifier) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, n.timeout)
}

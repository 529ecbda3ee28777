package gate

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/provider"
	"github.com/simplesurance/mergegate/internal/reconcile"
)

const DefEventChannelBufferSize = 512

const evLoopLoggerName = "event-loop"

// EvLoop receives push events and reconciles pull-request states.
// Reconciliation passes that fail with a retryable error are retried
// asynchronously until DefRetryTimeout expired, the host does not need to
// redeliver the event itself.
type EvLoop struct {
	ch         chan *provider.Event
	logger     *zap.Logger
	reconciler *reconcile.Reconciler

	reconcileWg    sync.WaitGroup
	routineDeferFn func()
	retryer        *Retryer
}

// WithRoutineDeferFunc sets a function to be run when a go-routine that
// executes a reconciliation pass returns.
// It can be used to set a panic handler.
func WithRoutineDeferFunc(fn func()) func(*EvLoop) {
	return func(e *EvLoop) {
		e.routineDeferFn = fn
	}
}

func NewEventLoop(reconciler *reconcile.Reconciler, opts ...func(*EvLoop)) *EvLoop {
	evl := EvLoop{
		ch:         make(chan *provider.Event, DefEventChannelBufferSize),
		reconciler: reconciler,
		retryer:    NewRetryer(),
	}

	for _, opt := range opts {
		opt(&evl)
	}

	if evl.logger == nil {
		evl.logger = zap.L().Named(evLoopLoggerName)
	}

	return &evl
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *EvLoop) C() chan<- *provider.Event {
	return e.ch
}

func (e *EvLoop) Start() {
	e.logger.Info("ready to process events", logfields.Event("eventloop_started"))

	for ev := range e.ch {
		logger := e.logger.With(ev.LogFields...)

		logger.Debug("event received", logfields.Event("event_received"))

		if ev.Push == nil {
			logger.Debug(
				"event carries no push information, ignored",
				logfields.Event("event_ignored"),
			)

			continue
		}

		e.scheduleReconciliation(context.Background(), ev)
	}

	e.logger.Info(
		"event loop terminated, event channel was closed",
		logfields.Event("eventloop_terminated"),
	)
}

func (e *EvLoop) scheduleReconciliation(ctx context.Context, event *provider.Event) {
	e.reconcileWg.Add(1)

	go func() {
		if e.routineDeferFn != nil {
			defer e.routineDeferFn()
		}

		defer e.reconcileWg.Done()

		_ = e.retryer.Run(
			ctx,
			func(ctx context.Context) error {
				err := e.reconciler.ProcessPush(ctx, event.Push)

				// backend outages are worth retrying, everything
				// else is fatal for the event
				var backendErr *mergeerr.BackendError
				if errors.As(err, &backendErr) {
					return mergeerr.NewRetryableAnytimeError(err)
				}

				return err
			},
			event.LogFields,
		)
	}()
}

// Stop stops the event loop and waits until all scheduled go-routines
// terminated.
// The event channel (EvLoop.C()) will be closed.
func (e *EvLoop) Stop() {
	e.logger.Debug("event loop terminating", logfields.Event("eventloop_terminating"))
	close(e.ch)

	e.retryer.Stop()

	e.logger.Debug(
		"waiting for scheduled reconciliations to terminate",
		logfields.Event("eventloop_terminating"),
	)
	e.reconcileWg.Wait()

	e.logger.Info("event loop terminated", logfields.Event("eventloop_terminated"))
}

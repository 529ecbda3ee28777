package gate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cenkalti/backoff"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
)

const DefRetryTimeout = 2 * time.Hour

// Retryer executes a function repeatedly until it was successful or a cancel
// condition happened.
type Retryer struct {
	logger                 *zap.Logger
	maxRetryTimeout        time.Duration
	backoffInitialInterval time.Duration
	shutdownChan           chan struct{}
}

func NewRetryer() *Retryer {
	return &Retryer{
		logger:                 zap.L().Named("retryer"),
		maxRetryTimeout:        DefRetryTimeout,
		backoffInitialInterval: 5 * time.Second,
		shutdownChan:           make(chan struct{}),
	}
}

func logFieldResult(val string) zap.Field {
	return zap.String("reconciliation_result", val)
}

// Run executes fn until it was successful, it returned an error that does
// not wrap mergeerr.RetryableError or the execution was aborted via the
// context.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	startTime := time.Now()
	endTime := startTime.Add(r.maxRetryTimeout)

	retryTimeout := time.NewTimer(r.maxRetryTimeout)
	defer retryTimeout.Stop()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval

	for {
		tryCnt++
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

		select {
		case <-ctx.Done():
			logger.Info(
				"reconciliation cancelled",
				logfields.Event("reconciliation_cancelled"),
				logFieldResult("cancelled"),
			)

			return ctx.Err()

		case <-retryTimer.C:
			err := fn(ctx)
			if err != nil {
				var retryError *mergeerr.RetryableError

				logger = logger.With(zap.Error(err))

				if errors.Is(err, context.Canceled) {
					logger.Info(
						"reconciliation cancelled",
						logfields.Event("reconciliation_cancelled"),
						logFieldResult("cancelled"),
					)

					return err
				}

				if errors.As(err, &retryError) {
					if retryError.After.After(endTime) {
						logger.Error(
							"reconciliation failed, next possible retry time is after timeout expiration",
							logfields.Event("reconciliation_failed"),
							zap.Time("earliest_allowed_retry", retryError.After),
						)

						return err
					}

					var retryIn time.Duration

					if retryError.After.IsZero() {
						retryIn = bo.NextBackOff()
					} else {
						retryIn = time.Until(retryError.After)
					}

					retryTimer.Reset(retryIn)
					logger.Warn(
						"reconciliation failed, retry scheduled",
						logfields.Event("reconciliation_retry_scheduled"),
						zap.Duration("retry_in", retryIn),
					)

					continue
				}

				logger.Error(
					"reconciliation failed, not retryable",
					logfields.Event("reconciliation_failed"),
					logFieldResult("failure"),
				)

				return err
			}

			logger.Debug(
				"reconciliation executed successfully",
				logfields.Event("reconciliation_succeeded"),
				logFieldResult("success"),
			)

			return nil

		case <-retryTimeout.C:
			logger.Warn(
				"giving up retrying reconciliation, retry timeout expired",
				logfields.Event("reconciliation_retry_timeout"),
				logFieldResult("cancelled"),
				zap.Duration("retry_timeout", r.maxRetryTimeout),
			)

			return errors.New("retry timeout expired")

		case <-r.shutdownChan:
			logger.Info(
				"event loop terminating, reconciliation not executed",
				logfields.Event("reconciliation_cancelled_evloop_terminated"),
				logFieldResult("cancelled"),
			)

			return nil
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}

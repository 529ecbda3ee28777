package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergegate/internal/mergeerr"
)

func TestRetryerRetriesUntilSuccess(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer()
	r.backoffInitialInterval = 10 * time.Millisecond
	t.Cleanup(r.Stop)

	var tries int

	err := r.Run(context.Background(), func(context.Context) error {
		tries++
		if tries < 3 {
			return mergeerr.NewRetryableAnytimeError(errors.New("backend down"))
		}

		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, tries)
}

func TestRetryerDoesNotRetryPermanentErrors(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer()
	t.Cleanup(r.Stop)

	var tries int
	permanentErr := errors.New("bad event")

	err := r.Run(context.Background(), func(context.Context) error {
		tries++
		return permanentErr
	}, nil)

	assert.ErrorIs(t, err, permanentErr)
	assert.Equal(t, 1, tries)
}

func TestRetryerAbortsWhenRetryTimeExceedsTimeout(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer()
	r.maxRetryTimeout = 100 * time.Millisecond
	t.Cleanup(r.Stop)

	retryableErr := mergeerr.NewRetryableError(
		errors.New("rate limited"),
		time.Now().Add(time.Hour),
	)

	err := r.Run(context.Background(), func(context.Context) error {
		return retryableErr
	}, nil)

	assert.ErrorIs(t, err, retryableErr)
}

func TestRetryerContextCancellation(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer()
	r.backoffInitialInterval = time.Hour
	t.Cleanup(r.Stop)

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Run(ctx, func(context.Context) error {
			return mergeerr.NewRetryableAnytimeError(errors.New("backend down"))
		}, nil)
	}()

	cancel()

	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after the context was cancelled")
	}
}

func TestRetryerStopTerminatesRuns(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer()
	r.backoffInitialInterval = time.Hour

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Run(context.Background(), func(context.Context) error {
			return mergeerr.NewRetryableAnytimeError(errors.New("backend down"))
		}, nil)
	}()

	// wait until the first try consumed its error and Run() waits for
	// the retry timer
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Stop() was called")
	}
}

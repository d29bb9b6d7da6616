package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAll_RunsEveryTaskAndCollectsFailures(t *testing.T) {
	var ran int32
	slowOK := func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&ran, 1)
		return ctx.Err()
	}
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return errors.New(msg)
		}
	}

	failures := settleAll(context.Background(),
		task{name: "a", run: fail("a failed")},
		task{name: "b", run: slowOK},
		task{name: "c", run: fail("c failed")},
	)

	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
	require.Len(t, failures, 2)
	assert.Equal(t, "a", failures[0].name)
	assert.Equal(t, "c", failures[1].name)
	assert.True(t, failed(failures, "c"))
	assert.False(t, failed(failures, "b"))
}

func TestSettleAll_NoTasks(t *testing.T) {
	assert.Empty(t, settleAll(context.Background()))
}

func TestFormError(t *testing.T) {
	err := invalidInput("Please provide a valid email address.")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "Please provide a valid email address.", UserMessage(err, "fallback"))
	assert.Equal(t, "fallback", UserMessage(errors.New("raw upstream"), "fallback"))
}

func TestSettleAll_IgnoresParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failures := settleAll(ctx,
		task{name: "send", run: func(ctx context.Context) error { return ctx.Err() }},
	)

	assert.Empty(t, failures)
}

func TestDetach_KeepsDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	detached, stop := detach(ctx)
	defer stop()

	assert.NoError(t, detached.Err())
	deadline, ok := detached.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(delegateTimeout), deadline, time.Second)
}

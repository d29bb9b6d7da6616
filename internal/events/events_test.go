package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memorySink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestFanout_PublishesToEverySink(t *testing.T) {
	ok := &memorySink{name: "ok"}
	broken := &memorySink{name: "broken", err: errors.New("connection reset")}
	f := NewFanout(ok, nil, broken)

	require.Equal(t, 2, f.Len())

	err := f.Publish(context.Background(), New(FormContact, OutcomeAccepted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: connection reset")
	assert.NotContains(t, err.Error(), "ok:")

	assert.Len(t, ok.received(), 1)
	assert.Len(t, broken.received(), 1)
}

func TestRecorder_FillsIdentityAndSwallowsErrors(t *testing.T) {
	sink := &memorySink{name: "mem", err: errors.New("down")}
	r := NewRecorder(NewFanout(sink), nil)

	r.Record(context.Background(), Event{Form: FormSignup, Outcome: OutcomeRateLimited})

	got := sink.received()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.WithinDuration(t, time.Now(), got[0].OccurredAt, time.Second)
}

func TestRecorder_SurvivesCancelledRequestContext(t *testing.T) {
	sink := &memorySink{name: "mem"}
	r := NewRecorder(NewFanout(sink), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, New(FormCheckout, OutcomeAccepted))

	assert.Len(t, sink.received(), 1)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), New(FormResend, OutcomeAccepted))
	})

	empty := NewRecorder(NewFanout(), nil)
	assert.NotPanics(t, func() {
		empty.Record(context.Background(), New(FormResend, OutcomeAccepted))
	})
}

// blockingSink holds every Publish until release is closed.
type blockingSink struct {
	memorySink
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Publish(ctx context.Context, e Event) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.memorySink.Publish(ctx, e)
}

func TestRecorder_EnqueueDeliversBeforeClose(t *testing.T) {
	sink := &memorySink{name: "mem"}
	r := NewRecorder(NewFanout(sink), nil)

	for i := 0; i < 3; i++ {
		assert.True(t, r.Enqueue(New(FormContact, OutcomeRateLimited)))
	}
	r.Close()

	got := sink.received()
	require.Len(t, got, 3)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, OutcomeRateLimited, got[2].Outcome)
}

func TestRecorder_EnqueueDropsWhenQueueFull(t *testing.T) {
	sink := &blockingSink{
		memorySink: memorySink{name: "slow"},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	r := newRecorder(NewFanout(sink), nil, 1)

	require.True(t, r.Enqueue(New(FormSignup, OutcomeRateLimited)))
	<-sink.started

	start := time.Now()
	assert.True(t, r.Enqueue(New(FormSignup, OutcomeRateLimited)))
	assert.False(t, r.Enqueue(New(FormSignup, OutcomeRateLimited)))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(sink.release)
	r.Close()
	assert.Len(t, sink.received(), 2)
}

func TestRecorder_EnqueueAfterCloseIsDropped(t *testing.T) {
	sink := &memorySink{name: "mem"}
	r := NewRecorder(NewFanout(sink), nil)
	r.Close()

	assert.NotPanics(t, func() {
		assert.False(t, r.Enqueue(New(FormCheckout, OutcomeInvalid)))
		r.Close()
	})
	assert.Empty(t, sink.received())
}

func TestRecorder_NilEnqueueAndClose(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		assert.False(t, r.Enqueue(New(FormResend, OutcomeRateLimited)))
		r.Close()
	})
}

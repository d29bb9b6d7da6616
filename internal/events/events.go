// Package events records the terminal outcome of every form submission and
// fans it out to the configured analytics sinks.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Form string

const (
	FormContact       Form = "contact"
	FormRequestAccess Form = "request_access"
	FormSignup        Form = "signup"
	FormResend        Form = "resend_verification"
	FormCheckout      Form = "checkout"
)

type Outcome string

const (
	OutcomeAccepted           Outcome = "accepted"
	OutcomeRateLimited        Outcome = "rate_limited"
	OutcomeInvalid            Outcome = "invalid"
	OutcomeHoneypot           Outcome = "honeypot"
	OutcomeVerificationFailed Outcome = "verification_failed"
	OutcomeFallback           Outcome = "fallback"
	OutcomeFailed             Outcome = "failed"
)

const (
	defaultPublishTimeout = 3 * time.Second
	defaultQueueSize      = 1024
)

// Event is one analytics record. Email is only set for accepted submissions.
type Event struct {
	ID         string            `json:"id"`
	Form       Form              `json:"form"`
	Outcome    Outcome           `json:"outcome"`
	Email      string            `json:"email,omitempty"`
	IP         string            `json:"ip"`
	UserAgent  string            `json:"user_agent"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func New(form Form, outcome Outcome) Event {
	return Event{
		ID:         uuid.NewString(),
		Form:       form,
		Outcome:    outcome,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every sink concurrently and joins their errors.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Fanout{sinks: live}
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	errs := make([]error, len(f.sinks))

	var g errgroup.Group
	for i, s := range f.sinks {
		i, s := i, s
		g.Go(func() error {
			if err := s.Publish(ctx, e); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Recorder is the handle services use. A nil *Recorder drops events.
//
// Record publishes inline. Enqueue hands the event to a background worker
// through a bounded queue and never blocks the caller.
type Recorder struct {
	fanout  *Fanout
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewRecorder(fanout *Fanout, logger *zap.Logger) *Recorder {
	return newRecorder(fanout, logger, defaultQueueSize)
}

func newRecorder(fanout *Fanout, logger *zap.Logger, queueSize int) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{fanout: fanout, timeout: defaultPublishTimeout, logger: logger}
	if r.enabled() {
		r.queue = make(chan Event, queueSize)
		r.done = make(chan struct{})
		go r.run()
	}
	return r
}

func (r *Recorder) enabled() bool {
	return r != nil && r.fanout != nil && r.fanout.Len() > 0
}

// Record publishes e with a bounded timeout. Sink failures are logged and
// never reach the caller.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if !r.enabled() {
		return
	}
	e = stamp(e)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	r.publish(ctx, e)
}

// Enqueue schedules e for background publishing. It reports false when the
// event was dropped because the queue is full or the recorder is closed.
func (r *Recorder) Enqueue(e Event) bool {
	if !r.enabled() {
		return false
	}
	e = stamp(e)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- e:
		return true
	default:
		r.logger.Debug("Form event queue full, dropping event",
			zap.String("form", string(e.Form)),
			zap.String("outcome", string(e.Outcome)),
		)
		return false
	}
}

// Close stops accepting queued events and waits for the worker to publish
// what is already queued.
func (r *Recorder) Close() {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		r.publish(ctx, e)
		cancel()
	}
}

func (r *Recorder) publish(ctx context.Context, e Event) {
	if err := r.fanout.Publish(ctx, e); err != nil {
		r.logger.Warn("Failed to publish form event",
			zap.String("event_id", e.ID),
			zap.String("form", string(e.Form)),
			zap.String("outcome", string(e.Outcome)),
			zap.Error(err),
		)
	}
}

func stamp(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

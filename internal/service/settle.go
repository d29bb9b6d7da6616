package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// delegateTimeout bounds the side effects of a submission that already
// passed verification.
const delegateTimeout = 30 * time.Second

// detach keeps the request's values but not its cancellation, so a client
// that disconnects after verification does not abort delegation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), delegateTimeout)
}

// task is one independent delegate call.
type task struct {
	name string
	run  func(ctx context.Context) error
}

type failure struct {
	name string
	err  error
}

// settleAll runs every task concurrently and waits for all of them. A failing
// task never cancels the others; the failures come back in task order.
func settleAll(ctx context.Context, tasks ...task) []failure {
	ctx, cancel := detach(ctx)
	defer cancel()

	errs := make([]error, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			errs[i] = t.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failures []failure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, failure{name: tasks[i].name, err: err})
		}
	}
	return failures
}

func failed(failures []failure, name string) bool {
	for _, f := range failures {
		if f.name == name {
			return true
		}
	}
	return false
}

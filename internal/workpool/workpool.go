// Package workpool runs a worker over a collection under an explicit
// execution mode: strictly sequential, or bounded-parallel with a fixed
// number of in-flight workers.
package workpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MaxParallelRequests bounds the in-flight remote/storage work for the items of one page.
const MaxParallelRequests = 10

type Mode struct {
	Parallelism int
}

var Sequential = Mode{Parallelism: 1}

func Bounded(n int) Mode {
	if n < 1 {
		n = 1
	}
	return Mode{Parallelism: n}
}

func (m Mode) IsSequential() bool { return m.Parallelism <= 1 }

func (m Mode) String() string {
	if m.IsSequential() {
		return "sequential"
	}
	return fmt.Sprintf("bounded-parallel-%d", m.Parallelism)
}

// Run applies worker to every item and returns once all of them finished.
// Sequential mode preserves item order. A worker error does not stop the
// other items; the first one is returned. Workers are expected to record
// their own outcome and return nil.
func Run[T any](ctx context.Context, mode Mode, items []T, worker func(context.Context, T) error) error {
	if mode.IsSequential() {
		var first error
		for _, item := range items {
			if err := worker(ctx, item); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var g errgroup.Group
	g.SetLimit(mode.Parallelism)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return worker(ctx, item)
		})
	}
	return g.Wait()
}

package extraction

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

// rollbackFunc reconstructs one bug.
type rollbackFunc func(bug *bugzilla.Bug) (*bugzilla.Bug, error)

// rollbackPool rolls bugs back on several goroutines and emits the snapshots
// in input order.
type rollbackPool struct {
	workers    int
	bufferSize int
	rollback   rollbackFunc
}

func newRollbackPool(workers int, rollback rollbackFunc) *rollbackPool {
	if workers <= 0 {
		workers = 1
	}

	return &rollbackPool{
		workers:    workers,
		bufferSize: workers * 2,
		rollback:   rollback,
	}
}

// rollbackSlot holds one bug in flight. done is closed once snapshot or err
// is set.
type rollbackSlot struct {
	bug      *bugzilla.Bug
	snapshot *bugzilla.Bug
	elapsed  time.Duration
	err      error
	done     chan struct{}
}

// Run consumes bugs and yields their snapshots in input order, with the time
// each rollback took. The first error ends the sequence; remaining work is
// cancelled.
func (p *rollbackPool) Run(ctx context.Context, bugs iter.Seq2[*bugzilla.Bug, error]) iter.Seq2[*rollbackSlot, error] {
	return func(yield func(*rollbackSlot, error) bool) {
		ctx, cancel := context.WithCancel(ctx)

		var wg sync.WaitGroup

		defer wg.Wait()
		defer cancel()

		slots := make(chan *rollbackSlot, p.bufferSize)
		jobs := make(chan *rollbackSlot, p.bufferSize)

		wg.Add(1)

		go func() {
			defer wg.Done()

			p.dispatch(ctx, bugs, slots, jobs)
		}()

		p.startWorkers(ctx, jobs, &wg)

		for slot := range slots {
			select {
			case <-slot.done:
			case <-ctx.Done():
				yield(nil, ctx.Err())

				return
			}

			if slot.err != nil {
				yield(nil, slot.err)

				return
			}

			if !yield(slot, nil) {
				return
			}
		}
	}
}

// dispatch reads bugs, queues a slot per bug for ordered emission and hands
// it to the workers. A source error becomes a completed slot and stops
// dispatching.
func (p *rollbackPool) dispatch(
	ctx context.Context, bugs iter.Seq2[*bugzilla.Bug, error], slots, jobs chan<- *rollbackSlot,
) {
	defer close(slots)
	defer close(jobs)

	for bug, err := range bugs {
		slot := &rollbackSlot{bug: bug, err: err, done: make(chan struct{})}

		if err != nil {
			close(slot.done)
		}

		select {
		case slots <- slot:
		case <-ctx.Done():
			return
		}

		if err != nil {
			return
		}

		select {
		case jobs <- slot:
		case <-ctx.Done():
			return
		}
	}
}

func (p *rollbackPool) startWorkers(ctx context.Context, jobs <-chan *rollbackSlot, wg *sync.WaitGroup) {
	wg.Add(p.workers)

	for range p.workers {
		go func() {
			defer wg.Done()

			for slot := range jobs {
				if ctx.Err() != nil {
					slot.err = ctx.Err()
					close(slot.done)

					continue
				}

				start := time.Now()
				slot.snapshot, slot.err = p.rollback(slot.bug)
				slot.elapsed = time.Since(start)

				close(slot.done)
			}
		}()
	}
}

package runner

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// runParallel executes root suites on a fixed pool of workers. A subtree
// never spans two workers, so suite hooks and declaration order hold
// within every subtree; only distinct root suites overlap in time.
func (r *runner) runParallel(ctx context.Context, st *runState, roots []*types.Suite) error {
	workers := int(r.opts.Workers)
	if len(roots) < workers {
		workers = len(roots)
	}
	if workers == 0 {
		return ctx.Err()
	}
	r.log.Info("Starting parallel suite execution", "rootSuites", len(roots), "workers", workers)

	// Conservative buffer: enough to keep workers fed without holding the
	// whole forest in channel memory.
	bufferSize := min(workers*2, 100)
	workChan := make(chan *types.Suite, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.suiteWorker(ctx, st, &wg, workChan, i)
	}

	go func() {
		defer close(workChan)
		for _, s := range roots {
			select {
			case workChan <- s:
			case <-ctx.Done():
				r.log.Debug("Context cancelled while queueing suites")
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

// suiteWorker drains the suite channel, running each subtree to completion
// in declaration order before picking up the next one.
func (r *runner) suiteWorker(ctx context.Context, st *runState, wg *sync.WaitGroup, workChan <-chan *types.Suite, id int) {
	defer wg.Done()
	r.log.Debug("Suite worker starting", "worker", id)
	defer r.log.Debug("Suite worker exiting", "worker", id)

	for {
		select {
		case s, ok := <-workChan:
			if !ok {
				return
			}
			r.log.Debug("Worker picked up suite", "worker", id, "suite", s.Path())
			r.runSuiteSequential(ctx, st, s)
		case <-ctx.Done():
			return
		}
	}
}

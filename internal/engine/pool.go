package engine

import (
	"sync"

	"go.uber.org/zap"
)

type task func()

// workerPool runs one tick's agent decisions on a bounded number of
// goroutines. runBatch is the tick barrier: it returns only when every
// task has finished, so the matcher never sees a half-submitted book.
// An in-flight tick always runs to completion; cancellation is only
// observed between ticks, in the run loop.
type workerPool struct {
	workers int
	logger  *zap.Logger
}

func newWorkerPool(workers int, logger *zap.Logger) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	return &workerPool{workers: workers, logger: logger}
}

func (p *workerPool) runBatch(tasks []task) {
	jobs := make(chan task)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				p.run(t)
			}
		}()
	}

	for _, t := range tasks {
		jobs <- t
	}
	close(jobs)
	wg.Wait()
}

// run executes one task, containing any panic so a single agent's
// failure costs only that agent's orders, never the batch.
func (p *workerPool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
		}
	}()
	t()
}

package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"igprofiler/pkg/logger"
)

// Job is one URL to download. Index is its position in the caller's batch.
type Job struct {
	Index   int
	URL     string
	Timeout time.Duration
}

// Result is the outcome of one Job. Exactly one of Data or Err is set.
type Result struct {
	Index    int
	URL      string
	Data     []byte
	Format   string
	Attempts int
	Duration time.Duration
	Err      error
}

// OK reports whether the download produced bytes.
func (r Result) OK() bool {
	return r.Err == nil
}

// jobFunc processes one job on behalf of a worker.
type jobFunc func(ctx context.Context, job Job, workerID int) Result

// WorkerPool runs a fixed number of workers pulling from a shared queue.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     jobFunc
	logger      logger.Logger
}

// NewWorkerPool creates a pool bound to ctx. Cancelling ctx stops workers
// from picking up new jobs; a job already running finishes with its own error.
func NewWorkerPool(ctx context.Context, numWorkers int, process jobFunc, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for workers to drain it and closes Results.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit adds a job to the queue
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		// Drain without work once cancelled so every job still gets a result.
		if err := wp.ctx.Err(); err != nil {
			wp.resultQueue <- Result{Index: job.Index, URL: job.URL, Err: err}
			continue
		}
		wp.resultQueue <- wp.process(wp.ctx, job, id)
	}
}

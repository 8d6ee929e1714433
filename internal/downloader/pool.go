package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"talksync/pkg/logger"
)

// SyncJob is the sync of one member directory
type SyncJob struct {
	Group      string
	MemberID   string
	MemberName string
}

// Stats are the counters a member sync reports back
type Stats struct {
	Written int
	Files   int
	Deleted int
	Skipped int
	Failed  int
}

// SyncResult represents the result of a sync job
type SyncResult struct {
	Job      SyncJob
	Stats    Stats
	Success  bool
	Error    error
	Duration time.Duration
}

// SyncFunc performs one member sync
type SyncFunc func(ctx context.Context, job SyncJob) (Stats, error)

// WorkerPool runs member syncs on a bounded number of workers. Each job
// covers a whole member, so one member directory is never touched by two
// workers at once.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan SyncJob
	resultQueue chan SyncResult
	wg          sync.WaitGroup
	ctx         context.Context
	sync        SyncFunc
	logger      logger.Logger
}

// NewWorkerPool creates a pool of numWorkers workers bound to ctx
func NewWorkerPool(ctx context.Context, numWorkers int, fn SyncFunc, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan SyncJob, numWorkers*2),
		resultQueue: make(chan SyncResult, numWorkers),
		ctx:         ctx,
		sync:        fn,
		logger:      log,
	}
}

// start launches the workers
func (wp *WorkerPool) start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// stop closes the job queue, waits for queued jobs to finish and closes
// the result channel. Results must be drained concurrently.
func (wp *WorkerPool) stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)

	wp.logger.Debug("Worker pool stopped")
}

// submit queues a job unless ctx is done
func (wp *WorkerPool) submit(job SyncJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Run submits jobs, waits for all of them and returns one result per job
// in completion order. Jobs not started before ctx is done report ctx's
// error.
func (wp *WorkerPool) Run(jobs []SyncJob) []SyncResult {
	results := make([]SyncResult, 0, len(jobs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range wp.resultQueue {
			results = append(results, r)
		}
	}()

	wp.start()
	var rejected []SyncResult
	for i, job := range jobs {
		if err := wp.submit(job); err != nil {
			for _, left := range jobs[i:] {
				rejected = append(rejected, SyncResult{Job: left, Error: err})
			}
			break
		}
	}
	wp.stop()
	<-done

	return append(results, rejected...)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		var result SyncResult
		if err := wp.ctx.Err(); err != nil {
			result = SyncResult{Job: job, Error: err}
		} else {
			result = wp.processJob(job, id)
		}
		wp.resultQueue <- result
	}
}

// processJob runs one sync and turns a panic into an error so sibling
// members keep going
func (wp *WorkerPool) processJob(job SyncJob, workerID int) (result SyncResult) {
	start := time.Now()
	result.Job = job

	log := wp.logger.WithFields(map[string]interface{}{
		"worker_id": workerID,
		"group":     job.Group,
		"member":    job.MemberName,
	})

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Errorf("member sync panicked: %v", r)
			log.Error(result.Error.Error())
		}
		result.Duration = time.Since(start)
	}()

	log.Debug("Worker processing member")

	stats, err := wp.sync(wp.ctx, job)
	result.Stats = stats
	if err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	return result
}

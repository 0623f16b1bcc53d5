package utils

import (
	"sync"
)

// Job is a unit of work executed by a worker.
type Job struct {
	Task func()
}

// WorkerPool runs submitted jobs on a fixed number of goroutines.
type WorkerPool struct {
	workers      int
	jobQueue     chan Job
	waitGroup    sync.WaitGroup
	shutdownOnce sync.Once
}

// NewWorkerPool starts the workers. Fewer than one worker is treated as one.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, workers),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		job.Task()
	}
}

// Submit queues a job. It blocks while every worker is busy and the queue is full.
// Submitting after Shutdown panics.
func (wp *WorkerPool) Submit(task func()) {
	wp.jobQueue <- Job{Task: task}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
// It is safe to call more than once.
func (wp *WorkerPool) Shutdown() {
	wp.shutdownOnce.Do(func() {
		close(wp.jobQueue)
	})
	wp.waitGroup.Wait()
}

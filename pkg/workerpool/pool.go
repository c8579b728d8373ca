// Package workerpool provides a bounded worker pool for running a finite
// batch of independent tasks.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed
type Task struct {
	ID      string
	Index   int
	Payload interface{}
}

// Result represents the outcome of task processing
type Result struct {
	TaskID  string
	Index   int
	Success bool
	Error   error
	Data    interface{}
}

// WorkerFunc is the function signature for task processing
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
}

// DefaultConfig sizes the pool to the machine
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		QueueSize: 256,
	}
}

// Pool manages a pool of workers for concurrent task processing
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	taskChan   chan *Task
	resultChan chan *Result
	wg         sync.WaitGroup
	closeOnce  sync.Once

	// Metrics
	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	activeWorkers  int64
}

// New creates a new worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		resultChan: make(chan *Result, cfg.QueueSize),
	}, nil
}

// Start launches all workers. Workers stop once Close is called and the
// queue is drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Debug("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, task *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.taskChan <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	}
}

// Results returns the result channel. It is closed after Close once all
// workers have exited.
func (p *Pool) Results() <-chan *Result {
	return p.resultChan
}

// Close stops accepting tasks and closes the result channel when the
// workers finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.taskChan)
		go func() {
			p.wg.Wait()
			close(p.resultChan)
			p.logger.Debug("worker pool stopped")
		}()
	})
}

// worker is the main worker goroutine
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	for task := range p.taskChan {
		p.resultChan <- p.processTask(ctx, id, task)
	}
}

// processTask runs a single task, converting a panic into a failed result
func (p *Pool) processTask(ctx context.Context, workerID int, task *Task) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &Result{TaskID: task.ID, Error: fmt.Errorf("task panicked: %v", r)}
		}
		result.Index = task.Index
		if result.TaskID == "" {
			result.TaskID = task.ID
		}
		if result.Success {
			atomic.AddInt64(&p.tasksCompleted, 1)
			return
		}
		atomic.AddInt64(&p.tasksFailed, 1)
		p.logger.Debug("task failed",
			zap.String("task_id", task.ID),
			zap.Int("worker_id", workerID),
			zap.Error(result.Error))
	}()

	if err := ctx.Err(); err != nil {
		return &Result{TaskID: task.ID, Error: err}
	}
	result = p.workerFunc(ctx, task)
	if result == nil {
		result = &Result{TaskID: task.ID, Error: fmt.Errorf("worker returned no result")}
	}
	return result
}

// Run processes tasks on a fresh pool and returns the results in task
// order. Task indexes are assigned from their position in tasks.
func Run(ctx context.Context, cfg Config, tasks []*Task, fn WorkerFunc, logger *zap.Logger) ([]*Result, error) {
	pool, err := New(cfg, fn, logger)
	if err != nil {
		return nil, err
	}
	pool.Start(ctx)

	submitErr := make(chan error, 1)
	go func() {
		defer pool.Close()
		for i, task := range tasks {
			task.Index = i
			if err := pool.Submit(ctx, task); err != nil {
				submitErr <- err
				return
			}
		}
		submitErr <- nil
	}()

	results := make([]*Result, len(tasks))
	for r := range pool.Results() {
		results[r.Index] = r
	}

	if err := <-submitErr; err != nil {
		return results, fmt.Errorf("submit task: %w", err)
	}
	return results, nil
}

// Stats holds pool counters
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	ActiveWorkers  int64
	Workers        int
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		Workers:        p.config.Workers,
	}
}

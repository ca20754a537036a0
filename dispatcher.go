package storecredit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/models"
)

const (
	minTickerInterval = 5 * time.Second
	maxTickerInterval = 30 * time.Second

	// scaleUpLoad is the queue fill ratio above which a worker is added.
	scaleUpLoad = 0.75
)

var (
	ErrQueueFull         = errors.New("dispatcher queue is full")
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)

// Dispatcher hands queued order events to a pool of workers that grows
// with load up to maxWorkers. Workers are only retired by Stop.
type Dispatcher struct {
	WorkerPool chan chan WorkRequest
	maxWorkers int
	jobQueue   chan WorkRequest
	processor  Processor
	workers    []Worker
	logger     *zap.Logger

	mu        sync.Mutex
	stopped   bool
	running   sync.WaitGroup
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(maxWorkers, jobQueueSize int, processor Processor, logger *zap.Logger) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if jobQueueSize < 1 {
		jobQueueSize = 1
	}
	return &Dispatcher{
		WorkerPool: make(chan chan WorkRequest, maxWorkers),
		maxWorkers: maxWorkers,
		jobQueue:   make(chan WorkRequest, jobQueueSize),
		processor:  processor,
		logger:     logger.Named("dispatcher"),
		done:       make(chan struct{}),
	}
}

func NewDispatcherFromConfig(appConfig *config.Config, processor Processor, logger *zap.Logger) *Dispatcher {
	return NewDispatcher(appConfig.Worker.MaxWorkers, appConfig.Worker.QueueSize, processor, logger)
}

// Run starts half of maxWorkers, at least one, and the dispatch loop.
func (d *Dispatcher) Run() {
	d.startOnce.Do(func() {
		d.mu.Lock()
		initial := max(1, d.maxWorkers/2)
		for i := 0; i < initial; i++ {
			d.addWorker()
		}
		d.mu.Unlock()

		go d.dispatch()
	})
}

// Submit queues an event without blocking. The request context is detached
// from cancellation so the job outlives the HTTP request that queued it.
func (d *Dispatcher) Submit(ctx context.Context, event *models.OrderPaidEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.jobQueue <- WorkRequest{Event: event, Ctx: context.WithoutCancel(ctx)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// dispatch only takes a job off the queue once it holds an idle worker.
func (d *Dispatcher) dispatch() {
	defer close(d.done)

	tickerInterval := 10 * time.Second
	ticker := time.NewTicker(tickerInterval)
	defer ticker.Stop()

	var ready chan WorkRequest
	for {
		workerPool, jobQueue := d.WorkerPool, d.jobQueue
		if ready == nil {
			jobQueue = nil
		} else {
			workerPool = nil
		}

		select {
		case ready = <-workerPool:

		case job, ok := <-jobQueue:
			if !ok {
				return
			}
			ready <- job
			ready = nil

		case <-ticker.C:
			d.adjustWorkerPool()

			load := d.load()
			switch {
			case load > scaleUpLoad:
				tickerInterval = minTickerInterval
			case load > scaleUpLoad/3:
				tickerInterval = 10 * time.Second
			default:
				tickerInterval = maxTickerInterval
			}

			ticker.Reset(tickerInterval)
		}
	}
}

func (d *Dispatcher) load() float64 {
	return float64(len(d.jobQueue)) / float64(cap(d.jobQueue))
}

func (d *Dispatcher) adjustWorkerPool() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.load() > scaleUpLoad && len(d.workers) < d.maxWorkers {
		worker := d.addWorker()
		d.logger.Info("Added new worker", zap.Int("worker_id", worker.ID), zap.Int("workers", len(d.workers)))
	}
}

// addWorker must be called with mu held.
func (d *Dispatcher) addWorker() Worker {
	worker := NewWorker(len(d.workers)+1, d.WorkerPool, d.processor, d.logger)
	worker.Start(&d.running)
	d.workers = append(d.workers, worker)
	return worker
}

func (d *Dispatcher) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Stop rejects new submissions, drains the queue through the workers and
// waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.jobQueue)
		d.mu.Unlock()

		d.Run()
		<-d.done

		d.mu.Lock()
		for _, worker := range d.workers {
			worker.Stop()
		}
		d.mu.Unlock()

		d.running.Wait()
		d.logger.Info("Dispatcher stopped")
	})
}

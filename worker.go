package storecredit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"goflare.io/storecredit/models"
)

// Processor handles one verified order event.
type Processor interface {
	ProcessOrderEvent(ctx context.Context, event *models.OrderPaidEvent) error
}

type Worker struct {
	ID         int
	WorkerPool chan chan WorkRequest
	JobChannel chan WorkRequest
	quit       chan struct{}
	processor  Processor
	logger     *zap.Logger
}

type WorkRequest struct {
	Event *models.OrderPaidEvent
	Ctx   context.Context
}

func NewWorker(id int, workerPool chan chan WorkRequest, processor Processor, logger *zap.Logger) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan WorkRequest),
		quit:       make(chan struct{}),
		processor:  processor,
		logger:     logger.With(zap.Int("worker_id", id)),
	}
}

func (w Worker) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.process(job)
			case <-w.quit:
				return
			}
		}
	}()
}

func (w Worker) process(job WorkRequest) {
	logger := w.logger.With(
		zap.String("order_ref", job.Event.Order.Ref()),
		zap.String("topic", string(job.Event.Topic)),
		zap.String("delivery_id", job.Event.DeliveryID))

	logger.Debug("processing order event")

	if err := w.processor.ProcessOrderEvent(job.Ctx, job.Event); err != nil {
		logger.Warn("order event needs reconciliation", zap.Error(err))
		return
	}

	logger.Debug("order event processed")
}

func (w Worker) Stop() {
	close(w.quit)
}

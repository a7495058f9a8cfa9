package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ProvisionQueue serializes provisioning jobs on a single background
// worker. Provisioning runs docker CLI commands and long health polls, so
// one job at a time keeps the Swarm manager load predictable.
type ProvisionQueue struct {
	svc    *Service
	logger *zap.Logger
	jobs   chan ProvisionInput
	wg     sync.WaitGroup
}

// NewProvisionQueue builds a queue with the given buffer size.
func NewProvisionQueue(svc *Service, logger *zap.Logger, buffer int) *ProvisionQueue {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProvisionQueue{
		svc:    svc,
		logger: logger,
		jobs:   make(chan ProvisionInput, buffer),
	}
}

// Start launches the worker goroutine. The worker drains remaining jobs
// after ctx is cancelled so accepted requests are not silently dropped,
// then exits.
func (q *ProvisionQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case input := <-q.jobs:
				q.run(ctx, input)
			case <-ctx.Done():
				for {
					select {
					case input := <-q.jobs:
						q.run(context.Background(), input)
					default:
						return
					}
				}
			}
		}
	}()
}

// Enqueue hands a job to the worker. Returns false when the buffer is
// full; callers translate that into backpressure.
func (q *ProvisionQueue) Enqueue(input ProvisionInput) bool {
	select {
	case q.jobs <- input:
		return true
	default:
		return false
	}
}

// Wait blocks until the worker has exited. Call after cancelling the
// context passed to Start.
func (q *ProvisionQueue) Wait() {
	q.wg.Wait()
}

func (q *ProvisionQueue) run(ctx context.Context, input ProvisionInput) {
	if _, err := q.svc.Provision(ctx, input); err != nil {
		// Already audited and metered inside the service; this log line
		// keeps the worker's own trail complete.
		q.logger.Error("background provisioning failed",
			zap.String("subdomain", input.Subdomain),
			zap.Error(err))
	}
}

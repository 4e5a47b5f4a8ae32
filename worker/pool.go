// Package worker runs the consumption side of the gateway: a bounded
// pool of goroutines that dequeue courier event deliveries and hand
// them to the processing runner.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
)

// Handler settles one delivery. The gojob runner satisfies this.
type Handler interface {
	Handle(ctx context.Context, delivery core.JobDelivery) error
}

// Pool manages a fixed set of worker goroutines pulling from one
// dequeuer. Each delivery is settled by the handler; the pool only
// decides scheduling, panic containment, and lifecycle.
type Pool struct {
	dequeuer core.JobDequeuer
	handler  Handler
	observer core.Observer
	hook     core.JobWorkerHook

	concurrency  int
	idleInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type PoolOption func(*Pool)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithIdleInterval sets how long a worker waits after an empty or
// failed dequeue before trying again.
func WithIdleInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.idleInterval = d
		}
	}
}

func WithWorkerHook(hook core.JobWorkerHook) PoolOption {
	return func(p *Pool) {
		p.hook = hook
	}
}

func WithWorkerObserver(observer core.Observer) PoolOption {
	return func(p *Pool) {
		p.observer = observer
	}
}

func WithWorkerNow(now func() time.Time) PoolOption {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPool(dequeuer core.JobDequeuer, handler Handler, opts ...PoolOption) (*Pool, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("worker: dequeuer is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("worker: handler is required")
	}
	pool := &Pool{
		dequeuer:     dequeuer,
		handler:      handler,
		concurrency:  core.DefaultConfig().Worker.Concurrency,
		idleInterval: time.Second,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(pool)
	}
	return pool, nil
}

// Start launches the worker goroutines and returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("worker: pool is not configured")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true

	p.observer.LogInfo(ctx, "worker pool starting", map[string]any{
		"concurrency": p.concurrency,
	})
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consumeLoop()
	}
	return nil
}

// Stop signals the workers and waits for in-flight deliveries to
// settle, or until the context expires.
func (p *Pool) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.observer.LogInfo(ctx, "worker pool stopped", nil)
		return nil
	case <-ctx.Done():
		p.observer.LogError(ctx, "worker pool shutdown timed out", map[string]any{
			"error": ctx.Err().Error(),
		})
		return ctx.Err()
	}
}

func (p *Pool) consumeLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		ctx := context.Background()
		delivery, err := p.dequeuer.Dequeue(ctx)
		if err != nil {
			p.observer.LogError(ctx, "dequeue failed", map[string]any{
				"error": err.Error(),
			})
			p.idle()
			continue
		}
		if delivery == nil {
			p.idle()
			continue
		}

		p.consumeOne(ctx, delivery)
	}
}

func (p *Pool) consumeOne(ctx context.Context, delivery core.JobDelivery) {
	startedAt := p.now()
	message := delivery.Message()
	p.emitStart(ctx, message, startedAt)

	err := p.settle(ctx, delivery)
	duration := p.now().Sub(startedAt)
	if err != nil {
		p.observer.LogError(ctx, "delivery settlement failed", map[string]any{
			"job_id": jobID(message),
			"error":  err.Error(),
		})
		p.emitFailure(ctx, message, err, startedAt, duration)
		return
	}
	p.emitSuccess(ctx, message, startedAt, duration)
}

// settle contains handler panics so one poisoned delivery cannot take
// down the worker goroutine.
func (p *Pool) settle(ctx context.Context, delivery core.JobDelivery) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("worker: handler panic: %v", recovered)
		}
	}()
	return p.handler.Handle(ctx, delivery)
}

func (p *Pool) emitStart(ctx context.Context, message *core.JobExecutionMessage, startedAt time.Time) {
	if p.hook == nil {
		return
	}
	p.hook.OnStart(ctx, core.JobWorkerEvent{Message: message, StartedAt: startedAt})
}

func (p *Pool) emitSuccess(ctx context.Context, message *core.JobExecutionMessage, startedAt time.Time, duration time.Duration) {
	if p.hook == nil {
		return
	}
	p.hook.OnSuccess(ctx, core.JobWorkerEvent{
		Message:   message,
		StartedAt: startedAt,
		Duration:  duration,
	})
}

func (p *Pool) emitFailure(ctx context.Context, message *core.JobExecutionMessage, err error, startedAt time.Time, duration time.Duration) {
	if p.hook == nil {
		return
	}
	p.hook.OnFailure(ctx, core.JobWorkerEvent{
		Message:   message,
		Err:       err,
		StartedAt: startedAt,
		Duration:  duration,
	})
}

func (p *Pool) idle() {
	select {
	case <-time.After(p.idleInterval):
	case <-p.stopCh:
	}
}

func jobID(message *core.JobExecutionMessage) string {
	if message == nil {
		return ""
	}
	return message.JobID
}

package hooks

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNotifierNotStarted is returned when events are queued before Start
	ErrNotifierNotStarted = errors.New("notifier not started")

	// ErrNotifierStopped is returned when events are queued after Shutdown or Stop
	ErrNotifierStopped = errors.New("notifier stopped")
)

// deliveryBuffer bounds the events waiting for a worker
const deliveryBuffer = 128

// delivery is one event addressed to one listener
type delivery struct {
	listener Listener
	event    Event
}

// pool hands deliveries to a fixed set of workers. A failing or panicking
// listener is logged and the worker moves on.
type pool struct {
	workers int
	logger  *zap.Logger
	queue   chan delivery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state int
}

const (
	poolIdle = iota
	poolRunning
	poolStopped
)

func newPool(workers int, logger *zap.Logger) *pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		workers: workers,
		logger:  logger,
		queue:   make(chan delivery, deliveryBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *pool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != poolIdle {
		return
	}
	p.state = poolRunning
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.work(i)
	}
}

func (p *pool) work(worker int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case d, ok := <-p.queue:
			if !ok {
				return
			}
			p.deliver(worker, d)
		}
	}
}

func (p *pool) deliver(worker int, d delivery) {
	fields := []zap.Field{
		zap.Int("worker", worker),
		zap.String("entity", d.event.Entity),
		zap.String("operation", string(d.event.Operation)),
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("listener panicked", append(fields, zap.Any("panic", r))...)
		}
	}()

	if err := d.listener(p.ctx, d.event); err != nil {
		p.logger.Warn("listener failed", append(fields, zap.Error(err))...)
	}
}

// submit queues d, blocking while the buffer is full
func (p *pool) submit(d delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case poolIdle:
		return ErrNotifierNotStarted
	case poolStopped:
		return ErrNotifierStopped
	}

	select {
	case p.queue <- d:
		return nil
	case <-p.ctx.Done():
		return ErrNotifierStopped
	}
}

// drain refuses new deliveries and waits for the queued ones
func (p *pool) drain() {
	p.mu.Lock()
	if p.state != poolRunning {
		p.state = poolStopped
		p.mu.Unlock()
		return
	}
	p.state = poolStopped
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// stop cancels the listener context and abandons queued deliveries
func (p *pool) stop() {
	p.cancel()
	p.mu.Lock()
	p.state = poolStopped
	p.mu.Unlock()
	p.wg.Wait()
}

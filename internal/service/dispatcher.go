package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/handoff-engine/pkg/logger"
	"github.com/capitalize-ai/handoff-engine/pkg/metrics"
)

// ErrDispatcherClosed is returned when submitting to a stopped dispatcher.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Default dispatcher sizing.
const (
	DefaultWorkers   = 16
	DefaultQueueSize = 64
)

// Job states. A queued job is claimed exactly once, either by its worker or by a caller
// that gave up waiting.
const (
	jobQueued int32 = iota
	jobStarted
	jobAbandoned
)

type job struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	done  chan error
	state atomic.Int32
}

// Dispatcher runs jobs on a fixed set of workers partitioned by key. All jobs for one key
// land on the same worker and run one at a time in submission order, so every conversation
// has a single writer while different conversations proceed in parallel.
type Dispatcher struct {
	shards []chan *job
	group  *errgroup.Group
	logger *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines, each with a queue of queueSize jobs.
func NewDispatcher(workers, queueSize int, log *logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.NewNop()
	}

	d := &Dispatcher{
		shards: make([]chan *job, workers),
		group:  new(errgroup.Group),
		logger: log,
	}
	for i := range d.shards {
		ch := make(chan *job, queueSize)
		d.shards[i] = ch
		label := strconv.Itoa(i)
		d.group.Go(func() error {
			d.work(label, ch)
			return nil
		})
	}
	return d
}

// Do runs fn on the worker owning key and waits for it to finish. A job whose context is
// cancelled before it starts is skipped and Do returns the context error. Once the job has
// started, Do returns the job's own result even if ctx is cancelled meanwhile, so the caller
// never sees a failure for work that was committed.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	shard := d.shardFor(key)
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrDispatcherClosed
	}
	select {
	case d.shards[shard] <- j:
		metrics.DispatcherQueueDepth.WithLabelValues(strconv.Itoa(shard)).Inc()
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
			return ctx.Err()
		}
		return <-j.done
	}
}

// Close stops accepting jobs, drains the queues and waits for the workers to exit.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	return d.group.Wait()
}

// Workers returns the number of shards.
func (d *Dispatcher) Workers() int {
	return len(d.shards)
}

func (d *Dispatcher) shardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(d.shards)))
}

func (d *Dispatcher) work(label string, ch <-chan *job) {
	depth := metrics.DispatcherQueueDepth.WithLabelValues(label)
	for j := range ch {
		depth.Dec()
		if !j.state.CompareAndSwap(jobQueued, jobStarted) {
			continue
		}
		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}
		j.done <- d.run(j)
	}
}

func (d *Dispatcher) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatcherPanics.Inc()
			d.logger.Error("dispatcher job panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

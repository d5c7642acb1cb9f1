// Package deliver pushes encoded envelopes over peer links. Sends are
// decoupled from the command path by a bounded queue; workers pace
// per-peer so one chatty conversation cannot starve a link.
package deliver

import (
	"context"
	"errors"
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"

	"zerozero/pkg/logger"
	"zerozero/pkg/transport"
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrTooLarge  = errors.New("payload exceeds max size")
	ErrStopped   = errors.New("delivery pool stopped")
)

// Config tunes the pool. Zero values pick the defaults.
type Config struct {
	Workers     int
	Capacity    int
	RatePerLink float64
	Burst       int
	MaxPayload  int64
}

const (
	defaultWorkers    = 4
	defaultCapacity   = 1024
	defaultRate       = 20 // sends per second per peer
	defaultBurst      = 40
	defaultMaxPayload = 1 << 20
)

type job struct {
	link transport.Link
	buf  *bytebufferpool.ByteBuffer
	done func(error)
}

// Pool is the delivery worker pool.
type Pool struct {
	cfg  Config
	jobs chan job

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.RatePerLink <= 0 {
		cfg.RatePerLink = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = defaultMaxPayload
	}
	return &Pool{
		cfg:      cfg,
		jobs:     make(chan job, cfg.Capacity),
		limiters: map[string]*rate.Limiter{},
		stopped:  make(chan struct{}),
	}
}

// Start launches the workers; they run until ctx is cancelled or Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) limiter(peer string) *rate.Limiter {
	p.limMu.Lock()
	defer p.limMu.Unlock()
	if l, ok := p.limiters[peer]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.cfg.RatePerLink), p.cfg.Burst)
	p.limiters[peer] = l
	return l
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case j := <-p.jobs:
			err := p.limiter(j.link.RemoteKeyHex()).Wait(ctx)
			if err == nil {
				err = j.link.Send(j.buf.B)
			}
			bytebufferpool.Put(j.buf)
			if err != nil {
				logger.Warn("delivery_failed", "peer", j.link.RemoteKeyHex(), "error", err)
			}
			if j.done != nil {
				j.done(err)
			}
		}
	}
}

// Enqueue schedules payload for link. done, when non-nil, runs exactly
// once with the send outcome. The payload is copied; callers may reuse
// their buffer immediately.
func (p *Pool) Enqueue(link transport.Link, payload []byte, done func(error)) error {
	if int64(len(payload)) > p.cfg.MaxPayload {
		return ErrTooLarge
	}
	select {
	case <-p.stopped:
		return ErrStopped
	default:
	}
	buf := bytebufferpool.Get()
	buf.Write(payload)
	select {
	case p.jobs <- job{link: link, buf: buf, done: done}:
		return nil
	default:
		bytebufferpool.Put(buf)
		return ErrQueueFull
	}
}

// Stop halts the workers after the in-flight sends finish. Queued but
// unstarted jobs are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
	p.wg.Wait()
}

package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is the subset of *rand.Rand the limiter needs.
type Rand interface {
	Int64N(n int64) int64
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer inserts a politeness delay drawn uniformly from [min, max] each time
// Wait is called. It is the only backpressure applied against a storefront.
type Pacer struct {
	minDelay time.Duration
	maxDelay time.Duration
	rnd      Rand
	sleep    SleepFunc
	mu       sync.Mutex
	waited   time.Duration
}

type Option func(*Pacer)

func WithRand(r Rand) Option {
	return func(p *Pacer) { p.rnd = r }
}

func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) { p.sleep = fn }
}

func NewPacer(minDelay, maxDelay time.Duration, opts ...Option) *Pacer {
	p := &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxDelay < p.minDelay {
		p.maxDelay = p.minDelay
	}
	return p
}

func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.NextDelay()

	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	p.mu.Lock()
	p.waited += delay
	p.mu.Unlock()
	return nil
}

// NextDelay draws the next delay without sleeping.
func (p *Pacer) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.minDelay == p.maxDelay {
		return p.minDelay
	}

	delta := int64(p.maxDelay - p.minDelay)
	return p.minDelay + time.Duration(p.rnd.Int64N(delta+1))
}

// Waited returns the total time spent in Wait.
func (p *Pacer) Waited() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waited
}

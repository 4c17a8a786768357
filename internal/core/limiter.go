package core

// limiter.go bounds the number of generation requests in flight across all
// workflows in a process. Each workflow already allows only one request at a
// time; the limiter protects the generation service from many sessions at once.
// When all slots are taken, callers wait up to maxWait and then fail with
// ErrTooManyGenerations.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyGenerations is returned when no slot frees up within the wait time.
var ErrTooManyGenerations = errors.New("too many concurrent generations, please try again later")

// DefaultMaxConcurrentGenerations is the default limit for parallel requests.
const DefaultMaxConcurrentGenerations = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// Limiter is a counting semaphore with a bounded wait.
type Limiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewLimiter creates a limiter allowing at most maxConcurrent holders.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentGenerations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &Limiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. The caller must Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyGenerations
	}
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of held slots.
func (l *Limiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no slots are held or ctx is done.
// Used on shutdown so in-flight generations can settle.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of a Limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *Limiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}

// LimitGenerator wraps gen so every request holds a slot of l while in flight.
func LimitGenerator(gen Generator, l *Limiter) Generator {
	return &limitedGenerator{next: gen, limiter: l}
}

type limitedGenerator struct {
	next    Generator
	limiter *Limiter
}

func (g *limitedGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer g.limiter.Release()
	return g.next.Generate(ctx, req)
}

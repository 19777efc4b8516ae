// Package pacer implements a rate limiter and retrier, copying rclone's
// lib/pacer: callers submit a function that returns (retry bool, err error)
// and the Pacer sleeps an amount of time decided by a Calculator between
// attempts, optionally capping the number of concurrent in-flight calls with
// a token bucket.
package pacer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// State records the pacer's current sleep time and consecutive retry count,
// passed to a Calculator on every call.
type State struct {
	SleepTime          time.Duration
	ConsecutiveRetries int
	LastError          error
}

// Calculator works out the new sleep time for the next call, given the
// previous State.
type Calculator interface {
	Calculate(state State) time.Duration
}

// Pacer pieces together the individual requests and makes sure they are
// spaced out to obey any rate limiting.
type Pacer struct {
	mu             sync.Mutex
	pacer          chan struct{}
	connTokens     chan struct{}
	retries        int
	maxConnections int
	calculator     Calculator
	state          State
}

// Option configures a Pacer at construction time.
type Option func(*Pacer)

// RetriesOption sets the max number of retries for Pacer.Call.
func RetriesOption(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// MaxConnectionsOption sets the maximum number of concurrent calls; 0 means
// unlimited.
func MaxConnectionsOption(maxConnections int) Option {
	return func(p *Pacer) { p.SetMaxConnections(maxConnections) }
}

// CalculatorOption sets the calculator used to decide sleep times.
func CalculatorOption(c Calculator) Option {
	return func(p *Pacer) { p.calculator = c }
}

// New returns a Pacer with the given options applied over sensible
// defaults (10 retries, a Default calculator, no connection limit).
func New(options ...Option) *Pacer {
	p := &Pacer{
		pacer:      make(chan struct{}, 1),
		retries:    10,
		calculator: NewDefault(),
	}
	p.pacer <- struct{}{}
	for _, o := range options {
		o(p)
	}
	return p
}

// SetCalculator sets the pacing algorithm. Don't change this when Calls are
// in progress.
func (p *Pacer) SetCalculator(c Calculator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calculator = c
}

// SetRetries sets the max number of retries for Call.
func (p *Pacer) SetRetries(retries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = retries
}

// SetMaxConnections sets the maximum number of concurrent connections.
// 0 means no limit.
func (p *Pacer) SetMaxConnections(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxConnections = n
	if n <= 0 {
		p.connTokens = nil
		return
	}
	p.connTokens = make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.connTokens <- struct{}{}
	}
}

// beginCall waits for the pacer slot and, if connection limiting is on, a
// connection token too.
func (p *Pacer) beginCall() {
	<-p.pacer

	p.mu.Lock()
	tokens := p.connTokens
	p.mu.Unlock()
	if tokens != nil {
		<-tokens
	}
}

// endCall works out the next sleep time, releases a connection token if
// applicable, and schedules release of the pacer token after sleeping.
func (p *Pacer) endCall(retry bool, err error) {
	p.mu.Lock()
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.state.LastError = err
	p.state.SleepTime = p.calculator.Calculate(p.state)
	sleepTime := p.state.SleepTime
	tokens := p.connTokens
	p.mu.Unlock()

	if tokens != nil {
		tokens <- struct{}{}
	}

	time.AfterFunc(sleepTime, func() {
		p.pacer <- struct{}{}
	})
}

// call runs fn, retrying up to retries times while fn asks for a retry.
func (p *Pacer) call(fn func() (bool, error), retries int) (err error) {
	var retry bool
	for i := 0; i < retries; i++ {
		p.beginCall()
		retry, err = fn()
		p.endCall(retry, err)
		if !retry {
			break
		}
	}
	if retry && err == nil {
		err = errors.New("pacer: too many retries")
	}
	return err
}

// Call paces fn, retrying it according to the configured retry count
// whenever it returns (true, err).
func (p *Pacer) Call(fn func() (bool, error)) error {
	p.mu.Lock()
	retries := p.retries
	p.mu.Unlock()
	return p.call(fn, retries)
}

// CallNoRetry paces fn but never retries it regardless of its return value.
func (p *Pacer) CallNoRetry(fn func() (bool, error)) error {
	return p.call(fn, 1)
}

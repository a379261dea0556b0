// Package clock supplies time and tick events to the sampler and the upload
// worker. Real wraps the time package; Manual is driven by tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the source of time and periodic ticks.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// NewTicker returns a time.Ticker wrapped as a Ticker.
func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Manual is a clock whose time only moves when Advance or Set is called.
// Its tickers are unbuffered: Tick blocks until the consumer has received the
// tick, so a test knows the loop has picked it up.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ManualTicker
}

// NewManual returns a manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// NewTicker registers a ticker fired only by Tick.
func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &ManualTicker{period: d, ch: make(chan time.Time), stop: make(chan struct{})}
	m.tickers = append(m.tickers, t)
	return t
}

// Tickers returns the tickers created so far, in creation order.
func (m *Manual) Tickers() []*ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ManualTicker(nil), m.tickers...)
}

// ManualTicker is a Ticker created by Manual.
type ManualTicker struct {
	period time.Duration
	ch     chan time.Time
	once   sync.Once
	stop   chan struct{}
}

// C returns the tick channel.
func (t *ManualTicker) C() <-chan time.Time { return t.ch }

// Stop stops the ticker; pending and future Tick calls return false.
func (t *ManualTicker) Stop() { t.once.Do(func() { close(t.stop) }) }

// Period returns the interval the ticker was created with.
func (t *ManualTicker) Period() time.Duration { return t.period }

// Tick delivers now to the consumer. It blocks until the tick is received or
// the ticker is stopped, and reports whether the tick was delivered.
func (t *ManualTicker) Tick(now time.Time) bool {
	select {
	case t.ch <- now:
		return true
	case <-t.stop:
		return false
	}
}

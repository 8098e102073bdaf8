/*
Package clock is the monotonic millisecond time source the fusion loop runs on.

Real follows the wall clock. Manual only moves when told to, firing every tick
that falls due on the way, which makes replays and tests deterministic.
*/
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock yields monotonic milliseconds and tickers on the same timeline.
type Clock interface {
	Millis() int64
	NewTicker(period time.Duration) Ticker
}

// Ticker delivers the clock time of each tick.
type Ticker interface {
	C() <-chan int64
	Stop()
}

// Real is Unix milliseconds, advanced by the monotonic clock after creation
// so wall clock steps do not move it.
type Real struct {
	start time.Time
	epoch int64
}

func NewReal() *Real {
	now := time.Now()
	return &Real{start: now, epoch: now.UnixMilli()}
}

func (r *Real) Millis() int64 {
	return r.epoch + time.Since(r.start).Milliseconds()
}

// NewTicker returns a ticker that coalesces ticks the receiver is too busy to take.
func (r *Real) NewTicker(period time.Duration) Ticker {
	t := &realTicker{
		ticker: time.NewTicker(period),
		c:      make(chan int64, 1),
		done:   make(chan struct{}),
	}
	go t.run(r)
	return t
}

type realTicker struct {
	ticker *time.Ticker
	c      chan int64
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) run(r *Real) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case t.c <- r.Millis():
			default:
			}
		}
	}
}

func (t *realTicker) C() <-chan int64 {
	return t.c
}

func (t *realTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// Manual is a clock that only advances through AdvanceTo.
type Manual struct {
	mu      sync.Mutex
	now     int64
	tickers []*manualTicker
}

func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Millis() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// NewTicker fires first at now+period.
// Ticks are unbuffered: AdvanceTo blocks until each one is received or the ticker stops.
func (m *Manual) NewTicker(period time.Duration) Ticker {
	p := period.Milliseconds()
	if p <= 0 {
		p = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		clock:  m,
		period: p,
		next:   m.now + p,
		c:      make(chan int64),
		done:   make(chan struct{}),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// AdvanceTo moves the clock forward to t, delivering every due tick in time order.
// Moving backwards is a no-op.
func (m *Manual) AdvanceTo(t int64) {
	for {
		m.mu.Lock()
		if t < m.now {
			m.mu.Unlock()
			return
		}
		due := m.nextDue(t)
		if due == nil {
			m.now = t
			m.mu.Unlock()
			return
		}
		at := due.next
		m.now = at
		due.next += due.period
		m.mu.Unlock()

		select {
		case due.c <- at:
		case <-due.done:
		}
	}
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.AdvanceTo(m.Millis() + d.Milliseconds())
}

func (m *Manual) nextDue(t int64) *manualTicker {
	sort.SliceStable(m.tickers, func(i, j int) bool {
		return m.tickers[i].next < m.tickers[j].next
	})
	if len(m.tickers) > 0 && m.tickers[0].next <= t {
		return m.tickers[0]
	}
	return nil
}

func (m *Manual) remove(t *manualTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, tk := range m.tickers {
		if tk == t {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

type manualTicker struct {
	clock  *Manual
	period int64
	next   int64
	c      chan int64
	done   chan struct{}
	once   sync.Once
}

func (t *manualTicker) C() <-chan int64 {
	return t.c
}

func (t *manualTicker) Stop() {
	t.once.Do(func() {
		t.clock.remove(t)
		close(t.done)
	})
}

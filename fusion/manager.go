/*
Package fusion runs the Kalman filter against two position sensors.

A Manager owns one executor goroutine per run. Sensor callbacks, filter ticks
and listener calls all happen there, one at a time, so the filter has exactly
one mutator and the listener is never called concurrently.
*/
package fusion

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/geo/kalman"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/provider"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	ErrRunning         = errors.New("fusion manager already running")
	ErrListenerFailure = errors.New("listener failure")
)

// Listener receives everything the manager publishes, serially, on the executor.
//
// A listener must not block for long. It may call Stop from inside a callback
// to detach; nothing is delivered after that callback returns.
type Listener interface {
	OnEstimate(e fix.Estimate)
	OnStatus(source fix.Source, status fix.Status)
}

// ListenerFuncs adapts plain functions to a Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Estimate func(e fix.Estimate)
	Status   func(source fix.Source, status fix.Status)
}

func (l ListenerFuncs) OnEstimate(e fix.Estimate) {
	if l.Estimate != nil {
		l.Estimate(e)
	}
}

func (l ListenerFuncs) OnStatus(source fix.Source, status fix.Status) {
	if l.Status != nil {
		l.Status(source, status)
	}
}

type Option func(m *Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// Manager fuses a satellite and a network sensor into FUSED estimates.
type Manager struct {
	sat   provider.Sensor
	net   provider.Sensor
	clock clock.Clock
	log   *slog.Logger

	counters     *counters
	estimateFeed event.FeedOf[fix.Estimate]
	statusFeed   event.FeedOf[fix.StatusEvent]

	mu  sync.Mutex
	run *run
}

// NewManager takes either sensor as nil if it will never be selected.
func NewManager(sat, net provider.Sensor, opts ...Option) *Manager {
	m := &Manager{
		sat:      sat,
		net:      net,
		clock:    clock.NewReal(),
		log:      slog.With("d", "fusion"),
		counters: newCounters(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start validates cfg, subscribes the selected sensors and starts ticking.
// On error nothing is left subscribed.
func (m *Manager) Start(cfg *params.FusionConfig, l Listener) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("%w: nil listener", params.ErrConfigInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run != nil {
		return ErrRunning
	}

	c := *cfg
	r := newRun(m, &c, l)
	go r.loop()
	go r.estimates.run()
	go r.statuses.run()

	if c.Sources.Sat() {
		r.adapters = append(r.adapters, provider.NewAdapter(fix.SourceSat, m.sat, m.clock, c.SatMinInterval, c.MaxReorder, r.post, r))
	}
	if c.Sources.Net() {
		r.adapters = append(r.adapters, provider.NewAdapter(fix.SourceNet, m.net, m.clock, c.NetMinInterval, c.MaxReorder, r.post, r))
	}
	for _, a := range r.adapters {
		if err := a.Start(); err != nil {
			r.shutdown()
			m.log.Error("Failed to start fusion", "source", a.Source(), "error", err)
			return err
		}
	}

	ticker := m.clock.NewTicker(c.FilterPeriod)
	r.ticker = ticker
	r.post(func() {
		r.ticks = ticker.C()
	})
	if c.DiagnosticsLogInterval > 0 {
		go m.counters.logEvery(m.log, c.DiagnosticsLogInterval, r.meter, r.quit)
	}

	m.run = r
	m.log.Info("Fusion started", "sources", c.Sources, "period", c.FilterPeriod, "process.noise", c.ProcessNoise)
	return nil
}

// Stop halts ticking, waits for the in-flight callback, and unsubscribes the sensors.
// No listener call starts after Stop returns. Stop is idempotent.
//
// Called from inside a listener callback, Stop does not wait for that callback.
func (m *Manager) Stop() {
	m.mu.Lock()
	r := m.run
	m.run = nil
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.shutdown()
	m.log.Info("Fusion stopped")
}

// Running reports whether the manager has been started and not stopped.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil
}

func (m *Manager) Diagnostics() Diagnostics {
	return m.counters.snapshot()
}

// Flush blocks until everything posted to the executor before it has been handled.
func (m *Manager) Flush() {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	if r == nil {
		return
	}
	handled := make(chan struct{})
	if !r.post(func() { close(handled) }) {
		return
	}
	select {
	case <-handled:
	case <-r.done:
	}
	r.estimates.flush()
	r.statuses.flush()
}

// SubscribeEstimates delivers a copy of every estimate the listener gets.
// Delivery runs off the executor. A subscriber that falls more than
// feedBacklog values behind loses the oldest ones; see Diagnostics.FeedDrops.
func (m *Manager) SubscribeEstimates(ch chan<- fix.Estimate) event.Subscription {
	return m.estimateFeed.Subscribe(ch)
}

// SubscribeStatus delivers every status change the listener gets.
func (m *Manager) SubscribeStatus(ch chan<- fix.StatusEvent) event.Subscription {
	return m.statusFeed.Subscribe(ch)
}

// run is one Start..Stop cycle.
type run struct {
	m        *Manager
	cfg      *params.FusionConfig
	listener Listener
	log      *slog.Logger

	adapters []*provider.Adapter
	ticker   clock.Ticker
	meter    metrics.Meter

	estimates *relay[fix.Estimate]
	statuses  *relay[fix.StatusEvent]

	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// inListener is set while the executor is inside a listener call.
	inListener atomic.Bool

	// Executor owned.
	filter     *kalman.Filter
	ticks      <-chan int64
	maxReorder int64
}

func newRun(m *Manager, cfg *params.FusionConfig, l Listener) *run {
	return &run{
		m:         m,
		cfg:       cfg,
		listener:  l,
		log:       m.log,
		meter:     metrics.NewMeter(),
		estimates: newRelay(&m.estimateFeed, m.counters.feedDrops),
		statuses:  newRelay(&m.statusFeed, m.counters.feedDrops),
		inbox:     make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		filter: kalman.New(kalman.Config{
			ProcessNoise:      cfg.ProcessNoise,
			InitialSpeedSigma: cfg.InitialSpeedSigma,
			AltitudeNoise:     cfg.AltitudeNoise,
			BearingNoise:      cfg.BearingNoise,
			BearingAccuracy:   cfg.BearingAccuracy,
		}, m.clock.Millis()),
		maxReorder: cfg.MaxReorder.Milliseconds(),
	}
}

func (r *run) loop() {
	defer close(r.done)
	defer func() {
		r.filter = nil
	}()
	for {
		// Stop wins over pending work.
		select {
		case <-r.quit:
			return
		default:
		}
		select {
		case <-r.quit:
			return
		case f := <-r.inbox:
			f()
		case t := <-r.ticks:
			r.tick(t)
		}
	}
}

// post hands f to the executor. It reports false once the run is stopping.
func (r *run) post(f func()) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.inbox <- f:
		return true
	case <-r.quit:
		return false
	}
}

func (r *run) shutdown() {
	r.stopOnce.Do(func() {
		close(r.quit)
		if r.ticker != nil {
			r.ticker.Stop()
		}
		// A listener stopping the manager is running on the executor;
		// the loop exits once that callback returns.
		if !r.inListener.Load() {
			<-r.done
		}
		for _, a := range r.adapters {
			a.Stop()
		}
		r.meter.Stop()
		r.estimates.stop()
		r.statuses.stop()
	})
}

func (r *run) tick(t int64) {
	r.m.counters.ticks.Inc(1)
	r.filter.AdvanceTo(t)
	e := r.filter.Estimate()
	// The filter may sit slightly ahead of the tick after a fix stamped in the near future.
	e.T = t
	r.publish(e)
}

// Measurement is an accepted fix from one of the adapters.
func (r *run) Measurement(m fix.Measurement) {
	if m.T < r.filter.Time()-r.maxReorder {
		r.Rejected(m.Source, fmt.Errorf("%w: t=%d, filter t=%d", provider.ErrStale, m.T, r.filter.Time()))
		return
	}
	r.m.counters.accepted(m.Source)
	r.meter.Mark(1)
	if r.cfg.ForwardRaw {
		r.publish(fix.FromMeasurement(m))
	}
	r.filter.AdvanceTo(m.T)
	if err := r.filter.Update(m); err != nil {
		r.log.Warn("Skipped filter update", "source", m.Source, "t", m.T, "error", err)
	}
}

func (r *run) Status(source fix.Source, status fix.Status) {
	r.log.Info("Sensor status", "source", source, "status", status)
	r.safely(func() {
		r.listener.OnStatus(source, status)
	})
	r.statuses.push(fix.StatusEvent{Source: source, T: r.m.clock.Millis(), Status: status})
}

func (r *run) Rejected(source fix.Source, err error) {
	r.m.counters.rejected(err)
	r.log.Debug("Rejected measurement", "source", source, "error", err)
}

func (r *run) publish(e fix.Estimate) {
	r.safely(func() {
		r.listener.OnEstimate(e)
	})
	r.estimates.push(e)
}

// safely runs a listener call, absorbing a panic.
func (r *run) safely(call func()) {
	r.inListener.Store(true)
	defer func() {
		r.inListener.Store(false)
		if rec := recover(); rec != nil {
			r.m.counters.listenerFailures.Inc(1)
			r.log.Error("Listener failed", "error", fmt.Errorf("%w: %v", ErrListenerFailure, rec))
		}
	}()
	call()
}

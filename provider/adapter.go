package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/golang/groupcache/lru"
	"github.com/mitchellh/hashstructure/v2"
)

// dedupeWindow is how many recent deliveries are remembered per sensor.
const dedupeWindow = 64

// Sink receives what an Adapter lets through, on the executor.
type Sink interface {
	Measurement(m fix.Measurement)
	Status(source fix.Source, status fix.Status)
	Rejected(source fix.Source, err error)
}

// Poster runs f on the executor. It reports false if f was dropped
// because the executor is shutting down.
type Poster func(f func()) bool

// Adapter owns one sensor subscription for one Source.
//
// Start and Stop are called by the owner. Everything else runs on the executor
// the Poster hands work to.
type Adapter struct {
	source      fix.Source
	sensor      Sensor
	clock       clock.Clock
	minInterval time.Duration
	maxReorder  int64
	post        Poster
	sink        Sink

	mu  sync.Mutex
	sub Subscription

	// Executor owned.
	accepted bool
	lastT    int64
	paused   bool
	seen     *lru.Cache
}

// NewAdapter checks measurement times against c; a nil c accepts any time.
func NewAdapter(source fix.Source, sensor Sensor, c clock.Clock, minInterval, maxReorder time.Duration, post Poster, sink Sink) *Adapter {
	return &Adapter{
		source:      source,
		sensor:      sensor,
		clock:       c,
		minInterval: minInterval,
		maxReorder:  maxReorder.Milliseconds(),
		post:        post,
		sink:        sink,
		seen:        lru.New(dedupeWindow),
	}
}

func (a *Adapter) Source() fix.Source {
	return a.source
}

// Start subscribes to the sensor.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		return nil
	}
	if a.sensor == nil {
		return fmt.Errorf("%w: no %s sensor", ErrSensorUnavailable, a.source)
	}
	sub, err := a.sensor.Subscribe(a.minInterval, a.onMeasurement, a.onStatus)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSensorUnavailable, a.source, err)
	}
	if sub == nil {
		return fmt.Errorf("%w: %s: no subscription", ErrSensorUnavailable, a.source)
	}
	a.sub = sub
	return nil
}

// Stop unsubscribes. It is safe to call more than once.
func (a *Adapter) Stop() {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (a *Adapter) onMeasurement(m fix.Measurement) {
	a.post(func() {
		a.accept(m)
	})
}

func (a *Adapter) onStatus(st fix.Status) {
	a.post(func() {
		a.setStatus(st)
	})
}

// Paused is true while the sensor reports itself disabled.
// Executor only.
func (a *Adapter) Paused() bool {
	return a.paused
}

func (a *Adapter) setStatus(st fix.Status) {
	a.paused = st == fix.StatusDisabled
	a.sink.Status(a.source, st)
}

func (a *Adapter) accept(m fix.Measurement) {
	m.Source = a.source
	m = m.Sanitized()
	if err := a.check(m); err != nil {
		a.sink.Rejected(a.source, err)
		return
	}
	if !a.accepted || m.T > a.lastT {
		a.lastT = m.T
	}
	a.accepted = true
	a.sink.Measurement(m)
}

func (a *Adapter) check(m fix.Measurement) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// A fix from the future would drag the filter and the stale window with it.
	if a.clock != nil {
		if now := a.clock.Millis(); m.T > now+a.maxReorder {
			return fmt.Errorf("%w: t=%d is ahead of the clock at %d", ErrInvalid, m.T, now)
		}
	}
	if a.accepted && m.T < a.lastT-a.maxReorder {
		return fmt.Errorf("%w: t=%d, last accepted t=%d", ErrStale, m.T, a.lastT)
	}
	if a.paused {
		return ErrPaused
	}
	if a.duplicate(m) {
		return fmt.Errorf("%w: t=%d", ErrDuplicate, m.T)
	}
	return nil
}

func (a *Adapter) duplicate(m fix.Measurement) bool {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return false
	}
	if _, ok := a.seen.Get(hash); ok {
		return true
	}
	a.seen.Add(hash, struct{}{})
	return false
}

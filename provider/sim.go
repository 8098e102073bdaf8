package provider

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/geo/tangent"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/paulmach/orb"
)

// SimSensor emits noisy fixes along a figure-eight course, one per tick of its clock.
// A SimSensor supports a single subscriber at a time.
type SimSensor struct {
	source   fix.Source
	clock    clock.Clock
	cfg      params.SimConfig
	accuracy float64
	origin   tangent.Origin

	mu      sync.Mutex
	enabled bool
	sub     *simSubscription
}

func NewSimSensor(source fix.Source, c clock.Clock, cfg *params.SimConfig) *SimSensor {
	if cfg == nil {
		cfg = params.DefaultSimConfig()
	}
	acc := cfg.SatAccuracy
	if source == fix.SourceNet {
		acc = cfg.NetAccuracy
	}
	return &SimSensor{
		source:   source,
		clock:    c,
		cfg:      *cfg,
		accuracy: acc,
		origin:   tangent.NewOrigin(orb.Point{cfg.Lon, cfg.Lat}),
		enabled:  true,
	}
}

type simSubscription struct {
	sensor *SimSensor
	ticker clock.Ticker
	onFix  func(fix.Measurement)
	onStat func(fix.Status)
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *SimSensor) Subscribe(minInterval time.Duration, onMeasurement func(fix.Measurement), onStatus func(fix.Status)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil, ErrSensorUnavailable
	}
	if minInterval <= 0 {
		minInterval = time.Second
	}
	seed := s.cfg.Seed
	if s.source == fix.SourceNet {
		seed++
	}
	sub := &simSubscription{
		sensor: s,
		ticker: s.clock.NewTicker(minInterval),
		onFix:  onMeasurement,
		onStat: onStatus,
		done:   make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run(rand.New(rand.NewSource(seed)))
	s.sub = sub
	return sub, nil
}

func (sub *simSubscription) run(rng *rand.Rand) {
	defer sub.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case t := <-sub.ticker.C():
			if !sub.sensor.Enabled() {
				continue
			}
			sub.onFix(sub.sensor.Measure(t, rng))
		}
	}
}

func (sub *simSubscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.ticker.Stop()
		close(sub.done)
		sub.wg.Wait()
		sub.sensor.mu.Lock()
		if sub.sensor.sub == sub {
			sub.sensor.sub = nil
		}
		sub.sensor.mu.Unlock()
	})
}

func (s *SimSensor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled switches the sensor on or off and tells the subscriber.
func (s *SimSensor) SetEnabled(enabled bool) {
	s.mu.Lock()
	changed := s.enabled != enabled
	s.enabled = enabled
	sub := s.sub
	s.mu.Unlock()
	if !changed || sub == nil {
		return
	}
	if enabled {
		sub.onStat(fix.StatusEnabled)
	} else {
		sub.onStat(fix.StatusDisabled)
	}
}

// Truth is the noiseless course position and track at time t, in ms.
func (s *SimSensor) Truth(t int64) (p orb.Point, trackDeg float64) {
	period := s.cfg.Period.Milliseconds()
	if period <= 0 {
		period = (2 * time.Minute).Milliseconds()
	}
	phase := float64(((t%period)+period)%period) / float64(period)

	// Lissajous figure-eight:
	//   x = cos(2πt), y = 0.5*sin(4πt)
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)
	p = s.origin.Unproject(s.cfg.Radius*x, s.cfg.Radius*y)

	vx := -2 * math.Pi * math.Sin(w)
	vy := 2 * math.Pi * math.Cos(2*w)
	trackDeg = math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	return p, trackDeg
}

// Measure is a noisy fix at time t.
// Only the satellite sensor reports altitude and bearing.
func (s *SimSensor) Measure(t int64, rng *rand.Rand) fix.Measurement {
	p, track := s.Truth(t)
	e, n := s.origin.Project(p)
	p = s.origin.Unproject(e+rng.NormFloat64()*s.accuracy, n+rng.NormFloat64()*s.accuracy)
	m := fix.Measurement{
		Source:   s.source,
		T:        t,
		Lat:      p.Lat(),
		Lon:      p.Lon(),
		Accuracy: s.accuracy,
	}
	if s.source == fix.SourceSat {
		alt := 1000 + rng.NormFloat64()*s.accuracy
		bearing := math.Mod(track+rng.NormFloat64()*5+360, 360)
		m.Alt = &alt
		m.Bearing = &bearing
		m.VerticalAccuracy = s.accuracy * 1.5
	}
	return m
}

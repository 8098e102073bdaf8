package provider

import (
	"math/rand"
	"testing"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

func receive(t *testing.T, ch <-chan fix.Measurement) fix.Measurement {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fix")
	}
	return fix.Measurement{}
}

func TestSimSensor_EmitsOnTicks(t *testing.T) {
	c := clock.NewManual(0)
	cfg := params.DefaultSimConfig()
	s := NewSimSensor(fix.SourceSat, c, cfg)

	fixes := make(chan fix.Measurement, 16)
	statuses := make(chan fix.Status, 4)
	sub, err := s.Subscribe(time.Second, func(m fix.Measurement) { fixes <- m }, func(st fix.Status) { statuses <- st })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if _, err := s.Subscribe(time.Second, nil, nil); err == nil {
		t.Errorf("second subscriber should be refused")
	}

	c.AdvanceTo(5000)
	center := orb.Point{cfg.Lon, cfg.Lat}
	for i := int64(1); i <= 5; i++ {
		m := receive(t, fixes)
		if m.T != i*1000 {
			t.Errorf("Expected fix at %d, got %d", i*1000, m.T)
		}
		if err := m.Validate(); err != nil {
			t.Errorf("sim fix invalid: %v", err)
		}
		if m.Alt == nil || m.Bearing == nil {
			t.Errorf("satellite sim should report altitude and bearing")
		}
		if d := geo.Distance(center, m.Point()); d > cfg.Radius+6*cfg.SatAccuracy {
			t.Errorf("fix %f m from center, outside the course", d)
		}
	}

	s.SetEnabled(false)
	if st := <-statuses; st != fix.StatusDisabled {
		t.Errorf("Expected disabled, got %v", st)
	}
	c.AdvanceTo(8000)
	s.SetEnabled(true)
	if st := <-statuses; st != fix.StatusEnabled {
		t.Errorf("Expected enabled, got %v", st)
	}
	c.AdvanceTo(9000)
	if m := receive(t, fixes); m.T < 8000 {
		t.Errorf("fixes should stop while disabled, got one at %d", m.T)
	}
}

func TestSimSensor_UnsubscribeStops(t *testing.T) {
	c := clock.NewManual(0)
	s := NewSimSensor(fix.SourceNet, c, nil)
	sub, err := s.Subscribe(0, func(fix.Measurement) {}, func(fix.Status) {})
	if err != nil {
		t.Fatal(err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		c.AdvanceTo(10_000)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock blocked on an unsubscribed sensor")
	}
	if _, err := s.Subscribe(time.Second, func(fix.Measurement) {}, func(fix.Status) {}); err != nil {
		t.Errorf("should be able to subscribe again: %v", err)
	}
}

func TestSimSensor_TruthStaysOnCourse(t *testing.T) {
	cfg := params.DefaultSimConfig()
	s := NewSimSensor(fix.SourceNet, clock.NewManual(0), cfg)
	center := orb.Point{cfg.Lon, cfg.Lat}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		tm := rng.Int63n(cfg.Period.Milliseconds() * 3)
		p, track := s.Truth(tm)
		if d := geo.Distance(center, p); d > cfg.Radius*1.01 {
			t.Fatalf("t=%d: %f m from center", tm, d)
		}
		if track < 0 || track >= 360 {
			t.Fatalf("t=%d: track %f outside [0, 360)", tm, track)
		}
	}
	m := s.Measure(0, rng)
	if m.Alt != nil || m.Bearing != nil {
		t.Errorf("network sim should not report altitude or bearing")
	}
	if m.Accuracy != cfg.NetAccuracy {
		t.Errorf("Expected accuracy %v, got %v", cfg.NetAccuracy, m.Accuracy)
	}
}

package provider

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
)

type recordingSink struct {
	measurements []fix.Measurement
	statuses     []fix.Status
	rejected     []error
}

func (s *recordingSink) Measurement(m fix.Measurement) {
	s.measurements = append(s.measurements, m)
}

func (s *recordingSink) Status(_ fix.Source, st fix.Status) {
	s.statuses = append(s.statuses, st)
}

func (s *recordingSink) Rejected(_ fix.Source, err error) {
	s.rejected = append(s.rejected, err)
}

func inline(f func()) bool {
	f()
	return true
}

func newTestAdapter(t *testing.T) (*Adapter, *PushSensor, *recordingSink) {
	t.Helper()
	sensor := NewPushSensor()
	sink := &recordingSink{}
	a := NewAdapter(fix.SourceSat, sensor, nil, time.Second, 2*time.Second, inline, sink)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Stop)
	return a, sensor, sink
}

func TestAdapter_Accepts(t *testing.T) {
	_, sensor, sink := newTestAdapter(t)
	if sensor.MinInterval() != time.Second {
		t.Errorf("min interval hint not passed on, got %v", sensor.MinInterval())
	}
	// The adapter stamps its own source.
	sensor.Push(fix.Measurement{Source: fix.SourceNet, T: 1000, Lat: 1, Lon: 2, Accuracy: 5})
	if len(sink.measurements) != 1 {
		t.Fatalf("Expected 1 measurement, got %d", len(sink.measurements))
	}
	if got := sink.measurements[0].Source; got != fix.SourceSat {
		t.Errorf("Expected source sat, got %v", got)
	}
}

func TestAdapter_RejectsInvalid(t *testing.T) {
	_, sensor, sink := newTestAdapter(t)
	for _, m := range []fix.Measurement{
		{T: 1, Lat: 1, Lon: 1, Accuracy: 0},
		{T: 2, Lat: 1, Lon: 1, Accuracy: -1},
		{T: 3, Lat: 1, Lon: 1, Accuracy: math.NaN()},
		{T: 4, Lat: 91, Lon: 1, Accuracy: 5},
		{T: 5, Lat: 1, Lon: 200, Accuracy: 5},
	} {
		sensor.Push(m)
	}
	if len(sink.measurements) != 0 {
		t.Errorf("Expected nothing accepted, got %v", sink.measurements)
	}
	if len(sink.rejected) != 5 {
		t.Fatalf("Expected 5 rejections, got %d", len(sink.rejected))
	}
	for _, err := range sink.rejected {
		if !errors.Is(err, ErrInvalid) || !errors.Is(err, ErrMeasurementRejected) {
			t.Errorf("Expected ErrInvalid, got %v", err)
		}
	}
}

func TestAdapter_RejectsStale(t *testing.T) {
	_, sensor, sink := newTestAdapter(t)
	sensor.Push(fix.Measurement{T: 1000, Lat: 1, Lon: 1, Accuracy: 5})
	sensor.Push(fix.Measurement{T: -2500, Lat: 1, Lon: 1, Accuracy: 5})
	// Within the reorder window.
	sensor.Push(fix.Measurement{T: -900, Lat: 1, Lon: 1, Accuracy: 5})

	if len(sink.measurements) != 2 {
		t.Errorf("Expected 2 accepted, got %d", len(sink.measurements))
	}
	if len(sink.rejected) != 1 || !errors.Is(sink.rejected[0], ErrStale) {
		t.Errorf("Expected one stale rejection, got %v", sink.rejected)
	}
}

func TestAdapter_PausedWhileDisabled(t *testing.T) {
	a, sensor, sink := newTestAdapter(t)
	sensor.SetStatus(fix.StatusDisabled)
	if !a.Paused() {
		t.Fatal("adapter should pause while disabled")
	}
	sensor.Push(fix.Measurement{T: 1000, Lat: 1, Lon: 1, Accuracy: 5})
	if len(sink.rejected) != 1 || !errors.Is(sink.rejected[0], ErrPaused) {
		t.Errorf("Expected one paused rejection, got %v", sink.rejected)
	}

	sensor.SetStatus(fix.StatusTempUnavailable)
	if a.Paused() {
		t.Errorf("temporary unavailability should not pause")
	}
	sensor.SetStatus(fix.StatusEnabled)
	sensor.Push(fix.Measurement{T: 2000, Lat: 1, Lon: 1, Accuracy: 5})
	if len(sink.measurements) != 1 {
		t.Errorf("Expected measurement after re-enable, got %d", len(sink.measurements))
	}
	want := []fix.Status{fix.StatusDisabled, fix.StatusTempUnavailable, fix.StatusEnabled}
	if len(sink.statuses) != len(want) {
		t.Fatalf("Expected statuses %v, got %v", want, sink.statuses)
	}
	for i := range want {
		if sink.statuses[i] != want[i] {
			t.Errorf("status %d: Expected %v, got %v", i, want[i], sink.statuses[i])
		}
	}
}

func TestAdapter_RejectsDuplicate(t *testing.T) {
	_, sensor, sink := newTestAdapter(t)
	alt := 10.0
	m := fix.Measurement{T: 1000, Lat: 1, Lon: 1, Accuracy: 5, Alt: &alt}
	sensor.Push(m)
	dup := m
	other := 10.0
	dup.Alt = &other
	sensor.Push(dup)
	if len(sink.measurements) != 1 {
		t.Errorf("Expected duplicate dropped, got %d accepted", len(sink.measurements))
	}
	if len(sink.rejected) != 1 || !errors.Is(sink.rejected[0], ErrDuplicate) {
		t.Errorf("Expected one duplicate rejection, got %v", sink.rejected)
	}
}

func TestAdapter_SanitizesOptionalFields(t *testing.T) {
	_, sensor, sink := newTestAdapter(t)
	nan := math.NaN()
	sensor.Push(fix.Measurement{T: 1000, Lat: 1, Lon: 1, Accuracy: 5, Bearing: &nan})
	if len(sink.measurements) != 1 {
		t.Fatalf("Expected measurement accepted, got %v", sink.rejected)
	}
	if sink.measurements[0].Bearing != nil {
		t.Errorf("nan bearing should be dropped")
	}
}

func TestAdapter_StartFailure(t *testing.T) {
	sensor := NewPushSensor()
	sensor.FailSubscribe = errors.New("no permission")
	a := NewAdapter(fix.SourceNet, sensor, nil, 0, 0, inline, &recordingSink{})
	err := a.Start()
	if !errors.Is(err, ErrSensorUnavailable) {
		t.Errorf("Expected ErrSensorUnavailable, got %v", err)
	}
	a.Stop()

	a = NewAdapter(fix.SourceNet, nil, nil, 0, 0, inline, &recordingSink{})
	if err := a.Start(); !errors.Is(err, ErrSensorUnavailable) {
		t.Errorf("Expected ErrSensorUnavailable for missing sensor, got %v", err)
	}
}

func TestAdapter_StopUnsubscribes(t *testing.T) {
	a, sensor, sink := newTestAdapter(t)
	a.Stop()
	a.Stop()
	if sensor.Subscribers() != 0 {
		t.Errorf("Expected no subscribers after stop, got %d", sensor.Subscribers())
	}
	sensor.Push(fix.Measurement{T: 1000, Lat: 1, Lon: 1, Accuracy: 5})
	if len(sink.measurements) != 0 {
		t.Errorf("no measurement should arrive after stop")
	}
}

func TestAdapter_RejectsFuture(t *testing.T) {
	c := clock.NewManual(1000)
	sensor := NewPushSensor()
	sink := &recordingSink{}
	a := NewAdapter(fix.SourceSat, sensor, c, time.Second, 2*time.Second, inline, sink)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	sensor.Push(fix.Measurement{T: 61_000, Lat: 1, Lon: 1, Accuracy: 5})
	if len(sink.rejected) != 1 || !errors.Is(sink.rejected[0], ErrInvalid) {
		t.Fatalf("Expected the future fix rejected as invalid, got %v", sink.rejected)
	}
	// Within the reorder window ahead of the clock is fine.
	sensor.Push(fix.Measurement{T: 3000, Lat: 1, Lon: 1, Accuracy: 5})
	// The rejected fix must not have moved the stale window.
	sensor.Push(fix.Measurement{T: 1500, Lat: 1, Lon: 1.0001, Accuracy: 5})
	if len(sink.measurements) != 2 {
		t.Errorf("Expected 2 accepted, got %d (rejected %v)", len(sink.measurements), sink.rejected)
	}
}

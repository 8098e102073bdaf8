package kalman

import (
	"testing"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/paulmach/orb/geo"
)

func TestBaseline_Stationary(t *testing.T) {
	b := NewBaseline(1, 1)
	var last fix.Estimate
	for i := int64(0); i < 30; i++ {
		e, err := b.Observe(sat(i*1000, 46.9292804, -114.0877518, 5))
		if err != nil {
			t.Fatal(err)
		}
		last = e
	}
	if last.T != 29_000 {
		t.Errorf("Expected estimate at last fix, got t=%d", last.T)
	}
	if d := geo.Distance(last.Point(), sat(0, 46.9292804, -114.0877518, 5).Point()); d > 10 {
		t.Errorf("baseline drifted %f m from a stationary point", d)
	}
}

func TestBaseline_SkipsSubSecond(t *testing.T) {
	b := NewBaseline(1, 1)
	first, err := b.Observe(sat(1000, 10, 10, 5))
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Observe(sat(1500, 10.001, 10.001, 5))
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("sub-second fix should not be observed")
	}
	if _, err := b.Observe(sat(0, 10, 10, 5)); err == nil {
		t.Errorf("expected error for an observation back in time")
	}
}

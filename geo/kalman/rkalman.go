package kalman

import (
	"fmt"
	"math"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	rkalman "github.com/regnull/kalman"
)

// Baseline runs the regnull GeoFilter over the same fixes the fusion filter sees,
// as an independent reference track.
type Baseline struct {
	speed        float64
	acceleration float64

	filter *rkalman.GeoFilter
	lastT  int64
	last   fix.Estimate
}

// NewBaseline takes the expected movement in m/s and its change in m/s^2.
func NewBaseline(speed, acceleration float64) *Baseline {
	return &Baseline{speed: speed, acceleration: acceleration}
}

func newRKalmanFilter(latitude, speed, acceleration float64) (*rkalman.GeoFilter, error) {
	processNoise := &rkalman.GeoProcessNoise{
		// Fixes are assumed near one another, so the earth's curvature is ignored.
		BaseLat: latitude,
		// How much do we expect to move, meters per second.
		DistancePerSecond: speed,
		// How much do we expect speed to change, meters per second squared.
		SpeedPerSecond: acceleration,
	}
	return rkalman.NewGeoFilter(processNoise)
}

// Observe feeds one fix and returns the baseline estimate after it.
// Fixes less than a second after the last observed one are not observed.
func (b *Baseline) Observe(m fix.Measurement) (fix.Estimate, error) {
	if b.filter == nil {
		f, err := newRKalmanFilter(m.Lat, b.speed, b.acceleration)
		if err != nil {
			return fix.Estimate{}, fmt.Errorf("failed to initialize baseline filter: %w", err)
		}
		b.filter = f
		// Pretend the previous observation was a second ago.
		b.lastT = m.T - 1000
	}
	if m.T < b.lastT {
		return b.last, fmt.Errorf("observation at %d is before last observation at %d", m.T, b.lastT)
	}
	seconds := float64(m.T-b.lastT) / 1000
	if seconds < 1 {
		return b.last, nil
	}

	obs := &rkalman.GeoObserved{
		Lat:                m.Lat,
		Lng:                m.Lon,
		Speed:              0,
		SpeedAccuracy:      b.speed * 10,
		Direction:          0,
		DirectionAccuracy:  180,
		HorizontalAccuracy: math.Max(m.Accuracy, MinAccuracy),
		VerticalAccuracy:   math.Max(m.VerticalAccuracy, MinAccuracy),
	}
	if m.Alt != nil {
		obs.Altitude = *m.Alt
	}
	if m.Bearing != nil {
		obs.Direction = *m.Bearing
		obs.DirectionAccuracy = 10
	}
	if err := b.filter.Observe(seconds, obs); err != nil {
		return b.last, fmt.Errorf("observation error: %w", err)
	}
	b.lastT = m.T

	est := b.filter.Estimate()
	b.last = fix.Estimate{
		Source:             fix.SourceFused,
		T:                  m.T,
		Lat:                est.Lat,
		Lon:                est.Lng,
		Speed:              est.Speed,
		HorizontalAccuracy: m.Accuracy,
	}
	return b.last, nil
}

/*
Package provider connects position sensors to the fusion loop.

A Sensor calls back on its own goroutine. An Adapter wraps one Sensor,
hops every callback onto the caller's executor, and decides there which
measurements are fit to apply.
*/
package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
)

// Sensor is a source of position fixes and availability changes.
// minInterval is a hint; sensors may deliver faster or slower.
type Sensor interface {
	Subscribe(minInterval time.Duration, onMeasurement func(fix.Measurement), onStatus func(fix.Status)) (Subscription, error)
}

// Subscription is a live Sensor subscription.
// Unsubscribe is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

var (
	ErrSensorUnavailable = errors.New("sensor unavailable")

	ErrMeasurementRejected = errors.New("measurement rejected")
	ErrInvalid             = fmt.Errorf("%w: invalid", ErrMeasurementRejected)
	ErrStale               = fmt.Errorf("%w: stale", ErrMeasurementRejected)
	ErrPaused              = fmt.Errorf("%w: sensor disabled", ErrMeasurementRejected)
	ErrDuplicate           = fmt.Errorf("%w: duplicate", ErrMeasurementRejected)
)

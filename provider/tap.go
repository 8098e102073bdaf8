package provider

import (
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
)

// Tap wraps a Sensor, handing every measurement and status change it
// delivers to record before passing it on. Statuses are stamped with c.
func Tap(sensor Sensor, source fix.Source, c clock.Clock, record func(fix.Record)) Sensor {
	return &tap{sensor: sensor, source: source, clock: c, record: record}
}

type tap struct {
	sensor Sensor
	source fix.Source
	clock  clock.Clock
	record func(fix.Record)
}

func (t *tap) Subscribe(minInterval time.Duration, onMeasurement func(fix.Measurement), onStatus func(fix.Status)) (Subscription, error) {
	return t.sensor.Subscribe(minInterval,
		func(m fix.Measurement) {
			m.Source = t.source
			t.record(fix.Record{Measurement: &m})
			onMeasurement(m)
		},
		func(st fix.Status) {
			t.record(fix.Record{Status: &fix.StatusEvent{Source: t.source, T: t.clock.Millis(), Status: st}})
			onStatus(st)
		})
}

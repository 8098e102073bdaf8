/*
Package fix holds the values that flow through the fusion pipeline:
measurements in from the sensors, estimates out to listeners.
*/
package fix

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Source tags where a measurement or an estimate came from.
type Source int

const (
	SourceSat Source = iota
	SourceNet
	SourceFused
)

func (s Source) String() string {
	switch s {
	case SourceSat:
		return "sat"
	case SourceNet:
		return "net"
	case SourceFused:
		return "fused"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	v, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSource accepts the text form of a Source, plus the provider names
// Android uses ("gps", "network").
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sat", "gps":
		return SourceSat, nil
	case "net", "network":
		return SourceNet, nil
	case "fused", "kalman":
		return SourceFused, nil
	}
	return 0, fmt.Errorf("unknown source %q", s)
}

// Status is a sensor availability state as reported by the platform.
type Status int

const (
	StatusEnabled Status = iota
	StatusDisabled
	StatusTempUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusEnabled:
		return "enabled"
	case StatusDisabled:
		return "disabled"
	case StatusTempUnavailable:
		return "temp_unavailable"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled", "available":
		return StatusEnabled, nil
	case "disabled", "out_of_service":
		return StatusDisabled, nil
	case "temp_unavailable", "temporarily_unavailable":
		return StatusTempUnavailable, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// StatusEvent is a status transition of one sensor.
type StatusEvent struct {
	Source Source `json:"source"`
	T      int64  `json:"t"`
	Status Status `json:"status"`
}

// Measurement is a timestamped, error-bounded position report from one sensor.
// T is in monotonic milliseconds, on the same clock the fusion loop ticks on.
// Accuracy is the one-sigma horizontal error in meters.
// A nil Alt or Bearing means the sensor did not report it.
type Measurement struct {
	Source   Source
	T        int64
	Lat      float64
	Lon      float64
	Alt      *float64
	Bearing  *float64
	Accuracy float64

	// VerticalAccuracy is the one-sigma altitude error in meters, 0 when unknown.
	VerticalAccuracy float64
}

var ErrInvalidMeasurement = errors.New("invalid measurement")

// Validate reports values no sensor should produce.
func (m Measurement) Validate() error {
	switch {
	case !finite(m.Accuracy) || m.Accuracy <= 0:
		return fmt.Errorf("%w: accuracy %v", ErrInvalidMeasurement, m.Accuracy)
	case !finite(m.Lat) || m.Lat < -90 || m.Lat > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidMeasurement, m.Lat)
	case !finite(m.Lon) || m.Lon < -180 || m.Lon > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidMeasurement, m.Lon)
	}
	return nil
}

// Sanitized drops optional fields that are not finite.
func (m Measurement) Sanitized() Measurement {
	if m.Alt != nil && !finite(*m.Alt) {
		m.Alt = nil
	}
	if m.Bearing != nil && !finite(*m.Bearing) {
		m.Bearing = nil
	}
	if !finite(m.VerticalAccuracy) || m.VerticalAccuracy < 0 {
		m.VerticalAccuracy = 0
	}
	return m
}

func (m Measurement) Point() orb.Point {
	return orb.Point{m.Lon, m.Lat}
}

// Estimate is a best guess of where we are at time T.
// HorizontalAccuracy is +Inf until the filter has seen a fix.
type Estimate struct {
	Source             Source
	T                  int64
	Lat                float64
	Lon                float64
	Alt                *float64
	Bearing            float64
	Speed              float64
	HorizontalAccuracy float64
}

// FromMeasurement is the raw pass-through estimate for a sensor fix.
func FromMeasurement(m Measurement) Estimate {
	e := Estimate{
		Source:             m.Source,
		T:                  m.T,
		Lat:                m.Lat,
		Lon:                m.Lon,
		Alt:                m.Alt,
		HorizontalAccuracy: m.Accuracy,
	}
	if m.Bearing != nil {
		e.Bearing = *m.Bearing
	}
	return e
}

// HasFix is false for estimates published before any measurement was applied.
func (e Estimate) HasFix() bool {
	return finite(e.HorizontalAccuracy)
}

func (e Estimate) Point() orb.Point {
	return orb.Point{e.Lon, e.Lat}
}

// Feature renders the estimate as a GeoJSON point.
// Non-finite values are left out, since JSON cannot carry them.
func (e Estimate) Feature() *geojson.Feature {
	f := geojson.NewFeature(e.Point())
	f.Properties["Source"] = e.Source.String()
	f.Properties["T"] = e.T
	f.Properties["Fix"] = e.HasFix()
	if e.HasFix() {
		f.Properties["Accuracy"] = e.HorizontalAccuracy
	}
	f.Properties["Speed"] = e.Speed
	f.Properties["Heading"] = e.Bearing
	if e.Alt != nil {
		f.Properties["Elevation"] = *e.Alt
	}
	return f
}

// EstimateFromFeature reverses Feature.
func EstimateFromFeature(f *geojson.Feature) (Estimate, error) {
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return Estimate{}, fmt.Errorf("geometry is %T, not a point", f.Geometry)
	}
	src, err := ParseSource(f.Properties.MustString("Source", ""))
	if err != nil {
		return Estimate{}, err
	}
	e := Estimate{
		Source:             src,
		T:                  propertyMillis(f.Properties, "T"),
		Lat:                pt.Lat(),
		Lon:                pt.Lon(),
		Bearing:            f.Properties.MustFloat64("Heading", 0),
		Speed:              f.Properties.MustFloat64("Speed", 0),
		HorizontalAccuracy: f.Properties.MustFloat64("Accuracy", math.Inf(1)),
	}
	if _, ok := f.Properties["Elevation"]; ok {
		alt := f.Properties.MustFloat64("Elevation", 0)
		e.Alt = &alt
	}
	return e, nil
}

// propertyMillis reads an integer property that may have been through a
// JSON round trip (float64) or not (int64).
func propertyMillis(p geojson.Properties, key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

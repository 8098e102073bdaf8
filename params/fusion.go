package params

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrConfigInvalid = errors.New("invalid config")

// Sources selects which sensors the fusion manager subscribes to.
type Sources int

const (
	SourcesNone Sources = iota
	SourcesSat
	SourcesNet
	SourcesSatAndNet
)

func (s Sources) String() string {
	switch s {
	case SourcesNone:
		return "none"
	case SourcesSat:
		return "sat"
	case SourcesNet:
		return "net"
	case SourcesSatAndNet:
		return "sat+net"
	}
	return fmt.Sprintf("sources(%d)", int(s))
}

func (s Sources) Sat() bool {
	return s == SourcesSat || s == SourcesSatAndNet
}

func (s Sources) Net() bool {
	return s == SourcesNet || s == SourcesSatAndNet
}

func ParseSources(s string) (Sources, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sat", "gps":
		return SourcesSat, nil
	case "net", "network":
		return SourcesNet, nil
	case "sat+net", "sat_and_net", "both", "all":
		return SourcesSatAndNet, nil
	}
	return 0, fmt.Errorf("%w: unknown sources %q", ErrConfigInvalid, s)
}

const MinFilterPeriod = 20 * time.Millisecond

type FusionConfig struct {
	Sources Sources

	// FilterPeriod is the cadence of FUSED estimates.
	FilterPeriod time.Duration

	// SatMinInterval and NetMinInterval are passed on to the sensors as hints.
	SatMinInterval time.Duration
	NetMinInterval time.Duration

	// ProcessNoise is the one-sigma acceleration driving the motion model, m/s^2.
	ProcessNoise float64

	// ForwardRaw passes every accepted measurement on to the listener,
	// tagged with its sensor, before it is applied.
	ForwardRaw bool

	// MaxReorder is how far behind the newest time a measurement may be and still be applied.
	MaxReorder time.Duration

	// InitialSpeedSigma is the velocity prior of the first fix, m/s.
	// The default is 50, not the textbook 100: a 10 m first fix must read
	// 10-12 m of accuracy one 100 ms tick later, and 100 m/s gives ~14 m.
	InitialSpeedSigma float64

	// AltitudeNoise, m^2/s^2.
	AltitudeNoise float64
	// BearingNoise, deg^2/s.
	BearingNoise float64
	// BearingAccuracy is the assumed one-sigma error of a reported bearing, degrees.
	BearingAccuracy float64

	// DiagnosticsLogInterval logs the diagnostic counters periodically.
	// Zero disables the log.
	DiagnosticsLogInterval time.Duration
}

func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		Sources:                SourcesSatAndNet,
		FilterPeriod:           200 * time.Millisecond,
		SatMinInterval:         time.Second,
		NetMinInterval:         5 * time.Second,
		ProcessNoise:           1.0,
		ForwardRaw:             true,
		MaxReorder:             2 * time.Second,
		InitialSpeedSigma:      50, // lower than the usual 100, see the field
		AltitudeNoise:          1.0,
		BearingNoise:           5,
		BearingAccuracy:        10,
		DiagnosticsLogInterval: 0,
	}
}

// Validate reports the first problem with c, wrapping ErrConfigInvalid.
func (c *FusionConfig) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: nil config", ErrConfigInvalid)
	case !c.Sources.Sat() && !c.Sources.Net():
		return fmt.Errorf("%w: no sources selected", ErrConfigInvalid)
	case c.FilterPeriod < MinFilterPeriod:
		return fmt.Errorf("%w: filter period %v < %v", ErrConfigInvalid, c.FilterPeriod, MinFilterPeriod)
	case !(c.ProcessNoise > 0):
		return fmt.Errorf("%w: process noise %v <= 0", ErrConfigInvalid, c.ProcessNoise)
	case c.SatMinInterval < 0:
		return fmt.Errorf("%w: sat min interval %v < 0", ErrConfigInvalid, c.SatMinInterval)
	case c.NetMinInterval < 0:
		return fmt.Errorf("%w: net min interval %v < 0", ErrConfigInvalid, c.NetMinInterval)
	case c.MaxReorder < 0:
		return fmt.Errorf("%w: max reorder %v < 0", ErrConfigInvalid, c.MaxReorder)
	case !(c.InitialSpeedSigma > 0):
		return fmt.Errorf("%w: initial speed sigma %v <= 0", ErrConfigInvalid, c.InitialSpeedSigma)
	case c.AltitudeNoise < 0 || c.BearingNoise < 0:
		return fmt.Errorf("%w: negative sub-filter noise", ErrConfigInvalid)
	case !(c.BearingAccuracy > 0):
		return fmt.Errorf("%w: bearing accuracy %v <= 0", ErrConfigInvalid, c.BearingAccuracy)
	}
	return nil
}

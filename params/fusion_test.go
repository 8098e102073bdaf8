package params

import (
	"errors"
	"testing"
	"time"
)

func TestFusionConfig_Validate(t *testing.T) {
	if err := DefaultFusionConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	cases := map[string]func(c *FusionConfig){
		"no sources":        func(c *FusionConfig) { c.Sources = SourcesNone },
		"bogus sources":     func(c *FusionConfig) { c.Sources = Sources(42) },
		"fast period":       func(c *FusionConfig) { c.FilterPeriod = 19 * time.Millisecond },
		"zero noise":        func(c *FusionConfig) { c.ProcessNoise = 0 },
		"negative sat hint": func(c *FusionConfig) { c.SatMinInterval = -time.Millisecond },
		"negative net hint": func(c *FusionConfig) { c.NetMinInterval = -time.Millisecond },
		"negative reorder":  func(c *FusionConfig) { c.MaxReorder = -1 },
		"zero speed prior":  func(c *FusionConfig) { c.InitialSpeedSigma = 0 },
		"zero bearing sd":   func(c *FusionConfig) { c.BearingAccuracy = 0 },
	}
	for name, mutate := range cases {
		c := DefaultFusionConfig()
		mutate(c)
		if err := c.Validate(); !errors.Is(err, ErrConfigInvalid) {
			t.Errorf("%s: Expected ErrConfigInvalid, got %v", name, err)
		}
	}
	var nilConfig *FusionConfig
	if err := nilConfig.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("nil config: Expected ErrConfigInvalid, got %v", err)
	}

	c := DefaultFusionConfig()
	c.FilterPeriod = MinFilterPeriod
	if err := c.Validate(); err != nil {
		t.Errorf("minimum period should be allowed: %v", err)
	}
}

func TestParseSources(t *testing.T) {
	for in, want := range map[string]Sources{
		"sat":     SourcesSat,
		"GPS":     SourcesSat,
		"network": SourcesNet,
		"sat+net": SourcesSatAndNet,
		"both":    SourcesSatAndNet,
	} {
		got, err := ParseSources(in)
		if err != nil || got != want {
			t.Errorf("ParseSources(%q): Expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := ParseSources("none"); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid for none, got %v", err)
	}
	if !SourcesSatAndNet.Sat() || !SourcesSatAndNet.Net() || SourcesSat.Net() || SourcesNet.Sat() {
		t.Errorf("source selection predicates are wrong")
	}
}

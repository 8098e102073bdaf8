package fix

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb/geojson"
)

func TestMeasurement_Validate(t *testing.T) {
	cases := []struct {
		name string
		m    Measurement
		ok   bool
	}{
		{"ok", Measurement{Lat: 46.9, Lon: -114.1, Accuracy: 5}, true},
		{"zero accuracy", Measurement{Lat: 1, Lon: 1}, false},
		{"negative accuracy", Measurement{Lat: 1, Lon: 1, Accuracy: -3}, false},
		{"nan accuracy", Measurement{Lat: 1, Lon: 1, Accuracy: math.NaN()}, false},
		{"lat out of range", Measurement{Lat: 91, Lon: 1, Accuracy: 5}, false},
		{"lon out of range", Measurement{Lat: 1, Lon: -181, Accuracy: 5}, false},
		{"nan lat", Measurement{Lat: math.NaN(), Lon: 1, Accuracy: 5}, false},
		{"inf lon", Measurement{Lat: 1, Lon: math.Inf(1), Accuracy: 5}, false},
	}
	for _, c := range cases {
		err := c.m.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok {
			if err == nil {
				t.Errorf("%s: expected error", c.name)
			} else if !errors.Is(err, ErrInvalidMeasurement) {
				t.Errorf("%s: error %v is not ErrInvalidMeasurement", c.name, err)
			}
		}
	}
}

func TestMeasurement_Sanitized(t *testing.T) {
	nan := math.NaN()
	alt := 100.0
	m := Measurement{Lat: 1, Lon: 1, Accuracy: 5, Alt: &alt, Bearing: &nan, VerticalAccuracy: math.Inf(1)}
	s := m.Sanitized()
	if s.Alt == nil || *s.Alt != 100 {
		t.Errorf("altitude should survive, got %v", s.Alt)
	}
	if s.Bearing != nil {
		t.Errorf("nan bearing should be dropped")
	}
	if s.VerticalAccuracy != 0 {
		t.Errorf("inf vertical accuracy should be dropped, got %v", s.VerticalAccuracy)
	}
}

func TestSource_Text(t *testing.T) {
	for _, s := range []Source{SourceSat, SourceNet, SourceFused} {
		b, _ := s.MarshalText()
		var got Source
		if err := got.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("Expected %v, got %v", s, got)
		}
	}
	if s, err := ParseSource("network"); err != nil || s != SourceNet {
		t.Errorf("network should parse as net, got %v %v", s, err)
	}
	if _, err := ParseSource("wifi"); err == nil {
		t.Errorf("expected error for unknown source")
	}
}

func TestEstimate_FeatureNoFix(t *testing.T) {
	e := Estimate{Source: SourceFused, T: 200, HorizontalAccuracy: math.Inf(1)}
	if e.HasFix() {
		t.Fatal("infinite accuracy should mean no fix")
	}
	b, err := json.Marshal(e.Feature())
	if err != nil {
		t.Fatalf("feature for no-fix estimate should marshal: %v", err)
	}
	f, err := geojson.UnmarshalFeature(b)
	if err != nil {
		t.Fatal(err)
	}
	back, err := EstimateFromFeature(f)
	if err != nil {
		t.Fatal(err)
	}
	if back.HasFix() {
		t.Errorf("round trip should keep no-fix")
	}
	if back.T != 200 || back.Source != SourceFused {
		t.Errorf("unexpected round trip %+v", back)
	}
}

func TestEstimate_FeatureRoundTrip(t *testing.T) {
	alt := 965.6
	e := Estimate{Source: SourceSat, T: 1234, Lat: 46.9292804, Lon: -114.0877518, Alt: &alt, Bearing: 45, Speed: 1.5, HorizontalAccuracy: 3}
	b, err := json.Marshal(e.Feature())
	if err != nil {
		t.Fatal(err)
	}
	f, err := geojson.UnmarshalFeature(b)
	if err != nil {
		t.Fatal(err)
	}
	back, err := EstimateFromFeature(f)
	if err != nil {
		t.Fatal(err)
	}
	if back.Alt == nil || *back.Alt != alt {
		t.Errorf("altitude lost: %v", back.Alt)
	}
	back.Alt, e.Alt = nil, nil
	if back != e {
		t.Errorf("Expected %+v, got %+v", e, back)
	}
}

func TestDecodeRecord(t *testing.T) {
	line := []byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[-114.08,46.93]},"properties":{"Source":"gps","T":1000,"Accuracy":5,"Elevation":965.6,"Heading":-1}}`)
	r, err := DecodeRecord(line)
	if err != nil {
		t.Fatal(err)
	}
	if r.Measurement == nil {
		t.Fatal("expected a measurement")
	}
	m := *r.Measurement
	if m.Source != SourceSat || m.T != 1000 || m.Lat != 46.93 || m.Lon != -114.08 || m.Accuracy != 5 {
		t.Errorf("unexpected measurement %+v", m)
	}
	if m.Alt == nil || *m.Alt != 965.6 {
		t.Errorf("expected elevation")
	}
	if m.Bearing != nil {
		t.Errorf("heading -1 means unknown")
	}

	r, err = DecodeRecord([]byte(`{"type":"Status","properties":{"Source":"net","T":5000,"Status":"disabled"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Status == nil || r.Status.Status != StatusDisabled || r.Status.Source != SourceNet || r.T() != 5000 {
		t.Errorf("unexpected status record %+v", r.Status)
	}

	for _, bad := range []string{
		`not json`,
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"Source":"fused","T":1}}`,
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"Source":"sat"}}`,
		`{"type":"Feature","geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]},"properties":{"Source":"sat","T":1}}`,
		`{"type":"Status","properties":{"Source":"sat","T":1,"Status":"sleepy"}}`,
	} {
		if _, err := DecodeRecord([]byte(bad)); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

func TestMeasurement_FeatureDecodes(t *testing.T) {
	b := 270.0
	m := Measurement{Source: SourceNet, T: 42, Lat: 10, Lon: 20, Accuracy: 30, Bearing: &b}
	data, err := json.Marshal(m.Feature())
	if err != nil {
		t.Fatal(err)
	}
	r, err := DecodeRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	got := *r.Measurement
	if got.Bearing == nil || *got.Bearing != 270 {
		t.Fatalf("bearing lost")
	}
	got.Bearing, m.Bearing = nil, nil
	if got != m {
		t.Errorf("Expected %+v, got %+v", m, got)
	}
}

func TestEncodeRecord_Status(t *testing.T) {
	in := Record{Status: &StatusEvent{Source: SourceSat, T: 77, Status: StatusTempUnavailable}}
	data, err := EncodeRecord(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status == nil || *out.Status != *in.Status {
		t.Errorf("Expected %+v, got %+v", in.Status, out.Status)
	}
	if _, err := EncodeRecord(Record{}); err == nil {
		t.Errorf("empty record should not encode")
	}
}

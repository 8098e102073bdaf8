package fix

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
)

// Record is one line of a recorded sensor session:
// either a measurement or a status change.
type Record struct {
	Measurement *Measurement
	Status      *StatusEvent
}

func (r Record) T() int64 {
	if r.Measurement != nil {
		return r.Measurement.T
	}
	if r.Status != nil {
		return r.Status.T
	}
	return 0
}

func (r Record) Source() Source {
	if r.Measurement != nil {
		return r.Measurement.Source
	}
	if r.Status != nil {
		return r.Status.Source
	}
	return SourceFused
}

var ErrUnknownRecord = errors.New("unknown record")

// DecodeRecord parses a single NDJSON line.
//
// Measurements are GeoJSON point features:
//
//	{"type":"Feature","geometry":{"type":"Point","coordinates":[lon,lat]},
//	 "properties":{"Source":"sat","T":1000,"Accuracy":5,"Elevation":12.5,"Heading":90}}
//
// Status changes use their own type:
//
//	{"type":"Status","properties":{"Source":"sat","T":5000,"Status":"disabled"}}
func DecodeRecord(line []byte) (Record, error) {
	if !gjson.ValidBytes(line) {
		return Record{}, fmt.Errorf("%w: invalid json", ErrUnknownRecord)
	}
	parsed := gjson.ParseBytes(line)
	props := parsed.Get("properties")
	if !props.Exists() {
		return Record{}, fmt.Errorf("%w: no properties", ErrUnknownRecord)
	}
	src, err := ParseSource(props.Get("Source").String())
	if err != nil {
		return Record{}, err
	}
	if src == SourceFused {
		return Record{}, fmt.Errorf("%w: fused source is output only", ErrUnknownRecord)
	}
	t := props.Get("T")
	if !t.Exists() {
		return Record{}, fmt.Errorf("%w: missing T", ErrUnknownRecord)
	}

	switch parsed.Get("type").String() {
	case "Status":
		st, err := ParseStatus(props.Get("Status").String())
		if err != nil {
			return Record{}, err
		}
		return Record{Status: &StatusEvent{Source: src, T: t.Int(), Status: st}}, nil
	case "Feature":
		coords := parsed.Get("geometry.coordinates").Array()
		if parsed.Get("geometry.type").String() != "Point" || len(coords) < 2 {
			return Record{}, fmt.Errorf("%w: want point geometry", ErrUnknownRecord)
		}
		m := Measurement{
			Source:           src,
			T:                t.Int(),
			Lon:              coords[0].Float(),
			Lat:              coords[1].Float(),
			Accuracy:         props.Get("Accuracy").Float(),
			VerticalAccuracy: props.Get("VerticalAccuracy").Float(),
		}
		if v := props.Get("Elevation"); v.Exists() && v.Type == gjson.Number {
			alt := v.Float()
			m.Alt = &alt
		}
		// Android reports -1 for an unknown heading.
		if v := props.Get("Heading"); v.Exists() && v.Type == gjson.Number && v.Float() >= 0 {
			b := v.Float()
			m.Bearing = &b
		}
		return Record{Measurement: &m}, nil
	}
	return Record{}, fmt.Errorf("%w: type %q", ErrUnknownRecord, parsed.Get("type").String())
}

// Feature is the record form of a measurement, see DecodeRecord.
func (m Measurement) Feature() *geojson.Feature {
	f := geojson.NewFeature(m.Point())
	f.Properties["Source"] = m.Source.String()
	f.Properties["T"] = m.T
	f.Properties["Accuracy"] = m.Accuracy
	if m.VerticalAccuracy > 0 {
		f.Properties["VerticalAccuracy"] = m.VerticalAccuracy
	}
	if m.Alt != nil {
		f.Properties["Elevation"] = *m.Alt
	}
	if m.Bearing != nil {
		f.Properties["Heading"] = *m.Bearing
	}
	return f
}

// EncodeRecord is the inverse of DecodeRecord.
func EncodeRecord(r Record) ([]byte, error) {
	switch {
	case r.Measurement != nil:
		return json.Marshal(r.Measurement.Feature())
	case r.Status != nil:
		return json.Marshal(map[string]any{
			"type": "Status",
			"properties": map[string]any{
				"Source": r.Status.Source.String(),
				"T":      r.Status.T,
				"Status": r.Status.Status.String(),
			},
		})
	}
	return nil, fmt.Errorf("%w: empty record", ErrUnknownRecord)
}

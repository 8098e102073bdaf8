package influxdb

import (
	"errors"
	"sync"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const Measurement = "estimate"

var ErrDisabled = errors.New("influxdb export disabled")

// EstimatePoint is the line protocol point for e.
// Estimate T is taken as Unix milliseconds.
func EstimatePoint(e fix.Estimate) *write.Point {
	p := influxdb2.NewPointWithMeasurement(Measurement).
		SetTime(time.UnixMilli(e.T)).
		AddTag("source", e.Source.String()).
		AddField("latitude", e.Lat).
		AddField("longitude", e.Lon).
		AddField("accuracy", e.HorizontalAccuracy).
		AddField("speed", e.Speed).
		AddField("heading", e.Bearing)
	if e.Alt != nil {
		p.AddField("elevation", *e.Alt)
	}
	return p
}

// ExportEstimates posts estimates to an InfluxDB Write API.
// Because it accepts a slice, use batches. The Write API will buffer and flush.
// Estimates without a fix are skipped. The last error encountered is returned.
func ExportEstimates(cfg *params.InfluxConfig, estimates []fix.Estimate) error {
	if !cfg.Enabled() {
		return ErrDisabled
	}
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	// The errors chan must be drained or the writer blocks.
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	for _, e := range estimates {
		if !e.HasFix() {
			continue
		}
		writeAPI.WritePoint(EstimatePoint(e))
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}

/*
Package replay runs a recorded sensor session through a fusion manager on a
manual clock, so the same recording always gives the same estimates.
*/
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/fusion"
	"github.com/Galaxy-Crusader/KalmanLocationManager/geo/kalman"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/provider"
	"github.com/Galaxy-Crusader/KalmanLocationManager/stream"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
)

var ErrEmpty = errors.New("no records to replay")

type Options struct {
	Fusion *params.FusionConfig

	// OnEstimate, if set, gets every published estimate on the fusion executor.
	OnEstimate func(e fix.Estimate)

	// Baseline also runs the regnull filter over the measurements and
	// compares it to the FUSED track.
	Baseline bool

	// Tail is how long to keep ticking after the last record.
	Tail time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Fusion: params.DefaultFusionConfig(),
	}
}

type Result struct {
	Records     int
	Skipped     int
	Fused       []fix.Estimate
	Diagnostics fusion.Diagnostics
	Comparison  *Comparison
}

// Run replays the NDJSON records of in. Lines that fail to decode are
// skipped and counted.
func Run(ctx context.Context, in io.Reader, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Fusion == nil {
		opts.Fusion = params.DefaultFusionConfig()
	}
	log := slog.With("d", "replay")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, errs := stream.Lines(ctx, in)

	res := &Result{}
	next := func() (fix.Record, bool) {
		for line := range lines {
			rec, err := fix.DecodeRecord(line)
			if err != nil {
				log.Debug("Skipped record", "error", err)
				res.Skipped++
				continue
			}
			res.Records++
			return rec, true
		}
		return fix.Record{}, false
	}

	first, ok := next()
	if !ok {
		if err := <-errs; err != nil {
			return res, err
		}
		return res, ErrEmpty
	}

	clk := clock.NewManual(first.T())
	sensors := map[fix.Source]*provider.PushSensor{
		fix.SourceSat: provider.NewPushSensor(),
		fix.SourceNet: provider.NewPushSensor(),
	}
	var baseline *kalman.Baseline
	var reference []fix.Estimate
	if opts.Baseline {
		baseline = kalman.NewBaseline(1, 1)
	}

	m := fusion.NewManager(sensors[fix.SourceSat], sensors[fix.SourceNet], fusion.WithClock(clk), fusion.WithLogger(log))
	err := m.Start(opts.Fusion, fusion.ListenerFuncs{
		Estimate: func(e fix.Estimate) {
			if e.Source == fix.SourceFused && e.HasFix() {
				res.Fused = append(res.Fused, e)
			}
			if opts.OnEstimate != nil {
				opts.OnEstimate(e)
			}
		},
	})
	if err != nil {
		return res, fmt.Errorf("start fusion: %w", err)
	}

	last := first.T()
	apply := func(rec fix.Record) {
		clk.AdvanceTo(rec.T())
		if rec.T() > last {
			last = rec.T()
		}
		sensor := sensors[rec.Source()]
		switch {
		case rec.Measurement != nil:
			sensor.Push(*rec.Measurement)
			if baseline != nil && rec.Measurement.Validate() == nil {
				if e, err := baseline.Observe(*rec.Measurement); err == nil {
					reference = append(reference, e)
				}
			}
		case rec.Status != nil:
			sensor.SetStatus(rec.Status.Status)
		}
	}

	apply(first)
	for {
		if ctx.Err() != nil {
			break
		}
		rec, ok := next()
		if !ok {
			break
		}
		apply(rec)
	}
	clk.AdvanceTo(last + opts.Tail.Milliseconds())
	m.Flush()
	m.Stop()
	res.Diagnostics = m.Diagnostics()

	if err := <-errs; err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if baseline != nil {
		res.Comparison = Compare(res.Fused, reference)
	}
	log.Info("Replay done", "records", res.Records, "skipped", res.Skipped, "fused", len(res.Fused),
		"accepted", res.Diagnostics.Accepted(), "rejected", res.Diagnostics.Rejected())
	return res, nil
}

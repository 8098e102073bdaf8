/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/catdb/flat"
	"github.com/Galaxy-Crusader/KalmanLocationManager/clock"
	"github.com/Galaxy-Crusader/KalmanLocationManager/common"
	"github.com/Galaxy-Crusader/KalmanLocationManager/daemon/webd"
	"github.com/Galaxy-Crusader/KalmanLocationManager/fusion"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/provider"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/spf13/cobra"
)

var optSimWebAddr string
var optSimSession string
var optSimDuration time.Duration
var optSimSatOutage time.Duration
var optSimConfig = params.DefaultSimConfig()

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Fuse two simulated sensors in real time",
	Long: `Runs the fusion manager on the wall clock against a simulated satellite
receiver and network locator, both following a figure-eight course.

With --session the raw sensor records are saved under the data directory
and can be replayed later. With --web the estimates are served over HTTP
and a websocket.

Examples:

  kalmanlocation simulate --web localhost:3000 --sat-outage 30s
  kalmanlocation simulate --session walk --duration 5m
  kalmanlocation replay ~/.kalmanlocation/sessions/walk/recording.ndjson.gz
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setDefaultSlog(cmd, args)

		cfg, err := fusionConfig(cmd.Flags())
		if err != nil {
			return err
		}

		ctx, cancel := common.InterruptContext(context.Background())
		defer cancel()
		if optSimDuration > 0 {
			ctx, cancel = context.WithTimeout(ctx, optSimDuration)
			defer cancel()
		}

		clk := clock.NewReal()
		satSim := provider.NewSimSensor(fix.SourceSat, clk, optSimConfig)
		netSim := provider.NewSimSensor(fix.SourceNet, clk, optSimConfig)
		var sat, net provider.Sensor = satSim, netSim

		var rec *recorder
		if optSimSession != "" {
			session := flat.NewFlatWithRoot(params.DatadirRoot).ForSession(optSimSession)
			rec, err = newRecorder(session)
			if err != nil {
				return err
			}
			defer func() {
				cancel()
				_ = rec.Close()
			}()
			sat = provider.Tap(sat, fix.SourceSat, clk, rec.record)
			net = provider.Tap(net, fix.SourceNet, clk, rec.record)
			slog.Info("Recording session", "path", session.Path())
		}

		m := fusion.NewManager(sat, net, fusion.WithClock(clk))

		s, err := openSinks()
		if err != nil {
			return err
		}
		defer s.Close()
		waitSinks := s.subscribe(ctx, m)
		if rec != nil {
			rec.subscribe(ctx, m)
		}

		if err := m.Start(cfg, fusion.ListenerFuncs{}); err != nil {
			return err
		}
		defer m.Stop()

		if optSimWebAddr != "" {
			daemonCfg := params.DefaultWebDaemonConfig()
			daemonCfg.Address = optSimWebAddr
			go func() {
				err := webd.NewWebDaemon(daemonCfg, m, nil).Run(ctx)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("Web daemon failed", "error", err)
					cancel()
				}
			}()
		}

		if optSimSatOutage > 0 {
			go toggleEvery(ctx, optSimSatOutage, satSim)
		}

		<-ctx.Done()
		m.Stop()
		waitSinks()
		d := m.Diagnostics()
		slog.Info("Simulation done", "accepted", d.Accepted(), "rejected", d.Rejected(), "ticks", d.Ticks)
		return nil
	},
}

// toggleEvery flips the satellite on and off, like driving through tunnels.
func toggleEvery(ctx context.Context, every time.Duration, s *provider.SimSensor) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SetEnabled(!s.Enabled())
		}
	}
}

// recorder saves a session: sensor records to replay, and the FUSED track.
type recorder struct {
	mu      sync.Mutex
	records *flat.Writer
	fused   *flat.Writer
	done    chan struct{}
}

func newRecorder(session *flat.Flat) (*recorder, error) {
	records, err := session.Create(flat.RecordingFileName)
	if err != nil {
		return nil, err
	}
	fused, err := session.Create(flat.FusedFileName)
	if err != nil {
		records.Close()
		return nil, err
	}
	return &recorder{records: records, fused: fused}, nil
}

// record is called from the sensor goroutines.
func (r *recorder) record(rec fix.Record) {
	b, err := fix.EncodeRecord(rec)
	if err != nil {
		slog.Error("Failed to encode record", "error", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.records.WriteLine(b); err != nil {
		slog.Error("Failed to write record", "error", err)
	}
}

func (r *recorder) subscribe(ctx context.Context, m *fusion.Manager) {
	ch := make(chan fix.Estimate, params.DefaultBatchSize)
	sub := m.SubscribeEstimates(ch)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-ch:
				if e.Source != fix.SourceFused || !e.HasFix() {
					continue
				}
				b, err := json.Marshal(e.Feature())
				if err != nil {
					continue
				}
				if err := r.fused.WriteLine(b); err != nil {
					slog.Error("Failed to write estimate", "error", err)
				}
			}
		}
	}()
}

// Close waits for the subscription to end with its context.
func (r *recorder) Close() error {
	if r.done != nil {
		<-r.done
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.records.Close(), r.fused.Close())
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	flags := simulateCmd.Flags()
	addFusionFlags(flags)
	addSinkFlags(flags)
	flags.StringVar(&optSimWebAddr, "web", "", "serve estimates on this address, eg. "+params.DefaultWebListenerConfig().Address)
	flags.StringVar(&optSimSession, "session", "", "record the session under this name in the data directory")
	flags.DurationVar(&optSimDuration, "duration", 0, "stop after this long, 0 runs until interrupted")
	flags.DurationVar(&optSimSatOutage, "sat-outage", 0, "toggle the satellite sensor this often, 0 never")
	flags.Float64Var(&optSimConfig.Lat, "lat", optSimConfig.Lat, "course center latitude")
	flags.Float64Var(&optSimConfig.Lon, "lon", optSimConfig.Lon, "course center longitude")
	flags.Float64Var(&optSimConfig.Radius, "radius", optSimConfig.Radius, "course loop radius, meters")
	flags.DurationVar(&optSimConfig.Period, "lap", optSimConfig.Period, "time for one figure-eight")
	flags.Int64Var(&optSimConfig.Seed, "seed", optSimConfig.Seed, "sensor noise seed")
}

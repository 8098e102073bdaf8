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
	"log/slog"
	"sync"

	"github.com/Galaxy-Crusader/KalmanLocationManager/fusion"
	"github.com/Galaxy-Crusader/KalmanLocationManager/metrics/influxdb"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/state"
	"github.com/Galaxy-Crusader/KalmanLocationManager/stream"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/spf13/pflag"
)

var optStorePath string
var optInflux bool

func addSinkFlags(fs *pflag.FlagSet) {
	fs.StringVar(&optStorePath, "store", "", "bbolt database to append FUSED estimates to (eg. "+params.DefaultStoreConfig().Path+")")
	fs.BoolVar(&optInflux, "influx", false, "export FUSED estimates to InfluxDB, configured by INFLUXDB_* env vars")
}

// sinks persists FUSED estimates to whatever the flags asked for.
type sinks struct {
	store  *state.Store
	influx *params.InfluxConfig
}

func openSinks() (*sinks, error) {
	s := &sinks{}
	if optStorePath != "" {
		st, err := state.Open(optStorePath, false)
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	if optInflux {
		s.influx = params.DefaultInfluxConfig()
		if !s.influx.Enabled() {
			slog.Warn("InfluxDB export requested but INFLUXDB_URL is not set")
			s.influx = nil
		}
	}
	return s, nil
}

// consume drains in until it closes or ctx is done.
// Estimates are stored one by one and exported in batches.
func (s *sinks) consume(ctx context.Context, in <-chan fix.Estimate) {
	fused := stream.Filter(ctx, func(e fix.Estimate) bool {
		return e.Source == fix.SourceFused && e.HasFix()
	}, in)

	wg := sync.WaitGroup{}
	var toInflux chan fix.Estimate
	if s.influx != nil {
		toInflux = make(chan fix.Estimate)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range stream.Batch(ctx, params.DefaultBatchSize, toInflux) {
				if err := influxdb.ExportEstimates(s.influx, batch); err != nil {
					slog.Error("Failed to export estimates", "error", err)
				}
			}
		}()
	}
	for e := range fused {
		if s.store != nil {
			if err := s.store.Put(e); err != nil {
				slog.Error("Failed to store estimate", "t", e.T, "error", err)
			}
		}
		if toInflux != nil {
			toInflux <- e
		}
	}
	if toInflux != nil {
		close(toInflux)
	}
	wg.Wait()
}

func (s *sinks) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// subscribe feeds the manager's estimates to s until ctx is done.
// The returned wait blocks until everything received has been handled.
func (s *sinks) subscribe(ctx context.Context, m *fusion.Manager) (wait func()) {
	ch := make(chan fix.Estimate, params.DefaultBatchSize)
	sub := m.SubscribeEstimates(ch)
	in := make(chan fix.Estimate)
	go func() {
		defer close(in)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-ch:
				select {
				case in <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.consume(context.Background(), in)
	}()
	return func() { <-done }
}

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
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/Galaxy-Crusader/KalmanLocationManager/catdb/flat"
	"github.com/Galaxy-Crusader/KalmanLocationManager/common"
	"github.com/Galaxy-Crusader/KalmanLocationManager/replay"
	"github.com/Galaxy-Crusader/KalmanLocationManager/stream"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var optReplayOut string
var optReplayBaseline bool

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay [recording.ndjson[.gz]]",
	Short: "Replay a recorded sensor session through the filter",
	Long: `Reads NDJSON records from the named file (gzipped if it ends in .gz) or stdin,
runs them through the fusion manager on a simulated clock, and writes every
published estimate as a GeoJSON feature line.

A record is either a measurement:

  {"type":"Feature","geometry":{"type":"Point","coordinates":[lon,lat]},
   "properties":{"Source":"sat","T":1000,"Accuracy":5,"Elevation":12.5,"Heading":90}}

or a sensor status change:

  {"type":"Status","properties":{"Source":"net","T":5000,"Status":"disabled"}}

T is in milliseconds. Replays are deterministic.

Examples:

  kalmanlocation replay ~/.kalmanlocation/sessions/walk/recording.ndjson.gz --out fused.geojson.gz
  zcat recording.ndjson.gz | kalmanlocation replay --forward-raw=false --baseline --store fixes.db
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setDefaultSlog(cmd, args)

		cfg, err := fusionConfig(cmd.Flags())
		if err != nil {
			return err
		}
		tail, err := cmd.Flags().GetDuration("tail")
		if err != nil {
			return err
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			r, err := flat.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			in = r
		}

		var out io.Writer
		if optReplayOut == "" || optReplayOut == "-" {
			bw := bufio.NewWriter(os.Stdout)
			defer bw.Flush()
			out = bw
		} else {
			w, err := flat.Create(optReplayOut)
			if err != nil {
				return err
			}
			defer w.Close()
			out = w
		}
		enc := json.NewEncoder(out)

		ctx, cancel := common.InterruptContext(context.Background())
		defer cancel()

		res, err := replay.Run(ctx, in, &replay.Options{
			Fusion:   cfg,
			Baseline: optReplayBaseline,
			Tail:     tail,
			OnEstimate: func(e fix.Estimate) {
				if err := enc.Encode(e.Feature()); err != nil {
					slog.Error("Failed to write estimate", "error", err)
				}
			},
		})
		if err != nil {
			return err
		}

		s, err := openSinks()
		if err != nil {
			return err
		}
		defer s.Close()
		s.consume(ctx, stream.Slice(ctx, res.Fused))

		d := res.Diagnostics
		slog.Info("Replayed",
			"records", humanize.Comma(int64(res.Records)),
			"skipped", res.Skipped,
			"fused", humanize.Comma(int64(len(res.Fused))),
			"accepted.sat", d.AcceptedSat, "accepted.net", d.AcceptedNet,
			"rejected", d.Rejected())
		if c := res.Comparison; c != nil {
			slog.Info("Baseline comparison, meters",
				"n", c.N,
				"mean", humanize.FtoaWithDigits(c.Mean, 2),
				"median", humanize.FtoaWithDigits(c.Median, 2),
				"p95", humanize.FtoaWithDigits(c.P95, 2),
				"max", humanize.FtoaWithDigits(c.Max, 2))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	flags := replayCmd.Flags()
	addFusionFlags(flags)
	addSinkFlags(flags)
	flags.StringVar(&optReplayOut, "out", "", "write estimates here instead of stdout (gzipped if it ends in .gz)")
	flags.BoolVar(&optReplayBaseline, "baseline", false, "compare the FUSED track to the regnull/kalman filter over the same fixes")
	flags.Duration("tail", 0, "keep ticking this long after the last record")
}

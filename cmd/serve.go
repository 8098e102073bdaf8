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

	"github.com/Galaxy-Crusader/KalmanLocationManager/common"
	"github.com/Galaxy-Crusader/KalmanLocationManager/daemon/webd"
	"github.com/Galaxy-Crusader/KalmanLocationManager/fusion"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/provider"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/spf13/cobra"
)

var optServeAddr string
var optServeNetwork string
var optServeTrail int

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Fuse fixes pushed over HTTP and serve the estimates",
	Long: `Starts the web daemon with two push sensors behind POST /push.
Clients post NDJSON records (see 'replay --help') and read the fused result from:

  GET  /ping          healthcheck
  GET  /status        daemon status
  GET  /last          last known estimate per source
  GET  /last/{source} last known estimate of sat, net or fused
  GET  /trail?n=      recent FUSED estimates as a GeoJSON LineString
  GET  /diagnostics   fusion counters
  WS   /estimates     every published estimate, live

If KALMANLOC_TOKEN is set, /push requires it in the Authorization header
or the api_token query param.

Record T values should be Unix milliseconds, the clock this daemon ticks on.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setDefaultSlog(cmd, args)

		cfg, err := fusionConfig(cmd.Flags())
		if err != nil {
			return err
		}

		ctx, cancel := common.InterruptContext(context.Background())
		defer cancel()

		pushers := map[fix.Source]*provider.PushSensor{
			fix.SourceSat: provider.NewPushSensor(),
			fix.SourceNet: provider.NewPushSensor(),
		}
		m := fusion.NewManager(pushers[fix.SourceSat], pushers[fix.SourceNet])

		s, err := openSinks()
		if err != nil {
			return err
		}
		defer s.Close()
		waitSinks := s.subscribe(ctx, m)

		if err := m.Start(cfg, fusion.ListenerFuncs{}); err != nil {
			cancel()
			waitSinks()
			return err
		}

		daemonCfg := &params.WebDaemonConfig{
			ListenerConfig: params.ListenerConfig{Network: optServeNetwork, Address: optServeAddr},
			TrailLength:    optServeTrail,
		}
		err = webd.NewWebDaemon(daemonCfg, m, pushers).Run(ctx)
		cancel()
		m.Stop()
		waitSinks()
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := params.DefaultWebDaemonConfig()
	flags := serveCmd.Flags()
	addFusionFlags(flags)
	addSinkFlags(flags)
	flags.StringVar(&optServeNetwork, "network", defaults.Network, "network to listen on: tcp, tcp4, tcp6 or unix")
	flags.StringVar(&optServeAddr, "address", defaults.Address, "address to listen on")
	flags.IntVar(&optServeTrail, "trail", defaults.TrailLength, "how many FUSED estimates /trail keeps")
}

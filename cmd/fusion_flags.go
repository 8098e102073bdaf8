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
	"fmt"

	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var fusionFlagNames = []string{
	"sources", "period", "sat-interval", "net-interval", "process-noise",
	"forward-raw", "max-reorder", "initial-speed-sigma", "diagnostics-interval",
}

// addFusionFlags registers the fusion tunables on fs.
func addFusionFlags(fs *pflag.FlagSet) {
	defaults := params.DefaultFusionConfig()
	fs.String("sources", defaults.Sources.String(), "sensors to fuse: sat, net, or sat+net")
	fs.Duration("period", defaults.FilterPeriod, "estimate publication period")
	fs.Duration("sat-interval", defaults.SatMinInterval, "satellite minimum update interval hint")
	fs.Duration("net-interval", defaults.NetMinInterval, "network minimum update interval hint")
	fs.Float64("process-noise", defaults.ProcessNoise, "acceleration noise sigma_a, m/s^2")
	fs.Bool("forward-raw", defaults.ForwardRaw, "also publish every accepted measurement as a raw estimate")
	fs.Duration("max-reorder", defaults.MaxReorder, "how late a measurement may be and still be applied")
	fs.Float64("initial-speed-sigma", defaults.InitialSpeedSigma, "initial velocity uncertainty, m/s")
	fs.Duration("diagnostics-interval", 0, "log fusion counters this often, 0 disables")
}

// fusionConfig reads the fusion tunables from the running command's flags,
// falling back to the config file and KALMANLOC_FUSION_* env vars.
// Binding happens here, not at init, since every command has its own flag set.
func fusionConfig(fs *pflag.FlagSet) (*params.FusionConfig, error) {
	for _, name := range fusionFlagNames {
		if err := viper.BindPFlag("fusion."+name, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}
	cfg := params.DefaultFusionConfig()
	sources, err := params.ParseSources(viper.GetString("fusion.sources"))
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources
	cfg.FilterPeriod = viper.GetDuration("fusion.period")
	cfg.SatMinInterval = viper.GetDuration("fusion.sat-interval")
	cfg.NetMinInterval = viper.GetDuration("fusion.net-interval")
	cfg.ProcessNoise = viper.GetFloat64("fusion.process-noise")
	cfg.ForwardRaw = viper.GetBool("fusion.forward-raw")
	cfg.MaxReorder = viper.GetDuration("fusion.max-reorder")
	cfg.InitialSpeedSigma = viper.GetFloat64("fusion.initial-speed-sigma")
	cfg.DiagnosticsLogInterval = viper.GetDuration("fusion.diagnostics-interval")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fusion config: %w", err)
	}
	return cfg, nil
}

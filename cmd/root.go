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
	"log/slog"
	"os"
	"strings"

	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var optVerbosity int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kalmanlocation",
	Short: "Fuse satellite and network location fixes with a Kalman filter",
	Long: `Fuses two position sensors, a precise but intermittent satellite receiver
and a coarse but available network locator, into one smoothed estimate
published at a fixed rate.

Commands:

  replay     Run a recorded session (NDJSON records) through the filter.
  simulate   Fuse two simulated sensors in real time.
  serve      Fuse sensors pushed over HTTP and serve the estimates.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s.yaml)", params.ConfigFileName))
	pFlags.IntVar(&optVerbosity, "verbosity", int(slog.LevelInfo), "log level: -4 debug, 0 info, 4 warn, 8 error")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(params.ConfigFileName)
	}

	viper.SetEnvPrefix(params.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		slog.Info("Using config file", "file", viper.ConfigFileUsed())
	}
}

// setDefaultSlog installs a text logger on stderr at the requested verbosity.
// Stdout is left for data.
func setDefaultSlog(cmd *cobra.Command, args []string) {
	level := slog.Level(optVerbosity)
	if viper.IsSet("verbosity") && !cmd.Flags().Changed("verbosity") {
		level = slog.Level(viper.GetInt("verbosity"))
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
	slog.Debug("Command", "name", cmd.Name(), "args", args)
}

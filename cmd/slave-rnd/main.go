// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command slave-rnd emulates a Modbus slave that answers every read request
// with freshly generated pseudo-random data and accepts every write without
// recording it.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	modbus "github.com/edgeo-scada/modbus-slave"
	"github.com/edgeo-scada/modbus-slave/internal/cliutil"
)

var (
	logLevel string
	seed     int64
	unitID   uint8
)

var rootCmd = &cobra.Command{
	Use:   "slave-rnd <transport> [<transport> ...]",
	Short: "Run a Modbus slave that answers with random data",
	Long: `slave-rnd starts one or more Modbus transports against a single
in-process backend that answers every read with pseudo-random data and
discards every write.

Each <transport> is one of:

  tcp:HOST:PORT
  udp:HOST:PORT
  serial:PATH:BAUD-BITS-PARITY-STOPBITS

Example:

  slave-rnd tcp:0.0.0.0:502 serial:/dev/ttyUSB0:9600-8-N-1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSlaveRND,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 1, "RNG seed for reproducible responses")
	rootCmd.PersistentFlags().Uint8Var(&unitID, "unit-id", 1, "slave/unit id answered on serial transports")

	viper.SetEnvPrefix("SLAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("seed", rootCmd.PersistentFlags().Lookup("seed"))
}

func runSlaveRND(cmd *cobra.Command, args []string) error {
	level := cliutil.ParseLevel(viper.GetString("log-level"))
	logger := cliutil.NewLogger(level)

	backend := modbus.NewRandomBackend(viper.GetInt64("seed"))
	dispatcher := modbus.NewDispatcher(backend, logger)
	launcher := modbus.NewLauncher(dispatcher, modbus.UnitID(unitID), logger, modbus.WithServerLogger(logger))

	for _, descriptor := range args {
		if err := launcher.Add(descriptor); err != nil {
			return fmt.Errorf("starting transport %q: %w", descriptor, err)
		}
	}

	launcher.WaitForSignal()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

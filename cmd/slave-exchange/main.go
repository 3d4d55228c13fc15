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

// Command slave-exchange emulates a Modbus slave backed by four shared
// in-memory tables, letting independent masters observe each other's
// writes through the same process.
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
	unitID   uint8
)

var rootCmd = &cobra.Command{
	Use:   "slave-exchange <transport> [<transport> ...]",
	Short: "Run a Modbus slave backed by a shared in-memory register map",
	Long: `slave-exchange starts one or more Modbus transports against a
single shared backend with four global tables (coils, discrete inputs,
holding registers, input registers). Writes made through one transport or
connection are visible to reads made through any other.

Each <transport> is one of:

  tcp:HOST:PORT
  udp:HOST:PORT
  serial:PATH:BAUD-BITS-PARITY-STOPBITS

Example:

  slave-exchange tcp:0.0.0.0:502 udp:0.0.0.0:502`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSlaveExchange,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().Uint8Var(&unitID, "unit-id", 1, "slave/unit id answered on serial transports")

	viper.SetEnvPrefix("SLAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func runSlaveExchange(cmd *cobra.Command, args []string) error {
	level := cliutil.ParseLevel(viper.GetString("log-level"))
	logger := cliutil.NewLogger(level)

	backend := modbus.NewExchangeBackend()
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

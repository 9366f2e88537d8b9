// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 brickd contributors

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	spiDevicePath  string
	spiSpeedHz     int
	csPins         []int
	spiAddressMode string

	enableRS485 bool
	rs485Port   string
	rs485Baud   int

	enableTrace bool
	traceAddr   string

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "brickd",
	Short: "Brick daemon: bridges SPI and RS485 brick stacks to network clients",
	Long: `brickd routes packets between brick devices attached over SPI or RS485
and the rest of the system. It owns enumeration, polling, and framing for
each transport and exposes a single UID-addressed dispatch point.`,
	Version:           "2.0.0",
	PersistentPreRunE: applyEnvOverrides,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&spiDevicePath, "spi-device", "/dev/spidev0.0", "SPI device path")
	rootCmd.PersistentFlags().IntVar(&spiSpeedHz, "spi-speed", 8_000_000, "SPI clock speed in Hz")
	rootCmd.PersistentFlags().IntSliceVar(&csPins, "cs-pins", []int{17, 27, 22, 23, 24, 25, 5, 6}, "GPIO line numbers for the eight slave-select pins, in stack-address order")
	rootCmd.PersistentFlags().StringVar(&spiAddressMode, "spi-address-mode", "master", `SPI bus address mode: "master" or "slave" (slave is not supported)`)

	rootCmd.PersistentFlags().BoolVar(&enableRS485, "rs485", false, "enable the RS485 stack")
	rootCmd.PersistentFlags().StringVar(&rs485Port, "rs485-port", "/dev/ttyAMA0", "RS485 serial port device")
	rootCmd.PersistentFlags().IntVar(&rs485Baud, "rs485-baud", 115200, "RS485 baud rate")

	rootCmd.PersistentFlags().BoolVar(&enableTrace, "trace", false, "enable the debug websocket trace endpoint")
	rootCmd.PersistentFlags().StringVar(&traceAddr, "trace-addr", "127.0.0.1:4223", "listen address for the trace endpoint")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// applyEnvOverrides lets BRICKD_* environment variables stand in for flags
// that were never explicitly set on the command line, since there is no
// file-based configuration format in scope.
func applyEnvOverrides(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	for _, mapping := range []struct {
		env  string
		flag string
	}{
		{"BRICKD_SPI_DEVICE", "spi-device"},
		{"BRICKD_RS485_PORT", "rs485-port"},
		{"BRICKD_TRACE_ADDR", "trace-addr"},
	} {
		if flags.Changed(mapping.flag) {
			continue
		}
		if v := os.Getenv(mapping.env); v != "" {
			if err := flags.Set(mapping.flag, v); err != nil {
				return fmt.Errorf("applying %s: %w", mapping.env, err)
			}
		}
	}
	if !flags.Changed("verbose") {
		if v := os.Getenv("BRICKD_LOG_LEVEL"); v == "debug" {
			verbose = true
		}
	}
	return nil
}

// newLogger builds the zap logger every command shares, honoring -v.
func newLogger() (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log.Sugar(), nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

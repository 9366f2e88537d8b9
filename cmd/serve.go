// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 brickd contributors

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Christoph-Caina/brickd/internal/gpio"
	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"github.com/Christoph-Caina/brickd/pkg/observability"
	"github.com/Christoph-Caina/brickd/pkg/rs485stack"
	"github.com/Christoph-Caina/brickd/pkg/router"
	"github.com/Christoph-Caina/brickd/pkg/spistack"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the brick daemon: enumerate and poll every configured stack",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	r := router.New(log)

	var hub *observability.Hub
	if enableTrace {
		hub = observability.NewHub(log)
		mux := http.NewServeMux()
		mux.Handle("/trace", hub)
		srv := &http.Server{Addr: traceAddr, Handler: mux}
		go func() {
			log.Infow("trace endpoint listening", "addr", traceAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("trace endpoint failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	makeInbound := func(stackName string) router.InboundHandler {
		return func(p brickproto.Packet) {
			log.Debugw("inbound packet", "stack", stackName, "uid", p.UID, "function", p.FunctionID)
			if hub != nil {
				hub.Publish(observability.DirectionInbound, stackName, p, time.Now())
			}
			r.DispatchInbound(p)
		}
	}

	spiStack, spiEngine, err := openSPIStack(log)
	switch {
	case err == nil:
		r.Register(spiStack)
		if err := spiEngine.Start(cmd.Context(), spistack.InboundHandler(makeInbound("spi"))); err != nil {
			return err
		}
		defer spiEngine.Close()
	case errors.Is(err, spistack.ErrNoSlaves):
		log.Infow("continuing without an SPI stack", "reason", err)
	default:
		return err
	}

	if enableRS485 {
		rs485, err := rs485stack.Open("rs485", rs485stack.Config{Port: rs485Port, BaudRate: rs485Baud}, log)
		if err != nil {
			return err
		}
		r.Register(rs485)
		if err := rs485.Start(cmd.Context(), rs485stack.InboundHandler(makeInbound("rs485"))); err != nil {
			return err
		}
		defer rs485.Close()
	}

	log.Infow("brickd running")
	waitForShutdownSignal(log)
	return nil
}

// openSPIStack wires together a device, GPIO select lines, slave table,
// and engine, then runs enumeration. It returns spistack.ErrNoSlaves
// (non-fatal) when no slave answers. On any error, ErrNoSlaves included,
// it unwinds whatever it already opened (select lines, then the device)
// before returning, so no fd or sysfs pin leaks past a failed open.
func openSPIStack(log *zap.SugaredLogger) (*spistack.Stack, *spistack.Engine, error) {
	mode, err := spistack.ParseAddressMode(spiAddressMode)
	if err != nil {
		return nil, nil, err
	}

	cfg := spistack.DefaultDeviceConfig()
	cfg.Path = spiDevicePath
	cfg.SpeedHz = spiSpeedHz

	device, err := spistack.OpenDevice(cfg)
	if err != nil {
		return nil, nil, err
	}

	var lines [brickproto.MaxSlaves]spistack.SelectLine
	for i := 0; i < brickproto.MaxSlaves; i++ {
		pin := csPins[i%len(csPins)]
		line, err := gpio.OpenSysfs(pin)
		if err != nil {
			closeSelectLines(log, lines[:i])
			device.Close()
			return nil, nil, err
		}
		lines[i] = spistack.NewGPIOSelectLine(line)
	}

	table := spistack.NewSlaveTable(lines)
	engine := spistack.NewEngine(device, table, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Open(ctx, mode); err != nil {
		if closeErr := engine.Close(); closeErr != nil {
			log.Warnw("failed to release SPI hardware after a failed open", "error", closeErr)
		}
		return nil, nil, err
	}

	return spistack.NewStack("spi", engine), engine, nil
}

// closeSelectLines releases every already-opened select line, used when
// an error part-way through openSPIStack's GPIO setup loop aborts before
// an Engine exists to own their lifecycle.
func closeSelectLines(log *zap.SugaredLogger, lines []spistack.SelectLine) {
	for _, l := range lines {
		if l == nil {
			continue
		}
		l.Deselect()
		if err := l.Close(); err != nil {
			log.Warnw("failed to release select line during unwind", "error", err)
		}
	}
}

func waitForShutdownSignal(log *zap.SugaredLogger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Infow("shutdown signal received")
}

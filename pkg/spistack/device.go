// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import (
	"fmt"

	"github.com/ecc1/spi"
)

// Device is the narrow SPI transport the engine consumes: one full-duplex
// transfer, mutating buf in place, exactly the ioctl(SPI_IOC_MESSAGE(1))
// shape the wire protocol assumes. Tests substitute a fake implementation
// instead of opening real hardware.
type Device interface {
	Transfer(buf []byte) error
	Close() error
}

// ModeCPOL is the Linux SPI_CPOL mode bit (clock idles high, CPHA 0):
// the mode the original hardware is configured with. MSB-first and
// 8 bits/word are the ecc1/spi package's defaults and are not
// independently configurable through its Open call.
const ModeCPOL = 2

// DeviceConfig configures the real SPI device.
type DeviceConfig struct {
	Path    string // e.g. /dev/spidev0.0
	SpeedHz int
	Mode    int
}

// DefaultDeviceConfig matches §6: CPOL mode, MSB-first, 8 bits/word, 8 MHz.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Path:    "/dev/spidev0.0",
		SpeedHz: 8_000_000,
		Mode:    ModeCPOL,
	}
}

type realDevice struct {
	dev *spi.Device
}

// OpenDevice opens the real SPI device at cfg.Path with the given
// speed/mode. ioctl failures during open or configuration are fatal to
// init, per §4.3.
func OpenDevice(cfg DeviceConfig) (Device, error) {
	dev, err := spi.Open(cfg.Path, cfg.SpeedHz, cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("spistack: open %s: %w", cfg.Path, err)
	}
	return &realDevice{dev: dev}, nil
}

// Transfer performs one full-duplex exchange, mutating buf in place.
func (d *realDevice) Transfer(buf []byte) error {
	if err := d.dev.Transfer(buf, buf); err != nil {
		return fmt.Errorf("spistack: transfer: %w", err)
	}
	return nil
}

func (d *realDevice) Close() error {
	return d.dev.Close()
}

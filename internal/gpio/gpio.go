// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

// Package gpio provides the narrow output-pin abstraction the SPI stack
// needs for its eight slave-select lines.
//
// No third-party GPIO library in this codebase's retrieval pack targets
// host Linux (the only GPIO-shaped code available is TinyGo board-support
// code, which does not run on the host this daemon runs on), so this is
// deliberately a small standard-library implementation backed by the
// Linux sysfs GPIO class rather than a direct register-level driver.
package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Line is an output-only GPIO pin. SetHigh/SetLow are the only operations
// the SPI stack's select-line handling needs.
type Line interface {
	SetHigh() error
	SetLow() error
	Close() error
}

const sysfsRoot = "/sys/class/gpio"

// sysfsLine drives one pin through /sys/class/gpio/gpioN/{direction,value},
// exporting the pin on first use and unexporting it on Close.
type sysfsLine struct {
	number   int
	valuePath string
	exported bool
}

// OpenSysfs exports pin number and configures it as an output, returning
// a Line that drives it. The caller must call Close when the pin is no
// longer needed, to unexport it.
func OpenSysfs(number int) (Line, error) {
	gpioDir := filepath.Join(sysfsRoot, "gpio"+strconv.Itoa(number))

	if _, err := os.Stat(gpioDir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(sysfsRoot, "export"), []byte(strconv.Itoa(number)), 0644); err != nil {
			return nil, fmt.Errorf("gpio: export pin %d: %w", number, err)
		}
	}

	if err := os.WriteFile(filepath.Join(gpioDir, "direction"), []byte("out"), 0644); err != nil {
		return nil, fmt.Errorf("gpio: set pin %d direction: %w", number, err)
	}

	return &sysfsLine{
		number:    number,
		valuePath: filepath.Join(gpioDir, "value"),
		exported:  true,
	}, nil
}

func (l *sysfsLine) SetHigh() error { return l.write("1") }
func (l *sysfsLine) SetLow() error  { return l.write("0") }

func (l *sysfsLine) write(v string) error {
	if err := os.WriteFile(l.valuePath, []byte(v), 0644); err != nil {
		return fmt.Errorf("gpio: write pin %d: %w", l.number, err)
	}
	return nil
}

func (l *sysfsLine) Close() error {
	if !l.exported {
		return nil
	}
	l.exported = false
	if err := os.WriteFile(filepath.Join(sysfsRoot, "unexport"), []byte(strconv.Itoa(l.number)), 0644); err != nil {
		return fmt.Errorf("gpio: unexport pin %d: %w", l.number, err)
	}
	return nil
}

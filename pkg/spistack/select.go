// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import "github.com/Christoph-Caina/brickd/internal/gpio"

// SelectLine is a slave-select line for one stack address. Selecting a
// slave drives its line low; deselecting drives it high, matching the
// original's GPIO clear-to-select / set-to-deselect convention. Close
// releases the underlying pin; callers must call it exactly once, when
// the line is no longer needed.
type SelectLine interface {
	Select() error
	Deselect() error
	Close() error
}

type gpioSelectLine struct {
	line gpio.Line
}

// NewGPIOSelectLine wraps a gpio.Line as a SelectLine.
func NewGPIOSelectLine(line gpio.Line) SelectLine {
	return &gpioSelectLine{line: line}
}

func (g *gpioSelectLine) Select() error   { return g.line.SetLow() }
func (g *gpioSelectLine) Deselect() error { return g.line.SetHigh() }
func (g *gpioSelectLine) Close() error    { return g.line.Close() }

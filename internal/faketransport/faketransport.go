// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

// Package faketransport provides an in-memory stand-in for the SPI
// hardware transport, used by pkg/spistack's tests in place of a real
// /dev/spidev device.
package faketransport

import (
	"fmt"
	"sync"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
)

// SlaveScript is a scripted fake slave: a fixed 84-byte reply to return
// the next time it is selected, or nil to leave the bus floating (all
// zeros), which decodes as ErrReadNone.
type SlaveScript struct {
	mu     sync.Mutex
	Replies [][]byte // consumed in order; once exhausted, floats
	cursor  int
	Fail    bool // if true, Transfer returns an error instead
}

// Reply enqueues one pre-built 84-byte frame as the slave's next answer.
func (s *SlaveScript) Reply(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.Replies = append(s.Replies, cp)
}

func (s *SlaveScript) next() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.Replies) {
		return nil
	}
	r := s.Replies[s.cursor]
	s.cursor++
	return r
}

// Device is a fake SPI bus with one SlaveScript per chip-select line.
// Transfer picks the script for the currently selected line, fills buf
// with its next reply (or zeros, if the script has none queued), and
// records every transaction for assertions.
type Device struct {
	mu      sync.Mutex
	scripts map[int]*SlaveScript
	selected int
	closed  bool

	Transactions [][]byte // copies of every tx buffer Transfer received
}

// NewDevice creates a fake bus with n chip-select lines, each with an
// empty (floating) script.
func NewDevice(n int) *Device {
	d := &Device{scripts: make(map[int]*SlaveScript, n)}
	for i := 0; i < n; i++ {
		d.scripts[i] = &SlaveScript{}
	}
	return d
}

// Select returns the SelectLine implementation for line i, to be handed
// to a spistack.Slave.
func (d *Device) Select(i int) *Line {
	return &Line{device: d, index: i}
}

// Script returns the scripted slave behind line i, for queuing replies.
func (d *Device) Script(i int) *SlaveScript {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scripts[i]
}

func (d *Device) setSelected(i int) {
	d.mu.Lock()
	d.selected = i
	d.mu.Unlock()
}

// Transfer implements spistack.Device.
func (d *Device) Transfer(buf []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("faketransport: device closed")
	}
	script := d.scripts[d.selected]
	tx := make([]byte, len(buf))
	copy(tx, buf)
	d.Transactions = append(d.Transactions, tx)
	d.mu.Unlock()

	if script.Fail {
		return fmt.Errorf("faketransport: simulated transfer failure")
	}

	reply := script.next()
	for i := range buf {
		buf[i] = 0
	}
	if reply != nil {
		copy(buf, reply)
	}
	return nil
}

// Close implements spistack.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Line is the SelectLine for one chip-select on a fake Device.
type Line struct {
	device *Device
	index  int
}

func (l *Line) Select() error {
	l.device.setSelected(l.index)
	return nil
}

func (l *Line) Deselect() error { return nil }

func (l *Line) Close() error { return nil }

// FrameEmpty returns a ready-made 84-byte empty/keep-alive frame.
func FrameEmpty() []byte {
	buf := make([]byte, brickproto.FrameSize)
	_ = brickproto.EncodeFrame(buf, nil, false)
	return buf
}

// FramePacket returns a ready-made 84-byte frame carrying p.
func FramePacket(p brickproto.Packet) []byte {
	buf := make([]byte, brickproto.FrameSize)
	if err := brickproto.EncodeFrame(buf, &p, false); err != nil {
		panic(fmt.Sprintf("faketransport: %v", err))
	}
	return buf
}

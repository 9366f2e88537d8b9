// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

// Package rs485stack implements the RS485 transport as a router.Stack.
// Unlike the SPI stack, RS485 is a simple shared serial line: one
// goroutine writes queued packets and another reads replies off the same
// port. Packets travel bare: the packet header's declared length is also
// the frame length on this transport, with no Pearson-hashed outer
// envelope such as the SPI frame.
package rs485stack

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"github.com/Christoph-Caina/brickd/pkg/router"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// InboundHandler has the same signature as router.InboundHandler but is a
// distinct named type, matching the convention used by pkg/spistack;
// callers holding a router.InboundHandler convert it explicitly.
type InboundHandler func(brickproto.Packet)

// Config describes the serial port the stack owns.
type Config struct {
	Port     string
	BaudRate int
}

// DefaultConfig matches a typical Tinkerforge RS485 extension: 115200
// baud, 8N1.
func DefaultConfig() Config {
	return Config{Port: "/dev/ttyAMA0", BaudRate: 115200}
}

// writeQueueCapacity matches stack.c's MAX_QUEUED_WRITES: past this many
// pending writes, the oldest queued packets are dropped to make room
// rather than blocking the caller or growing without bound.
const writeQueueCapacity = 256

// Stack is a router.Stack backed by a single RS485 serial port. It is a
// bus stub: every packet is written to the wire and any reply is handed
// to the inbound callback, but (unlike pkg/spistack) there is no slave
// enumeration — RS485 extensions are configured by address out of band,
// and OwnsUID here answers false for every non-broadcast UID until a reply
// naming it has been read off the wire, after which the UID is remembered.
type Stack struct {
	name string
	log  *zap.SugaredLogger

	port serial.Port

	mu    sync.RWMutex
	known map[uint32]bool

	queue  *router.BoundedQueue[brickproto.Packet]
	notify chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the serial port and returns a Stack ready for Start.
func Open(name string, cfg Config, log *zap.SugaredLogger) (*Stack, error) {
	mode := &serial.Mode{BaudRate: cfg.BaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("rs485stack: open %s: %w", cfg.Port, err)
	}
	return &Stack{
		name:   name,
		log:    log,
		port:   port,
		known:  make(map[uint32]bool),
		queue:  router.NewBoundedQueue[brickproto.Packet](writeQueueCapacity),
		notify: make(chan struct{}, 1),
	}, nil
}

func (s *Stack) Name() string { return s.name }

// OwnsUID reports whether this stack has seen a reply from uid.
// Broadcast traffic (UID 0) is always accepted for write, per §4.4.
func (s *Stack) OwnsUID(uid uint32) bool {
	if uid == brickproto.UIDBroadcast {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known[uid]
}

// DispatchRequest queues packet for the write goroutine. It never blocks
// on I/O itself, consistent with router.Stack's contract; past
// writeQueueCapacity pending writes, the oldest queued packet is dropped
// to make room rather than rejecting the new one.
func (s *Stack) DispatchRequest(packet brickproto.Packet) error {
	if dropped := s.queue.Push(packet.Clone()); dropped > 0 {
		s.log.Warnw("rs485 write queue full, dropped oldest queued packets", "dropped", dropped)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Start launches the read and write goroutines. inbound receives every
// packet read off the wire.
func (s *Stack) Start(ctx context.Context, inbound InboundHandler) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.writeLoop(runCtx)
	go s.readLoop(runCtx, inbound)
	return nil
}

// Close stops both goroutines and closes the port.
func (s *Stack) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.port.Close()
}

func (s *Stack) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		for {
			p, ok := s.queue.Peek()
			if !ok {
				break
			}
			buf, err := p.Encode()
			if err != nil {
				s.log.Errorw("dropping oversize outbound packet", "uid", p.UID, "error", err)
				s.queue.Pop()
				continue
			}
			if _, err := s.port.Write(buf); err != nil {
				s.log.Errorw("rs485 write failed", "error", err)
			}
			s.queue.Pop()
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stack) readLoop(ctx context.Context, inbound InboundHandler) {
	defer s.wg.Done()

	r := bufio.NewReaderSize(s.port, brickproto.MaxPacketSize)
	header := make([]byte, brickproto.HeaderSize)

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := readFull(r, header); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Errorw("rs485 read failed", "error", err)
			continue
		}

		length := header[4]
		buf := make([]byte, length)
		copy(buf, header)
		if int(length) > brickproto.HeaderSize {
			if _, err := readFull(r, buf[brickproto.HeaderSize:]); err != nil {
				s.log.Errorw("rs485 read failed", "error", err)
				continue
			}
		}

		p, err := brickproto.DecodePacket(buf)
		if err != nil {
			s.log.Errorw("rs485 decode failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.known[p.UID] = true
		s.mu.Unlock()

		if inbound != nil {
			inbound(p)
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

var _ router.Stack = (*Stack)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"go.uber.org/zap"
)

// DefaultTickInterval is the steady-state loop's polling cadence, driven
// by an absolute-time sleep against a monotonic clock so the loop catches
// up rather than drifting when a tick runs long.
const DefaultTickInterval = 500 * time.Microsecond

// EnumerateTries and EnumerateRetryDelay bound each of enumeration's two
// retry budgets (transmit, then receive) per stack address.
const (
	EnumerateTries      = 10
	EnumerateRetryDelay = 50 * time.Millisecond
)

// InboundHandler receives one decoded packet forwarded across the event
// bridge. It is called from the forwarding goroutine, never from the SPI
// tick loop itself, and is expected to return quickly.
type InboundHandler func(brickproto.Packet)

// AddressMode selects which role this host's SPI bus plays. Only master
// mode is implemented.
type AddressMode int

const (
	// AddressModeMaster is the only supported mode: this host drives the
	// clock and chip-select lines and initiates every transfer.
	AddressModeMaster AddressMode = iota
	// AddressModeSlave asks the engine to configure the bus as a slave.
	// The original source aborts the whole extension in this case with
	// "only master mode supported"; whether this is policy or an
	// unresolved TODO is unclear upstream, so the restriction is
	// preserved literally rather than guessed at.
	AddressModeSlave
)

// ParseAddressMode maps a configuration string ("master", "slave", or
// empty for the default) to an AddressMode.
func ParseAddressMode(s string) (AddressMode, error) {
	switch s {
	case "", "master":
		return AddressModeMaster, nil
	case "slave":
		return AddressModeSlave, nil
	default:
		return 0, fmt.Errorf("spistack: unknown address mode %q", s)
	}
}

// Engine owns the SPI device, the slave table, the outbound queue, and
// the event-bridge channel. It runs two goroutines once started: the tick
// loop (the "SPI thread") and a forwarder that drains the bridge into the
// inbound handler (the event-loop side of the bridge).
type Engine struct {
	log    *zap.SugaredLogger
	device Device
	table  *SlaveTable
	queue  *outboundQueue
	bridge chan brickproto.Packet

	tickInterval   time.Duration
	enumerateTries int
	enumerateDelay time.Duration

	cycle int // round-robin cursor; touched only by the tick loop goroutine

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	inbound InboundHandler
}

// NewEngine creates an engine over device and table. The bridge channel
// has capacity one: the re-expression of the original's single packet
// slot plus binary semaphore as a bounded Go channel (see SPEC_FULL.md
// §4.5's design note).
func NewEngine(device Device, table *SlaveTable, log *zap.SugaredLogger) *Engine {
	return &Engine{
		log:            log,
		device:         device,
		table:          table,
		queue:          newOutboundQueue(0),
		bridge:         make(chan brickproto.Packet, 1),
		tickInterval:   DefaultTickInterval,
		enumerateTries: EnumerateTries,
		enumerateDelay: EnumerateRetryDelay,
	}
}

// SetQueueCapacity turns on the drop-oldest overflow policy at n entries,
// overriding the unbounded default (see §12). Must be called before
// Start; it replaces the queue outright, so anything already enqueued is
// lost.
func (e *Engine) SetQueueCapacity(n int) {
	e.queue = newOutboundQueue(n)
}

// Open runs the enumeration handshake described in §4.3 with the bus
// configured for mode. It returns ErrSlaveModeUnsupported immediately,
// without touching the device, when mode is AddressModeSlave. Otherwise
// it returns ErrNoSlaves (not a fatal error — the caller logs it and the
// rest of the daemon continues serving other transports) when nothing
// answers at stack address 0.
func (e *Engine) Open(ctx context.Context, mode AddressMode) error {
	if mode == AddressModeSlave {
		return ErrSlaveModeUnsupported
	}
	if err := e.enumerate(ctx); err != nil {
		return err
	}
	if e.table.SlaveNum() == 0 {
		e.log.Infow("no SPI slaves, shutting SPI stack thread down")
		return ErrNoSlaves
	}
	return nil
}

// Start launches the tick loop and the bridge forwarder. inbound receives
// every packet the tick loop decodes, in decode order.
func (e *Engine) Start(ctx context.Context, inbound InboundHandler) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.running {
		e.mu.Unlock()
		return errors.New("spistack: engine already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.inbound = inbound
	e.mu.Unlock()

	e.wg.Add(2)
	go e.runTickLoop(runCtx)
	go e.runForwarder(runCtx)
	return nil
}

// Close stops both goroutines and releases hardware resources in the
// exact reverse of Open/Start's phase order, so neither goroutine ever
// observes a closed device fd (see SPEC_FULL.md §5's shutdown ordering
// fix).
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	wasRunning := e.running
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if wasRunning {
		if cancel != nil {
			cancel()
		}
		e.wg.Wait()
	}

	var firstErr error
	for i := 0; i < brickproto.MaxSlaves; i++ {
		s := e.table.Get(i)
		if s == nil || s.SelectLine == nil {
			continue
		}
		if err := s.SelectLine.Deselect(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("spistack: deselect slave %d: %w", i, err)
		}
		if err := s.SelectLine.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("spistack: release select line %d: %w", i, err)
		}
	}
	if err := e.device.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("spistack: close device: %w", err)
	}
	return firstErr
}

// Enqueue pushes packet onto the outbound queue for delivery to the slave
// at slaveIndex. Oversize packets are rejected immediately rather than
// enqueued, per §7's "oversize outbound packet" handling.
func (e *Engine) Enqueue(slaveIndex int, packet brickproto.Packet) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrEngineClosed
	}

	if brickproto.HeaderSize+len(packet.Payload) > brickproto.MaxPacketSize {
		e.log.Errorw("dropping oversize outbound packet", "uid", packet.UID, "length", brickproto.HeaderSize+len(packet.Payload))
		return brickproto.ErrOversize
	}
	if dropped := e.queue.push(queuedEntry{slaveIndex: slaveIndex, packet: packet}); dropped > 0 {
		e.log.Warnw("outbound queue capacity exceeded, dropped oldest entries", "dropped", dropped)
	}
	return nil
}

// QueueLen reports the outbound queue's current depth, for observability.
func (e *Engine) QueueLen() int {
	return e.queue.len()
}

// Table exposes the slave table for observability and for the Stack
// wrapper's UID lookups.
func (e *Engine) Table() *SlaveTable {
	return e.table
}

func (e *Engine) runTickLoop(ctx context.Context) {
	defer e.wg.Done()

	deadline := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		e.tick(ctx)

		deadline = deadline.Add(e.tickInterval)
		sleepUntil(ctx, deadline)
	}
}

func (e *Engine) runForwarder(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case p := <-e.bridge:
			if e.inbound != nil {
				e.inbound(p)
			}
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one iteration of the steady-state loop: peek the queue, pick
// a target slave (queued send wins over round-robin poll), transceive,
// and apply the frame-level failure semantics from §4.3/§7.
func (e *Engine) tick(ctx context.Context) {
	entry, hasQueued := e.queue.peek()

	var slave *Slave
	var packet *brickproto.Packet

	if hasQueued {
		slave = e.table.Get(entry.slaveIndex)
		pkt := entry.packet
		packet = &pkt
	} else {
		n := e.table.SlaveNum()
		if n == 0 {
			return
		}
		e.cycle = (e.cycle + 1) % n
		slave = e.table.Get(e.cycle)
	}

	if slave == nil || slave.Status == Absent {
		if hasQueued {
			e.log.Errorw("dropping queued packet, target slave absent", "slave", entry.slaveIndex)
			e.queue.pop()
		}
		return
	}

	treatAsBusy := slave.Status == AvailableBusy
	result := e.transceive(slave, packet, treatAsBusy)

	if hasQueued {
		switch {
		case result.sendErr != nil:
			e.queue.pop() // SEND_ERROR: drop, don't retry
		case result.sent:
			e.queue.pop() // DATA_SENT
		default:
			// SEND_BUSY: leave the head in place for retry next tick.
		}
	}

	if result.received != nil {
		e.deliver(ctx, *result.received)
	}
}

// deliver hands a decoded packet across the event bridge. The channel has
// capacity one: the send returns as soon as the packet is buffered, and
// blocks only while the slot still holds a packet the forwarder goroutine
// has not yet taken. The forwarder may be running the inbound handler on
// an earlier packet meanwhile, so up to two received packets can be
// between the tick loop and the handler at once; order is preserved.
func (e *Engine) deliver(ctx context.Context, p brickproto.Packet) {
	select {
	case e.bridge <- p:
	case <-ctx.Done():
	}
}

type transceiveResult struct {
	sent     bool
	received *brickproto.Packet
	sendErr  error
	readErr  error
}

// transceive performs one full 84-byte SPI transaction against slave.
// packet may be nil (a round-robin poll). treatAsBusy forces an empty
// frame even when packet is non-nil; the tick loop sets it when the
// slave's last reply reported busy, while enumeration passes false so its
// probe is sent regardless of the slave's recorded status.
//
// A real send always marks the slave AvailableBusy afterward regardless
// of the busy bit the slave reports this time, matching the original's
// rule to avoid overloading the slave's receive buffer right after
// handing it a request.
func (e *Engine) transceive(slave *Slave, packet *brickproto.Packet, treatAsBusy bool) transceiveResult {
	sendAttempted := packet != nil && !treatAsBusy

	frame := make([]byte, brickproto.FrameSize)
	if err := brickproto.EncodeFrame(frame, packet, treatAsBusy); err != nil {
		e.log.Errorw("encode failed, dropping outbound packet", "slave", slave.StackAddress, "error", err)
		e.table.MarkBusy(slave.StackAddress, true)
		return transceiveResult{sendErr: err}
	}

	if err := slave.SelectLine.Select(); err != nil {
		e.table.MarkBusy(slave.StackAddress, true)
		return transceiveResult{sendErr: fmt.Errorf("select slave %d: %w", slave.StackAddress, err)}
	}
	transferErr := e.device.Transfer(frame)
	if err := slave.SelectLine.Deselect(); err != nil {
		e.log.Warnw("deselect failed", "slave", slave.StackAddress, "error", err)
	}
	if transferErr != nil {
		e.log.Errorw("spi transfer failed", "slave", slave.StackAddress, "error", transferErr)
		e.table.MarkBusy(slave.StackAddress, true)
		return transceiveResult{sendErr: transferErr}
	}

	p, busy, decodeErr := brickproto.DecodeFrame(frame)
	result := transceiveResult{sent: sendAttempted}

	switch {
	case decodeErr == nil:
		result.received = &p
	case errors.Is(decodeErr, brickproto.ErrReadNone):
		// quiet slave: normal, no action.
	default:
		e.log.Errorw("read error from slave", "slave", slave.StackAddress, "error", decodeErr)
		result.readErr = decodeErr
	}

	switch {
	case sendAttempted:
		e.table.MarkBusy(slave.StackAddress, true)
	case result.readErr == nil && slave.Status != Absent:
		e.table.MarkBusy(slave.StackAddress, busy)
	}
	if result.sendErr != nil || result.readErr != nil {
		e.table.MarkBusy(slave.StackAddress, true)
	}

	return result
}

// enumerate walks stack_address 0..7 as described in §4.3, stopping at
// the first address that exhausts either retry budget. There are no
// holes: the first absent slave ends the stack.
func (e *Engine) enumerate(ctx context.Context) error {
	for addr := 0; addr < brickproto.MaxSlaves; addr++ {
		slave := e.table.Get(addr)
		slave.Status = Available

		req := brickproto.NewStackEnumerateRequest()
		sent := false
		for try := 0; try < e.enumerateTries; try++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			result := e.transceive(slave, &req, false)
			if result.sendErr == nil && result.sent {
				sent = true
				break
			}
			sleepFor(ctx, e.enumerateDelay)
		}
		if !sent {
			slave.Status = Absent
			e.table.SetSlaveNum(addr)
			e.log.Debugw("enumeration stopped, no holes", "stack_address", addr, "reason", "send budget exhausted")
			return nil
		}

		var resp brickproto.Packet
		received := false
		for try := 0; try < e.enumerateTries; try++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			sleepFor(ctx, e.enumerateDelay)
			result := e.transceive(slave, nil, false)
			if result.readErr == nil && result.received != nil {
				resp = *result.received
				received = true
				break
			}
		}
		if !received {
			slave.Status = Absent
			e.table.SetSlaveNum(addr)
			e.log.Debugw("enumeration stopped, no holes", "stack_address", addr, "reason", "receive budget exhausted")
			return nil
		}

		uids := brickproto.ParseStackEnumerateUIDs(resp.Payload)
		e.table.RecordUIDs(addr, uids)
		slave.Status = Available
		e.log.Infow("slave enumerated", "stack_address", addr, "uids", uids)
	}

	e.table.SetSlaveNum(brickproto.MaxSlaves)
	return nil
}

func sleepUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	sleepFor(ctx, d)
}

func sleepFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

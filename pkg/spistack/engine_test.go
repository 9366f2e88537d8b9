// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import (
	"context"
	"testing"
	"time"

	"github.com/Christoph-Caina/brickd/internal/faketransport"
	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func fastEngine(dev Device, table *SlaveTable) *Engine {
	e := NewEngine(dev, table, testLogger())
	e.tickInterval = time.Microsecond
	e.enumerateTries = 3
	e.enumerateDelay = time.Millisecond
	return e
}

func tableFromDevice(dev *faketransport.Device) *SlaveTable {
	var lines [brickproto.MaxSlaves]SelectLine
	for i := range lines {
		lines[i] = dev.Select(i)
	}
	return NewSlaveTable(lines)
}

// TestEnumerateDiscoversContiguousSlaves exercises §4.3's walk: two
// present slaves answering, then a floating address that ends the stack
// with no holes.
func TestEnumerateDiscoversContiguousSlaves(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	e := fastEngine(dev, table)

	resp0 := brickproto.EncodeStackEnumerateResponse(0, []uint32{100})
	resp1 := brickproto.EncodeStackEnumerateResponse(0, []uint32{200, 201})

	// First transfer per address is the send-phase probe (answered with an
	// empty keep-alive frame); the second is the first receive-phase poll
	// (answers with the UID list).
	dev.Script(0).Reply(faketransport.FrameEmpty())
	dev.Script(0).Reply(faketransport.FramePacket(resp0))
	dev.Script(1).Reply(faketransport.FrameEmpty())
	dev.Script(1).Reply(faketransport.FramePacket(resp1))
	// address 2 and beyond: left floating.

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Open(ctx, AddressModeMaster); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := table.SlaveNum(); got != 2 {
		t.Fatalf("SlaveNum() = %d, want 2", got)
	}
	if table.Get(0).Status != Available {
		t.Fatalf("slave 0 status = %v, want Available", table.Get(0).Status)
	}
	if got := table.Get(0).UIDs; len(got) != 1 || got[0] != 100 {
		t.Fatalf("slave 0 UIDs = %v, want [100]", got)
	}
	if got := table.Get(1).UIDs; len(got) != 2 {
		t.Fatalf("slave 1 UIDs = %v, want 2 entries", got)
	}
	if table.Get(2).Status != Absent {
		t.Fatalf("slave 2 status = %v, want Absent", table.Get(2).Status)
	}
}

// TestEnumerateNoSlaves covers the non-fatal empty-stack path: nothing
// answers at address 0, Open reports ErrNoSlaves.
func TestEnumerateNoSlaves(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	e := fastEngine(dev, table)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Open(ctx, AddressModeMaster); err != ErrNoSlaves {
		t.Fatalf("Open() error = %v, want ErrNoSlaves", err)
	}
	if table.SlaveNum() != 0 {
		t.Fatalf("SlaveNum() = %d, want 0", table.SlaveNum())
	}
}

// TestEngineOpenRejectsSlaveMode covers the literal-preservation of the
// original's "only master mode supported" restriction: Open must reject
// slave mode before ever touching the device.
func TestEngineOpenRejectsSlaveMode(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	e := fastEngine(dev, table)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Open(ctx, AddressModeSlave); err != ErrSlaveModeUnsupported {
		t.Fatalf("Open() error = %v, want ErrSlaveModeUnsupported", err)
	}
	if len(dev.Transactions) != 0 {
		t.Fatalf("Open() in slave mode performed %d SPI transactions, want 0", len(dev.Transactions))
	}
}

// TestEngineOperationsAfterCloseReturnErrEngineClosed covers the
// documented post-Close contract for Enqueue and Start, and that Close
// succeeds, and is idempotent, on an engine that was never started.
func TestEngineOperationsAfterCloseReturnErrEngineClosed(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	e := fastEngine(dev, table)

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := e.Enqueue(0, brickproto.Packet{UID: 1}); err != ErrEngineClosed {
		t.Fatalf("Enqueue() after Close() error = %v, want ErrEngineClosed", err)
	}
	if err := e.Start(context.Background(), nil); err != ErrEngineClosed {
		t.Fatalf("Start() after Close() error = %v, want ErrEngineClosed", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v, want nil (idempotent)", err)
	}
}

// TestEngineDeliversQueuedRequestAndResponse drives one slave through the
// steady-state loop: a request queued via Stack.DispatchRequest must be
// sent, the queue must drain, and the slave's reply must reach the
// inbound handler.
func TestEngineDeliversQueuedRequestAndResponse(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	table.RecordUIDs(0, []uint32{42})
	table.SetSlaveNum(1)
	table.Get(0).Status = Available

	e := fastEngine(dev, table)
	stack := NewStack("spi", e)

	reply := brickproto.Packet{UID: 42, FunctionID: 7, Payload: []byte{9, 9}}
	dev.Script(0).Reply(faketransport.FramePacket(reply))

	received := make(chan brickproto.Packet, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx, func(p brickproto.Packet) { received <- p }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Close()

	req := brickproto.Packet{UID: 42, FunctionID: 1, ResponseExpected: true}
	if err := stack.DispatchRequest(req); err != nil {
		t.Fatalf("DispatchRequest() error = %v", err)
	}

	select {
	case p := <-received:
		if p.UID != 42 || p.FunctionID != 7 {
			t.Fatalf("received = %+v, want UID=42 FunctionID=7", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound delivery")
	}

	deadline := time.Now().Add(time.Second)
	for e.QueueLen() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if e.QueueLen() != 0 {
		t.Fatalf("QueueLen() = %d, want 0 after send", e.QueueLen())
	}
}

// TestStackDispatchRequestUnknownUID must neither enqueue nor panic when
// no slave owns the UID.
func TestStackDispatchRequestUnknownUID(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	e := fastEngine(dev, table)
	stack := NewStack("spi", e)

	err := stack.DispatchRequest(brickproto.Packet{UID: 999})
	if err == nil {
		t.Fatal("DispatchRequest() error = nil, want an error for an unknown UID")
	}
	if e.QueueLen() != 0 {
		t.Fatalf("QueueLen() = %d, want 0", e.QueueLen())
	}
}

// TestStackDispatchRequestBroadcastFansOut covers §4.4: UID 0 queues one
// copy per present slave.
func TestStackDispatchRequestBroadcastFansOut(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	table.RecordUIDs(0, []uint32{1})
	table.RecordUIDs(1, []uint32{2})
	table.SetSlaveNum(2)

	e := fastEngine(dev, table)
	stack := NewStack("spi", e)

	if err := stack.DispatchRequest(brickproto.Packet{UID: brickproto.UIDBroadcast, FunctionID: 5}); err != nil {
		t.Fatalf("DispatchRequest() error = %v", err)
	}
	if got := e.QueueLen(); got != 2 {
		t.Fatalf("QueueLen() = %d, want 2", got)
	}
}

// TestEngineDropsQueuedPacketOnTransferFailure ensures a SEND_ERROR drops
// the head of the queue rather than retrying it forever.
func TestEngineDropsQueuedPacketOnTransferFailure(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	table.RecordUIDs(0, []uint32{1})
	table.SetSlaveNum(1)
	table.Get(0).Status = Available
	dev.Script(0).Fail = true

	e := fastEngine(dev, table)
	if err := e.Enqueue(0, brickproto.Packet{UID: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	e.tick(context.Background())

	if e.QueueLen() != 0 {
		t.Fatalf("QueueLen() = %d, want 0 after SEND_ERROR", e.QueueLen())
	}
	if table.Get(0).Status != AvailableBusy {
		t.Fatalf("slave status = %v, want AvailableBusy after a transfer failure", table.Get(0).Status)
	}
}

// TestEngineLeavesQueuedPacketOnBusySlave ensures SEND_BUSY retries rather
// than dropping.
func TestEngineLeavesQueuedPacketOnBusySlave(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	table.RecordUIDs(0, []uint32{1})
	table.SetSlaveNum(1)
	table.Get(0).Status = AvailableBusy

	e := fastEngine(dev, table)
	if err := e.Enqueue(0, brickproto.Packet{UID: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	e.tick(context.Background())

	if e.QueueLen() != 1 {
		t.Fatalf("QueueLen() = %d, want 1 (retry pending)", e.QueueLen())
	}
}

func TestEngineEnqueueRejectsOversizePacket(t *testing.T) {
	dev := faketransport.NewDevice(brickproto.MaxSlaves)
	table := tableFromDevice(dev)
	e := fastEngine(dev, table)

	oversized := brickproto.Packet{Payload: make([]byte, brickproto.MaxPayloadSize+1)}
	if err := e.Enqueue(0, oversized); err == nil {
		t.Fatal("Enqueue() error = nil, want ErrOversize")
	}
	if e.QueueLen() != 0 {
		t.Fatalf("QueueLen() = %d, want 0", e.QueueLen())
	}
}

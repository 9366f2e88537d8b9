// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import (
	"testing"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
)

func TestOutboundQueueFIFOOrder(t *testing.T) {
	q := newOutboundQueue(0)
	q.push(queuedEntry{slaveIndex: 0, packet: brickproto.Packet{UID: 1}})
	q.push(queuedEntry{slaveIndex: 1, packet: brickproto.Packet{UID: 2}})

	e, ok := q.peek()
	if !ok || e.packet.UID != 1 {
		t.Fatalf("peek() = %+v, ok=%v, want UID=1", e, ok)
	}
	q.pop()

	e, ok = q.peek()
	if !ok || e.packet.UID != 2 {
		t.Fatalf("peek() = %+v, ok=%v, want UID=2", e, ok)
	}
	q.pop()

	if _, ok := q.peek(); ok {
		t.Fatal("peek() on empty queue should report ok=false")
	}
}

func TestOutboundQueueEmptyPopIsNoop(t *testing.T) {
	q := newOutboundQueue(0)
	q.pop() // must not panic
	if q.len() != 0 {
		t.Fatalf("len() = %d, want 0", q.len())
	}
}

func TestOutboundQueueLen(t *testing.T) {
	q := newOutboundQueue(0)
	for i := 0; i < 5; i++ {
		q.push(queuedEntry{slaveIndex: i})
	}
	if q.len() != 5 {
		t.Fatalf("len() = %d, want 5", q.len())
	}
}

func TestOutboundQueueDropsOldestWhenCapacitySet(t *testing.T) {
	q := newOutboundQueue(2)
	for i := 0; i < 4; i++ {
		q.push(queuedEntry{slaveIndex: i})
	}
	if q.len() != 2 {
		t.Fatalf("len() = %d, want 2", q.len())
	}
	e, ok := q.peek()
	if !ok || e.slaveIndex != 2 {
		t.Fatalf("peek() = %+v, ok=%v, want oldest surviving slaveIndex=2", e, ok)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package router

import (
	"testing"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
)

func TestBoundedQueueFIFOOrder(t *testing.T) {
	q := NewBoundedQueue[brickproto.Packet](0)
	for _, uid := range []uint32{1, 2, 3} {
		q.Push(brickproto.Packet{UID: uid})
	}

	for _, want := range []uint32{1, 2, 3} {
		p, ok := q.Peek()
		if !ok || p.UID != want {
			t.Fatalf("Peek = %v, %v; want uid %d", p, ok, want)
		}
		q.Pop()
	}
	if _, ok := q.Peek(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestBoundedQueueUnboundedByDefault(t *testing.T) {
	q := NewBoundedQueue[brickproto.Packet](0)
	for i := 0; i < 1000; i++ {
		q.Push(brickproto.Packet{UID: uint32(i)})
	}
	if q.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", q.Len())
	}
	if q.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", q.Dropped())
	}
}

func TestBoundedQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewBoundedQueue[brickproto.Packet](3)
	for i := 0; i < 5; i++ {
		q.Push(brickproto.Packet{UID: uint32(i)})
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	if q.Dropped() != 2 {
		t.Fatalf("Dropped() = %d, want 2", q.Dropped())
	}
	p, _ := q.Peek()
	if p.UID != 2 {
		t.Fatalf("oldest surviving entry UID = %d, want 2", p.UID)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package rs485stack

import (
	"testing"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"github.com/Christoph-Caina/brickd/pkg/router"
	"go.uber.org/zap"
)

// newTestStack builds a Stack without opening a real serial port, for
// tests that only exercise queueing and UID-ownership bookkeeping.
func newTestStack() *Stack {
	return &Stack{
		name:   "rs485",
		log:    zap.NewNop().Sugar(),
		known:  make(map[uint32]bool),
		queue:  router.NewBoundedQueue[brickproto.Packet](3),
		notify: make(chan struct{}, 1),
	}
}

func TestStackOwnsUIDBroadcastAlwaysTrue(t *testing.T) {
	s := newTestStack()
	if !s.OwnsUID(brickproto.UIDBroadcast) {
		t.Fatal("OwnsUID(broadcast) = false, want true")
	}
}

func TestStackOwnsUIDUnknownUntilSeen(t *testing.T) {
	s := newTestStack()
	if s.OwnsUID(42) {
		t.Fatal("OwnsUID(42) = true before any reply seen, want false")
	}
	s.known[42] = true
	if !s.OwnsUID(42) {
		t.Fatal("OwnsUID(42) = false after recording a reply, want true")
	}
}

func TestStackDispatchRequestNeverErrors(t *testing.T) {
	s := newTestStack()
	for i := 0; i < 10; i++ {
		if err := s.DispatchRequest(brickproto.Packet{UID: uint32(i)}); err != nil {
			t.Fatalf("DispatchRequest() error = %v, want nil (drop-oldest never rejects)", err)
		}
	}
}

// TestStackDispatchRequestDropsOldestOnOverflow exercises the
// writeQueueCapacity overflow policy: pushing past capacity must drop
// the oldest entries rather than block or reject the newest one.
func TestStackDispatchRequestDropsOldestOnOverflow(t *testing.T) {
	s := newTestStack() // capacity 3
	for i := 0; i < 5; i++ {
		if err := s.DispatchRequest(brickproto.Packet{UID: uint32(i)}); err != nil {
			t.Fatalf("DispatchRequest() error = %v", err)
		}
	}
	if got := s.queue.Len(); got != 3 {
		t.Fatalf("queue.Len() = %d, want 3", got)
	}
	if got := s.queue.Dropped(); got != 2 {
		t.Fatalf("queue.Dropped() = %d, want 2", got)
	}
	p, ok := s.queue.Peek()
	if !ok || p.UID != 2 {
		t.Fatalf("oldest surviving entry UID = %v, ok=%v, want UID=2", p, ok)
	}
}

func TestStackDispatchRequestNotifiesWriteLoopAtMostOnce(t *testing.T) {
	s := newTestStack()
	for i := 0; i < 3; i++ {
		if err := s.DispatchRequest(brickproto.Packet{UID: uint32(i)}); err != nil {
			t.Fatalf("DispatchRequest() error = %v", err)
		}
	}
	if len(s.notify) != 1 {
		t.Fatalf("notify channel len = %d, want 1 (coalesced, not one per push)", len(s.notify))
	}
}

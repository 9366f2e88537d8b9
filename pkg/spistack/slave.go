// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

// Package spistack implements the SPI stack transport: slave discovery,
// the outbound queue, and the fixed-cadence polling engine that
// interleaves opportunistic sends with round-robin receives against up
// to eight slave devices on a shared half-duplex SPI bus.
package spistack

import (
	"sync"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
)

// Status is a slave's presence/availability state.
type Status int

const (
	// Absent means no slave answered enumeration at this stack address.
	Absent Status = iota
	// Available means the slave is present and able to accept a request.
	Available
	// AvailableBusy means the slave is present but signalled it cannot
	// accept another request right now.
	AvailableBusy
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Available:
		return "available"
	case AvailableBusy:
		return "available-busy"
	default:
		return "unknown"
	}
}

// Slave is one physical position on the SPI bus, created once at startup
// and indexed by its stack_address. Its UID list and status are written
// only by the engine's own goroutine.
type Slave struct {
	StackAddress int
	Status       Status
	SelectLine   SelectLine
	UIDs         []uint32
}

// OwnsUID reports whether uid was recorded on this slave during
// enumeration.
func (s *Slave) OwnsUID(uid uint32) bool {
	for _, u := range s.UIDs {
		if u == uid {
			return true
		}
	}
	return false
}

// SlaveTable is the fixed-capacity, 8-slot array of slaves plus the
// slave_num prefix counting how many of them are present. Indices
// [0, SlaveNum) are Available or AvailableBusy; indices [SlaveNum, 8) are
// Absent. Discovery stops at the first Absent index, so holes cannot
// occur.
type SlaveTable struct {
	mu       sync.RWMutex
	slaves   [brickproto.MaxSlaves]*Slave
	slaveNum int
}

// NewSlaveTable creates a table with every slot marked Absent and bound
// to the given select lines, one per stack address.
func NewSlaveTable(lines [brickproto.MaxSlaves]SelectLine) *SlaveTable {
	t := &SlaveTable{}
	for i := range t.slaves {
		t.slaves[i] = &Slave{StackAddress: i, Status: Absent, SelectLine: lines[i]}
	}
	return t
}

// Get returns the slave at index, or nil if index is out of range.
func (t *SlaveTable) Get(index int) *Slave {
	if index < 0 || index >= brickproto.MaxSlaves {
		return nil
	}
	return t.slaves[index]
}

// SlaveNum returns the number of contiguous present slaves discovered at
// enumeration.
func (t *SlaveTable) SlaveNum() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slaveNum
}

// SetSlaveNum records the enumeration result. Called once, after
// enumeration completes.
func (t *SlaveTable) SetSlaveNum(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slaveNum = n
}

// FindByUID does a linear scan over the present slaves' UID lists. At
// most MaxSlaves * MaxStackEnumerateUIDs entries are ever examined.
func (t *SlaveTable) FindByUID(uid uint32) *Slave {
	t.mu.RLock()
	n := t.slaveNum
	t.mu.RUnlock()

	for i := 0; i < n; i++ {
		if t.slaves[i].OwnsUID(uid) {
			return t.slaves[i]
		}
	}
	return nil
}

// MarkBusy records the slave's last-reported busy bit. A slave
// transitions Available <-> AvailableBusy purely from this; it only ever
// becomes Absent during enumeration.
func (t *SlaveTable) MarkBusy(index int, busy bool) {
	s := t.Get(index)
	if s == nil || s.Status == Absent {
		return
	}
	if busy {
		s.Status = AvailableBusy
	} else {
		s.Status = Available
	}
}

// RecordUIDs sets the UID list discovered for a slave during enumeration,
// deduplicating against UIDs already known the way the original USB
// stack's stack_add_uid silently no-ops on a repeat (stack.c).
func (t *SlaveTable) RecordUIDs(index int, uids []uint32) {
	s := t.Get(index)
	if s == nil {
		return
	}
	seen := make(map[uint32]bool, len(s.UIDs))
	for _, u := range s.UIDs {
		seen[u] = true
	}
	for _, u := range uids {
		if !seen[u] {
			s.UIDs = append(s.UIDs, u)
			seen[u] = true
		}
	}
}

// AllUIDs returns every UID owned by any present slave, used to seed the
// router's view of this stack's ownership set.
func (t *SlaveTable) AllUIDs() []uint32 {
	t.mu.RLock()
	n := t.slaveNum
	t.mu.RUnlock()

	var all []uint32
	for i := 0; i < n; i++ {
		all = append(all, t.slaves[i].UIDs...)
	}
	return all
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import "testing"

type noopSelect struct{}

func (noopSelect) Select() error   { return nil }
func (noopSelect) Deselect() error { return nil }
func (noopSelect) Close() error    { return nil }

func newTestTable() *SlaveTable {
	var lines [8]SelectLine
	for i := range lines {
		lines[i] = noopSelect{}
	}
	return NewSlaveTable(lines)
}

func TestSlaveTableStartsAllAbsent(t *testing.T) {
	table := newTestTable()
	if table.SlaveNum() != 0 {
		t.Fatalf("SlaveNum() = %d, want 0", table.SlaveNum())
	}
	for i := 0; i < 8; i++ {
		if got := table.Get(i).Status; got != Absent {
			t.Fatalf("slave %d status = %v, want Absent", i, got)
		}
	}
}

func TestSlaveTableGetOutOfRange(t *testing.T) {
	table := newTestTable()
	if table.Get(-1) != nil || table.Get(8) != nil {
		t.Fatal("Get out of range should return nil")
	}
}

func TestSlaveTableRecordUIDsDeduplicates(t *testing.T) {
	table := newTestTable()
	table.RecordUIDs(0, []uint32{1, 2, 2, 3})
	table.RecordUIDs(0, []uint32{3, 4})

	got := table.Get(0).UIDs
	want := []uint32{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("UIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UIDs = %v, want %v", got, want)
		}
	}
}

func TestSlaveTableFindByUIDOnlyScansPresentSlaves(t *testing.T) {
	table := newTestTable()
	table.RecordUIDs(0, []uint32{10})
	table.RecordUIDs(1, []uint32{20})
	table.SetSlaveNum(1) // only slave 0 is "present"

	if s := table.FindByUID(10); s == nil || s.StackAddress != 0 {
		t.Fatalf("FindByUID(10) = %v, want slave 0", s)
	}
	if s := table.FindByUID(20); s != nil {
		t.Fatalf("FindByUID(20) = %v, want nil (slave 1 not yet present)", s)
	}
}

func TestSlaveTableMarkBusy(t *testing.T) {
	table := newTestTable()
	table.RecordUIDs(0, []uint32{1})
	table.SetSlaveNum(1)
	table.Get(0).Status = Available

	table.MarkBusy(0, true)
	if table.Get(0).Status != AvailableBusy {
		t.Fatalf("status = %v, want AvailableBusy", table.Get(0).Status)
	}
	table.MarkBusy(0, false)
	if table.Get(0).Status != Available {
		t.Fatalf("status = %v, want Available", table.Get(0).Status)
	}

	// Absent slaves are never toggled busy.
	table.MarkBusy(5, true)
	if table.Get(5).Status != Absent {
		t.Fatalf("status = %v, want Absent", table.Get(5).Status)
	}
}

func TestSlaveTableAllUIDs(t *testing.T) {
	table := newTestTable()
	table.RecordUIDs(0, []uint32{1, 2})
	table.RecordUIDs(1, []uint32{3})
	table.SetSlaveNum(2)

	all := table.AllUIDs()
	if len(all) != 3 {
		t.Fatalf("AllUIDs() = %v, want 3 entries", all)
	}
}

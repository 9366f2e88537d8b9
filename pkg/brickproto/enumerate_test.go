// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package brickproto

import (
	"reflect"
	"testing"
)

func TestStackEnumerateRoundTrip(t *testing.T) {
	uids := []uint32{0x0000ABCD, 0x0000EF01, 0x00001234}
	resp := EncodeStackEnumerateResponse(3, uids)

	got := ParseStackEnumerateUIDs(resp.Payload)
	if !reflect.DeepEqual(got, uids) {
		t.Fatalf("ParseStackEnumerateUIDs = %v, want %v", got, uids)
	}
}

func TestStackEnumerateEmptyResponse(t *testing.T) {
	resp := EncodeStackEnumerateResponse(0, nil)
	got := ParseStackEnumerateUIDs(resp.Payload)
	if len(got) != 0 {
		t.Fatalf("expected no UIDs, got %v", got)
	}
}

func TestStackEnumerateRequestShape(t *testing.T) {
	req := NewStackEnumerateRequest()
	if req.UID != UIDBroadcast || req.FunctionID != FunctionStackEnumerate || !req.ResponseExpected {
		t.Fatalf("unexpected enumerate request shape: %+v", req)
	}
}

func TestParseStackEnumerateUIDsCapsAtMax(t *testing.T) {
	uids := make([]uint32, MaxStackEnumerateUIDs+5)
	for i := range uids {
		uids[i] = uint32(i + 1)
	}
	resp := EncodeStackEnumerateResponse(0, uids)
	got := ParseStackEnumerateUIDs(resp.Payload)
	if len(got) != MaxStackEnumerateUIDs {
		t.Fatalf("expected %d UIDs, got %d", MaxStackEnumerateUIDs, len(got))
	}
}

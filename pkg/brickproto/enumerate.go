// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package brickproto

import "encoding/binary"

// NewStackEnumerateRequest builds the synthetic request the SPI engine
// sends to each stack address during enumeration: UID 0, the
// stack-enumerate function code, and response-expected set.
func NewStackEnumerateRequest() Packet {
	return Packet{
		UID:              UIDBroadcast,
		FunctionID:       FunctionStackEnumerate,
		ResponseExpected: true,
	}
}

// EncodeStackEnumerateResponse builds a stack-enumerate response payload
// carrying uids, an ordered list terminated by a zero UID or by reaching
// MaxStackEnumerateUIDs. Used by tests and by fake slaves.
func EncodeStackEnumerateResponse(requestSeq uint8, uids []uint32) Packet {
	if len(uids) > MaxStackEnumerateUIDs {
		uids = uids[:MaxStackEnumerateUIDs]
	}
	payload := make([]byte, 0, len(uids)*4+4)
	for _, u := range uids {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], u)
		payload = append(payload, b[:]...)
	}
	if len(uids) < MaxStackEnumerateUIDs {
		payload = append(payload, 0, 0, 0, 0)
	}
	return Packet{
		UID:            UIDBroadcast,
		FunctionID:     FunctionStackEnumerate,
		SequenceNumber: requestSeq,
		Payload:        payload,
	}
}

// ParseStackEnumerateUIDs reads the ordered UID list out of a
// stack-enumerate response payload, stopping at the first zero UID or at
// MaxStackEnumerateUIDs, whichever comes first.
func ParseStackEnumerateUIDs(payload []byte) []uint32 {
	var uids []uint32
	for i := 0; i+4 <= len(payload) && len(uids) < MaxStackEnumerateUIDs; i += 4 {
		uid := binary.LittleEndian.Uint32(payload[i : i+4])
		if uid == 0 {
			break
		}
		uids = append(uids, uid)
	}
	return uids
}

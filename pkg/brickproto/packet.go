// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package brickproto

import (
	"encoding/binary"
	"fmt"
)

// Packet is the header-plus-payload unit carried over every brickd
// transport. It is a value type: callers copy it by its declared Length,
// never by MaxPacketSize, exactly as the router hands packets to
// transports by length on dispatch.
type Packet struct {
	UID              uint32
	FunctionID       uint8
	SequenceNumber   uint8 // 0..15
	ResponseExpected bool
	Authentication   bool
	OtherOptions     uint8 // 0..3
	ErrorCode        uint8 // 0..3
	FutureUse        uint8 // 0..63
	Payload          []byte
}

// Length is the packet's total length including the 8-byte header, the
// value that travels on the wire in the header's length field.
func (p Packet) Length() uint8 {
	return uint8(HeaderSize + len(p.Payload))
}

// IsBroadcast reports whether the packet is addressed to every slave a
// stack owns, rather than to one specific UID.
func (p Packet) IsBroadcast() bool {
	return p.UID == UIDBroadcast
}

// Clone returns a deep copy of the packet, copying only the declared
// payload rather than any larger backing array.
func (p Packet) Clone() Packet {
	cp := p
	if len(p.Payload) > 0 {
		cp.Payload = make([]byte, len(p.Payload))
		copy(cp.Payload, p.Payload)
	}
	return cp
}

// EncodeHeader writes the packet's 8-byte header to dst.
func (p Packet) EncodeHeader(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], p.UID)
	dst[4] = p.Length()
	dst[5] = p.FunctionID
	dst[6] = (p.SequenceNumber&seqMask)<<seqShift |
		boolBit(p.ResponseExpected, responseExpectedBit) |
		boolBit(p.Authentication, authenticationBit) |
		(p.OtherOptions & otherOptionsMask)
	dst[7] = (p.ErrorCode & errorCodeMask) | (p.FutureUse << futureUseShift)
}

// Encode serializes the packet's header and payload.
func (p Packet) Encode() ([]byte, error) {
	if HeaderSize+len(p.Payload) > MaxPacketSize {
		return nil, fmt.Errorf("brickproto: encode packet uid=%d: %w", p.UID, ErrOversize)
	}
	length := p.Length()
	buf := make([]byte, length)
	p.EncodeHeader(buf)
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// MustEncode is Encode with a panicking error path, for call sites that
// have already validated the packet (e.g. constructing a fixed-shape
// request like a stack-enumerate probe).
func MustEncode(p Packet) []byte {
	buf, err := p.Encode()
	if err != nil {
		panic(fmt.Sprintf("brickproto: %v", err))
	}
	return buf
}

// DecodePacket parses a packet header and payload from buf. buf's length
// must equal the header's declared length field.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize || len(buf) > MaxPacketSize {
		return Packet{}, fmt.Errorf("brickproto: decode packet: %w", ErrBadHeaderLength)
	}

	length := buf[4]
	if int(length) != len(buf) {
		return Packet{}, fmt.Errorf("brickproto: decode packet: declared length %d != buffer length %d: %w", length, len(buf), ErrBadHeaderLength)
	}

	flags := buf[6]
	errByte := buf[7]

	p := Packet{
		UID:              binary.LittleEndian.Uint32(buf[0:4]),
		FunctionID:       buf[5],
		SequenceNumber:   (flags >> seqShift) & seqMask,
		ResponseExpected: flags&responseExpectedBit != 0,
		Authentication:   flags&authenticationBit != 0,
		OtherOptions:     flags & otherOptionsMask,
		ErrorCode:        errByte & errorCodeMask,
		FutureUse:        errByte >> futureUseShift,
	}
	if len(buf) > HeaderSize {
		p.Payload = append([]byte(nil), buf[HeaderSize:]...)
	}
	return p, nil
}

func boolBit(v bool, bit byte) byte {
	if v {
		return bit
	}
	return 0
}

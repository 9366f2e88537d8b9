// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package brickproto

import "fmt"

// InfoBusy is bit 0 of a frame's info byte: the slave signalling that it
// cannot accept another request right now. The master always sends
// info = 0.
const InfoBusy = 1 << 0

// EncodeFrame lays out one 84-byte SPI frame. When packet is nil, or
// slaveBusy is true, it emits the 4-byte empty frame used as a
// keep-alive/poll. Otherwise it emits preamble, length, the packet bytes,
// info=0, and the trailing hash.
func EncodeFrame(dst []byte, packet *Packet, slaveBusy bool) error {
	if len(dst) != FrameSize {
		return fmt.Errorf("brickproto: encode frame: destination buffer must be %d bytes, got %d", FrameSize, len(dst))
	}

	for i := range dst {
		dst[i] = 0
	}

	if packet == nil || slaveBusy {
		dst[0] = Preamble
		dst[1] = FrameEmptySize
		dst[2] = 0
		dst[3] = PearsonHash(dst[:3])
		return nil
	}

	if HeaderSize+len(packet.Payload) > MaxPacketSize {
		return fmt.Errorf("brickproto: encode frame uid=%d: %w", packet.UID, ErrOversize)
	}
	length := packet.Length()
	if int(length) > MaxPacketSize {
		return fmt.Errorf("brickproto: encode frame uid=%d: %w", packet.UID, ErrOversize)
	}

	frameLength := int(length) + frameOverhead
	if frameLength > FrameSize {
		return fmt.Errorf("brickproto: encode frame uid=%d: %w", packet.UID, ErrOversize)
	}

	dst[0] = Preamble
	dst[1] = byte(frameLength)
	packet.EncodeHeader(dst[2:])
	copy(dst[2+HeaderSize:], packet.Payload)
	dst[frameLength-2] = 0 // info: master never reports busy
	dst[frameLength-1] = PearsonHash(dst[:frameLength-1])
	return nil
}

// DecodeFrame validates and parses one received 84-byte SPI frame.
//
// Validation order matters: the preamble is checked first so an all-zero
// read (slave not driving MISO) is distinguished from a corrupted frame
// before the length and hash are ever inspected.
//
// On success it returns the carried packet (zero value when the frame was
// an empty/keep-alive frame) and whether the slave's info byte reported
// itself busy.
func DecodeFrame(buf []byte) (packet Packet, busy bool, err error) {
	if len(buf) != FrameSize {
		return Packet{}, false, fmt.Errorf("brickproto: decode frame: buffer must be %d bytes, got %d: %w", FrameSize, len(buf), ErrReadError)
	}

	if buf[0] != Preamble {
		if buf[0] == 0 {
			return Packet{}, false, ErrReadNone
		}
		return Packet{}, false, fmt.Errorf("brickproto: decode frame: bad preamble 0x%02x: %w", buf[0], ErrReadError)
	}

	length := int(buf[1])
	if length < FrameEmptySize || length > FrameSize {
		return Packet{}, false, fmt.Errorf("brickproto: decode frame: length %d out of range: %w", length, ErrReadError)
	}

	wantHash := buf[length-1]
	gotHash := PearsonHash(buf[:length-1])
	if gotHash != wantHash {
		return Packet{}, false, fmt.Errorf("brickproto: decode frame: hash mismatch (want 0x%02x, got 0x%02x): %w", wantHash, gotHash, ErrReadError)
	}

	busy = buf[length-2]&InfoBusy != 0

	if length == FrameEmptySize {
		return Packet{}, busy, ErrReadNone
	}

	packetBytes := buf[2 : length-2]
	p, err := DecodePacket(packetBytes)
	if err != nil {
		return Packet{}, busy, fmt.Errorf("brickproto: decode frame: %w: %w", err, ErrReadError)
	}
	return p, busy, nil
}

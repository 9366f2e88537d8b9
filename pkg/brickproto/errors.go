// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package brickproto

import "errors"

// Sentinel errors returned by the codec. Callers branch on these with
// errors.Is; higher layers wrap them with fmt.Errorf("...: %w", err) to add
// call-site context.
var (
	// ErrOversize is returned by Encode when a packet's declared length
	// exceeds MaxPacketSize.
	ErrOversize = errors.New("brickproto: packet exceeds maximum size")

	// ErrReadNone signals a frame that carried no packet: either an empty
	// keep-alive frame, or an all-zero read taken to mean the slave is not
	// driving the bus.
	ErrReadNone = errors.New("brickproto: frame carried no packet")

	// ErrReadError signals a frame that failed preamble, length, or hash
	// validation and must be discarded without retry.
	ErrReadError = errors.New("brickproto: frame failed validation")

	// ErrBadHeaderLength is returned when a packet header's declared length
	// does not fall within the legal range for a packet.
	ErrBadHeaderLength = errors.New("brickproto: packet length out of range")
)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

// Package router implements the system-wide dispatch table that sits on
// top of every transport: SPI, RS485, and (named by interface only, not
// implemented here) USB. It is the only entry point the rest of the
// daemon calls into; every transport is internal to it.
package router

import "github.com/Christoph-Caina/brickd/pkg/brickproto"

// Stack is the capability set every transport exposes to the router: a
// name, ownership of a set of UIDs, and an operation to hand an outbound
// packet to the devices it owns.
//
// This replaces the original's base-struct-plus-function-pointer idiom
// with a plain interface; the router holds a slice of these by stable
// reference rather than a linked list of polymorphic structs.
type Stack interface {
	// Name identifies the stack for logging.
	Name() string

	// OwnsUID reports whether this stack currently claims uid.
	OwnsUID(uid uint32) bool

	// DispatchRequest hands an outbound packet to this stack. It returns
	// promptly; any queuing or retry happens inside the stack's own
	// transport loop, never inside the router.
	DispatchRequest(packet brickproto.Packet) error
}

// InboundHandler is the single callback every transport delivers received
// packets through. It must return quickly; serialization to network
// clients happens downstream of this call, outside the router.
type InboundHandler func(packet brickproto.Packet)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import (
	"fmt"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
)

// Stack adapts an Engine to the router's Stack interface, which it
// satisfies structurally; registration with a router happens at the call
// site that creates it.
type Stack struct {
	name   string
	engine *Engine
}

// NewStack wraps engine under name for registration with the router.
func NewStack(name string, engine *Engine) *Stack {
	return &Stack{name: name, engine: engine}
}

func (s *Stack) Name() string { return s.name }

// OwnsUID reports whether uid was recorded on any present slave during
// enumeration.
func (s *Stack) OwnsUID(uid uint32) bool {
	return s.engine.Table().FindByUID(uid) != nil
}

// DispatchRequest enqueues packet for delivery. A broadcast packet (UID 0)
// fans out one queued copy per present slave, in stack-address order, per
// §4.4; otherwise the packet is queued for the single slave that owns its
// UID.
func (s *Stack) DispatchRequest(packet brickproto.Packet) error {
	table := s.engine.Table()

	if packet.IsBroadcast() {
		n := table.SlaveNum()
		for i := 0; i < n; i++ {
			if err := s.engine.Enqueue(i, packet.Clone()); err != nil {
				return err
			}
		}
		return nil
	}

	slave := table.FindByUID(packet.UID)
	if slave == nil {
		return fmt.Errorf("spistack: no slave owns uid %d", packet.UID)
	}
	return s.engine.Enqueue(slave.StackAddress, packet.Clone())
}

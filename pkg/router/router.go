// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package router

import (
	"sync"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"go.uber.org/zap"
)

// Router dispatches outbound client packets to the transport that owns
// their UID, and fans inbound packets from every transport to one
// registered handler. It holds no queue of its own: outbound fan-out
// returns once every stack's DispatchRequest has been called, and inbound
// delivery is a direct call into the registered handler.
type Router struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	stacks  []Stack
	inbound InboundHandler
}

// New creates an empty Router. Stacks register themselves with Register
// as the daemon's init sequence brings each transport up.
func New(log *zap.SugaredLogger) *Router {
	return &Router{log: log}
}

// Register adds a stack to the router's dispatch list. Order of
// registration is preserved and is the order broadcast fan-out visits
// stacks in.
func (r *Router) Register(s Stack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stacks = append(r.stacks, s)
}

// SetInboundHandler installs the callback that every transport's received
// packets are forwarded to. It must be called before any transport starts
// delivering inbound traffic.
func (r *Router) SetInboundHandler(h InboundHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbound = h
}

// DispatchOutbound routes packet by its UID. UID 0 broadcasts to every
// registered stack; any other UID is routed to the one stack that claims
// it, or logged and dropped if none does.
func (r *Router) DispatchOutbound(packet brickproto.Packet) error {
	r.mu.RLock()
	stacks := append([]Stack(nil), r.stacks...)
	r.mu.RUnlock()

	if packet.IsBroadcast() {
		var firstErr error
		for _, s := range stacks {
			if err := s.DispatchRequest(packet); err != nil {
				r.log.Errorw("broadcast dispatch failed", "stack", s.Name(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	}

	for _, s := range stacks {
		if s.OwnsUID(packet.UID) {
			return s.DispatchRequest(packet)
		}
	}

	r.log.Errorw("dropping outbound packet for unknown UID", "uid", packet.UID)
	return nil
}

// DispatchInbound delivers a packet received from any transport to the
// registered inbound handler, in the order transports decoded them. It is
// a no-op if no handler has been installed yet.
func (r *Router) DispatchInbound(packet brickproto.Packet) {
	r.mu.RLock()
	h := r.inbound
	r.mu.RUnlock()

	if h != nil {
		h(packet)
	}
}

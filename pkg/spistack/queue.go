// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package spistack

import (
	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"github.com/Christoph-Caina/brickd/pkg/router"
)

// queuedEntry pairs a packet with the slave it is destined for, so the
// engine does not need to re-resolve the UID on every retry.
type queuedEntry struct {
	slaveIndex int
	packet     brickproto.Packet
}

// outboundQueue is the FIFO shared between the router's dispatch call
// (producer) and the engine's tick loop (consumer). It is built on the
// same drop-oldest router.BoundedQueue every other transport's write
// queue uses: capacity zero (the default) keeps it unbounded by memory,
// per §3; a positive capacity turns on the USB stack's overflow policy
// as an opt-in operational knob for long soak runs, per §12. Never
// locked across SPI I/O, per §5.
type outboundQueue struct {
	q *router.BoundedQueue[queuedEntry]
}

func newOutboundQueue(capacity int) *outboundQueue {
	return &outboundQueue{q: router.NewBoundedQueue[queuedEntry](capacity)}
}

func (q *outboundQueue) push(e queuedEntry) int { return q.q.Push(e) }

func (q *outboundQueue) peek() (queuedEntry, bool) { return q.q.Peek() }

func (q *outboundQueue) pop() { q.q.Pop() }

func (q *outboundQueue) len() int { return q.q.Len() }

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

// Package observability implements a debug-only, read-only trace stream:
// a websocket endpoint that mirrors every packet the router sees, CBOR
// encoded, for external tooling to watch live. It has no write path and
// no effect on dispatch; closing every trace client changes nothing about
// how packets are routed.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
)

// Direction labels which side of the router a traced packet crossed.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Event is one traced packet, CBOR-encoded as a flat array of its fields
// in declaration order (Direction first, TimestampUnixNano last).
type Event struct {
	_              struct{} `cbor:",toarray"`
	Direction      Direction
	Stack          string
	UID            uint32
	FunctionID     uint8
	SequenceNumber uint8
	ErrorCode      uint8
	PayloadLength  int
	TimestampUnixNano int64
}

// Hub fans traced events out to every connected debug client. Publish is
// safe to call from any goroutine; a slow or absent client never blocks
// the router, since each client has its own bounded send buffer and an
// event that finds that buffer full is dropped for that client.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

const clientSendBuffer = 64

// NewHub creates an empty trace hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:      log,
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Publish records one traced packet and fans it to every connected
// client. Packets are never held for this call; a full client buffer
// drops the event for that client rather than backing up the caller.
func (h *Hub) Publish(direction Direction, stackName string, p brickproto.Packet, now time.Time) {
	ev := Event{
		Direction:         direction,
		Stack:             stackName,
		UID:               p.UID,
		FunctionID:        p.FunctionID,
		SequenceNumber:    p.SequenceNumber,
		ErrorCode:         p.ErrorCode,
		PayloadLength:     len(p.Payload),
		TimestampUnixNano: now.UnixNano(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Warnw("trace client too slow, dropping event", "remote", c.conn.RemoteAddr())
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and streams every
// subsequently published event to it as CBOR binary messages, until the
// client disconnects. There is no read side: inbound messages from the
// client are discarded, since this endpoint is strictly observational.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("trace websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientSendBuffer)}
	h.addClient(c)
	defer h.removeClient(c)

	go h.discardReads(c)

	for ev := range c.send {
		buf, err := cbor.Marshal(ev)
		if err != nil {
			h.log.Errorw("trace event encode failed", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
			return
		}
	}
}

func (h *Hub) discardReads(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.removeClient(c)
			return
		}
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
	h.mu.Unlock()
}

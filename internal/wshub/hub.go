// Package wshub is the push-transport adapter: a gorilla/websocket hub
// that subscribes to the event bus (C5) and re-broadcasts trades, order
// status changes, and book snapshots to per-market rooms. Grounded on the
// teacher's internal/ws/hub.go (room/broadcast shape, conn read/write
// pumps), but wired as a genuine eventbus.Bus subscriber per
// SPEC_FULL.md §6 rather than called directly from inside order
// processing the way the teacher's engine calls Hub.Publish ad hoc.
package wshub

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"wager-exchange/internal/engine"
	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Msg is a message sent to clients.
type Msg struct {
	Type   string `json:"type"`
	Market string `json:"market"`
	Data   any    `json:"data"`
}

// Hub manages per-market WebSocket subscriptions. One Hub can serve
// multiple markets' Subscribe calls; each carries its own market label.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*conn]bool // market -> set of conns
	allConn map[*conn]bool
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	market string
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*conn]bool),
		allConn: make(map[*conn]bool),
	}
}

// Subscribe wires h to bus's TradeExecuted/OrderStatusChanged events for
// market, and to eng's order book for snapshot pushes after each trade.
func (h *Hub) Subscribe(market string, eng *engine.MarketEngine, bus *eventbus.Bus) {
	bus.Subscribe(events.TradeExecuted{}, func(e any) error {
		te, ok := e.(events.TradeExecuted)
		if !ok || te.Market != market {
			return nil
		}
		h.Publish(market, "trade", te)
		h.Publish(market, "book", eng.BookSnapshot(20))
		return nil
	})
	bus.Subscribe(events.OrderStatusChanged{}, func(e any) error {
		osc, ok := e.(events.OrderStatusChanged)
		if !ok {
			return nil
		}
		h.Publish(market, "order_status", osc)
		return nil
	})
}

// Publish sends a message to all subscribers of a market.
func (h *Hub) Publish(market, msgType string, data any) {
	msg := Msg{Type: msgType, Market: market, Data: data}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	room := h.rooms[market]
	h.mu.RUnlock()
	for c := range room {
		select {
		case c.send <- b:
		default:
			log.Warn().Str("market", market).Msg("ws client too slow, dropping message")
		}
	}
}

// HandleWS is the HTTP handler for WebSocket connections.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &conn{
		ws:   wsConn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.mu.Lock()
	h.allConn[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		var sub struct {
			Action string `json:"action"`
			Market string `json:"market"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.hub.subscribeConn(c, sub.Market)
		case "unsubscribe":
			c.hub.unsubscribeConn(c, sub.Market)
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

func (h *Hub) subscribeConn(c *conn, market string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.market != "" {
		if room, ok := h.rooms[c.market]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.market)
			}
		}
	}
	c.market = market
	room, ok := h.rooms[market]
	if !ok {
		room = make(map[*conn]bool)
		h.rooms[market] = room
	}
	room[c] = true
}

func (h *Hub) unsubscribeConn(c *conn, market string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[market]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, market)
		}
	}
	if c.market == market {
		c.market = ""
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allConn, c)
	if c.market != "" {
		if room, ok := h.rooms[c.market]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.market)
			}
		}
	}
	close(c.send)
}

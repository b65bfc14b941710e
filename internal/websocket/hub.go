// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package websocket implements the live fan-out bus: a hub that routes
// position and alert events to WebSocket clients subscribed to the
// originating device. Events are delivered in publish order per device,
// never replayed, and dropped rather than queued unboundedly when a
// client cannot keep up.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/metrics"
	"github.com/waymark-gps/waymark/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown
	// path (e.g. SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was
	// exceeded, which may mean a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types exchanged over the live channel.
const (
	MessageTypeLocationUpdate = "location_update"
	MessageTypeAlert          = "alert"
	MessageTypeSubscribe      = "subscribe"
	MessageTypeUnsubscribe    = "unsubscribe"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeSubscribed     = "subscribed"
)

// Message is the envelope for all live-channel traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// subscribeRequest asks the hub to point a client at a device.
type subscribeRequest struct {
	client   *Client
	deviceID string
}

// event is a device-scoped message awaiting fan-out.
type event struct {
	deviceID string
	message  Message
}

// Hub maintains the set of active clients and their device
// subscriptions, and fans device events out to matching clients.
//
// A single goroutine (RunWithContext) owns all state transitions, so
// events for a device are delivered in the order they were published.
// Each client subscribes to at most one device at a time; subscribing
// again replaces the previous subscription.
type Hub struct {
	clients     map[*Client]string            // client -> subscribed device ("" = none)
	subscribers map[string]map[*Client]struct{} // device -> subscribed clients

	events      chan event
	Register    chan *Client
	Unregister  chan *Client
	subscribe   chan subscribeRequest
	unsubscribe chan *Client

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]string),
		subscribers: make(map[string]map[*Client]struct{}),
		events:      make(chan event, 256),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		subscribe:   make(chan subscribeRequest),
		unsubscribe: make(chan *Client),
	}
}

// RunWithContext runs the hub event loop until the context is canceled.
// Designed for use under suture supervision: on cancellation all
// connected clients are closed and ctx.Err() is returned, so a
// supervisor restart never inherits orphaned connections.
//
// Selection is priority-ordered so behavior stays predictable when
// multiple channels are ready: shutdown first, then client lifecycle
// and subscription changes, then event fan-out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle and subscription changes (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		case req := <-h.subscribe:
			h.setSubscription(req.client, req.deviceID)
			continue
		case client := <-h.unsubscribe:
			h.setSubscription(client, "")
			continue
		default:
		}

		// Priority 3: event fan-out, or block until anything is ready
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case req := <-h.subscribe:
			h.setSubscription(req.client, req.deviceID)
		case client := <-h.unsubscribe:
			h.setSubscription(client, "")
		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = ""
	total := len(h.clients)
	h.mu.Unlock()

	metrics.LiveClients.Set(float64(total))
	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", total).
		Msg("live client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	deviceID, ok := h.clients[client]
	if ok {
		h.detachLocked(client, deviceID)
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.LiveClients.Set(float64(total))
		logging.Info().
			Str("session_id", client.sessionID).
			Int("total_clients", total).
			Msg("live client disconnected")
	}
}

// setSubscription points a client at deviceID, detaching it from any
// previous device first. Subscribing to the already-subscribed device
// is a no-op beyond the acknowledgment, and deviceID "" clears the
// subscription.
func (h *Hub) setSubscription(client *Client, deviceID string) {
	h.mu.Lock()
	prev, ok := h.clients[client]
	if !ok {
		// Client unregistered before the request was processed.
		h.mu.Unlock()
		return
	}
	if prev != deviceID {
		h.detachLocked(client, prev)
		h.clients[client] = deviceID
		if deviceID != "" {
			set, ok := h.subscribers[deviceID]
			if !ok {
				set = make(map[*Client]struct{})
				h.subscribers[deviceID] = set
			}
			set[client] = struct{}{}
		}
	}
	h.mu.Unlock()

	if deviceID != "" {
		ack := Message{Type: MessageTypeSubscribed, Data: map[string]string{"device_id": deviceID}}
		select {
		case client.send <- ack:
		default:
		}
		logging.Debug().
			Str("session_id", client.sessionID).
			Str("device_id", deviceID).
			Msg("live client subscribed")
	}
}

// detachLocked removes a client from a device's subscriber set.
// Caller must hold h.mu.
func (h *Hub) detachLocked(client *Client, deviceID string) {
	if deviceID == "" {
		return
	}
	if set, ok := h.subscribers[deviceID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subscribers, deviceID)
		}
	}
}

// fanOut delivers an event to every client subscribed to its device.
// Clients are visited in ID order so delivery order is reproducible.
// A client whose send buffer is full is dropped and disconnected
// rather than allowed to stall the loop.
func (h *Hub) fanOut(ev event) {
	h.mu.Lock()

	set := h.subscribers[ev.deviceID]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- ev.message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		h.detachLocked(client, ev.deviceID)
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if len(toRemove) > 0 {
		metrics.LiveClients.Set(float64(total))
		metrics.LiveEventsDropped.Add(float64(len(toRemove)))
		logging.Warn().
			Str("device_id", ev.deviceID).
			Int("clients_dropped", len(toRemove)).
			Msg("dropped slow live clients")
	}
}

// PublishPosition fans a freshly stored position out to the device's
// subscribers. Never blocks: when the hub's event queue is full the
// event is dropped so ingestion latency stays bounded.
func (h *Hub) PublishPosition(p *models.Position) {
	h.publish(p.DeviceID, Message{Type: MessageTypeLocationUpdate, Data: p})
}

// PublishAlert fans a freshly stored alert out to the device's
// subscribers.
func (h *Hub) PublishAlert(a *models.AlertEvent) {
	h.publish(a.DeviceID, Message{Type: MessageTypeAlert, Data: a})
}

func (h *Hub) publish(deviceID string, msg Message) {
	select {
	case h.events <- event{deviceID: deviceID, message: msg}:
		metrics.LiveEventsPublished.WithLabelValues(msg.Type).Inc()
	default:
		metrics.LiveEventsDropped.Inc()
		logging.Warn().
			Str("device_id", deviceID).
			Str("message_type", msg.Type).
			Msg("event queue full, dropping live event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a device.
func (h *Hub) SubscriberCount(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[deviceID])
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "live-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("live hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes every connected client in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		h.detachLocked(client, h.clients[client])
		delete(h.clients, client)
		close(client.send)
	}
	h.subscribers = make(map[string]map[*Client]struct{})
	metrics.LiveClients.Set(0)
}

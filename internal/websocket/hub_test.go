// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub starts a hub and returns it with its cancel function.
func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return hub, cancel
}

// createTestClient builds a client without a network connection.
func createTestClient(hub *Hub, buffer int) *Client {
	return &Client{
		id:        clientIDCounter.Add(1),
		sessionID: "test",
		hub:       hub,
		send:      make(chan Message, buffer),
	}
}

func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func subscribeClient(hub *Hub, client *Client, deviceID string) {
	hub.subscribe <- subscribeRequest{client: client, deviceID: deviceID}
	time.Sleep(20 * time.Millisecond)
}

// drainAcks removes subscription acknowledgments from the send queue.
func drainAcks(client *Client) {
	for {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypeSubscribed {
				panic("unexpected non-ack message while draining")
			}
		default:
			return
		}
	}
}

func testPosition(deviceID string, ts int64) *models.Position {
	return &models.Position{
		DeviceID:  deviceID,
		Latitude:  48.85,
		Longitude: 2.35,
		Speed:     10,
		Timestamp: ts,
	}
}

func TestHubDeviceScoping(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	clientA := createTestClient(hub, 16)
	clientB := createTestClient(hub, 16)
	registerClient(hub, clientA)
	registerClient(hub, clientB)
	subscribeClient(hub, clientA, "dev-1")
	subscribeClient(hub, clientB, "dev-2")
	drainAcks(clientA)
	drainAcks(clientB)

	hub.PublishPosition(testPosition("dev-1", 1000))
	time.Sleep(20 * time.Millisecond)

	select {
	case msg := <-clientA.send:
		if msg.Type != MessageTypeLocationUpdate {
			t.Errorf("expected location_update, got %s", msg.Type)
		}
	default:
		t.Error("subscriber of dev-1 did not receive the event")
	}

	select {
	case msg := <-clientB.send:
		t.Errorf("subscriber of dev-2 received foreign event %s", msg.Type)
	default:
	}
}

func TestHubPerDeviceOrdering(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, 16)
	registerClient(hub, client)
	subscribeClient(hub, client, "dev-1")
	drainAcks(client)

	for i := int64(1); i <= 5; i++ {
		hub.PublishPosition(testPosition("dev-1", i))
	}
	time.Sleep(50 * time.Millisecond)

	for i := int64(1); i <= 5; i++ {
		select {
		case msg := <-client.send:
			p, ok := msg.Data.(*models.Position)
			if !ok {
				t.Fatalf("unexpected payload type %T", msg.Data)
			}
			if p.Timestamp != i {
				t.Fatalf("out of order: expected ts %d, got %d", i, p.Timestamp)
			}
		default:
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestHubNoReplay(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	// Published before anyone subscribes: gone.
	hub.PublishPosition(testPosition("dev-1", 1))
	time.Sleep(20 * time.Millisecond)

	client := createTestClient(hub, 16)
	registerClient(hub, client)
	subscribeClient(hub, client, "dev-1")
	drainAcks(client)

	select {
	case msg := <-client.send:
		t.Errorf("received replayed event %s", msg.Type)
	default:
	}
}

func TestHubSubscribeIdempotent(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, 16)
	registerClient(hub, client)
	subscribeClient(hub, client, "dev-1")
	subscribeClient(hub, client, "dev-1")

	if n := hub.SubscriberCount("dev-1"); n != 1 {
		t.Errorf("expected 1 subscriber after double subscribe, got %d", n)
	}
	drainAcks(client)

	hub.PublishPosition(testPosition("dev-1", 1))
	time.Sleep(20 * time.Millisecond)

	count := 0
	for {
		select {
		case <-client.send:
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("expected single delivery, got %d", count)
	}
}

func TestHubSwitchReplacesSubscription(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, 16)
	registerClient(hub, client)
	subscribeClient(hub, client, "dev-1")
	subscribeClient(hub, client, "dev-2")
	drainAcks(client)

	if n := hub.SubscriberCount("dev-1"); n != 0 {
		t.Errorf("expected old subscription gone, got %d subscribers", n)
	}
	if n := hub.SubscriberCount("dev-2"); n != 1 {
		t.Errorf("expected 1 subscriber on new device, got %d", n)
	}

	hub.PublishPosition(testPosition("dev-1", 1))
	hub.PublishPosition(testPosition("dev-2", 2))
	time.Sleep(20 * time.Millisecond)

	var got []Message
	for {
		select {
		case msg := <-client.send:
			got = append(got, msg)
			continue
		default:
		}
		break
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 event after switch, got %d", len(got))
	}
	p := got[0].Data.(*models.Position)
	if p.DeviceID != "dev-2" {
		t.Errorf("expected dev-2 event, got %s", p.DeviceID)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, 16)
	registerClient(hub, client)
	subscribeClient(hub, client, "dev-1")
	drainAcks(client)

	hub.unsubscribe <- client
	time.Sleep(20 * time.Millisecond)

	if n := hub.SubscriberCount("dev-1"); n != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", n)
	}

	hub.PublishPosition(testPosition("dev-1", 1))
	time.Sleep(20 * time.Millisecond)
	select {
	case msg := <-client.send:
		t.Errorf("unsubscribed client received %s", msg.Type)
	default:
	}
}

func TestHubSlowClientDropped(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	slow := createTestClient(hub, 1)
	registerClient(hub, slow)
	subscribeClient(hub, slow, "dev-1")
	drainAcks(slow)

	// First event fills the buffer, second overflows it.
	hub.PublishPosition(testPosition("dev-1", 1))
	hub.PublishPosition(testPosition("dev-1", 2))
	time.Sleep(50 * time.Millisecond)

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("expected slow client dropped, still %d clients", n)
	}
	if n := hub.SubscriberCount("dev-1"); n != 0 {
		t.Errorf("expected no subscribers after drop, got %d", n)
	}
}

func TestHubAlertFanOut(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, 16)
	registerClient(hub, client)
	subscribeClient(hub, client, "dev-1")
	drainAcks(client)

	hub.PublishAlert(&models.AlertEvent{
		DeviceID:  "dev-1",
		Kind:      models.AlertGPSLost,
		Timestamp: 1000,
	})
	time.Sleep(20 * time.Millisecond)

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeAlert {
			t.Errorf("expected alert message, got %s", msg.Type)
		}
		a := msg.Data.(*models.AlertEvent)
		if a.Kind != models.AlertGPSLost {
			t.Errorf("expected gps_lost, got %s", a.Kind)
		}
	default:
		t.Error("alert was not delivered")
	}
}

func TestHubGracefulShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub, 16)
	registerClient(hub, client)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after cancellation")
	}

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("expected all clients closed on shutdown, got %d", n)
	}
	if _, open := <-client.send; open {
		t.Error("expected client send channel closed")
	}
}

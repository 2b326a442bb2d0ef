package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)

	msg := NewMessage("badge_collection", "submitted", 42, map[string]any{"baby_id": float64(1)})
	hub.Broadcast(msg)

	// Check both clients received the message
	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "badge_collection_submitted" {
				t.Errorf("expected type badge_collection_submitted, got %s", got.Type)
			}
			if got.Entity != "badge_collection" {
				t.Errorf("expected entity badge_collection, got %s", got.Entity)
			}
			if got.ID != 42 {
				t.Errorf("expected id 42, got %d", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestSendToUsersScopesDelivery(t *testing.T) {
	hub := NewHub(slog.Default())

	member := mockClient(hub, 1)
	memberSecondDevice := mockClient(hub, 1)
	outsider := mockClient(hub, 2)
	hub.Register(member)
	hub.Register(memberSecondDevice)
	hub.Register(outsider)

	hub.SendToUsers([]int64{1}, NewMessage("family_member", "added", 7, nil))

	// Every connection of a targeted user receives the event.
	for _, c := range []*Client{member, memberSecondDevice} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "family_member_added" {
				t.Errorf("expected type family_member_added, got %s", got.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case <-outsider.send:
		t.Fatal("outsider should not receive a scoped message")
	default:
	}

	hub.Unregister(member)
	hub.Unregister(memberSecondDevice)
	hub.Unregister(outsider)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	msg := NewMessage("baby", "deleted", 1, nil)
	hub.Broadcast(msg)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", 999, nil))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("badge_collection", "verified", 5, nil)
	if msg.Type != "badge_collection_verified" {
		t.Errorf("expected type badge_collection_verified, got %s", msg.Type)
	}
	if msg.Entity != "badge_collection" {
		t.Errorf("expected entity badge_collection, got %s", msg.Entity)
	}
	if msg.Action != "verified" {
		t.Errorf("expected action verified, got %s", msg.Action)
	}
	if msg.ID != 5 {
		t.Errorf("expected id 5, got %d", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := mockClient(hub, id)
			hub.Register(c)
			hub.Broadcast(NewMessage("test", "concurrent", 0, nil))
			hub.SendToUsers([]int64{id}, NewMessage("test", "scoped", 0, nil))
			// Drain any messages
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

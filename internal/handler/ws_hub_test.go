package handler

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spyword/server/internal/event"
)

func newTestConn(id string) *WSConn {
	return &WSConn{
		conn: nil, // no real connection for hub tests
		id:   id,
		send: make(chan []byte, 256),
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestConn("conn-1")

	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}

	hub.Unregister(c)
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubGroupMembership(t *testing.T) {
	hub := NewHub()
	c := newTestConn("conn-1")
	hub.Register(c)
	defer hub.Unregister(c)

	hub.AddToGroup("conn-1", "ROOM1")
	if hub.RoomMemberCount("ROOM1") != 1 {
		t.Errorf("expected 1 member, got %d", hub.RoomMemberCount("ROOM1"))
	}

	hub.RemoveFromGroup("conn-1", "ROOM1")
	if hub.RoomMemberCount("ROOM1") != 0 {
		t.Errorf("expected 0 members, got %d", hub.RoomMemberCount("ROOM1"))
	}
}

func TestHubPublishRoom(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("conn-1")
	c2 := newTestConn("conn-2")
	c3 := newTestConn("conn-3") // not in the room

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)
	defer hub.Unregister(c3)

	hub.AddToGroup("conn-1", "ROOM1")
	hub.AddToGroup("conn-2", "ROOM1")

	hub.PublishRoom("ROOM1", event.Envelope{
		Type: event.TypeChatMessage,
		Room: "ROOM1",
		Data: event.ChatData{PlayerID: "p1", Name: "ada", Text: "hello"},
	})

	// c1 and c2 should receive, c3 should not
	select {
	case msg := <-c1.send:
		var env event.Envelope
		json.Unmarshal(msg, &env)
		if env.Type != event.TypeChatMessage {
			t.Errorf("expected chat, got %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Error("c1 did not receive broadcast")
	}

	select {
	case <-c2.send:
		// ok
	case <-time.After(time.Second):
		t.Error("c2 did not receive broadcast")
	}

	select {
	case <-c3.send:
		t.Error("c3 should not have received broadcast")
	default:
		// ok
	}
}

func TestHubPublishConn(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("conn-1")
	c2 := newTestConn("conn-2")

	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)

	hub.PublishConn("conn-1", event.Envelope{
		Type: event.TypeRoomState,
		Room: "ROOM1",
	})

	select {
	case <-c1.send:
		// ok
	case <-time.After(time.Second):
		t.Error("conn-1 did not receive direct message")
	}

	select {
	case <-c2.send:
		t.Error("conn-2 should not have received conn-1's message")
	default:
		// ok
	}
}

func TestHubUnregisterCleansUpGroups(t *testing.T) {
	hub := NewHub()
	c := newTestConn("conn-1")
	hub.Register(c)
	hub.AddToGroup("conn-1", "ROOM1")
	hub.AddToGroup("conn-1", "ROOM2")

	hub.Unregister(c)

	if hub.RoomMemberCount("ROOM1") != 0 {
		t.Errorf("expected 0 members for ROOM1 after unregister")
	}
	if hub.RoomMemberCount("ROOM2") != 0 {
		t.Errorf("expected 0 members for ROOM2 after unregister")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	// Concurrently register, join, publish, unregister
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := newTestConn(fmt.Sprintf("conn-%d", id))
			hub.Register(c)
			hub.AddToGroup(c.id, "ROOM1")
			hub.PublishRoom("ROOM1", event.Envelope{Type: event.TypeChatMessage, Room: "ROOM1"})
			hub.RemoveFromGroup(c.id, "ROOM1")
			hub.Unregister(c)
		}(i)
	}

	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}

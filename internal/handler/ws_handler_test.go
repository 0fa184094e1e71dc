package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/repository/memory"
	"github.com/spyword/server/internal/service"
)

func newTestWSHandler(t *testing.T) (*WSHandler, *service.RoomService) {
	t.Helper()
	store := memory.NewStore()
	disp := service.NewDispatcher(nil, memory.NewScheduler(time.Minute))
	opts := service.DefaultOptions()
	rooms := service.NewRoomService(store, store, disp, opts)
	game := service.NewGameService(store, disp, opts)
	return NewWSHandler(NewHub(), rooms, game), rooms
}

func TestJoinWhileBoundToRoomRejected(t *testing.T) {
	h, rooms := newTestWSHandler(t)
	ctx := context.Background()

	first, err := rooms.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	second, err := rooms.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	c := &WSConn{id: "conn-a", send: make(chan []byte, 8)}
	payload := json.RawMessage(`{"name":"ann","avatar_id":1}`)

	if err := h.dispatch(ctx, c, Command{Action: "join", Room: first, Data: payload}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if c.room != first {
		t.Fatalf("expected connection bound to %s, got %q", first, c.room)
	}

	err = h.dispatch(ctx, c, Command{Action: "join", Room: second, Data: payload})
	if apperr.KindOf(err) != apperr.KindActionFailed {
		t.Fatalf("expected second join rejected, got %v", err)
	}
	if c.room != first {
		t.Errorf("expected connection still bound to %s, got %q", first, c.room)
	}

	// The second room must not have gained a player.
	snap, err := rooms.Snapshot(ctx, second, 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Players) != 0 {
		t.Errorf("expected no players in the second room, got %d", len(snap.Players))
	}
}

func TestReconnectWhileBoundToRoomRejected(t *testing.T) {
	h, rooms := newTestWSHandler(t)
	ctx := context.Background()

	code, err := rooms.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	c := &WSConn{id: "conn-a", send: make(chan []byte, 8)}
	if err := h.dispatch(ctx, c, Command{
		Action: "join",
		Room:   code,
		Data:   json.RawMessage(`{"name":"ann","avatar_id":1}`),
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	err = h.dispatch(ctx, c, Command{
		Action: "reconnect",
		Room:   code,
		Data:   json.RawMessage(`{"player_id":"someone"}`),
	})
	if apperr.KindOf(err) != apperr.KindActionFailed {
		t.Errorf("expected reconnect on a bound connection rejected, got %v", err)
	}
}

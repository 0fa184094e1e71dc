package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/model"
	"github.com/spyword/server/internal/service"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256

	commandTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled upstream; tighten in production
	},
}

// Command is the envelope for client-to-server messages.
type Command struct {
	Action string          `json:"action"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

// errorFrame is sent back when a command is rejected.
type errorFrame struct {
	Type string `json:"type"`
	Data struct {
		Action  string `json:"action"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"data"`
}

// WSHandler upgrades connections and routes client commands into the
// services. Identity is the connection itself: each socket gets a fresh
// connection id, and reconnects rebind a player's public id to a new one.
type WSHandler struct {
	hub   *Hub
	rooms *service.RoomService
	game  *service.GameService
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, rooms *service.RoomService, game *service.GameService) *WSHandler {
	return &WSHandler{hub: hub, rooms: rooms, game: game}
}

// ServeWS handles GET /ws and upgrades to WebSocket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	welcome, _ := json.Marshal(map[string]any{
		"type": "connected",
		"data": map[string]string{"conn_id": client.id},
	})
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("connId", client.id).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads commands from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		if c.room != "" {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			if err := h.rooms.Disconnected(ctx, c.room, c.id); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
				log.Error().Err(err).Str("connId", c.id).Str("room", c.room).Msg("Disconnect handling failed")
			}
			cancel()
		}
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("connId", c.id).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connId", c.id).Msg("WebSocket unexpected close")
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		h.handleCommand(c, cmd)
	}
}

// handleCommand routes one command to its service method and reports
// failures back on the same connection.
func (h *WSHandler) handleCommand(c *WSConn, cmd Command) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := h.dispatch(ctx, c, cmd)
	if err == nil {
		return
	}

	var frame errorFrame
	frame.Type = "error"
	frame.Data.Action = cmd.Action
	frame.Data.Kind = string(apperr.KindOf(err))
	frame.Data.Message = err.Error()
	if frame.Data.Kind == string(apperr.KindUnknown) {
		log.Error().Err(err).Str("action", cmd.Action).Str("room", cmd.Room).Msg("Command failed")
		frame.Data.Message = "internal error"
	}

	data, _ := json.Marshal(frame)
	select {
	case c.send <- data:
	default:
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *WSConn, cmd Command) error {
	switch cmd.Action {
	case "join":
		if c.room != "" {
			return apperr.ActionFailed("connection already in a room")
		}
		var p struct {
			Name     string `json:"name"`
			AvatarID int    `json:"avatar_id"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed join payload")
		}
		if err := h.rooms.Join(ctx, cmd.Room, c.id, p.Name, p.AvatarID); err != nil {
			return err
		}
		c.room = cmd.Room
		return nil

	case "reconnect":
		if c.room != "" {
			return apperr.ActionFailed("connection already in a room")
		}
		var p struct {
			PlayerID string `json:"player_id"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed reconnect payload")
		}
		if err := h.rooms.Reconnect(ctx, cmd.Room, p.PlayerID, c.id); err != nil {
			return err
		}
		c.room = cmd.Room
		return nil

	case "leave":
		if err := h.rooms.Leave(ctx, cmd.Room, c.id); err != nil {
			return err
		}
		c.room = ""
		return nil

	case "set_name":
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.rooms.SetName(ctx, cmd.Room, c.id, p.Name)

	case "set_avatar":
		var p struct {
			AvatarID int `json:"avatar_id"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.rooms.SetAvatar(ctx, cmd.Room, c.id, p.AvatarID)

	case "set_ready":
		var p struct {
			Ready bool `json:"ready"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.rooms.SetReady(ctx, cmd.Room, c.id, p.Ready)

	case "update_settings":
		var p model.Settings
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed settings payload")
		}
		return h.rooms.UpdateSettings(ctx, cmd.Room, c.id, p)

	case "kick":
		var p struct {
			PlayerID string `json:"player_id"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.rooms.Kick(ctx, cmd.Room, c.id, p.PlayerID)

	case "chat":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.rooms.Chat(ctx, cmd.Room, c.id, p.Text)

	case "start_game":
		return h.game.StartGame(ctx, cmd.Room, c.id)

	case "accuse":
		var p struct {
			TargetID string `json:"target_id"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.game.StartAccusation(ctx, cmd.Room, c.id, p.TargetID)

	case "vote":
		var p struct {
			TargetID string `json:"target_id"`
			Choice   string `json:"choice"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.game.CastVote(ctx, cmd.Room, c.id, p.TargetID, model.VoteChoice(p.Choice))

	case "final_vote":
		var p struct {
			TargetID string `json:"target_id"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.game.CastFinalVote(ctx, cmd.Room, c.id, p.TargetID)

	case "guess_word":
		var p struct {
			Word string `json:"word"`
		}
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return apperr.ValidationFailed("malformed payload")
		}
		return h.game.GuessWord(ctx, cmd.Room, c.id, p.Word)

	case "stop_timer":
		return h.game.VoteStopTimer(ctx, cmd.Room, c.id)

	case "return_to_lobby":
		return h.game.ReturnToLobby(ctx, cmd.Room, c.id)

	default:
		return apperr.ValidationFailed("unknown action %q", cmd.Action)
	}
}

// writePump writes buffered messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hilo/internal/game"
	"hilo/internal/room"

	"go.uber.org/zap"
)

// Inbound WebSocket message types.
const (
	msgStartGame   = "start_game"
	msgStartRound  = "start_round"
	msgMakeMarket  = "make_market"
	msgTakeMarket  = "take_market"
	msgEndRound    = "end_round"
	msgCloseMarket = "close_market"
	msgOpenMarket  = "open_market"

	// Sent to a client right after it connects.
	msgState = "state"
	msgError = "error"
)

const opTimeout = 10 * time.Second

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type marketData struct {
	Action string          `json:"action"`
	Number json.RawMessage `json:"number"`
}

// handleWebSocket subscribes a seated player to their room's events.
// Query: ?room=<id or code>&username=<name>.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomRef := r.URL.Query().Get("room")
	username := r.URL.Query().Get("username")
	if roomRef == "" || username == "" {
		writeJSON(w, http.StatusBadRequest, failure("room and username are required"))
		return
	}

	sum, err := s.svc.Room(r.Context(), roomRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seated := false
	for _, name := range sum.Players {
		if strings.EqualFold(name, username) {
			username = name
			seated = true
			break
		}
	}
	if !seated {
		writeJSON(w, http.StatusNotFound, failure("player is not in this room"))
		return
	}
	roomID := sum.ID

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(s.hub, conn, roomID, username)
	s.hub.Register(client)
	if snap, err := s.svc.Snapshot(r.Context(), roomID); err == nil {
		client.Send(room.Event{Type: msgState, Success: true, Data: snap})
	}

	go client.WritePump()

	if err := s.svc.SetStatus(r.Context(), roomID, username, game.StatusActive); err != nil {
		s.logger.Warn("failed to mark player active", zap.String("room_id", roomID), zap.Error(err))
	}

	go func() {
		client.ReadPump(s.handleMessage)
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		// The player may already have left the room.
		if err := s.svc.SetStatus(ctx, roomID, username, game.StatusDisconnected); err != nil &&
			game.KindOf(err) == game.KindInternal {
			s.logger.Warn("failed to mark player disconnected", zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}

// handleMessage runs one inbound command. Successes are broadcast by the
// service; failures go back to the sender only.
func (s *Server) handleMessage(c *Client, message []byte) {
	var msg inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Send(room.Event{Type: msgError, Message: "malformed message"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case msgStartGame:
		err = s.svc.StartGame(ctx, c.roomID)
	case msgStartRound:
		err = s.svc.StartNewRound(ctx, c.roomID)
	case msgMakeMarket:
		var data marketData
		if err = decodeData(msg.Data, &data); err != nil {
			break
		}
		var number int
		if number, err = parseNumber(data.Number); err != nil {
			break
		}
		_, err = s.svc.MakeMarket(ctx, c.roomID, c.username, data.Action, number)
	case msgTakeMarket:
		var data marketData
		if err = decodeData(msg.Data, &data); err != nil {
			break
		}
		_, err = s.svc.TakeMarket(ctx, c.roomID, c.username, data.Action)
	case msgEndRound:
		_, err = s.svc.EndRound(ctx, c.roomID)
	case msgCloseMarket:
		err = s.svc.CloseMarket(ctx, c.roomID)
	case msgOpenMarket:
		err = s.svc.OpenMarket(ctx, c.roomID)
	default:
		c.Send(room.Event{Type: msgError, Message: "unknown message type " + strconv.Quote(msg.Type)})
		return
	}

	if err != nil {
		if game.KindOf(err) == game.KindInternal {
			s.logger.Error("websocket command failed",
				zap.String("room_id", c.roomID),
				zap.String("username", c.username),
				zap.String("type", msg.Type),
				zap.Error(err))
		}
		out := game.OutcomeOf("", err)
		c.Send(room.Event{Type: msg.Type, Success: false, Message: out.Message})
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return game.Errorf(game.ErrInvalidAction, "missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return game.Errorf(game.ErrInvalidAction, "malformed data")
	}
	return nil
}

// parseNumber accepts a JSON integer or a string holding one.
func parseNumber(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			return n, nil
		}
	}
	return 0, game.Errorf(game.ErrInvalidNumber, "number must be an integer, got %s", string(raw))
}

// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/typebattle/typebattle/internal/protocol"
	"github.com/typebattle/typebattle/internal/room"
	"github.com/typebattle/typebattle/internal/ws"
)

// EventConnected announces the transient connection ID right after accept, so
// the client can cache it as a future previousSocketId reconciliation hint.
const EventConnected = "connected"

type connectedData struct {
	SocketID string `json:"socketId"`
}

// BattleWSHandler upgrades the HTTP connection to the battle websocket,
// registers the session, and runs the read loop until the client goes away.
// Every client event on the connection is dispatched to the room service.
func BattleWSHandler(logger *logrus.Logger, svc *room.Service, reg *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"battle"},
			OriginPatterns: []string{"*"}, // Adjust in production.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "battle" {
			c.Close(BadSubprotocolError, "client must speak the battle subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		sess := ws.NewSession(cancel, logger)
		reg.Add(sess)
		logger.WithFields(logrus.Fields{
			"conn":   sess.ID,
			"remote": r.RemoteAddr,
		}).Info("client connected")

		sess.Send(protocol.ServerMessage{
			Event: EventConnected,
			Data:  connectedData{SocketID: sess.ID},
		})

		go writePump(ctx, c, sess, logger)

		readPump(ctx, c, sess, svc, logger)

		// Disconnect runs leave semantics for every room holding this
		// connection before the registry forgets it.
		svc.Disconnect(sess.ID)
		reg.Remove(sess.ID)
		logger.WithField("conn", sess.ID).Info("client disconnected")
	}
}

// readPump reads frames until the connection closes and dispatches each event
// to the room service. Malformed frames are logged and answered, never fatal.
func readPump(ctx context.Context, c *websocket.Conn, sess *ws.Session, svc *room.Service, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.WithField("conn", sess.ID).Info("websocket closed normally")
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.WithField("conn", sess.ID).Warnf("read error: %v (status %d)", err, status)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.WithField("conn", sess.ID).Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithField("conn", sess.ID).Warnf("invalid json frame: %v", err)
			sess.Send(protocol.ServerMessage{
				Event: protocol.EventRoomError,
				Data:  protocol.ErrorData{Error: "invalid message format"},
			})
			continue
		}

		dispatch(sess, svc, msg, logger)
	}
}

// dispatch decodes the event payload and invokes the matching room operation.
func dispatch(sess *ws.Session, svc *room.Service, msg protocol.ClientMessage, logger *logrus.Logger) {
	decode := func(v interface{}) bool {
		if len(msg.Data) == 0 {
			return true // absent payloads surface as zero values -> InvalidRoomCode paths
		}
		if err := json.Unmarshal(msg.Data, v); err != nil {
			logger.WithFields(logrus.Fields{
				"conn":  sess.ID,
				"event": msg.Event,
			}).Warnf("bad payload: %v", err)
			sess.Send(protocol.ServerMessage{
				Event: protocol.EventRoomError,
				Data:  protocol.ErrorData{Error: "invalid payload"},
			})
			return false
		}
		return true
	}

	switch msg.Event {
	case protocol.EventCreateRoom:
		var p protocol.CreateRoomPayload
		if decode(&p) {
			svc.CreateRoom(sess.ID, p)
		}
	case protocol.EventJoinRoom:
		var p protocol.RoomPayload
		if decode(&p) {
			svc.JoinRoom(sess.ID, p.RoomCode)
		}
	case protocol.EventPlayerReady:
		var p protocol.RoomPayload
		if decode(&p) {
			svc.SetReady(sess.ID, p.RoomCode)
		}
	case protocol.EventBattleScreenLoaded:
		var p protocol.ReconcilePayload
		if decode(&p) {
			svc.MarkLoaded(sess.ID, p)
		}
	case protocol.EventTypingProgress:
		var p protocol.TypingProgressPayload
		if decode(&p) {
			svc.TypingProgress(sess.ID, p)
		}
	case protocol.EventTypingComplete:
		var p protocol.TypingCompletePayload
		if decode(&p) {
			svc.TypingComplete(sess.ID, p)
		}
	case protocol.EventLeaveRoom:
		var p protocol.RoomPayload
		if decode(&p) {
			svc.Leave(sess.ID, p.RoomCode)
		}
	case protocol.EventEnsureInRoom:
		var p protocol.ReconcilePayload
		if decode(&p) {
			svc.EnsureInRoom(sess.ID, p)
		}
	case protocol.EventGetGameStatus:
		var p protocol.ReconcilePayload
		if decode(&p) {
			svc.GameStatus(sess.ID, p)
		}
	case protocol.EventRematchRequest:
		var p protocol.RematchRequestPayload
		if decode(&p) {
			svc.RematchRequest(sess.ID, p)
		}
	case protocol.EventRematchAccepted:
		var p protocol.RematchReplyPayload
		if decode(&p) {
			svc.RematchAccepted(sess.ID, p)
		}
	case protocol.EventRematchDeclined:
		var p protocol.RematchReplyPayload
		if decode(&p) {
			svc.RematchDeclined(sess.ID, p)
		}
	case protocol.EventGiveUp:
		var p protocol.RoomPayload
		if decode(&p) {
			svc.GiveUp(sess.ID, p.RoomCode)
		}
	case protocol.EventPing:
		sess.Send(protocol.ServerMessage{Event: protocol.EventPong})
	default:
		logger.WithFields(logrus.Fields{
			"conn":  sess.ID,
			"event": msg.Event,
		}).Warn("unknown event")
		sess.Send(protocol.ServerMessage{
			Event: protocol.EventRoomError,
			Data:  protocol.ErrorData{Error: "unknown event: " + msg.Event},
		})
	}
}

// writePump drains the session's outbound queue onto the wire and keeps the
// connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, sess *ws.Session, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sess.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithField("conn", sess.ID).Warnf("marshal outbound %s: %v", msg.Event, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithField("conn", sess.ID).Warnf("write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithField("conn", sess.ID).Warnf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}

// internal/ws/session.go
package ws

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/typebattle/typebattle/internal/protocol"
)

// Session is one client's live websocket presence. The ID is transient: a
// reload or reconnect yields a new Session, and the room layer's identity
// reconciliation rebinds the player slot to it.
type Session struct {
	ID      string
	OutChan chan protocol.ServerMessage
	Cancel  context.CancelFunc

	log *logrus.Logger
}

// NewSession allocates a session with a fresh transient ID and a buffered
// outbound queue drained by the write pump.
func NewSession(cancel context.CancelFunc, log *logrus.Logger) *Session {
	return &Session{
		ID:      uuid.NewString(),
		OutChan: make(chan protocol.ServerMessage, 32),
		Cancel:  cancel,
		log:     log,
	}
}

// Send pushes a message onto the session's outbound queue without blocking.
// A full or closed queue drops the message; room state is the source of truth
// and clients resync via ensureInRoom.
func (s *Session) Send(msg protocol.ServerMessage) {
	defer func() {
		if recover() != nil {
			s.log.WithField("conn", s.ID).Warn("send on closed session queue")
		}
	}()
	select {
	case s.OutChan <- msg:
	default:
		s.log.WithFields(logrus.Fields{
			"conn":  s.ID,
			"event": msg.Event,
		}).Warn("outbound queue full, dropped message")
	}
}

// Close shuts the outbound queue and cancels the session's pumps.
func (s *Session) Close() {
	defer func() { recover() }() // double close is a no-op
	close(s.OutChan)
	if s.Cancel != nil {
		s.Cancel()
	}
}

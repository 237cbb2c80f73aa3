// internal/room/rematch.go
package room

import (
	"github.com/sirupsen/logrus"
	"github.com/typebattle/typebattle/internal/protocol"
)

// The rematch broker relays proposals between the two participants of a
// finished room, keyed by the original room code. It never creates the new
// room itself: acceptance makes the clients re-enter createRoom/joinRoom
// against the fresh code.

// RematchRequest forwards a rematch proposal to the opponent slot of the
// original room: the player whose connection differs from the requester's
// and who has not gone inactive.
func (s *Service) RematchRequest(connID string, p protocol.RematchRequestPayload) {
	if p.OriginalRoomCode == "" || p.NewRoomCode == "" {
		s.sendRematchError(connID, ErrInvalidRoomCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.OriginalRoomCode)
	if !ok {
		s.sendRematchError(connID, ErrRoomNotFound)
		return
	}
	opp := r.activeOpponent(connID)
	if opp == nil {
		s.sendRematchError(connID, ErrOpponentUnavailable)
		return
	}

	s.transport.ToConn(opp.ConnID, protocol.ServerMessage{
		Event: protocol.EventRematchRequest,
		Data: protocol.RematchRequestData{
			RoomCode:     p.NewRoomCode,
			FromSocketID: connID,
			Settings:     p.Settings,
		},
	})
	s.log.WithFields(logrus.Fields{
		"room":    p.OriginalRoomCode,
		"newRoom": p.NewRoomCode,
		"from":    connID,
	}).Info("rematch request relayed")
}

// RematchAccepted relays an acceptance back to the original requester via the
// symmetric reverse lookup.
func (s *Service) RematchAccepted(connID string, p protocol.RematchReplyPayload) {
	if p.OriginalRoomCode == "" || p.NewRoomCode == "" {
		s.sendRematchError(connID, ErrInvalidRoomCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.OriginalRoomCode)
	if !ok {
		return
	}
	requester := r.activeOpponent(connID)
	if requester == nil {
		return
	}
	s.transport.ToConn(requester.ConnID, protocol.ServerMessage{
		Event: protocol.EventRematchAccepted,
		Data:  protocol.RematchReplyData{RoomCode: p.NewRoomCode},
	})
}

// RematchDeclined relays a decline notice to the original requester.
func (s *Service) RematchDeclined(connID string, p protocol.RematchReplyPayload) {
	if p.OriginalRoomCode == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.OriginalRoomCode)
	if !ok {
		return
	}
	requester := r.activeOpponent(connID)
	if requester == nil {
		return
	}
	s.transport.ToConn(requester.ConnID, protocol.ServerMessage{
		Event: protocol.EventRematchDeclined,
	})
}

// activeOpponent finds the slot whose bound connection differs from connID
// and whose inactive flag is clear.
func (r *Room) activeOpponent(connID string) *Player {
	for _, p := range r.Players {
		if p.ConnID != connID && !p.Inactive {
			return p
		}
	}
	return nil
}

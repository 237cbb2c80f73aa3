// internal/room/countdown.go
package room

import (
	"context"
	"time"

	"github.com/typebattle/typebattle/internal/protocol"
)

// startCountdownLocked begins the synchronized pre-battle countdown. The
// phase transition plus the active-countdown set guarantee at most one driver
// per room, so a duplicate trigger (two near-simultaneous markLoaded calls)
// is a no-op. Caller holds the service mutex.
func (s *Service) startCountdownLocked(r *Room) {
	if _, active := s.countdowns[r.Code]; active {
		return
	}
	if !r.transition(PhaseCounting) {
		return
	}

	count := s.countdownFrom
	r.CurrentCount = &count

	ctx, cancel := context.WithCancel(context.Background())
	s.countdowns[r.Code] = cancel

	s.transport.ToRoom(r.Code, protocol.ServerMessage{
		Event: protocol.EventSyncCountdown,
		Data:  protocol.SyncCountdownData{Count: count},
	})
	s.log.WithField("room", r.Code).Info("countdown started")

	go s.runCountdown(ctx, r.Code, count)
}

// runCountdown drives one room's ticker, decrementing from the initial value
// to zero and then signalling battle start. Each tick re-checks that the room
// still exists: deletion mid-countdown cancels the driver.
func (s *Service) runCountdown(ctx context.Context, code string, count int) {
	ticker := time.NewTicker(s.countdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count--

			s.mu.Lock()
			r, ok := s.store.Get(code)
			if !ok || r.Phase != PhaseCounting {
				s.cancelCountdownLocked(code)
				s.mu.Unlock()
				return
			}

			if count > 0 {
				current := count
				r.CurrentCount = &current
				s.transport.ToRoom(code, protocol.ServerMessage{
					Event: protocol.EventSyncCountdown,
					Data:  protocol.SyncCountdownData{Count: count},
				})
				s.mu.Unlock()
				continue
			}

			r.CurrentCount = nil
			s.transport.ToRoom(code, protocol.ServerMessage{
				Event: protocol.EventSyncCountdown,
				Data:  protocol.SyncCountdownData{Count: 0},
			})
			s.transport.ToRoom(code, protocol.ServerMessage{Event: protocol.EventBattleStart})
			r.transition(PhaseBattling)
			s.cancelCountdownLocked(code)
			s.log.WithField("room", code).Info("battle started")
			s.mu.Unlock()
			return
		}
	}
}

// cancelCountdownLocked stops and forgets a room's countdown driver, if any.
// Caller holds the service mutex.
func (s *Service) cancelCountdownLocked(code string) {
	if cancel, ok := s.countdowns[code]; ok {
		cancel()
		delete(s.countdowns, code)
	}
}

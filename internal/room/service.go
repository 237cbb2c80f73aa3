// internal/room/service.go
package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/typebattle/typebattle/internal/protocol"
)

// Transport is the connection-registry surface the service needs: group
// membership plus send-to-one and broadcast primitives. Sends must never
// block; the ws registry enqueues and drops on backpressure.
type Transport interface {
	Join(roomCode, connID string)
	Leave(roomCode, connID string)
	ToConn(connID string, msg protocol.ServerMessage)
	ToRoom(roomCode string, msg protocol.ServerMessage)
}

// MatchRecord is the finished-match summary handed to the history sink.
type MatchRecord struct {
	MatchID   string                 `json:"match_id"`
	RoomCode  string                 `json:"room_code"`
	Winner    string                 `json:"winner"`
	Forfeit   bool                   `json:"forfeit"`
	Players   []protocol.PlayerState `json:"players"`
	CreatedAt time.Time              `json:"created_at"`
	EndedAt   time.Time              `json:"ended_at"`
}

// MatchSink receives finished matches. Publish must not block the caller for
// long; it runs on the game-over path.
type MatchSink interface {
	Publish(rec MatchRecord)
}

// Options tunes a Service. Zero values fall back to production defaults;
// tests inject short countdown ticks and a fake clock.
type Options struct {
	CountdownFrom int
	CountdownTick time.Duration
	InactiveMax   time.Duration
	Generate      func(kind, language string) string
	Sink          MatchSink
	Now           func() time.Time
}

// Service owns the room table and the active-countdown set. Every operation
// runs to completion under one mutex: handlers, countdown ticks and the reaper
// are atomic relative to each other, so no torn reads of room state are
// possible.
type Service struct {
	mu         sync.Mutex
	store      *Store
	countdowns map[string]context.CancelFunc

	transport Transport
	log       *logrus.Logger

	countdownFrom int
	countdownTick time.Duration
	inactiveMax   time.Duration
	generate      func(kind, language string) string
	sink          MatchSink
	now           func() time.Time
}

// NewService wires a Service from its collaborators.
func NewService(transport Transport, logger *logrus.Logger, opts Options) *Service {
	if opts.CountdownFrom <= 0 {
		opts.CountdownFrom = 3
	}
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = time.Second
	}
	if opts.InactiveMax <= 0 {
		opts.InactiveMax = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Generate == nil {
		opts.Generate = func(kind, language string) string { return "" }
	}
	return &Service{
		store:         NewStore(),
		countdowns:    make(map[string]context.CancelFunc),
		transport:     transport,
		log:           logger,
		countdownFrom: opts.CountdownFrom,
		countdownTick: opts.CountdownTick,
		inactiveMax:   opts.InactiveMax,
		generate:      opts.Generate,
		sink:          opts.Sink,
		now:           opts.Now,
	}
}

func (s *Service) sendError(connID string, err error) {
	s.transport.ToConn(connID, protocol.ServerMessage{
		Event: protocol.EventRoomError,
		Data:  protocol.ErrorData{Error: err.Error()},
	})
}

// sendRematchError uses the plain error event the rematch flow speaks.
func (s *Service) sendRematchError(connID string, err error) {
	s.transport.ToConn(connID, protocol.ServerMessage{
		Event: protocol.EventError,
		Data:  protocol.ErrorData{Error: err.Error()},
	})
}

// CreateRoom creates a room under a caller-supplied code, generating the
// race text once so both players get identical content. A duplicate create
// from the original creator, or against a room whose game already started,
// is absorbed as idempotent re-entry (client retries cause these).
func (s *Service) CreateRoom(connID string, p protocol.CreateRoomPayload) {
	if p.RoomCode == "" {
		s.sendError(connID, ErrInvalidRoomCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, exists := s.store.Get(p.RoomCode); exists {
		if r.Creator == connID || r.Started() {
			s.transport.Join(p.RoomCode, connID)
			s.transport.ToConn(connID, protocol.ServerMessage{
				Event: protocol.EventRoomCreated,
				Data:  protocol.RoomCreatedData{RoomCode: p.RoomCode, PlayerID: connID},
			})
			return
		}
		s.sendError(connID, ErrRoomAlreadyExists)
		return
	}

	now := s.now()
	gameText := s.generate(p.Settings.Type, p.Settings.Language)
	r := newRoom(p.RoomCode, connID, p.Settings, gameText, now)
	r.addPlayer(connID, now)
	s.store.Add(r)
	s.transport.Join(p.RoomCode, connID)

	s.transport.ToConn(connID, protocol.ServerMessage{
		Event: protocol.EventRoomCreated,
		Data:  protocol.RoomCreatedData{RoomCode: p.RoomCode, PlayerID: connID},
	})
	s.log.WithFields(logrus.Fields{
		"room": p.RoomCode,
		"conn": connID,
		"type": p.Settings.Type,
	}).Info("room created")
}

// JoinRoom appends a second player slot and announces the new roster.
func (s *Service) JoinRoom(connID, code string) {
	if code == "" {
		s.sendError(connID, ErrInvalidRoomCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(code)
	if !ok {
		s.sendError(connID, ErrRoomNotFound)
		return
	}
	if len(r.Players) >= MaxPlayers {
		s.sendError(connID, ErrRoomFull)
		return
	}

	now := s.now()
	r.addPlayer(connID, now)
	r.touch(now)
	s.transport.Join(code, connID)

	s.transport.ToConn(connID, protocol.ServerMessage{
		Event: protocol.EventRoomJoined,
		Data:  protocol.RoomJoinedData{RoomCode: code, PlayerID: connID, Settings: r.Settings},
	})
	s.transport.ToRoom(code, protocol.ServerMessage{
		Event: protocol.EventPlayerJoined,
		Data:  protocol.PlayerJoinedData{Players: r.roster()},
	})
	s.log.WithFields(logrus.Fields{"room": code, "conn": connID}).Info("player joined")
}

// SetReady marks the caller's slot ready and, when readiness completes with a
// full room, freezes the game as started and reveals gameText to both sides.
// This broadcast is the only point that exposes the text.
func (s *Service) SetReady(connID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(code)
	if !ok {
		return
	}
	idx := r.slotByConn(connID)
	if idx == -1 {
		return
	}

	r.Players[idx].Ready = true
	r.touch(s.now())
	allReady := r.allReady()

	s.transport.ToRoom(code, protocol.ServerMessage{
		Event: protocol.EventPlayerStatusUpdate,
		Data:  protocol.PlayerStatusUpdateData{Players: r.roster(), AllReady: allReady},
	})

	if allReady && r.transition(PhaseReady) {
		r.TransitionStartTime = s.now()
		s.transport.ToRoom(code, protocol.ServerMessage{
			Event: protocol.EventGameStart,
			Data:  protocol.GameStartData{GameText: r.GameText, Players: r.roster()},
		})
		s.log.WithField("room", code).Info("game start broadcast")
	}
}

// MarkLoaded records that the caller's battle screen is up, reconciling the
// connection to its slot first. A player missing from a room with spare
// capacity gets a synthesized ready+loaded slot: a resilience patch for
// clients that reached the battle screen without an explicit joinRoom. Once
// every slot reports loaded the countdown starts (idempotently).
func (s *Service) MarkLoaded(connID string, p protocol.ReconcilePayload) {
	if p.RoomCode == "" {
		s.sendError(connID, ErrInvalidRoomCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.RoomCode)
	if !ok {
		s.sendError(connID, ErrRoomNotFound)
		return
	}

	now := s.now()
	s.transport.Join(p.RoomCode, connID)
	r.touch(now)

	idx := r.resolveSlot(connID, p.PreviousSocketID, p.PlayerIndex)
	if idx == -1 {
		if len(r.Players) >= MaxPlayers {
			s.sendError(connID, ErrPlayerNotInRoom)
			return
		}
		pl := r.addPlayer(connID, now)
		pl.Ready = true
		pl.Loaded = true
		r.PlayersLoaded++
		idx = len(r.Players) - 1
		s.log.WithFields(logrus.Fields{"room": r.Code, "conn": connID}).
			Warn("synthesized missing player slot on battle screen load")
	} else if !r.Players[idx].Loaded {
		r.Players[idx].Loaded = true
		r.PlayersLoaded++
	}

	if r.PlayersLoaded >= len(r.Players) && r.Phase == PhaseReady {
		s.startCountdownLocked(r)
	} else if r.Phase == PhaseCounting && r.CurrentCount != nil {
		// Late loader mid-countdown: sync the in-flight value, never restart.
		s.transport.ToConn(connID, protocol.ServerMessage{
			Event: protocol.EventSyncCountdown,
			Data:  protocol.SyncCountdownData{Count: *r.CurrentCount},
		})
	}
}

// TypingProgress applies one telemetry sample: updates the sender's stats and
// deals incremental damage to the opponent. Ignored before game start and
// after the room finished.
func (s *Service) TypingProgress(connID string, p protocol.TypingProgressPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.RoomCode)
	if !ok || !r.Started() || r.Finished() {
		return
	}
	idx := r.slotByConn(connID)
	if idx == -1 {
		return
	}
	s.transport.Join(p.RoomCode, connID)

	progress := p.Progress
	if progress <= 0 || progress > 100 {
		progress = 0
	}

	now := s.now()
	pl := r.Players[idx]
	pl.WPM = p.WPM
	pl.Accuracy = p.Accuracy
	pl.Progress = progress
	pl.LastUpdate = now
	r.touch(now)

	opp := r.opponentOf(idx)
	if opp == nil {
		return
	}
	opp.Health = max(0, opp.Health-IncrementalDamage(p.WPM, p.Accuracy, progress))

	s.broadcastUpdateLocked(r)
	if opp.Health <= 0 {
		s.finishLocked(r, connID, false)
	}
}

// TypingComplete records the sender's final stats and deals the one-shot
// completion bonus to the opponent.
func (s *Service) TypingComplete(connID string, p protocol.TypingCompletePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.RoomCode)
	if !ok || !r.Started() || r.Finished() {
		return
	}
	idx := r.slotByConn(connID)
	if idx == -1 {
		return
	}
	s.transport.Join(p.RoomCode, connID)

	now := s.now()
	pl := r.Players[idx]
	pl.WPM = p.WPM
	pl.Accuracy = p.Accuracy
	pl.CompletionTime = p.Time
	pl.Progress = 100
	pl.LastUpdate = now
	r.touch(now)

	opp := r.opponentOf(idx)
	if opp == nil {
		return
	}
	opp.Health = max(0, opp.Health-CompletionDamage(p.WPM, p.Accuracy))

	if opp.Health <= 0 {
		s.finishLocked(r, connID, false)
	} else {
		s.broadcastUpdateLocked(r)
	}
}

// GiveUp forfeits: the opposing player wins immediately.
func (s *Service) GiveUp(connID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(code)
	if !ok || !r.Started() || r.Finished() {
		return
	}
	idx := r.slotByConn(connID)
	if idx == -1 {
		s.sendError(connID, ErrPlayerNotInRoom)
		return
	}
	opp := r.opponentOf(idx)
	if opp == nil {
		s.sendError(connID, ErrOpponentUnavailable)
		return
	}
	s.finishLocked(r, opp.ConnID, true)
}

// Leave removes the connection from the room's broadcast group. Pre-start the
// slot is vacated (and an emptied room deleted); post-start the slot is only
// flagged inactive so its stats and the match survive navigation away.
func (s *Service) Leave(connID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(connID, code)
}

func (s *Service) leaveLocked(connID, code string) {
	r, ok := s.store.Get(code)
	if !ok {
		return
	}
	s.transport.Leave(code, connID)

	idx := r.slotByConn(connID)
	if idx == -1 {
		return
	}

	if r.Started() {
		r.Players[idx].Inactive = true
		r.touch(s.now())
		s.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
			Info("player marked inactive in started game")
		return
	}

	r.removeSlot(idx)
	if len(r.Players) == 0 {
		s.deleteRoomLocked(r, nil)
		return
	}
	s.transport.ToRoom(code, protocol.ServerMessage{
		Event: protocol.EventPlayerLeft,
		Data:  protocol.PlayerLeftData{PlayerID: connID, Players: r.roster()},
	})
}

// Disconnect runs leave semantics against every room holding the connection.
func (s *Service) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var codes []string
	s.store.Each(func(r *Room) {
		if r.slotByConn(connID) != -1 {
			codes = append(codes, r.Code)
		}
	})
	for _, code := range codes {
		s.leaveLocked(connID, code)
	}
}

// EnsureInRoom reconciles a (re)connecting client with its slot and resends
// the current state: a stamped gameUpdate, the in-flight countdown value while
// counting, and battleStart once the battle is underway.
func (s *Service) EnsureInRoom(connID string, p protocol.ReconcilePayload) {
	if p.RoomCode == "" {
		s.sendError(connID, ErrInvalidRoomCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.RoomCode)
	if !ok {
		s.sendError(connID, ErrRoomNotFound)
		return
	}

	idx := r.resolveSlot(connID, p.PreviousSocketID, p.PlayerIndex)
	if idx == -1 {
		s.sendError(connID, ErrPlayerNotInRoom)
		return
	}

	now := s.now()
	s.transport.Join(p.RoomCode, connID)
	r.Players[idx].LastUpdate = now
	r.touch(now)

	s.transport.ToConn(connID, protocol.ServerMessage{
		Event: protocol.EventGameUpdate,
		Data:  protocol.GameUpdateData{Timestamp: now.UnixMilli(), Players: r.snapshots()},
	})
	switch {
	case r.Phase == PhaseCounting && r.CurrentCount != nil:
		s.transport.ToConn(connID, protocol.ServerMessage{
			Event: protocol.EventSyncCountdown,
			Data:  protocol.SyncCountdownData{Count: *r.CurrentCount},
		})
	case r.Phase >= PhaseBattling:
		s.transport.ToConn(connID, protocol.ServerMessage{Event: protocol.EventBattleStart})
	}
}

// GameStatus answers a read-only snapshot, reconciling identity on the way so
// polling clients recover their slot. A status poll that finds everyone loaded
// but no countdown running re-triggers the start.
func (s *Service) GameStatus(connID string, p protocol.ReconcilePayload) {
	reply := func(data protocol.GameStatusData) {
		s.transport.ToConn(connID, protocol.ServerMessage{
			Event: protocol.EventGameStatusResponse,
			Data:  data,
		})
	}

	if p.RoomCode == "" {
		reply(protocol.GameStatusData{Error: ErrInvalidRoomCode.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.store.Get(p.RoomCode)
	if !ok {
		reply(protocol.GameStatusData{Error: ErrRoomNotFound.Error()})
		return
	}

	idx := r.resolveSlot(connID, p.PreviousSocketID, p.PlayerIndex)
	if idx != -1 {
		s.transport.Join(p.RoomCode, connID)
	}
	r.touch(s.now())

	reply(protocol.GameStatusData{
		GameStarted:      r.Started(),
		PlayersLoaded:    r.PlayersLoaded,
		PlayersCount:     len(r.Players),
		CountdownStarted: r.Phase >= PhaseCounting,
		CurrentCount:     r.CurrentCount,
		PlayerFound:      idx != -1,
	})

	if r.PlayersLoaded >= len(r.Players) && r.Phase == PhaseReady {
		s.startCountdownLocked(r)
	}
}

// broadcastUpdateLocked stamps and broadcasts the room's current snapshot so
// consumers can discard stale updates.
func (s *Service) broadcastUpdateLocked(r *Room) {
	s.transport.ToRoom(r.Code, protocol.ServerMessage{
		Event: protocol.EventGameUpdate,
		Data:  protocol.GameUpdateData{Timestamp: s.now().UnixMilli(), Players: r.snapshots()},
	})
}

// finishLocked finalizes the room: terminal phase, gameOver broadcast, match
// record to the history sink. Telemetry arriving afterwards is ignored.
func (s *Service) finishLocked(r *Room, winner string, forfeit bool) {
	if !r.transition(PhaseFinished) {
		return
	}
	s.cancelCountdownLocked(r.Code)

	s.transport.ToRoom(r.Code, protocol.ServerMessage{
		Event: protocol.EventGameOver,
		Data:  protocol.GameOverData{Winner: winner, Players: r.roster(), Forfeit: forfeit},
	})
	s.log.WithFields(logrus.Fields{
		"room":    r.Code,
		"winner":  winner,
		"forfeit": forfeit,
	}).Info("game over")

	if s.sink != nil {
		rec := MatchRecord{
			MatchID:   uuid.NewString(),
			RoomCode:  r.Code,
			Winner:    winner,
			Forfeit:   forfeit,
			Players:   r.roster(),
			CreatedAt: r.CreatedAt,
			EndedAt:   s.now(),
		}
		go s.sink.Publish(rec)
	}
}

// StartReaper runs the inactivity sweep until ctx is cancelled.
func (s *Service) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReapInactive()
			}
		}
	}()
}

// ReapInactive deletes rooms that sat past the inactivity threshold, warning
// any still-connected members first. Empty rooms go unconditionally.
func (s *Service) ReapInactive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stale []*Room
	s.store.Each(func(r *Room) {
		if len(r.Players) == 0 {
			stale = append(stale, r)
			return
		}
		lastActivity := r.LastUpdate
		if lastActivity.IsZero() {
			lastActivity = r.CreatedAt
		}
		if now.Sub(lastActivity) > s.inactiveMax {
			stale = append(stale, r)
		}
	})
	for _, r := range stale {
		if len(r.Players) > 0 {
			s.deleteRoomLocked(r, errRoomClosed)
		} else {
			s.deleteRoomLocked(r, nil)
		}
	}
	if len(stale) > 0 {
		s.log.WithFields(logrus.Fields{
			"reaped": len(stale),
			"active": s.store.Len(),
		}).Info("swept inactive rooms")
	}
}

// deleteRoomLocked tears a room down: optional member notice, countdown
// cancellation, table removal.
func (s *Service) deleteRoomLocked(r *Room, notify error) {
	if notify != nil {
		s.transport.ToRoom(r.Code, protocol.ServerMessage{
			Event: protocol.EventRoomError,
			Data:  protocol.ErrorData{Error: notify.Error()},
		})
	}
	s.cancelCountdownLocked(r.Code)
	s.store.Delete(r.Code)
	s.log.WithField("room", r.Code).Info("room deleted")
}

// RoomSummary is the debug-endpoint view of one room.
type RoomSummary struct {
	Code          string    `json:"code"`
	Phase         string    `json:"phase"`
	Players       int       `json:"players"`
	PlayersLoaded int       `json:"playersLoaded"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// Summaries snapshots every live room for the debug endpoint.
func (s *Service) Summaries() []RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RoomSummary, 0, s.store.Len())
	s.store.Each(func(r *Room) {
		out = append(out, RoomSummary{
			Code:          r.Code,
			Phase:         r.Phase.String(),
			Players:       len(r.Players),
			PlayersLoaded: r.PlayersLoaded,
			CreatedAt:     r.CreatedAt,
			LastUpdate:    r.LastUpdate,
		})
	})
	return out
}

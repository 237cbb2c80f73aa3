// internal/room/room.go
package room

import (
	"time"

	"github.com/typebattle/typebattle/internal/protocol"
)

// MaxPlayers is the hard slot cap per room. Nothing in the lifecycle ever
// grows a room past it.
const MaxPlayers = 2

// Phase is the explicit room state machine. The wire protocol still speaks in
// boolean flags (gameStarted/countdownStarted/gameFinished); those are derived
// from the phase for status replies.
type Phase int

const (
	// PhaseForming: players joining and readying up.
	PhaseForming Phase = iota
	// PhaseReady: all ready, gameStart broadcast, waiting for battle screens.
	PhaseReady
	// PhaseCounting: synchronized countdown in flight.
	PhaseCounting
	// PhaseBattling: battle underway, telemetry mutating health.
	PhaseBattling
	// PhaseFinished: terminal; further telemetry is ignored.
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseForming:
		return "forming"
	case PhaseReady:
		return "ready"
	case PhaseCounting:
		return "counting"
	case PhaseBattling:
		return "battling"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// legalPredecessors validates phase transitions. Finished is reachable from
// any live phase because a forfeit or terminal health can land mid-countdown.
var legalPredecessors = map[Phase][]Phase{
	PhaseReady:    {PhaseForming},
	PhaseCounting: {PhaseReady},
	PhaseBattling: {PhaseCounting},
	PhaseFinished: {PhaseReady, PhaseCounting, PhaseBattling},
}

// Player is a slot within a Room. The slot index is the durable identity;
// ConnID is a replaceable attribute rebound on reconnect.
type Player struct {
	ConnID         string
	Ready          bool
	Loaded         bool
	Inactive       bool
	Health         float64
	WPM            float64
	Accuracy       float64
	Progress       float64
	CompletionTime float64
	LastUpdate     time.Time
}

// Room is a two-player battle session, keyed by a caller-supplied opaque code.
// All mutation is serialized by the owning Service; Room itself holds no lock.
type Room struct {
	Code     string
	Creator  string // conn ID that issued createRoom
	Settings protocol.Settings

	// GameText is fixed at creation so both players race identical content.
	// It is never reassigned; a rematch gets a new Room with fresh text.
	GameText string

	Phase   Phase
	Players []*Player

	PlayersLoaded int
	// CurrentCount is the in-flight countdown value, nil outside PhaseCounting.
	CurrentCount *int

	CreatedAt           time.Time
	LastUpdate          time.Time
	TransitionStartTime time.Time
}

func newRoom(code, creator string, settings protocol.Settings, gameText string, now time.Time) *Room {
	return &Room{
		Code:       code,
		Creator:    creator,
		Settings:   settings,
		GameText:   gameText,
		Phase:      PhaseForming,
		CreatedAt:  now,
		LastUpdate: now,
	}
}

// transition moves the room to next if the current phase is a legal
// predecessor. Returns false (and leaves the room untouched) otherwise.
func (r *Room) transition(next Phase) bool {
	for _, from := range legalPredecessors[next] {
		if r.Phase == from {
			r.Phase = next
			return true
		}
	}
	return false
}

// Started reports whether gameStart has been broadcast. Once true the room is
// never deleted by a leave or disconnect, only by the inactivity reaper.
func (r *Room) Started() bool { return r.Phase >= PhaseReady }

// Finished reports whether the room reached its terminal phase.
func (r *Room) Finished() bool { return r.Phase == PhaseFinished }

func (r *Room) touch(now time.Time) { r.LastUpdate = now }

// addPlayer appends a fresh slot bound to connID. Callers must have checked
// capacity; addPlayer refuses to exceed the cap regardless.
func (r *Room) addPlayer(connID string, now time.Time) *Player {
	if len(r.Players) >= MaxPlayers {
		return nil
	}
	p := &Player{
		ConnID:     connID,
		Health:     maxHealth,
		LastUpdate: now,
	}
	r.Players = append(r.Players, p)
	return p
}

// slotByConn returns the index of the slot currently bound to connID, or -1.
func (r *Room) slotByConn(connID string) int {
	for i, p := range r.Players {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

// resolveSlot reconciles a connection with its logical slot despite identity
// churn. Resolution order, first match wins:
//  1. connID already bound to a slot
//  2. prevConnID bound to a slot -> rebind to connID
//  3. slotIdx in range -> rebind unconditionally
//
// Any successful resolution clears the slot's inactive flag, so a returning
// player reoccupies their spot. Returns -1 when nothing matches; slot
// synthesis for pre-battle joins is the caller's decision, keeping repeated
// calls with identical hints convergent.
func (r *Room) resolveSlot(connID, prevConnID string, slotIdx *int) int {
	idx := r.slotByConn(connID)
	if idx == -1 && prevConnID != "" {
		idx = r.slotByConn(prevConnID)
	}
	if idx == -1 && slotIdx != nil && *slotIdx >= 0 && *slotIdx < len(r.Players) {
		idx = *slotIdx
	}
	if idx == -1 {
		return -1
	}
	r.Players[idx].ConnID = connID
	r.Players[idx].Inactive = false
	return idx
}

// removeSlot deletes the slot at idx, preserving slot order for the survivor.
func (r *Room) removeSlot(idx int) {
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
}

// allReady is true iff every slot is ready and the room is full.
func (r *Room) allReady() bool {
	if len(r.Players) != MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// opponentOf returns the slot opposing idx, or nil while the room has a
// single occupant.
func (r *Room) opponentOf(idx int) *Player {
	opp := 1 - idx
	if opp < 0 || opp >= len(r.Players) {
		return nil
	}
	return r.Players[opp]
}

// roster builds the full player list for roster-change broadcasts.
func (r *Room) roster() []protocol.PlayerState {
	states := make([]protocol.PlayerState, len(r.Players))
	for i, p := range r.Players {
		states[i] = protocol.PlayerState{
			ID:       p.ConnID,
			Ready:    p.Ready,
			Loaded:   p.Loaded,
			Inactive: p.Inactive,
			Health:   p.Health,
			WPM:      p.WPM,
			Accuracy: p.Accuracy,
			Progress: p.Progress,
		}
	}
	return states
}

// snapshots builds the reduced per-player view carried by gameUpdate.
func (r *Room) snapshots() []protocol.PlayerSnapshot {
	snaps := make([]protocol.PlayerSnapshot, len(r.Players))
	for i, p := range r.Players {
		snaps[i] = protocol.PlayerSnapshot{
			ID:       p.ConnID,
			Health:   p.Health,
			WPM:      p.WPM,
			Accuracy: p.Accuracy,
			Progress: p.Progress,
		}
	}
	return snaps
}

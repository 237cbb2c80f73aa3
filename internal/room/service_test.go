// internal/room/service_test.go
package room

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typebattle/typebattle/internal/protocol"
)

// mockTransport collects events instead of sending them over WS.
type mockTransport struct {
	mu         sync.Mutex
	roomEvents map[string][]protocol.ServerMessage
	connEvents map[string][]protocol.ServerMessage
	members    map[string]map[string]bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		roomEvents: make(map[string][]protocol.ServerMessage),
		connEvents: make(map[string][]protocol.ServerMessage),
		members:    make(map[string]map[string]bool),
	}
}

func (mt *mockTransport) Join(roomCode, connID string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.members[roomCode] == nil {
		mt.members[roomCode] = make(map[string]bool)
	}
	mt.members[roomCode][connID] = true
}

func (mt *mockTransport) Leave(roomCode, connID string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	delete(mt.members[roomCode], connID)
}

func (mt *mockTransport) ToConn(connID string, msg protocol.ServerMessage) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.connEvents[connID] = append(mt.connEvents[connID], msg)
}

func (mt *mockTransport) ToRoom(roomCode string, msg protocol.ServerMessage) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.roomEvents[roomCode] = append(mt.roomEvents[roomCode], msg)
}

// roomEventsNamed returns the room's events matching the given name, in order.
func (mt *mockTransport) roomEventsNamed(roomCode, event string) []protocol.ServerMessage {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	var out []protocol.ServerMessage
	for _, ev := range mt.roomEvents[roomCode] {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (mt *mockTransport) connEventsNamed(connID, event string) []protocol.ServerMessage {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	var out []protocol.ServerMessage
	for _, ev := range mt.connEvents[connID] {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

// fakeClock makes room timestamps and the reaper deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestService(opts Options) (*Service, *mockTransport) {
	mt := newMockTransport()
	if opts.Generate == nil {
		opts.Generate = func(kind, language string) string { return "the quick brown fox" }
	}
	return NewService(mt, testLogger(), opts), mt
}

// seedRoom runs the create/join/ready flow for two connections and returns the
// room, which sits in PhaseReady afterwards.
func seedRoom(t *testing.T, svc *Service, code, connA, connB string) *Room {
	t.Helper()
	svc.CreateRoom(connA, protocol.CreateRoomPayload{RoomCode: code, Settings: protocol.Settings{Type: "words"}})
	svc.JoinRoom(connB, code)
	svc.SetReady(connA, code)
	svc.SetReady(connB, code)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, ok := svc.store.Get(code)
	require.True(t, ok)
	require.Equal(t, PhaseReady, r.Phase)
	return r
}

// forcePhase drives a seeded room straight into the target phase without
// running a real countdown.
func forcePhase(t *testing.T, svc *Service, code string, target Phase) {
	t.Helper()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, ok := svc.store.Get(code)
	require.True(t, ok)
	for r.Phase < target {
		require.True(t, r.transition(r.Phase+1))
	}
}

func phaseOf(svc *Service, code string) Phase {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, ok := svc.store.Get(code)
	if !ok {
		return -1
	}
	return r.Phase
}

func TestCreateJoinReadyFlow(t *testing.T) {
	svc, mt := newTestService(Options{})

	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1", Settings: protocol.Settings{Type: "words"}})
	created := mt.connEventsNamed("a", protocol.EventRoomCreated)
	require.Len(t, created, 1)
	assert.Equal(t, protocol.RoomCreatedData{RoomCode: "R1", PlayerID: "a"}, created[0].Data)

	svc.JoinRoom("b", "R1")
	joined := mt.connEventsNamed("b", protocol.EventRoomJoined)
	require.Len(t, joined, 1)
	require.Len(t, mt.roomEventsNamed("R1", protocol.EventPlayerJoined), 1)

	svc.SetReady("a", "R1")
	updates := mt.roomEventsNamed("R1", protocol.EventPlayerStatusUpdate)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].Data.(protocol.PlayerStatusUpdateData).AllReady)
	assert.Empty(t, mt.roomEventsNamed("R1", protocol.EventGameStart))

	svc.SetReady("b", "R1")
	starts := mt.roomEventsNamed("R1", protocol.EventGameStart)
	require.Len(t, starts, 1)
	data := starts[0].Data.(protocol.GameStartData)
	assert.NotEmpty(t, data.GameText)
	assert.Len(t, data.Players, 2)

	// A redundant ready must not re-broadcast gameStart.
	svc.SetReady("a", "R1")
	assert.Len(t, mt.roomEventsNamed("R1", protocol.EventGameStart), 1)
}

func TestCreateRoomDuplicate(t *testing.T) {
	svc, mt := newTestService(Options{})

	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})
	svc.CreateRoom("b", protocol.CreateRoomPayload{RoomCode: "R1"})

	errs := mt.connEventsNamed("b", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRoomAlreadyExists.Error(), errs[0].Data.(protocol.ErrorData).Error)

	// The original creator retrying is absorbed, not rejected.
	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})
	assert.Empty(t, mt.connEventsNamed("a", protocol.EventRoomError))
	assert.Len(t, mt.connEventsNamed("a", protocol.EventRoomCreated), 2)
}

func TestCreateRoomEmptyCode(t *testing.T) {
	svc, mt := newTestService(Options{})
	svc.CreateRoom("a", protocol.CreateRoomPayload{})
	errs := mt.connEventsNamed("a", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidRoomCode.Error(), errs[0].Data.(protocol.ErrorData).Error)
}

func TestJoinRoomErrors(t *testing.T) {
	svc, mt := newTestService(Options{})

	svc.JoinRoom("b", "NOPE")
	errs := mt.connEventsNamed("b", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRoomNotFound.Error(), errs[0].Data.(protocol.ErrorData).Error)

	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})
	svc.JoinRoom("b", "R1")
	svc.JoinRoom("c", "R1")
	errs = mt.connEventsNamed("c", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRoomFull.Error(), errs[0].Data.(protocol.ErrorData).Error)
}

func TestCountdownRunsToBattleStart(t *testing.T) {
	svc, mt := newTestService(Options{CountdownFrom: 3, CountdownTick: 5 * time.Millisecond})
	seedRoom(t, svc, "R1", "a", "b")

	svc.MarkLoaded("a", protocol.ReconcilePayload{RoomCode: "R1"})
	assert.Empty(t, mt.roomEventsNamed("R1", protocol.EventSyncCountdown))

	svc.MarkLoaded("b", protocol.ReconcilePayload{RoomCode: "R1"})

	require.Eventually(t, func() bool {
		return len(mt.roomEventsNamed("R1", protocol.EventBattleStart)) > 0
	}, time.Second, time.Millisecond)

	counts := mt.roomEventsNamed("R1", protocol.EventSyncCountdown)
	require.Len(t, counts, 4)
	for i, want := range []int{3, 2, 1, 0} {
		assert.Equal(t, want, counts[i].Data.(protocol.SyncCountdownData).Count)
	}
	assert.Len(t, mt.roomEventsNamed("R1", protocol.EventBattleStart), 1)
	assert.Equal(t, PhaseBattling, phaseOf(svc, "R1"))

	// A late markLoaded after battle start must not restart anything.
	svc.MarkLoaded("a", protocol.ReconcilePayload{RoomCode: "R1"})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, mt.roomEventsNamed("R1", protocol.EventSyncCountdown), 4)
	assert.Len(t, mt.roomEventsNamed("R1", protocol.EventBattleStart), 1)
}

func TestMarkLoadedMidCountdownSyncsLateLoader(t *testing.T) {
	// A tick of one hour freezes the countdown at its initial value.
	svc, mt := newTestService(Options{CountdownFrom: 3, CountdownTick: time.Hour})
	seedRoom(t, svc, "R1", "a", "b")

	svc.MarkLoaded("a", protocol.ReconcilePayload{RoomCode: "R1"})
	svc.MarkLoaded("b", protocol.ReconcilePayload{RoomCode: "R1"})
	require.Equal(t, PhaseCounting, phaseOf(svc, "R1"))

	svc.MarkLoaded("a", protocol.ReconcilePayload{RoomCode: "R1"})
	sync := mt.connEventsNamed("a", protocol.EventSyncCountdown)
	require.Len(t, sync, 1)
	assert.Equal(t, 3, sync[0].Data.(protocol.SyncCountdownData).Count)

	// Only the late loader got a direct sync; the room saw one broadcast.
	assert.Len(t, mt.roomEventsNamed("R1", protocol.EventSyncCountdown), 1)
}

func TestMarkLoadedSynthesizesMissingSlot(t *testing.T) {
	svc, mt := newTestService(Options{CountdownFrom: 3, CountdownTick: time.Hour})
	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})

	// A second client reaches the battle screen without an explicit joinRoom.
	svc.MarkLoaded("b", protocol.ReconcilePayload{RoomCode: "R1"})

	svc.mu.Lock()
	r, ok := svc.store.Get("R1")
	require.True(t, ok)
	require.Len(t, r.Players, 2)
	assert.Equal(t, "b", r.Players[1].ConnID)
	assert.True(t, r.Players[1].Ready)
	assert.True(t, r.Players[1].Loaded)
	svc.mu.Unlock()

	// A full room rejects a third unknown loader instead of synthesizing.
	svc.MarkLoaded("c", protocol.ReconcilePayload{RoomCode: "R1"})
	errs := mt.connEventsNamed("c", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPlayerNotInRoom.Error(), errs[0].Data.(protocol.ErrorData).Error)
}

func TestTypingProgressDealsDamageToOpponentOnly(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)

	svc.TypingProgress("a", protocol.TypingProgressPayload{
		RoomCode: "R1", WPM: 100, Accuracy: 100, Progress: 50,
	})

	svc.mu.Lock()
	r, _ := svc.store.Get("R1")
	assert.InDelta(t, 100.0, r.Players[0].Health, 1e-9)
	assert.InDelta(t, 100.0-0.63, r.Players[1].Health, 1e-9)
	assert.InDelta(t, 100.0, r.Players[0].WPM, 1e-9)
	assert.InDelta(t, 50.0, r.Players[0].Progress, 1e-9)
	svc.mu.Unlock()

	updates := mt.roomEventsNamed("R1", protocol.EventGameUpdate)
	require.Len(t, updates, 1)
	assert.NotZero(t, updates[0].Data.(protocol.GameUpdateData).Timestamp)
}

func TestTypingProgressNormalizesOutOfRangeProgress(t *testing.T) {
	svc, _ := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)

	svc.TypingProgress("a", protocol.TypingProgressPayload{
		RoomCode: "R1", WPM: 100, Accuracy: 100, Progress: 150,
	})

	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, _ := svc.store.Get("R1")
	assert.Zero(t, r.Players[0].Progress)
	// Damage computed with progress 0: 100*0.01*0.9*0.5 = 0.45.
	assert.InDelta(t, 100.0-0.45, r.Players[1].Health, 1e-9)
}

func TestTypingProgressIgnoredBeforeStart(t *testing.T) {
	svc, mt := newTestService(Options{})
	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})
	svc.JoinRoom("b", "R1")

	svc.TypingProgress("a", protocol.TypingProgressPayload{RoomCode: "R1", WPM: 100, Accuracy: 100, Progress: 50})

	svc.mu.Lock()
	r, _ := svc.store.Get("R1")
	assert.InDelta(t, 100.0, r.Players[1].Health, 1e-9)
	svc.mu.Unlock()
	assert.Empty(t, mt.roomEventsNamed("R1", protocol.EventGameUpdate))
}

func TestTypingCompleteFinishesMatch(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)

	svc.mu.Lock()
	r, _ := svc.store.Get("R1")
	r.Players[1].Health = 5
	svc.mu.Unlock()

	// Completion damage: (5 + 80*0.015) * 0.9 = 5.58, enough to finish.
	svc.TypingComplete("a", protocol.TypingCompletePayload{RoomCode: "R1", WPM: 80, Accuracy: 90, Time: 42.5})

	overs := mt.roomEventsNamed("R1", protocol.EventGameOver)
	require.Len(t, overs, 1)
	data := overs[0].Data.(protocol.GameOverData)
	assert.Equal(t, "a", data.Winner)
	assert.False(t, data.Forfeit)

	svc.mu.Lock()
	assert.Zero(t, r.Players[1].Health)
	assert.InDelta(t, 100.0, r.Players[0].Progress, 1e-9)
	assert.Equal(t, PhaseFinished, r.Phase)
	svc.mu.Unlock()

	// Telemetry after the terminal phase changes nothing.
	svc.TypingProgress("b", protocol.TypingProgressPayload{RoomCode: "R1", WPM: 200, Accuracy: 100, Progress: 90})
	assert.Empty(t, mt.roomEventsNamed("R1", protocol.EventGameUpdate))
	assert.Len(t, mt.roomEventsNamed("R1", protocol.EventGameOver), 1)
}

func TestTypingCompleteBroadcastsWhenOpponentSurvives(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)

	svc.TypingComplete("a", protocol.TypingCompletePayload{RoomCode: "R1", WPM: 80, Accuracy: 90, Time: 42.5})

	assert.Empty(t, mt.roomEventsNamed("R1", protocol.EventGameOver))
	require.Len(t, mt.roomEventsNamed("R1", protocol.EventGameUpdate), 1)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, _ := svc.store.Get("R1")
	assert.InDelta(t, 100.0-5.58, r.Players[1].Health, 1e-9)
}

func TestGiveUpForfeits(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)

	svc.GiveUp("b", "R1")

	overs := mt.roomEventsNamed("R1", protocol.EventGameOver)
	require.Len(t, overs, 1)
	data := overs[0].Data.(protocol.GameOverData)
	assert.Equal(t, "a", data.Winner)
	assert.True(t, data.Forfeit)
}

func TestLeaveBeforeStartVacatesSlot(t *testing.T) {
	svc, mt := newTestService(Options{})
	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})
	svc.JoinRoom("b", "R1")

	svc.Leave("b", "R1")
	lefts := mt.roomEventsNamed("R1", protocol.EventPlayerLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, "b", lefts[0].Data.(protocol.PlayerLeftData).PlayerID)

	svc.mu.Lock()
	r, ok := svc.store.Get("R1")
	require.True(t, ok)
	assert.Len(t, r.Players, 1)
	svc.mu.Unlock()

	// Last player leaving deletes the room outright.
	svc.Leave("a", "R1")
	assert.Equal(t, Phase(-1), phaseOf(svc, "R1"))
}

func TestLeaveAfterStartMarksInactive(t *testing.T) {
	svc, _ := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")

	svc.Leave("b", "R1")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, ok := svc.store.Get("R1")
	require.True(t, ok)
	require.Len(t, r.Players, 2)
	assert.True(t, r.Players[1].Inactive)
	assert.False(t, r.Players[0].Inactive)
}

func TestDisconnectRunsLeaveSemantics(t *testing.T) {
	svc, _ := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")

	svc.Disconnect("b")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, ok := svc.store.Get("R1")
	require.True(t, ok)
	assert.True(t, r.Players[1].Inactive)
}

func TestEnsureInRoomRebindsAndResyncs(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)
	svc.Leave("b", "R1")

	// b reconnects under a fresh connection ID carrying the old one as a hint.
	svc.EnsureInRoom("b2", protocol.ReconcilePayload{RoomCode: "R1", PreviousSocketID: "b"})

	require.Len(t, mt.connEventsNamed("b2", protocol.EventGameUpdate), 1)
	require.Len(t, mt.connEventsNamed("b2", protocol.EventBattleStart), 1)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, _ := svc.store.Get("R1")
	assert.Equal(t, "b2", r.Players[1].ConnID)
	assert.False(t, r.Players[1].Inactive)
}

func TestEnsureInRoomUnknownPlayer(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")

	svc.EnsureInRoom("x", protocol.ReconcilePayload{RoomCode: "R1"})

	errs := mt.connEventsNamed("x", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPlayerNotInRoom.Error(), errs[0].Data.(protocol.ErrorData).Error)
}

func TestGameStatusReportsAndReconciles(t *testing.T) {
	svc, mt := newTestService(Options{CountdownFrom: 3, CountdownTick: time.Hour})
	seedRoom(t, svc, "R1", "a", "b")
	svc.MarkLoaded("a", protocol.ReconcilePayload{RoomCode: "R1"})
	svc.MarkLoaded("b", protocol.ReconcilePayload{RoomCode: "R1"})

	svc.GameStatus("b2", protocol.ReconcilePayload{RoomCode: "R1", PreviousSocketID: "b"})

	replies := mt.connEventsNamed("b2", protocol.EventGameStatusResponse)
	require.Len(t, replies, 1)
	data := replies[0].Data.(protocol.GameStatusData)
	assert.True(t, data.GameStarted)
	assert.True(t, data.CountdownStarted)
	assert.True(t, data.PlayerFound)
	assert.Equal(t, 2, data.PlayersLoaded)
	require.NotNil(t, data.CurrentCount)
	assert.Equal(t, 3, *data.CurrentCount)

	svc.mu.Lock()
	r, _ := svc.store.Get("R1")
	assert.Equal(t, "b2", r.Players[1].ConnID)
	svc.mu.Unlock()
}

func TestGameStatusUnknownRoom(t *testing.T) {
	svc, mt := newTestService(Options{})
	svc.GameStatus("a", protocol.ReconcilePayload{RoomCode: "NOPE"})

	replies := mt.connEventsNamed("a", protocol.EventGameStatusResponse)
	require.Len(t, replies, 1)
	data := replies[0].Data.(protocol.GameStatusData)
	assert.False(t, data.PlayerFound)
	assert.Equal(t, ErrRoomNotFound.Error(), data.Error)
}

func TestGameStatusRetriggersStalledCountdown(t *testing.T) {
	svc, mt := newTestService(Options{CountdownFrom: 3, CountdownTick: time.Hour})
	seedRoom(t, svc, "R1", "a", "b")

	// Everyone loaded but the countdown never fired.
	svc.mu.Lock()
	r, _ := svc.store.Get("R1")
	r.Players[0].Loaded = true
	r.Players[1].Loaded = true
	r.PlayersLoaded = 2
	svc.mu.Unlock()

	svc.GameStatus("a", protocol.ReconcilePayload{RoomCode: "R1"})

	assert.Equal(t, PhaseCounting, phaseOf(svc, "R1"))
	require.Len(t, mt.roomEventsNamed("R1", protocol.EventSyncCountdown), 1)
}

func TestRematchRelay(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseFinished)

	settings := protocol.Settings{Type: "code", Language: "Go"}
	svc.RematchRequest("a", protocol.RematchRequestPayload{
		OriginalRoomCode: "R1", NewRoomCode: "R2", Settings: settings,
	})

	reqs := mt.connEventsNamed("b", protocol.EventRematchRequest)
	require.Len(t, reqs, 1)
	data := reqs[0].Data.(protocol.RematchRequestData)
	assert.Equal(t, "R2", data.RoomCode)
	assert.Equal(t, "a", data.FromSocketID)
	assert.Equal(t, settings, data.Settings)

	svc.RematchAccepted("b", protocol.RematchReplyPayload{OriginalRoomCode: "R1", NewRoomCode: "R2"})
	accepts := mt.connEventsNamed("a", protocol.EventRematchAccepted)
	require.Len(t, accepts, 1)
	assert.Equal(t, protocol.RematchReplyData{RoomCode: "R2"}, accepts[0].Data)

	svc.RematchDeclined("b", protocol.RematchReplyPayload{OriginalRoomCode: "R1"})
	assert.Len(t, mt.connEventsNamed("a", protocol.EventRematchDeclined), 1)
}

func TestRematchRequestOpponentUnavailable(t *testing.T) {
	svc, mt := newTestService(Options{})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseFinished)
	svc.Leave("b", "R1")

	svc.RematchRequest("a", protocol.RematchRequestPayload{OriginalRoomCode: "R1", NewRoomCode: "R2"})

	errs := mt.connEventsNamed("a", protocol.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrOpponentUnavailable.Error(), errs[0].Data.(protocol.ErrorData).Error)
	assert.Empty(t, mt.connEventsNamed("b", protocol.EventRematchRequest))
}

func TestRematchRequestMissingCodes(t *testing.T) {
	svc, mt := newTestService(Options{})
	svc.RematchRequest("a", protocol.RematchRequestPayload{OriginalRoomCode: "R1"})
	errs := mt.connEventsNamed("a", protocol.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidRoomCode.Error(), errs[0].Data.(protocol.ErrorData).Error)
}

func TestReapInactiveRooms(t *testing.T) {
	clock := newFakeClock()
	svc, mt := newTestService(Options{InactiveMax: 10 * time.Minute, Now: clock.Now})
	seedRoom(t, svc, "R1", "a", "b")

	svc.ReapInactive()
	assert.NotEqual(t, Phase(-1), phaseOf(svc, "R1"))

	clock.Advance(11 * time.Minute)
	svc.ReapInactive()

	assert.Equal(t, Phase(-1), phaseOf(svc, "R1"))
	errs := mt.roomEventsNamed("R1", protocol.EventRoomError)
	require.Len(t, errs, 1)
	assert.Equal(t, "room closed due to inactivity", errs[0].Data.(protocol.ErrorData).Error)
}

func TestReapDeletesEmptyRoomsImmediately(t *testing.T) {
	clock := newFakeClock()
	svc, mt := newTestService(Options{InactiveMax: 10 * time.Minute, Now: clock.Now})
	svc.CreateRoom("a", protocol.CreateRoomPayload{RoomCode: "R1"})

	svc.mu.Lock()
	r, _ := svc.store.Get("R1")
	r.removeSlot(0)
	svc.mu.Unlock()

	svc.ReapInactive()

	assert.Equal(t, Phase(-1), phaseOf(svc, "R1"))
	// No closure notice goes to an empty room.
	assert.Empty(t, mt.roomEventsNamed("R1", protocol.EventRoomError))
}

// stubSink records published match records.
type stubSink struct {
	mu   sync.Mutex
	recs []MatchRecord
}

func (ss *stubSink) Publish(rec MatchRecord) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.recs = append(ss.recs, rec)
}

func (ss *stubSink) count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.recs)
}

func (ss *stubSink) last() MatchRecord {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.recs[len(ss.recs)-1]
}

func TestFinishPublishesMatchRecord(t *testing.T) {
	sink := &stubSink{}
	svc, _ := newTestService(Options{Sink: sink})
	seedRoom(t, svc, "R1", "a", "b")
	forcePhase(t, svc, "R1", PhaseBattling)

	svc.GiveUp("b", "R1")

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
	rec := sink.last()
	assert.NotEmpty(t, rec.MatchID)
	assert.Equal(t, "R1", rec.RoomCode)
	assert.Equal(t, "a", rec.Winner)
	assert.True(t, rec.Forfeit)
	assert.Len(t, rec.Players, 2)
}

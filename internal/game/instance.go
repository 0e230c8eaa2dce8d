// File: internal/game/instance.go
// Quiz Engine - Game Instance: per-PIN in-memory state machine

package game

import (
	"fmt"
	"sync"
	"time"
)

// Phase is the Game Instance's position in the question lifecycle.
type Phase string

const (
	Waiting        Phase = "waiting"
	QuestionActive Phase = "question_active"
	Results        Phase = "results"
	Finished       Phase = "finished"
)

const (
	defaultMaxPlayers   = 300
	defaultAnswerBuffer = 500
	scoreBase           = 1000
	scoreMaxBonus       = 500
)

// ErrCapacityExceeded is returned by AddPlayer when the connected-player
// count is already at the configured cap.
var ErrCapacityExceeded = fmt.Errorf("game at capacity")

// Question is the minimal shape the Game Instance needs to run a
// question; the Persistence Store's richer Question row is mapped into
// this at load time.
type Question struct {
	Prompt        string
	Options       [4]string
	CorrectOption int
	TimeLimitSec  int
}

// PlayerState is one player's live, in-memory record.
type PlayerState struct {
	PlayerID    int64
	DisplayName string
	Score       int
	Connected   bool
	LastSeen    time.Time
	JoinOrder   int
	Token       string
}

// Answer is one recorded response, held in the current question's ring
// buffer until the next question clears it.
type Answer struct {
	PlayerID      int64
	Option        int
	EffectiveTime int64 // unix ms
	ResponseTime  int64 // ms
}

// LeaderboardEntry is one ranked row: position is dense 1-based, ties
// broken by earlier join order.
type LeaderboardEntry struct {
	Position    int
	PlayerID    int64
	DisplayName string
	Score       int
	Connected   bool
}

// Stats tracks the Instance's lifetime memory accounting.
type Stats struct {
	PeakPlayers  int
	TotalJoined  int
	TotalAnswers int
	LastCleanup  time.Time
}

// Instance is a pure in-memory object, one per active PIN; it performs
// no I/O. All mutation happens under mu, matching the single
// serial-owner-per-PIN requirement: callers outside this package must
// additionally hold the PIN's ordering lock (Registry.LockPin) across
// any multi-call sequence so that two concurrent handlers for the same
// PIN never interleave.
type Instance struct {
	mu sync.Mutex

	Pin        string
	GameID     int64
	Questions  []Question
	MaxPlayers int
	MaxAnswers int

	phase              Phase
	currentQuestionIdx int
	questionStartTime  int64 // unix ms, 0 when not QuestionActive

	players        map[int64]*PlayerState
	joinOrderCtr   int
	socketToPlayer map[string]int64
	playerToSocket map[int64]string

	moderatorSockets map[string]struct{}
	panelSockets     map[string]struct{}

	answers      []Answer
	answeredBy   map[int64]struct{}
	totalAnswers int

	leaderboard      []LeaderboardEntry
	leaderboardValid bool

	stats        Stats
	lastActivity time.Time
}

// NewInstance creates a fresh WAITING-phase Game Instance for pin with
// the given questions loaded.
func NewInstance(pin string, gameID int64, questions []Question) *Instance {
	return &Instance{
		Pin:              pin,
		GameID:           gameID,
		Questions:        questions,
		MaxPlayers:       defaultMaxPlayers,
		MaxAnswers:       defaultAnswerBuffer,
		phase:            Waiting,
		players:          make(map[int64]*PlayerState),
		socketToPlayer:   make(map[string]int64),
		playerToSocket:   make(map[int64]string),
		moderatorSockets: make(map[string]struct{}),
		panelSockets:     make(map[string]struct{}),
		answeredBy:       make(map[int64]struct{}),
		lastActivity:     time.Now(),
	}
}

// SetQuestions atomically replaces the instance's loaded question set,
// e.g. after a moderator PUTs a new set via the HTTP editor endpoint.
func (inst *Instance) SetQuestions(questions []Question) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.Questions = questions
}

// AddPlayer inserts a brand-new player or, if playerID already exists
// (a reconnect by identity), refreshes its connected/lastSeen/score.
func (inst *Instance) AddPlayer(playerID int64, name string, score int, token string) (*PlayerState, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.lastActivity = time.Now()

	if p, ok := inst.players[playerID]; ok {
		p.Connected = true
		p.LastSeen = time.Now()
		// The in-memory score can be ahead of the Store row while score
		// writes sit in the batch queue; scores never decrease in a game.
		if score > p.Score {
			p.Score = score
		}
		inst.invalidateLeaderboard()
		return p, nil
	}

	connected := 0
	for _, p := range inst.players {
		if p.Connected {
			connected++
		}
	}
	if connected >= inst.MaxPlayers {
		return nil, ErrCapacityExceeded
	}

	inst.joinOrderCtr++
	displayName := name
	if displayName == "" {
		displayName = fmt.Sprintf("Hráč %d", playerID)
	}

	p := &PlayerState{
		PlayerID:    playerID,
		DisplayName: displayName,
		Score:       score,
		Connected:   true,
		LastSeen:    time.Now(),
		JoinOrder:   inst.joinOrderCtr,
		Token:       token,
	}
	inst.players[playerID] = p
	inst.stats.TotalJoined++
	if connected+1 > inst.stats.PeakPlayers {
		inst.stats.PeakPlayers = connected + 1
	}
	inst.invalidateLeaderboard()
	return p, nil
}

// LoadPlayer reconstructs a player row into the instance's roster
// as-is, including a not-connected flag. Used when the composition
// root rebuilds a Game Instance from the Store on process restart,
// where the socket binding (and thus "is this player live") cannot be
// recovered and every loaded player starts disconnected until it
// reconnects.
func (inst *Instance) LoadPlayer(playerID int64, joinOrder int, score int, token string, lastSeen time.Time) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if joinOrder > inst.joinOrderCtr {
		inst.joinOrderCtr = joinOrder
	}
	inst.players[playerID] = &PlayerState{
		PlayerID:    playerID,
		DisplayName: fmt.Sprintf("Hráč %d", joinOrder),
		Score:       score,
		Connected:   false,
		LastSeen:    lastSeen,
		JoinOrder:   joinOrder,
		Token:       token,
	}
	inst.stats.TotalJoined++
	inst.invalidateLeaderboard()
}

// RemovePlayer either permanently deletes a player (purging their
// pending answer for the current question) or, if not permanent, just
// marks them disconnected.
func (inst *Instance) RemovePlayer(playerID int64, permanent bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()

	if !permanent {
		if p, ok := inst.players[playerID]; ok {
			p.Connected = false
			p.LastSeen = time.Now()
		}
		return
	}

	delete(inst.players, playerID)
	delete(inst.answeredBy, playerID)
	if sock, ok := inst.playerToSocket[playerID]; ok {
		delete(inst.socketToPlayer, sock)
		delete(inst.playerToSocket, playerID)
	}

	kept := inst.answers[:0]
	for _, a := range inst.answers {
		if a.PlayerID != playerID {
			kept = append(kept, a)
		}
	}
	inst.answers = kept
	inst.invalidateLeaderboard()
}

// SetPlayerSocket binds playerID to socketID, overwriting any prior
// binding on either side (last-write-wins on socket reuse).
func (inst *Instance) SetPlayerSocket(playerID int64, socketID string) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()

	if prevPlayer, ok := inst.socketToPlayer[socketID]; ok && prevPlayer != playerID {
		delete(inst.playerToSocket, prevPlayer)
	}
	if prevSocket, ok := inst.playerToSocket[playerID]; ok {
		delete(inst.socketToPlayer, prevSocket)
	}
	inst.socketToPlayer[socketID] = playerID
	inst.playerToSocket[playerID] = socketID
}

// PlayerForSocket returns the bound player id, if any.
func (inst *Instance) PlayerForSocket(socketID string) (int64, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	id, ok := inst.socketToPlayer[socketID]
	return id, ok
}

// AddModeratorSocket / AddPanelSocket register non-player observers.
func (inst *Instance) AddModeratorSocket(socketID string) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	inst.moderatorSockets[socketID] = struct{}{}
}

func (inst *Instance) AddPanelSocket(socketID string) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	inst.panelSockets[socketID] = struct{}{}
}

func (inst *Instance) RemoveSocket(socketID string) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	delete(inst.moderatorSockets, socketID)
	delete(inst.panelSockets, socketID)
	if playerID, ok := inst.socketToPlayer[socketID]; ok {
		delete(inst.socketToPlayer, socketID)
		delete(inst.playerToSocket, playerID)
	}
}

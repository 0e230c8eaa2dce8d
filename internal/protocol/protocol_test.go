package protocol

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"quizengine/internal/config"
	"quizengine/internal/game"
	"quizengine/internal/session"
	"quizengine/internal/socket"
	"quizengine/internal/store"
)

func newTestProtocol(t *testing.T) *Protocol {
	t.Helper()
	cfg := &config.Config{
		DBType:                   "sqlite",
		DBName:                   filepath.Join(t.TempDir(), "quiz.db"),
		DBMaxConnections:         5,
		DBMaxIdleConns:           2,
		GlobalConnCap:            100,
		MaxPlayersPerGame:        50,
		MaxAnswerBuffer:          500,
		BatchSize:                50,
		BatchTimeoutMS:           100,
		LeaderboardBroadcastTopN: 10,
	}

	st, err := store.New(cfg)
	if err != nil {
		t.Fatalf("store.New unexpected error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st, game.NewRegistry(), session.NewRegistry(), session.NewLatencyTracker(),
		socket.NewManager(cfg.GlobalConnCap, cfg.MaxPlayersPerGame, cfg.BatchSize, cfg.BatchTimeoutMS), cfg)
}

func seedTemplate(t *testing.T, p *Protocol, category string) {
	t.Helper()
	err := p.Store.PutQuestionTemplate(context.Background(), category, []store.Question{
		{Prompt: "2+2?", Options: [4]string{"3", "4", "5", "6"}, CorrectOption: 1, TimeLimitSec: 20},
		{Prompt: "Capital of France?", Options: [4]string{"Berlin", "Madrid", "Paris", "Rome"}, CorrectOption: 2, TimeLimitSec: 20},
	})
	if err != nil {
		t.Fatalf("seedTemplate unexpected error: %v", err)
	}
}

func TestFullGameFlowCreateJoinAnswerAdvance(t *testing.T) {
	p := newTestProtocol(t)
	seedTemplate(t, p, "general")

	moderator := socket.NewClient("mod-1", nil)
	player := socket.NewClient("player-1", nil)

	createReq, _ := json.Marshal(createGamePayload{Category: "general", ModeratorPassword: "s3cret"})
	p.handleCreateGame(moderator, createReq)

	modSess, ok := p.Sessions.Get(moderator.ID)
	if !ok || modSess.Role != session.RoleModerator {
		t.Fatal("expected a moderator session after create_game")
	}
	pin := modSess.GamePin

	inst, ok := p.Games.Get(pin)
	if !ok {
		t.Fatal("expected a live Game Instance after create_game")
	}
	if got := inst.QuestionCount(); got != 2 {
		t.Fatalf("QuestionCount() = %d, want 2 (loaded from the template)", got)
	}

	joinReq, _ := json.Marshal(joinGamePayload{GamePin: pin})
	p.handleJoinGame(player, joinReq)

	playerSess, ok := p.Sessions.Get(player.ID)
	if !ok || playerSess.Role != session.RolePlayer {
		t.Fatal("expected a player session after join_game")
	}
	if connected, _ := inst.PlayerCount(); connected != 1 {
		t.Fatalf("PlayerCount() connected = %d, want 1", connected)
	}

	startReq, _ := json.Marshal(gamePinOnlyPayload{GamePin: pin})
	p.handleStartQuestion(moderator, startReq)
	if got := inst.Phase(); got != game.QuestionActive {
		t.Fatalf("phase after start_question = %q, want question_active", got)
	}

	answerReq, _ := json.Marshal(submitAnswerPayload{Answer: 1}) // correct answer to question 0
	p.handleSubmitAnswer(player, answerReq)

	ps, ok := inst.Player(playerSess.SubjectID)
	if !ok {
		t.Fatal("expected the player to still be on the roster")
	}
	if ps.Score == 0 {
		t.Fatal("expected a non-zero score for a correct, immediate answer")
	}

	endReq, _ := json.Marshal(gamePinOnlyPayload{GamePin: pin})
	p.handleEndQuestion(moderator, endReq)
	if got := inst.Phase(); got != game.Results {
		t.Fatalf("phase after end_question = %q, want results", got)
	}

	p.handleNextQuestion(moderator, endReq)
	if got := inst.Phase(); got != game.Waiting {
		t.Fatalf("phase after next_question with more questions left = %q, want waiting", got)
	}
	if got := inst.CurrentQuestionIndex(); got != 1 {
		t.Fatalf("CurrentQuestionIndex() = %d, want 1", got)
	}

	p.handleStartQuestion(moderator, startReq)
	p.handleEndQuestion(moderator, endReq)
	p.handleNextQuestion(moderator, endReq) // no questions left after this one

	if got := inst.Phase(); got != game.Finished {
		t.Fatalf("phase after exhausting every question = %q, want finished", got)
	}
}

func TestSubmitAnswerIgnoredForNonPlayerSocket(t *testing.T) {
	p := newTestProtocol(t)
	seedTemplate(t, p, "general")

	moderator := socket.NewClient("mod-1", nil)
	createReq, _ := json.Marshal(createGamePayload{Category: "general"})
	p.handleCreateGame(moderator, createReq)

	// The moderator socket never registered as a player, so an answer
	// submission from it must be a silent no-op rather than a panic.
	answerReq, _ := json.Marshal(submitAnswerPayload{Answer: 0})
	p.handleSubmitAnswer(moderator, answerReq)
}

func TestJoinGameRejectsUnknownPin(t *testing.T) {
	p := newTestProtocol(t)
	player := socket.NewClient("player-1", nil)

	joinReq, _ := json.Marshal(joinGamePayload{GamePin: "000000"})
	p.handleJoinGame(player, joinReq)

	if _, ok := p.Sessions.Get(player.ID); ok {
		t.Fatal("expected no session to be registered for a join against an unknown pin")
	}
}

func TestJoinGameAtCapacityCreatesNoPlayerRow(t *testing.T) {
	p := newTestProtocol(t)
	p.Cfg.MaxPlayersPerGame = 1
	seedTemplate(t, p, "general")

	moderator := socket.NewClient("mod-1", nil)
	createReq, _ := json.Marshal(createGamePayload{Category: "general"})
	p.handleCreateGame(moderator, createReq)
	modSess, _ := p.Sessions.Get(moderator.ID)
	pin := modSess.GamePin

	first := socket.NewClient("player-1", nil)
	second := socket.NewClient("player-2", nil)
	joinReq, _ := json.Marshal(joinGamePayload{GamePin: pin})
	p.handleJoinGame(first, joinReq)
	p.handleJoinGame(second, joinReq)

	if _, ok := p.Sessions.Get(second.ID); ok {
		t.Fatal("expected the over-capacity join to be rejected without a session")
	}

	g, _, err := p.Store.GetGameByPin(pin)
	if err != nil {
		t.Fatalf("GetGameByPin unexpected error: %v", err)
	}
	rows, err := p.Store.ListPlayers(g.ID)
	if err != nil {
		t.Fatalf("ListPlayers unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("player rows after a rejected join = %d, want 1 (no row for the rejected player)", len(rows))
	}
}

func TestPlayerDisconnectReconnectPreservesScore(t *testing.T) {
	p := newTestProtocol(t)
	seedTemplate(t, p, "general")

	moderator := socket.NewClient("mod-1", nil)
	player := socket.NewClient("player-1", nil)
	createReq, _ := json.Marshal(createGamePayload{Category: "general"})
	p.handleCreateGame(moderator, createReq)
	modSess, _ := p.Sessions.Get(moderator.ID)
	pin := modSess.GamePin
	inst, _ := p.Games.Get(pin)

	joinReq, _ := json.Marshal(joinGamePayload{GamePin: pin})
	p.handleJoinGame(player, joinReq)
	playerSess, _ := p.Sessions.Get(player.ID)

	startReq, _ := json.Marshal(gamePinOnlyPayload{GamePin: pin})
	p.handleStartQuestion(moderator, startReq)
	answerReq, _ := json.Marshal(submitAnswerPayload{Answer: 1})
	p.handleSubmitAnswer(player, answerReq)

	before, _ := inst.Player(playerSess.SubjectID)
	if before.Score == 0 {
		t.Fatal("expected a non-zero score before the disconnect")
	}

	p.OnDisconnect(player)
	after, ok := inst.Player(playerSess.SubjectID)
	if !ok || after.Connected {
		t.Fatalf("player after disconnect = %+v, want a disconnected roster entry", after)
	}

	// Reconnect with the stored token; the score-update batch has not
	// flushed yet, so the fresher in-memory score must win over the
	// stale Store row.
	replacement := socket.NewClient("player-1b", nil)
	reconnectReq, _ := json.Marshal(reconnectPlayerPayload{GamePin: pin, PlayerToken: after.Token})
	p.handleReconnectPlayer(replacement, reconnectReq)

	back, ok := inst.Player(playerSess.SubjectID)
	if !ok || !back.Connected {
		t.Fatalf("player after reconnect = %+v, want a connected roster entry", back)
	}
	if back.Score != before.Score {
		t.Fatalf("score after reconnect = %d, want %d (unchanged)", back.Score, before.Score)
	}
}

func TestJoinGameRevivesEvictedInstance(t *testing.T) {
	p := newTestProtocol(t)
	seedTemplate(t, p, "general")

	moderator := socket.NewClient("mod-1", nil)
	createReq, _ := json.Marshal(createGamePayload{Category: "general"})
	p.handleCreateGame(moderator, createReq)
	modSess, _ := p.Sessions.Get(moderator.ID)
	pin := modSess.GamePin

	// Simulate the abandoned-game reaper evicting the in-memory home
	// while the Store row stays active.
	p.Games.Evict(pin)

	player := socket.NewClient("player-1", nil)
	joinReq, _ := json.Marshal(joinGamePayload{GamePin: pin})
	p.handleJoinGame(player, joinReq)

	inst, ok := p.Games.Get(pin)
	if !ok {
		t.Fatal("expected join_game to revive the evicted instance from the store")
	}
	if got := inst.QuestionCount(); got != 2 {
		t.Fatalf("revived QuestionCount() = %d, want 2", got)
	}
	if _, ok := p.Sessions.Get(player.ID); !ok {
		t.Fatal("expected the joining player to get a session against the revived instance")
	}
}

func TestStartQuestionRejectsNonModerator(t *testing.T) {
	p := newTestProtocol(t)
	seedTemplate(t, p, "general")

	moderator := socket.NewClient("mod-1", nil)
	createReq, _ := json.Marshal(createGamePayload{Category: "general"})
	p.handleCreateGame(moderator, createReq)

	modSess, _ := p.Sessions.Get(moderator.ID)
	pin := modSess.GamePin
	inst, _ := p.Games.Get(pin)

	intruder := socket.NewClient("intruder-1", nil)
	startReq, _ := json.Marshal(gamePinOnlyPayload{GamePin: pin})
	p.handleStartQuestion(intruder, startReq)

	if got := inst.Phase(); got != game.Waiting {
		t.Fatalf("phase after an unauthorized start_question = %q, want waiting (unchanged)", got)
	}
}

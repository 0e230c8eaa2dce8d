// File: internal/protocol/handlers_question.go
// Quiz Engine - Protocol Handler: question lifecycle and answer submission

package protocol

import (
	"encoding/json"

	"quizengine/internal/game"
	"quizengine/internal/session"
	"quizengine/internal/socket"
	"quizengine/internal/store"
)

// isModerator checks that the socket is a registered moderator for pin.
func (p *Protocol) isModerator(client *socket.Client, pin string) bool {
	sess, ok := p.Sessions.Get(client.ID)
	return ok && sess.Role == session.RoleModerator && sess.GamePin == pin
}

func (p *Protocol) handleStartQuestion(client *socket.Client, raw []byte) {
	var req gamePinOnlyPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "game_state_update_error", "malformed request")
		return
	}
	if !p.isModerator(client, req.GamePin) {
		p.sendError(client, "game_state_update_error", "not authorized")
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	inst, ok := p.Games.Get(req.GamePin)
	if !ok {
		p.sendError(client, "game_state_update_error", "game not active")
		return
	}
	if inst.Phase() != game.Waiting {
		p.sendError(client, "game_state_update_error", "question already in progress")
		return
	}

	q, ok := inst.CurrentQuestion()
	if !ok {
		p.sendError(client, "game_state_update_error", "no question to start")
		return
	}

	inst.StartQuestion()
	state := inst.GetState()

	gameID := inst.GameID
	p.Sockets.Batcher().Enqueue("update_game_state", func() error {
		return p.Store.UpdateGameState(gameID, store.StatusQuestionActive, state.CurrentQuestionIdx, state.QuestionStartTime)
	})

	base := map[string]any{
		"questionNumber": state.CurrentQuestionIdx + 1,
		"totalQuestions": inst.QuestionCount(),
		"question":       q.Prompt,
		"options":        q.Options,
		"timeLimit":      q.TimeLimitSec,
		"serverTime":     state.QuestionStartTime,
	}
	p.broadcastJSON(req.GamePin, socket.RoomPlayers, "question_started", base)
	p.broadcastJSON(req.GamePin, socket.RoomPanels, "question_started", base)

	dashboard := map[string]any{}
	for k, v := range base {
		dashboard[k] = v
	}
	dashboard["correctAnswer"] = q.CorrectOption
	p.broadcastJSON(req.GamePin, socket.RoomModerators, "question_started_dashboard", dashboard)

	p.armQuestionTimer(req.GamePin, q.TimeLimitSec)
}

func (p *Protocol) handleEndQuestion(client *socket.Client, raw []byte) {
	var req gamePinOnlyPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if !p.isModerator(client, req.GamePin) {
		p.sendError(client, "game_state_update_error", "not authorized")
		return
	}
	defer p.Games.LockPin(req.GamePin)()
	p.clearQuestionTimer(req.GamePin)
	p.finishQuestion(req.GamePin)
}

// autoEndQuestion fires when a question's timer expires with no
// explicit end_question; same effect as the moderator-driven path.
func (p *Protocol) autoEndQuestion(pin string) {
	defer p.Games.LockPin(pin)()
	p.finishQuestion(pin)
}

func (p *Protocol) finishQuestion(pin string) {
	inst, ok := p.Games.Get(pin)
	if !ok {
		return
	}
	if inst.Phase() != game.QuestionActive {
		return
	}

	q, _ := inst.CurrentQuestion()
	inst.EndQuestion()

	answered := inst.AnswerCount()
	counts := inst.AnswerOptionCounts()
	total := inst.QuestionCount()
	idx := inst.CurrentQuestionIndex()

	gameID := inst.GameID
	state := inst.GetState()
	p.Sockets.Batcher().Enqueue("update_game_state", func() error {
		return p.Store.UpdateGameState(gameID, store.StatusResults, state.CurrentQuestionIdx, state.QuestionStartTime)
	})

	_, totalPlayers := inst.PlayerCount()
	payload := map[string]any{
		"correctAnswer": q.CorrectOption,
		"leaderboard":   p.topLeaderboard(inst),
		"answerStats":   counts[:],
		"totalAnswers":  answered,
		"totalPlayers":  totalPlayers,
		"canContinue":   idx < total-1,
	}
	p.broadcastJSON(pin, socket.RoomAll, "question_ended", payload)
	p.broadcastJSON(pin, socket.RoomModerators, "question_ended_dashboard", payload)
	p.broadcastJSON(pin, socket.RoomPanels, "panel_leaderboard_update", map[string]any{
		"leaderboard": p.topLeaderboard(inst),
	})
}

func (p *Protocol) handleEndGame(client *socket.Client, raw []byte) {
	var req gamePinOnlyPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if !p.isModerator(client, req.GamePin) {
		p.sendError(client, "game_state_update_error", "not authorized")
		return
	}
	defer p.Games.LockPin(req.GamePin)()
	p.clearQuestionTimer(req.GamePin)

	inst, ok := p.Games.Get(req.GamePin)
	if !ok {
		return
	}
	inst.EndGame()

	gameID := inst.GameID
	idx := inst.CurrentQuestionIndex()
	p.Sockets.Batcher().Enqueue("update_game_state", func() error {
		return p.Store.UpdateGameState(gameID, store.StatusFinished, idx, 0)
	})

	_, totalPlayers := inst.PlayerCount()
	payload := gameEndedPayload{
		TotalPlayers:   totalPlayers,
		TotalQuestions: inst.QuestionCount(),
		Leaderboard:    leaderboardToAny(inst.Leaderboard()),
	}
	p.broadcastGameState(req.GamePin, inst, true)
	p.broadcastJSON(req.GamePin, socket.RoomModerators, "game_ended_dashboard", payload)
	p.broadcastJSON(req.GamePin, socket.RoomPanels, "panel_game_ended", payload)
}

// handleNextQuestion advances past the question currently in RESULTS.
// On success it reports the new WAITING state; once no questions
// remain the instance transitions to FINISHED and game_ended_dashboard
// fires the same as an explicit end_game.
func (p *Protocol) handleNextQuestion(client *socket.Client, raw []byte) {
	var req gamePinOnlyPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "game_state_update_error", "malformed request")
		return
	}
	if !p.isModerator(client, req.GamePin) {
		p.sendError(client, "game_state_update_error", "not authorized")
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	inst, ok := p.Games.Get(req.GamePin)
	if !ok {
		p.sendError(client, "game_state_update_error", "game not active")
		return
	}
	if inst.Phase() != game.Results {
		p.sendError(client, "game_state_update_error", "question not in results")
		return
	}

	if !inst.NextQuestion() {
		gameID := inst.GameID
		idx := inst.CurrentQuestionIndex()
		p.Sockets.Batcher().Enqueue("update_game_state", func() error {
			return p.Store.UpdateGameState(gameID, store.StatusFinished, idx, 0)
		})
		_, totalPlayers := inst.PlayerCount()
		payload := gameEndedPayload{
			TotalPlayers:   totalPlayers,
			TotalQuestions: inst.QuestionCount(),
			Leaderboard:    leaderboardToAny(inst.Leaderboard()),
		}
		p.broadcastGameState(req.GamePin, inst, true)
		p.broadcastJSON(req.GamePin, socket.RoomModerators, "game_ended_dashboard", payload)
		p.broadcastJSON(req.GamePin, socket.RoomPanels, "panel_game_ended", payload)
		return
	}

	gameID := inst.GameID
	idx := inst.CurrentQuestionIndex()
	p.Sockets.Batcher().Enqueue("update_game_state", func() error {
		return p.Store.UpdateGameState(gameID, store.StatusWaiting, idx, 0)
	})

	p.broadcastGameState(req.GamePin, inst, true)
}

// handleLatencyPong records the half-RTT sample for the probe this
// socket just echoed back. The payload is the bare timestamp the
// server stamped on the matching latency_ping, not a JSON object.
func (p *Protocol) handleLatencyPong(client *socket.Client, raw []byte) {
	var timestamp int64
	if err := json.Unmarshal(raw, &timestamp); err != nil {
		return
	}
	p.Latency.RecordPong(client.ID, timestamp)
}

func (p *Protocol) handleResetGame(client *socket.Client, raw []byte) {
	var req gamePinOnlyPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if !p.isModerator(client, req.GamePin) {
		p.sendError(client, "game_state_update_error", "not authorized")
		return
	}
	defer p.Games.LockPin(req.GamePin)()
	p.clearQuestionTimer(req.GamePin)

	inst, ok := p.Games.Get(req.GamePin)
	if !ok {
		return
	}
	inst.ResetGame()

	gameID := inst.GameID
	p.Sockets.Batcher().Enqueue("update_game_state", func() error {
		return p.Store.UpdateGameState(gameID, store.StatusWaiting, 0, 0)
	})
	for _, ps := range inst.Players() {
		playerID := ps.PlayerID
		p.Sockets.Batcher().Enqueue("update_score", func() error {
			return p.Store.UpdatePlayerScore(playerID, 0)
		})
	}

	p.broadcastGameState(req.GamePin, inst, true)
}

func (p *Protocol) handleSubmitAnswer(client *socket.Client, raw []byte) {
	var req submitAnswerPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	sess, ok := p.Sessions.Get(client.ID)
	if !ok || sess.Role != session.RolePlayer {
		return
	}

	defer p.Games.LockPin(sess.GamePin)()

	inst, ok := p.Games.Get(sess.GamePin)
	if !ok {
		return
	}

	latency := p.Latency.Estimate(client.ID)
	ans := inst.SubmitAnswer(sess.SubjectID, req.Answer, latency)
	if ans == nil {
		return // wrong phase, unknown player, or duplicate: first write wins
	}

	q, _ := inst.CurrentQuestion()
	correct := req.Answer == q.CorrectOption
	points := game.CalculateScore(ans.ResponseTime, correct, q.TimeLimitSec)
	inst.AddScore(sess.SubjectID, points)

	ps, _ := inst.Player(sess.SubjectID)

	gameID := inst.GameID
	questionIdx := inst.CurrentQuestionIndex()
	p.Sockets.Batcher().Enqueue("save_answer", func() error {
		_, err := p.Store.SaveAnswer(gameID, sess.SubjectID, questionIdx, req.Answer, correct, points, ans.ResponseTime)
		return err
	})
	p.Sockets.Batcher().Enqueue("update_score", func() error {
		return p.Store.UpdatePlayerScore(sess.SubjectID, ps.Score)
	})

	p.send(client, "answer_result", answerResultPayload{
		Correct:       correct,
		CorrectAnswer: q.CorrectOption,
		Points:        points,
		TotalScore:    ps.Score,
		ResponseTime:  ans.ResponseTime,
	})

	answered := inst.AnswerCount()
	counts := inst.AnswerOptionCounts()
	p.broadcastJSON(sess.GamePin, socket.RoomModerators, "live_stats", liveStatsPayload{
		AnsweredCount: answered,
		AnswerStats:   counts[:],
	})
}

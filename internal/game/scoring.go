// File: internal/game/scoring.go
// Quiz Engine - Game Instance: answer submission, scoring, state machine

package game

import (
	"sort"
	"time"
)

// SubmitAnswer records a player's response, compensating for network
// latency before computing response time. Returns nil if any
// precondition fails: wrong phase, unknown player, or a prior answer
// already on file for the current question.
func (inst *Instance) SubmitAnswer(playerID int64, option int, socketLatencyMs int64) *Answer {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.phase != QuestionActive {
		return nil
	}
	inst.lastActivity = time.Now()
	if _, ok := inst.players[playerID]; !ok {
		return nil
	}
	// answeredBy, not the ring buffer, is the dedup authority: an answer
	// dropped by a full buffer still counts as this player's one shot.
	if _, dup := inst.answeredBy[playerID]; dup {
		return nil
	}

	now := time.Now().UnixMilli()
	effective := now - socketLatencyMs
	if effective < 0 {
		effective = 0
	}
	responseTime := effective - inst.questionStartTime
	if responseTime < 0 {
		responseTime = 0
	}

	a := Answer{
		PlayerID:      playerID,
		Option:        option,
		EffectiveTime: effective,
		ResponseTime:  responseTime,
	}

	if len(inst.answers) < inst.MaxAnswers {
		inst.answers = append(inst.answers, a)
	}
	inst.answeredBy[playerID] = struct{}{}
	inst.totalAnswers++
	inst.stats.TotalAnswers++

	return &a
}

// CalculateScore is base + a linearly decaying bonus for speed, zero
// for a wrong answer.
func CalculateScore(responseTimeMs int64, correct bool, timeLimitSec int) int {
	if !correct {
		return 0
	}
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}
	limitMs := float64(timeLimitSec) * 1000
	if responseTimeMs >= int64(limitMs) {
		return scoreBase
	}
	bonus := scoreMaxBonus - (float64(responseTimeMs)/limitMs)*scoreMaxBonus
	if bonus < 0 {
		bonus = 0
	}
	return scoreBase + int(bonus+0.5)
}

// AddScore adds delta to a player's running score. Scores never
// decrease within a game; callers only pass non-negative deltas from
// CalculateScore.
func (inst *Instance) AddScore(playerID int64, delta int) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if p, ok := inst.players[playerID]; ok {
		p.Score += delta
		inst.invalidateLeaderboard()
	}
}

// CurrentQuestion returns the question at the current index, or false
// if the index is out of range (game finished or never loaded).
func (inst *Instance) CurrentQuestion() (Question, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.currentQuestionIdx < 0 || inst.currentQuestionIdx >= len(inst.Questions) {
		return Question{}, false
	}
	return inst.Questions[inst.currentQuestionIdx], true
}

// StartQuestion transitions WAITING -> QUESTION_ACTIVE, clearing the
// answer buffer and recording the start timestamp.
func (inst *Instance) StartQuestion() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	inst.phase = QuestionActive
	inst.questionStartTime = time.Now().UnixMilli()
	inst.answers = inst.answers[:0]
	inst.answeredBy = make(map[int64]struct{})
}

// EndQuestion transitions QUESTION_ACTIVE (or a timeout) -> RESULTS.
func (inst *Instance) EndQuestion() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	inst.phase = Results
}

// NextQuestion advances past the current question. On success it
// resets to WAITING for the next question; once there are no more
// questions it transitions to FINISHED and returns false.
func (inst *Instance) NextQuestion() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()

	inst.currentQuestionIdx++
	if inst.currentQuestionIdx >= len(inst.Questions) {
		inst.phase = Finished
		return false
	}
	inst.phase = Waiting
	inst.questionStartTime = 0
	inst.answers = inst.answers[:0]
	inst.answeredBy = make(map[int64]struct{})
	return true
}

// EndGame forces FINISHED from any phase.
func (inst *Instance) EndGame() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	inst.phase = Finished
}

// ResetGame returns the instance to WAITING at question 0 with every
// score cleared and the answer buffer emptied.
func (inst *Instance) ResetGame() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.lastActivity = time.Now()
	inst.phase = Waiting
	inst.currentQuestionIdx = 0
	inst.questionStartTime = 0
	inst.answers = inst.answers[:0]
	inst.answeredBy = make(map[int64]struct{})
	for _, p := range inst.players {
		p.Score = 0
	}
	inst.invalidateLeaderboard()
}

// Leaderboard returns the score-descending, join-order-ascending
// ranking of every player (connected or not), cached until the next
// score or membership change.
func (inst *Instance) Leaderboard() []LeaderboardEntry {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.leaderboardValid {
		return inst.leaderboard
	}

	entries := make([]LeaderboardEntry, 0, len(inst.players))
	for _, p := range inst.players {
		entries = append(entries, LeaderboardEntry{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Connected:   p.Connected,
		})
	}

	joinOrder := make(map[int64]int, len(inst.players))
	for _, p := range inst.players {
		joinOrder[p.PlayerID] = p.JoinOrder
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return joinOrder[entries[i].PlayerID] < joinOrder[entries[j].PlayerID]
	})
	for i := range entries {
		entries[i].Position = i + 1
	}

	inst.leaderboard = entries
	inst.leaderboardValid = true
	return entries
}

// State is the wire-facing {status, currentQuestionIndex, questionStartTime}.
type State struct {
	Status             string
	CurrentQuestionIdx int
	QuestionStartTime  int64
}

// GetState returns the current phase snapshot.
func (inst *Instance) GetState() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return State{
		Status:             string(inst.phase),
		CurrentQuestionIdx: inst.currentQuestionIdx,
		QuestionStartTime:  inst.questionStartTime,
	}
}

// Restore overwrites phase/currentQuestionIndex from a persisted row,
// for rebuilding an Instance on process restart or revival. Only the
// terminal phase survives; "results" and "question_active" both restore
// as "waiting", since the live state behind them (the answer buffer,
// the auto-end timer) cannot be recovered. The moderator re-drives the
// current question from WAITING.
func (inst *Instance) Restore(status string, currentQuestionIdx int) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch status {
	case string(Finished), "ended":
		inst.phase = Finished
	default:
		inst.phase = Waiting
	}
	inst.currentQuestionIdx = currentQuestionIdx
	inst.questionStartTime = 0
}

// Phase returns the current phase without the full state snapshot.
func (inst *Instance) Phase() Phase {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.phase
}

// TotalAnswers returns the lifetime answer counter (including ring
// buffer overflow).
func (inst *Instance) TotalAnswers() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.totalAnswers
}

// AnswerCount returns the number of answers on file for the current question.
func (inst *Instance) AnswerCount() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return len(inst.answers)
}

// AnswerOptionCounts returns how many recorded answers picked each of
// the four options, for the moderator's live per-option stats.
func (inst *Instance) AnswerOptionCounts() [4]int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	var counts [4]int
	for _, a := range inst.answers {
		if a.Option >= 0 && a.Option < 4 {
			counts[a.Option]++
		}
	}
	return counts
}

func (inst *Instance) invalidateLeaderboard() {
	inst.leaderboardValid = false
}

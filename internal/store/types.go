// File: internal/store/types.go
// Quiz Engine - Persistence Store row types

package store

import "strconv"

// GameStatus mirrors the Game Instance phase, lowercased, plus the
// terminal "ended" synonym of "finished".
type GameStatus string

const (
	StatusWaiting        GameStatus = "waiting"
	StatusQuestionActive GameStatus = "question_active"
	StatusResults        GameStatus = "results"
	StatusFinished       GameStatus = "finished"
	StatusEnded          GameStatus = "ended"
)

// Game is the persisted row for one quiz game.
type Game struct {
	ID                    int64
	Pin                   string
	ModeratorPasswordHash string // empty if no password set
	ModeratorToken        string
	Status                GameStatus
	CurrentQuestionIdx    int
	QuestionStartTime     int64 // unix ms, 0 if not active
	CreatedAt             int64 // unix seconds
}

// Question is one multiple-choice question belonging to a Game.
type Question struct {
	ID            int64
	GameID        int64
	OrderIndex    int
	Prompt        string
	Options       [4]string
	CorrectOption int
	TimeLimitSec  int
}

// Player is a joined participant of a Game.
type Player struct {
	ID         int64
	GameID     int64
	JoinOrder  int // 1-based per-game ordinal, used for "Player N" display
	Token      string
	Score      int
	Connected  bool
	LastSeenAt int64 // unix seconds
}

// DisplayName renders the conventional "Hráč <n>" label from join order.
func (p Player) DisplayName() string {
	return "Hráč " + strconv.Itoa(p.JoinOrder)
}

// Answer is an immutable record of one player's response to one question.
type Answer struct {
	ID           int64
	GameID       int64
	PlayerID     int64
	QuestionID   int64
	Option       int
	Correct      bool
	Points       int
	ResponseTime int64 // ms
	SubmittedAt  int64 // unix seconds
}

// QuestionTemplate is a reusable, category-keyed bank of questions a
// moderator can load into a new game instead of authoring one from scratch.
type QuestionTemplate struct {
	Category  string
	Questions []Question
}

// File: internal/store/answers.go
// Quiz Engine - Persistence Store: Answer operations

package store

import (
	"database/sql"
	"fmt"
)

// ErrQuestionNotFound is returned by SaveAnswer when questionOrderIndex
// does not name a question belonging to the game.
var ErrQuestionNotFound = fmt.Errorf("question not found")

// SaveAnswer records a player's response to a question. Duplicate
// submissions for the same (game, player, question) return the
// existing answer id unchanged: first write wins.
func (s *Store) SaveAnswer(gameID, playerID int64, questionOrderIndex, option int, correct bool, points int, responseTime int64) (answerID int64, err error) {
	var questionID int64
	err = s.db.QueryRow(fmt.Sprintf(
		`SELECT id FROM questions WHERE game_id = %s AND order_index = %s`, s.placeholder(1), s.placeholder(2)),
		gameID, questionOrderIndex).Scan(&questionID)
	if err == sql.ErrNoRows {
		return 0, ErrQuestionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve question: %w", err)
	}

	err = s.stmts.getAnswer.QueryRow(gameID, playerID, questionID).Scan(&answerID)
	if err == nil {
		return answerID, nil // already recorded, first write wins
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("check existing answer: %w", err)
	}

	correctInt := 0
	if correct {
		correctInt = 1
	}
	res, err := s.stmts.insertAnswer.Exec(gameID, playerID, questionID, option, correctInt, points, responseTime)
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}
	return res.LastInsertId()
}

// File: internal/store/games.go
// Quiz Engine - Persistence Store: Game operations

package store

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CreateGame persists a new game row and its ordered questions in one
// transaction. moderatorToken and pin are generated by the Token/PIN
// Service and handed in already chosen; password, if non-empty, is
// hashed here before storage.
func (s *Store) CreateGame(pin, moderatorToken, password string, questions []Question) (gameID int64, err error) {
	passwordHash := ""
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return 0, fmt.Errorf("hash moderator password: %w", err)
		}
		passwordHash = string(hash)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin create game tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Stmt(s.stmts.insertGame).Exec(pin, passwordHash, moderatorToken)
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	gameID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read new game id: %w", err)
	}

	insertQ := tx.Stmt(s.stmts.insertQuestion)
	for i, q := range questions {
		_, err := insertQ.Exec(gameID, i, q.Prompt, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.CorrectOption, q.TimeLimitSec)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create game tx: %w", err)
	}
	return gameID, nil
}

// GetGameByPin returns the game row and its ordered question list, or
// (nil, nil, nil) if no such PIN exists.
func (s *Store) GetGameByPin(pin string) (*Game, []Question, error) {
	g, err := s.scanGame(s.stmts.getGameByPin.QueryRow(pin))
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get game by pin: %w", err)
	}

	questions, err := s.getQuestions(g.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get questions for game %d: %w", g.ID, err)
	}
	return g, questions, nil
}

func (s *Store) getQuestions(gameID int64) ([]Question, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, game_id, order_index, prompt, option_0, option_1, option_2, option_3, correct_option, time_limit_sec
		 FROM questions WHERE game_id = %s ORDER BY order_index ASC`, s.placeholder(1)), gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.GameID, &q.OrderIndex, &q.Prompt,
			&q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
			&q.CorrectOption, &q.TimeLimitSec); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanGame(row rowScanner) (*Game, error) {
	var g Game
	var status string
	if err := row.Scan(&g.ID, &g.Pin, &g.ModeratorPasswordHash, &g.ModeratorToken,
		&status, &g.CurrentQuestionIdx, &g.QuestionStartTime, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.Status = GameStatus(status)
	return &g, nil
}

// UpdateGameQuestions atomically replaces a game's question set.
func (s *Store) UpdateGameQuestions(gameID int64, questions []Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update questions tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Stmt(s.stmts.deleteQuestions).Exec(gameID); err != nil {
		return fmt.Errorf("delete old questions: %w", err)
	}

	insertQ := tx.Stmt(s.stmts.insertQuestion)
	for i, q := range questions {
		_, err := insertQ.Exec(gameID, i, q.Prompt, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.CorrectOption, q.TimeLimitSec)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ValidateModerator checks a pin against either a password or a token.
// It never returns an error for a mismatch: it returns (nil, nil) so
// callers can distinguish "wrong credentials" from a genuine store
// failure.
func (s *Store) ValidateModerator(pin, password, token string) (*Game, error) {
	g, _, err := s.GetGameByPin(pin)
	if err != nil {
		return nil, fmt.Errorf("validate moderator: %w", err)
	}
	if g == nil {
		return nil, nil
	}

	if token != "" {
		if token == g.ModeratorToken {
			return g, nil
		}
		return nil, nil
	}

	if password != "" && g.ModeratorPasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(g.ModeratorPasswordHash), []byte(password)) == nil {
			return g, nil
		}
		return nil, nil
	}

	return nil, nil
}

// UpdateGameState partially updates status/currentQuestionIndex/questionStartTime.
func (s *Store) UpdateGameState(gameID int64, status GameStatus, currentQuestionIndex int, questionStartTime int64) error {
	_, err := s.stmts.updateGameState.Exec(string(status), currentQuestionIndex, questionStartTime, gameID)
	if err != nil {
		return fmt.Errorf("update game state: %w", err)
	}
	return nil
}

// ListActiveGames returns every game row not yet finished/ended, so the
// composition root can rebuild in-memory Game Instances for them on
// process restart.
func (s *Store) ListActiveGames() ([]*Game, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, pin, moderator_password_hash, moderator_token, status, current_question_index, question_start_time, created_at
		 FROM games WHERE status NOT IN (%s, %s)`, s.placeholder(1), s.placeholder(2)),
		string(StatusFinished), string(StatusEnded))
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		g, err := s.scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active game row: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// CleanupOldGames removes games (and cascades to their children) older
// than the given unix-second cutoff, returning the number removed.
func (s *Store) CleanupOldGames(cutoff int64) (int64, error) {
	res, err := s.stmts.deleteOldGames.Exec(cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old games: %w", err)
	}
	return res.RowsAffected()
}

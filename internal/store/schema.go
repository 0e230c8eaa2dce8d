// File: internal/store/schema.go
// Quiz Engine - Persistence Store schema

package store

import (
	"database/sql"
	"fmt"
	"log"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS games (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pin TEXT NOT NULL UNIQUE,
    moderator_password_hash TEXT DEFAULT '',
    moderator_token TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'waiting',
    current_question_index INTEGER NOT NULL DEFAULT 0,
    question_start_time INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    order_index INTEGER NOT NULL,
    prompt TEXT NOT NULL,
    option_0 TEXT NOT NULL,
    option_1 TEXT NOT NULL,
    option_2 TEXT NOT NULL,
    option_3 TEXT NOT NULL,
    correct_option INTEGER NOT NULL,
    time_limit_sec INTEGER NOT NULL,
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE,
    UNIQUE (game_id, order_index)
);

CREATE TABLE IF NOT EXISTS players (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    join_order INTEGER NOT NULL,
    token TEXT NOT NULL UNIQUE,
    score INTEGER NOT NULL DEFAULT 0,
    connected INTEGER NOT NULL DEFAULT 1,
    last_seen_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS answers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    player_id INTEGER NOT NULL,
    question_id INTEGER NOT NULL,
    option INTEGER NOT NULL,
    correct INTEGER NOT NULL,
    points INTEGER NOT NULL,
    response_time INTEGER NOT NULL,
    submitted_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE,
    FOREIGN KEY (player_id) REFERENCES players(id) ON DELETE CASCADE,
    FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE,
    UNIQUE (game_id, player_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_templates (
    category TEXT NOT NULL,
    order_index INTEGER NOT NULL,
    prompt TEXT NOT NULL,
    option_0 TEXT NOT NULL,
    option_1 TEXT NOT NULL,
    option_2 TEXT NOT NULL,
    option_3 TEXT NOT NULL,
    correct_option INTEGER NOT NULL,
    time_limit_sec INTEGER NOT NULL,
    PRIMARY KEY (category, order_index)
);

CREATE INDEX IF NOT EXISTS idx_games_pin ON games(pin);
CREATE INDEX IF NOT EXISTS idx_players_token ON players(token);
CREATE INDEX IF NOT EXISTS idx_questions_game_order ON questions(game_id, order_index);
`

// initializeSchema creates all database tables. Kept inline rather
// than moved to migration files, since the table set is small and
// fixed.
func (s *Store) initializeSchema() error {
	if s.dbType != "sqlite" {
		log.Println("Warning: schema auto-creation is SQLite-oriented; run migrations for postgres deployments")
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	log.Println("Database tables created successfully")
	return nil
}

// prepareStatements prepares every statement the Store reuses across
// calls, keyed to this connection's placeholder style.
func (s *Store) prepareStatements() error {
	p := s.placeholder

	prep := func(dst **sql.Stmt, query string) error {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", query, err)
		}
		*dst = stmt
		return nil
	}

	if err := prep(&s.stmts.getGameByPin, fmt.Sprintf(
		`SELECT id, pin, moderator_password_hash, moderator_token, status, current_question_index, question_start_time, created_at FROM games WHERE pin = %s`, p(1))); err != nil {
		return err
	}
	if err := prep(&s.stmts.insertGame, fmt.Sprintf(
		`INSERT INTO games (pin, moderator_password_hash, moderator_token, status) VALUES (%s, %s, %s, 'waiting')`, p(1), p(2), p(3))); err != nil {
		return err
	}
	if err := prep(&s.stmts.insertQuestion, fmt.Sprintf(
		`INSERT INTO questions (game_id, order_index, prompt, option_0, option_1, option_2, option_3, correct_option, time_limit_sec) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8), p(9))); err != nil {
		return err
	}
	if err := prep(&s.stmts.deleteQuestions, fmt.Sprintf(
		`DELETE FROM questions WHERE game_id = %s`, p(1))); err != nil {
		return err
	}
	if err := prep(&s.stmts.updateGameState, fmt.Sprintf(
		`UPDATE games SET status = %s, current_question_index = %s, question_start_time = %s WHERE id = %s`,
		p(1), p(2), p(3), p(4))); err != nil {
		return err
	}
	if err := prep(&s.stmts.validateByToken, fmt.Sprintf(
		`SELECT id, pin, moderator_password_hash, moderator_token, status, current_question_index, question_start_time, created_at FROM games WHERE pin = %s AND moderator_token = %s`,
		p(1), p(2))); err != nil {
		return err
	}
	if err := prep(&s.stmts.insertPlayer, fmt.Sprintf(
		`INSERT INTO players (game_id, join_order, token) VALUES (%s, %s, %s)`, p(1), p(2), p(3))); err != nil {
		return err
	}
	if err := prep(&s.stmts.getPlayerByToken, fmt.Sprintf(
		`SELECT id, game_id, join_order, token, score, connected, last_seen_at FROM players WHERE game_id = %s AND token = %s`,
		p(1), p(2))); err != nil {
		return err
	}
	if err := prep(&s.stmts.setPlayerConn, fmt.Sprintf(
		`UPDATE players SET connected = %s, last_seen_at = %s WHERE id = %s`, p(1), p(2), p(3))); err != nil {
		return err
	}
	if err := prep(&s.stmts.updatePlayerScore, fmt.Sprintf(
		`UPDATE players SET score = %s WHERE id = %s`, p(1), p(2))); err != nil {
		return err
	}
	if err := prep(&s.stmts.insertAnswer, fmt.Sprintf(
		`INSERT INTO answers (game_id, player_id, question_id, option, correct, points, response_time) VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		p(1), p(2), p(3), p(4), p(5), p(6), p(7))); err != nil {
		return err
	}
	if err := prep(&s.stmts.getAnswer, fmt.Sprintf(
		`SELECT id FROM answers WHERE game_id = %s AND player_id = %s AND question_id = %s`, p(1), p(2), p(3))); err != nil {
		return err
	}
	if err := prep(&s.stmts.deletePlayers, fmt.Sprintf(
		`DELETE FROM players WHERE game_id = %s`, p(1))); err != nil {
		return err
	}
	if err := prep(&s.stmts.deletePlayer, fmt.Sprintf(
		`DELETE FROM players WHERE id = %s`, p(1))); err != nil {
		return err
	}
	if err := prep(&s.stmts.deleteOldGames, fmt.Sprintf(
		`DELETE FROM games WHERE created_at < %s`, p(1))); err != nil {
		return err
	}

	return nil
}

// File: internal/store/players.go
// Quiz Engine - Persistence Store: Player operations

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AddPlayer inserts a new player row, assigning the next per-game join
// order. The token is generated by the Token/PIN Service and handed in.
func (s *Store) AddPlayer(gameID int64, playerToken string) (playerID int64, joinOrder int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin add player tx: %w", err)
	}
	defer tx.Rollback()

	var maxOrder sql.NullInt64
	err = tx.QueryRow(fmt.Sprintf(
		`SELECT MAX(join_order) FROM players WHERE game_id = %s`, s.placeholder(1)), gameID).Scan(&maxOrder)
	if err != nil {
		return 0, 0, fmt.Errorf("compute join order: %w", err)
	}
	joinOrder = int(maxOrder.Int64) + 1

	res, err := tx.Exec(fmt.Sprintf(
		`INSERT INTO players (game_id, join_order, token) VALUES (%s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3)), gameID, joinOrder, playerToken)
	if err != nil {
		return 0, 0, fmt.Errorf("insert player: %w", err)
	}
	playerID, err = res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("read new player id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit add player tx: %w", err)
	}
	return playerID, joinOrder, nil
}

// ReconnectPlayer validates (gameID, playerToken) and flips the row's
// connected flag to true, returning the refreshed row. Returns
// (nil, nil) if the token does not match any player in this game.
func (s *Store) ReconnectPlayer(gameID int64, playerToken string) (*Player, error) {
	var p Player
	var connected int
	err := s.stmts.getPlayerByToken.QueryRow(gameID, playerToken).Scan(
		&p.ID, &p.GameID, &p.JoinOrder, &p.Token, &p.Score, &connected, &p.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconnect player: %w", err)
	}

	now := time.Now().Unix()
	if _, err := s.stmts.setPlayerConn.Exec(1, now, p.ID); err != nil {
		return nil, fmt.Errorf("mark player connected: %w", err)
	}
	p.Connected = true
	p.LastSeenAt = now
	return &p, nil
}

// DisconnectPlayer marks a player as disconnected and stamps last-seen.
func (s *Store) DisconnectPlayer(playerID int64) error {
	_, err := s.stmts.setPlayerConn.Exec(0, time.Now().Unix(), playerID)
	if err != nil {
		return fmt.Errorf("disconnect player: %w", err)
	}
	return nil
}

// UpdatePlayerScore is an idempotent absolute-value write.
func (s *Store) UpdatePlayerScore(playerID int64, score int) error {
	_, err := s.stmts.updatePlayerScore.Exec(score, playerID)
	if err != nil {
		return fmt.Errorf("update player score: %w", err)
	}
	return nil
}

// DeletePlayer permanently removes a single player row, used when a
// player issues an explicit leave_game.
func (s *Store) DeletePlayer(playerID int64) error {
	_, err := s.stmts.deletePlayer.Exec(playerID)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return nil
}

// RemoveAllPlayersFromGame permanently deletes every player row for a
// game, returning the count removed.
func (s *Store) RemoveAllPlayersFromGame(gameID int64) (int64, error) {
	res, err := s.stmts.deletePlayers.Exec(gameID)
	if err != nil {
		return 0, fmt.Errorf("remove all players: %w", err)
	}
	return res.RowsAffected()
}

// ListPlayers returns every player row for a game in join order, used
// to rebuild a Game Instance's roster on process restart.
func (s *Store) ListPlayers(gameID int64) ([]Player, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, game_id, join_order, token, score, connected, last_seen_at
		 FROM players WHERE game_id = %s ORDER BY join_order ASC`, s.placeholder(1)), gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		var connected int
		if err := rows.Scan(&p.ID, &p.GameID, &p.JoinOrder, &p.Token, &p.Score, &connected, &p.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		p.Connected = connected != 0
		players = append(players, p)
	}
	return players, rows.Err()
}

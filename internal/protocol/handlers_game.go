// File: internal/protocol/handlers_game.go
// Quiz Engine - Protocol Handler: game lifecycle events

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"quizengine/internal/game"
	"quizengine/internal/session"
	"quizengine/internal/socket"
	"quizengine/internal/store"
	"quizengine/internal/token"
)

func toGameQuestions(rows []store.Question) []game.Question {
	out := make([]game.Question, 0, len(rows))
	for _, q := range rows {
		out = append(out, game.Question{
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			TimeLimitSec:  q.TimeLimitSec,
		})
	}
	return out
}

// applyCaps overlays the configured per-game limits onto a freshly
// built instance; zero config values keep the instance defaults.
func (p *Protocol) applyCaps(inst *game.Instance) {
	if p.Cfg.MaxPlayersPerGame > 0 {
		inst.MaxPlayers = p.Cfg.MaxPlayersPerGame
	}
	if p.Cfg.MaxAnswerBuffer > 0 {
		inst.MaxAnswers = p.Cfg.MaxAnswerBuffer
	}
}

// instanceFor returns the live Game Instance for a Store row, rebuilding
// one from the persisted snapshot when the abandoned-game reaper has
// already evicted it from memory. A rebuilt instance starts with every
// player disconnected; the phase restores per Instance.Restore, so a
// token-holding player or moderator can always come back to a game whose
// Store row is still active.
func (p *Protocol) instanceFor(g *store.Game) *game.Instance {
	if inst, ok := p.Games.Get(g.Pin); ok {
		return inst
	}

	_, questionRows, err := p.Store.GetGameByPin(g.Pin)
	if err != nil {
		log.Printf("revive %s: could not load questions: %v", g.Pin, err)
	}

	inst := game.NewInstance(g.Pin, g.ID, toGameQuestions(questionRows))
	p.applyCaps(inst)
	inst.Restore(string(g.Status), g.CurrentQuestionIdx)

	players, err := p.Store.ListPlayers(g.ID)
	if err != nil {
		log.Printf("revive %s: could not load players: %v", g.Pin, err)
	}
	for _, row := range players {
		inst.LoadPlayer(row.ID, row.JoinOrder, row.Score, row.Token, time.Unix(row.LastSeenAt, 0))
	}

	if !p.Games.Put(inst) {
		winner, _ := p.Games.Get(g.Pin)
		return winner
	}
	log.Printf("revived game %s from store (%d questions, %d players)", g.Pin, len(questionRows), len(players))
	return inst
}

func (p *Protocol) handleCreateGame(client *socket.Client, raw []byte) {
	var req createGamePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "create_game_error", "malformed request")
		return
	}

	pin, err := token.GeneratePin(req.CustomPin, p.Games.IsActive)
	if err != nil {
		p.sendError(client, "create_game_error", err.Error())
		return
	}

	moderatorToken, err := token.GenerateToken()
	if err != nil {
		p.sendError(client, "create_game_error", "could not allocate session")
		return
	}

	defer p.Games.LockPin(pin)()

	var questionRows []store.Question
	if req.Category != "" {
		rows, err := p.Store.GetQuestionTemplate(context.Background(), req.Category)
		if err != nil {
			log.Printf("create_game: template lookup for %q failed: %v", req.Category, err)
		}
		questionRows = rows
	}

	gameID, err := p.Store.CreateGame(pin, moderatorToken, req.ModeratorPassword, questionRows)
	if err != nil {
		p.sendError(client, "create_game_error", "pin already in use")
		return
	}

	inst := game.NewInstance(pin, gameID, toGameQuestions(questionRows))
	p.applyCaps(inst)
	if !p.Games.Put(inst) {
		p.sendError(client, "create_game_error", "pin already in use")
		return
	}

	inst.AddModeratorSocket(client.ID)
	p.Sessions.Register(client.ID, session.RoleModerator, pin, gameID)
	p.Sockets.JoinRoom(pin, socket.RoomModerators, client)

	p.send(client, "game_created", gameCreatedPayload{
		GamePin:        pin,
		QuestionCount:  len(questionRows),
		ModeratorToken: moderatorToken,
	})
}

func (p *Protocol) handleJoinGame(client *socket.Client, raw []byte) {
	var req joinGamePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "join_error", "malformed request")
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	g, _, err := p.Store.GetGameByPin(req.GamePin)
	if err != nil {
		p.sendError(client, "join_error", "server error")
		return
	}
	if g == nil {
		p.sendError(client, "join_error", "no such game")
		return
	}
	if g.Status == store.StatusFinished || g.Status == store.StatusEnded {
		p.sendError(client, "join_error", "game has ended")
		return
	}

	inst := p.instanceFor(g)

	// The PIN lock is held for the whole handler, so this check stays
	// authoritative through the Store insert below: a rejected join
	// never leaves a Player row behind.
	if inst.AtCapacity() {
		p.sendError(client, "join_error", "game is full")
		return
	}

	playerToken, err := token.GenerateToken()
	if err != nil {
		p.sendError(client, "join_error", "could not allocate session")
		return
	}

	playerID, joinOrder, err := p.Store.AddPlayer(g.ID, playerToken)
	if err != nil {
		p.sendError(client, "join_error", "could not join game")
		return
	}

	ps, err := inst.AddPlayer(playerID, fmt.Sprintf("Hráč %d", joinOrder), 0, playerToken)
	if err != nil {
		if derr := p.Store.DeletePlayer(playerID); derr != nil {
			log.Printf("join_game: could not roll back player %d: %v", playerID, derr)
		}
		p.sendError(client, "join_error", "game is full")
		return
	}

	inst.SetPlayerSocket(playerID, client.ID)
	p.Sessions.Register(client.ID, session.RolePlayer, req.GamePin, playerID)
	p.Sockets.JoinRoom(req.GamePin, socket.RoomPlayers, client)

	connected, _ := inst.PlayerCount()
	p.send(client, "game_joined", gameJoinedPayload{
		GamePin:      req.GamePin,
		PlayerID:     playerID,
		PlayerName:   ps.DisplayName,
		PlayerToken:  playerToken,
		PlayersCount: connected,
	})

	p.broadcastJSON(req.GamePin, socket.RoomModerators, "player_joined", playerCountPayload{PlayerName: ps.DisplayName, TotalPlayers: connected})
	p.broadcastJSON(req.GamePin, socket.RoomPanels, "player_joined", playerCountPayload{PlayerName: ps.DisplayName, TotalPlayers: connected})
	p.broadcastGameState(req.GamePin, inst, false)
}

func (p *Protocol) handleReconnectPlayer(client *socket.Client, raw []byte) {
	var req reconnectPlayerPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "reconnect_error", "malformed request")
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	g, _, err := p.Store.GetGameByPin(req.GamePin)
	if err != nil || g == nil {
		p.sendError(client, "reconnect_error", "no such game")
		return
	}

	row, err := p.Store.ReconnectPlayer(g.ID, req.PlayerToken)
	if err != nil {
		p.sendError(client, "reconnect_error", "server error")
		return
	}
	if row == nil {
		p.sendError(client, "reconnect_error", "unknown player token")
		return
	}

	inst := p.instanceFor(g)

	ps, err := inst.AddPlayer(row.ID, row.DisplayName(), row.Score, row.Token)
	if err != nil {
		p.sendError(client, "reconnect_error", "game is full")
		return
	}
	inst.SetPlayerSocket(row.ID, client.ID)
	p.Sessions.Register(client.ID, session.RolePlayer, req.GamePin, row.ID)
	p.Sockets.JoinRoom(req.GamePin, socket.RoomPlayers, client)

	p.send(client, "player_reconnected", playerReconnectedPayload{
		GamePin:    req.GamePin,
		PlayerID:   row.ID,
		PlayerName: ps.DisplayName,
		Score:      ps.Score,
		GameStatus: string(inst.Phase()),
	})

	// Mid-question reconnects get the running question again so the
	// client can re-render the countdown and options.
	if inst.Phase() == game.QuestionActive {
		if q, ok := inst.CurrentQuestion(); ok {
			state := inst.GetState()
			p.send(client, "question_started", map[string]any{
				"questionNumber": state.CurrentQuestionIdx + 1,
				"totalQuestions": inst.QuestionCount(),
				"question":       q.Prompt,
				"options":        q.Options,
				"timeLimit":      q.TimeLimitSec,
				"serverTime":     state.QuestionStartTime,
			})
		}
	}
}

func (p *Protocol) handleReconnectModerator(client *socket.Client, raw []byte) {
	var req reconnectModeratorPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "moderator_reconnect_error", "malformed request")
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	g, err := p.Store.ValidateModerator(req.GamePin, req.Password, req.ModeratorToken)
	if err != nil {
		p.sendError(client, "moderator_reconnect_error", "server error")
		return
	}
	if g == nil {
		p.sendError(client, "moderator_reconnect_error", "invalid credentials")
		return
	}

	inst := p.instanceFor(g)

	inst.AddModeratorSocket(client.ID)
	p.Sessions.Register(client.ID, session.RoleModerator, req.GamePin, g.ID)
	p.Sockets.JoinRoom(req.GamePin, socket.RoomModerators, client)

	_, total := inst.PlayerCount()
	players := make([]any, 0, total)
	for _, ps := range inst.Players() {
		players = append(players, map[string]any{
			"playerId":    ps.PlayerID,
			"displayName": ps.DisplayName,
			"score":       ps.Score,
			"connected":   ps.Connected,
		})
	}

	p.send(client, "moderator_reconnected", moderatorReconnectedPayload{
		GamePin:              req.GamePin,
		Status:               string(inst.Phase()),
		Players:              players,
		TotalPlayers:         total,
		CurrentQuestionIndex: inst.CurrentQuestionIndex(),
		QuestionCount:        inst.QuestionCount(),
		ModeratorToken:       g.ModeratorToken,
	})
}

func (p *Protocol) handleJoinPanel(client *socket.Client, raw []byte) {
	var req joinPanelPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		p.sendError(client, "panel_join_error", "malformed request")
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	g, _, err := p.Store.GetGameByPin(req.GamePin)
	if err != nil || g == nil {
		p.sendError(client, "panel_join_error", "no such game")
		return
	}

	inst := p.instanceFor(g)

	inst.AddPanelSocket(client.ID)
	p.Sessions.Register(client.ID, session.RolePanel, req.GamePin, 0)
	p.Sockets.JoinRoom(req.GamePin, socket.RoomPanels, client)

	p.send(client, "panel_game_joined", panelGameJoinedPayload{
		GamePin:       req.GamePin,
		QuestionCount: inst.QuestionCount(),
		GameStatus:    string(inst.Phase()),
	})
	p.send(client, "panel_leaderboard_update", map[string]any{
		"leaderboard": p.topLeaderboard(inst),
	})
}

func (p *Protocol) handleLeaveGame(client *socket.Client, raw []byte) {
	var req leaveGamePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	defer p.Games.LockPin(req.GamePin)()

	inst, ok := p.Games.Get(req.GamePin)
	if !ok {
		return
	}

	sess, ok := p.Sessions.Get(client.ID)
	if !ok || sess.Role != session.RolePlayer {
		return
	}

	inst.RemovePlayer(sess.SubjectID, true)
	p.Sockets.LeavePin(req.GamePin, client)
	p.Sessions.Unregister(client.ID)

	playerID := sess.SubjectID
	p.Sockets.Batcher().Enqueue("delete_player", func() error {
		return p.Store.DeletePlayer(playerID)
	})

	p.broadcastPlayerCount(req.GamePin, "player_left", inst)
}

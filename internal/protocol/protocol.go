// File: internal/protocol/protocol.go
// Quiz Engine - Protocol Handler: stateless event dispatcher

package protocol

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"quizengine/internal/config"
	"quizengine/internal/game"
	"quizengine/internal/session"
	"quizengine/internal/socket"
	"quizengine/internal/store"
)

// Protocol is the event router. It holds no per-request state of its
// own; every handler method takes the originating client and
// payload, resolves session -> game itself, and returns once it has
// validated, mutated, enqueued, and broadcast.
type Protocol struct {
	Store    *store.Store
	Games    *game.Registry
	Sessions *session.Registry
	Latency  *session.LatencyTracker
	Sockets  *socket.Manager
	Cfg      *config.Config

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// New builds a Protocol over the already-constructed services; nothing
// here is a package-level singleton.
func New(st *store.Store, games *game.Registry, sessions *session.Registry, latency *session.LatencyTracker, sockets *socket.Manager, cfg *config.Config) *Protocol {
	return &Protocol{
		Store: st, Games: games, Sessions: sessions, Latency: latency, Sockets: sockets, Cfg: cfg,
		timers: make(map[string]*time.Timer),
	}
}

// armQuestionTimer schedules the auto-end-question fallback. Any
// previously armed timer for this PIN is stopped first.
func (p *Protocol) armQuestionTimer(pin string, seconds int) {
	p.clearQuestionTimer(pin)
	p.timersMu.Lock()
	p.timers[pin] = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		p.autoEndQuestion(pin)
	})
	p.timersMu.Unlock()
}

// clearQuestionTimer cancels any pending per-question timer for pin.
func (p *Protocol) clearQuestionTimer(pin string) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	if t, ok := p.timers[pin]; ok {
		t.Stop()
		delete(p.timers, pin)
	}
}

// Dispatch decodes one inbound frame and routes it by event name. It
// matches socket.Dispatch's (clientID, message) shape so the transport
// layer never needs a *socket.Client reference of its own; the client
// is resolved from the Socket Manager once here; everything downstream
// keeps working with the resolved *socket.Client as before. Each
// handler serializes on its PIN's ordering lock (Registry.LockPin) for
// its whole body, so events for one game never interleave even though
// Dispatch runs on every connection's read goroutine. Unrecognized
// events and malformed envelopes are logged and ignored; the
// connection is never dropped for a bad message.
func (p *Protocol) Dispatch(clientID string, raw []byte) {
	client, ok := p.Sockets.Get(clientID)
	if !ok {
		log.Printf("socket %s: dispatch for unregistered client", clientID)
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("socket %s: malformed envelope: %v", client.ID, err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("socket %s: handler panic for event %q: %v", client.ID, env.Event, r)
			p.sendError(client, "internal_error", "unexpected server error")
		}
	}()

	data, _ := json.Marshal(env.Data)

	switch env.Event {
	case "create_game":
		p.handleCreateGame(client, data)
	case "join_game":
		p.handleJoinGame(client, data)
	case "reconnect_player":
		p.handleReconnectPlayer(client, data)
	case "reconnect_moderator":
		p.handleReconnectModerator(client, data)
	case "join_panel":
		p.handleJoinPanel(client, data)
	case "start_question":
		p.handleStartQuestion(client, data)
	case "next_question":
		p.handleNextQuestion(client, data)
	case "end_question":
		p.handleEndQuestion(client, data)
	case "end_game":
		p.handleEndGame(client, data)
	case "reset_game":
		p.handleResetGame(client, data)
	case "submit_answer":
		p.handleSubmitAnswer(client, data)
	case "leave_game":
		p.handleLeaveGame(client, data)
	case "latency_pong":
		p.handleLatencyPong(client, data)
	default:
		log.Printf("socket %s: unknown event %q", client.ID, env.Event)
	}
}

// OnDisconnect is called by the socket layer once a connection's read
// pump exits. It tells the Session Registry, the Game Instance, and the
// Latency Tracker to forget this socket.
func (p *Protocol) OnDisconnect(client *socket.Client) {
	p.Sockets.Unregister(client)
	p.Latency.Forget(client.ID)

	sess, ok := p.Sessions.Unregister(client.ID)
	if !ok {
		return
	}

	defer p.Games.LockPin(sess.GamePin)()

	inst, ok := p.Games.Get(sess.GamePin)
	if !ok {
		return
	}
	inst.RemoveSocket(client.ID)

	switch sess.Role {
	case session.RolePlayer:
		inst.RemovePlayer(sess.SubjectID, false)
		playerID := sess.SubjectID
		p.Sockets.Batcher().Enqueue("disconnect_player", func() error {
			return p.Store.DisconnectPlayer(playerID)
		})
		p.broadcastPlayerCount(sess.GamePin, "player_left", inst)
	}
}

func (p *Protocol) send(client *socket.Client, event string, payload any) {
	encoded, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		log.Printf("encode %s: %v", event, err)
		return
	}
	p.Sockets.Send(client, encoded)
}

func (p *Protocol) sendError(client *socket.Client, event, message string) {
	p.send(client, event, errorPayload{Message: message})
}

func (p *Protocol) broadcastJSON(pin string, room socket.Room, event string, payload any) {
	encoded, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		log.Printf("encode %s: %v", event, err)
		return
	}
	p.Sockets.Broadcast(pin, room, encoded)
}

func (p *Protocol) broadcastPlayerCount(pin, event string, inst *game.Instance) {
	connected, _ := inst.PlayerCount()
	p.broadcastJSON(pin, socket.RoomModerators, event, playerCountPayload{TotalPlayers: connected})
	p.broadcastJSON(pin, socket.RoomPanels, event, playerCountPayload{TotalPlayers: connected})
}

// topLeaderboard trims the full ranking to the configured broadcast
// size; displays that want fewer rows (the stage view renders top 3)
// trim further client-side.
func (p *Protocol) topLeaderboard(inst *game.Instance) []any {
	entries := inst.Leaderboard()
	if n := p.Cfg.LeaderboardBroadcastTopN; n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return leaderboardToAny(entries)
}

// broadcastGameState pushes the authoritative state blob for pin
// through the Socket Manager's delta compression: full on phase
// transitions, diffed otherwise.
func (p *Protocol) broadcastGameState(pin string, inst *game.Instance, forceFull bool) {
	state := inst.GetState()
	connected, _ := inst.PlayerCount()
	blob := map[string]any{
		"status":               state.Status,
		"currentQuestionIndex": state.CurrentQuestionIdx,
		"questionNumber":       state.CurrentQuestionIdx + 1,
		"totalQuestions":       inst.QuestionCount(),
		"playersCount":         connected,
	}
	if err := p.Sockets.BroadcastState(pin, socket.RoomAll, "game_state_update", blob, forceFull); err != nil {
		log.Printf("broadcast game_state_update for %s: %v", pin, err)
	}
}

func leaderboardToAny(entries []game.LeaderboardEntry) []any {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"position":    e.Position,
			"playerId":    e.PlayerID,
			"displayName": e.DisplayName,
			"score":       e.Score,
			"connected":   e.Connected,
		})
	}
	return out
}

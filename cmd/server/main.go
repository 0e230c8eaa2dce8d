// File: cmd/server/main.go
// Quiz Engine - composition root

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"quizengine/internal/config"
	"quizengine/internal/game"
	"quizengine/internal/httpapi"
	"quizengine/internal/lifecycle"
	"quizengine/internal/protocol"
	"quizengine/internal/session"
	"quizengine/internal/socket"
	"quizengine/internal/store"
)

const (
	ServerVersion = "1.0.0"
	ServerName    = "Quiz Engine"
)

// upgrader configures the websocket handshake for every client class;
// player, moderator, and panel all share one endpoint, and the role is
// resolved by the first event they send.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.LogConfig()

	log.Printf("%s v%s starting up...", ServerName, ServerVersion)

	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	games := game.NewRegistry()
	sessions := session.NewRegistry()
	latency := session.NewLatencyTracker()
	sockets := socket.NewManager(cfg.GlobalConnCap, cfg.MaxPlayersPerGame, cfg.BatchSize, cfg.BatchTimeoutMS)

	if err := restoreActiveGames(st, games, cfg); err != nil {
		log.Printf("Warning: failed to restore active games from store: %v", err)
	}

	proto := protocol.New(st, games, sessions, latency, sockets, cfg)
	api := httpapi.New(st, games, cfg)

	mux := httprouter.New()
	api.Routes(mux)
	mux.GET("/ws", wsHandler(proto, sockets, cfg))
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, rec any) {
		log.Printf("http: panic serving %s: %v", r.URL.Path, rec)
		w.WriteHeader(http.StatusInternalServerError)
	}

	// Serve static files for the web client, the only non-API route.
	fileServer := http.FileServer(http.Dir("web/static"))
	mux.NotFound = fileServer

	httpServer := &http.Server{
		Addr:         cfg.GetListenAddress(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	batchStop := make(chan struct{})
	batchDone := make(chan struct{})
	go func() {
		sockets.Batcher().Run(batchStop)
		close(batchDone)
	}()

	reaper := lifecycle.New(cfg, games, sessions, sockets, latency, st)
	reaperStop := make(chan struct{})
	go reaper.Run(reaperStop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("%s v%s ready", ServerName, ServerVersion)
		log.Printf("WebSocket endpoint: ws://%s/ws", httpServer.Addr)
		log.Printf("HTTP surface: http://%s/api/game/{pin}", httpServer.Addr)
		log.Println("Press Ctrl+C to shutdown")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)
	performGracefulShutdown(httpServer, batchStop, batchDone, reaperStop, cfg)
}

// wsHandler upgrades the connection and starts the client's read/write
// pumps, dispatching every inbound frame through the Protocol event
// router.
func wsHandler(proto *protocol.Protocol, sockets *socket.Manager, cfg *config.Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}

		clientID := newClientID()
		client := socket.NewClient(clientID, conn)

		if err := sockets.Register(client); err != nil {
			log.Printf("connection rejected for %s: %v", clientID, err)
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"event":"connection_rejected","data":{"message":"server is at capacity"}}`))
			client.Close()
			return
		}

		go client.WritePump()
		client.ReadPump(proto.Dispatch, func() {
			proto.OnDisconnect(client)
		})
	}
}

var clientSeq atomic.Uint64

func newClientID() string {
	return fmt.Sprintf("c-%d-%d", time.Now().UnixNano(), clientSeq.Add(1))
}

// restoreActiveGames rebuilds an in-memory Game Instance for every
// not-yet-finished Store row, so a process restart does not silently
// drop games that were mid-play when it stopped. Every loaded player
// starts disconnected; the phase restores as documented on
// game.Instance.Restore.
func restoreActiveGames(st *store.Store, games *game.Registry, cfg *config.Config) error {
	active, err := st.ListActiveGames()
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}

	for _, g := range active {
		_, questionRows, err := st.GetGameByPin(g.Pin)
		if err != nil {
			log.Printf("Warning: could not load questions for game %s: %v", g.Pin, err)
			continue
		}

		gameQuestions := make([]game.Question, 0, len(questionRows))
		for _, q := range questionRows {
			gameQuestions = append(gameQuestions, game.Question{
				Prompt:        q.Prompt,
				Options:       q.Options,
				CorrectOption: q.CorrectOption,
				TimeLimitSec:  q.TimeLimitSec,
			})
		}

		inst := game.NewInstance(g.Pin, g.ID, gameQuestions)
		if cfg.MaxPlayersPerGame > 0 {
			inst.MaxPlayers = cfg.MaxPlayersPerGame
		}
		if cfg.MaxAnswerBuffer > 0 {
			inst.MaxAnswers = cfg.MaxAnswerBuffer
		}
		inst.Restore(string(g.Status), g.CurrentQuestionIdx)

		players, err := st.ListPlayers(g.ID)
		if err != nil {
			log.Printf("Warning: could not load players for game %s: %v", g.Pin, err)
		}
		for _, p := range players {
			inst.LoadPlayer(p.ID, p.JoinOrder, p.Score, p.Token, time.Unix(p.LastSeenAt, 0))
		}

		if games.Put(inst) {
			log.Printf("Restored active game %s (%d questions, %d players)", g.Pin, len(gameQuestions), len(players))
		}
	}

	if len(active) > 0 {
		log.Printf("Restored %d active game(s) from store", len(active))
	}
	return nil
}

// performGracefulShutdown runs the numbered shutdown sequence: stop
// accepting connections, stop the lifecycle tasks, flush the
// write-batch queue, then close the store.
func performGracefulShutdown(httpServer *http.Server, batchStop, batchDone, reaperStop chan struct{}, cfg *config.Config) {
	log.Printf("%s v%s shutting down...", ServerName, ServerVersion)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSecs)*time.Second)
	defer cancel()

	log.Println("[1/4] Stopping new connections...")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("[2/4] Stopping lifecycle tasks...")
	close(reaperStop)

	log.Println("[3/4] Flushing pending database writes...")
	close(batchStop)
	<-batchDone

	log.Println("[4/4] Closing database connection...")
	// Store.Close is deferred in main; nothing further to do here.

	log.Printf("%s v%s offline.", ServerName, ServerVersion)
}

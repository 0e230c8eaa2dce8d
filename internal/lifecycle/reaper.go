// File: internal/lifecycle/reaper.go
// Quiz Engine - Lifecycle/Reaper: periodic maintenance tasks

// Package lifecycle drives the periodic background work: latency ping
// emission, disconnected-player TTL sweeps, abandoned-game eviction,
// and the daily Store reap. Each task runs on its own ticker so a slow
// pass on one never delays the others.
package lifecycle

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

// Reaper owns no state of its own beyond its tickers; it reads and
// mutates the already-constructed registries and store passed in from
// the composition root.
type Reaper struct {
	Cfg      *config.Config
	Games    *game.Registry
	Sessions *session.Registry
	Sockets  *socket.Manager
	Latency  *session.LatencyTracker
	Store    *store.Store
}

// New builds a Reaper over the given services.
func New(cfg *config.Config, games *game.Registry, sessions *session.Registry, sockets *socket.Manager, latency *session.LatencyTracker, st *store.Store) *Reaper {
	return &Reaper{Cfg: cfg, Games: games, Sessions: sessions, Sockets: sockets, Latency: latency, Store: st}
}

// Run starts every periodic task in its own goroutine and blocks until
// stop is closed, at which point all tasks have returned. None of the
// loops below holds a Game Instance's per-PIN lock across a suspension
// point.
func (r *Reaper) Run(stop <-chan struct{}) {
	var wg sync.WaitGroup
	tasks := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"latency ping", time.Duration(r.Cfg.LatencyPingIntervalSecs) * time.Second, r.pingSockets},
		{"disconnect TTL sweep", 60 * time.Second, r.sweepDisconnected},
		{"abandoned game cleanup", 5 * time.Minute, r.sweepAbandoned},
		{"store reap", 24 * time.Hour, r.reapStore},
	}

	for _, t := range tasks {
		wg.Add(1)
		go func(name string, interval time.Duration, run func()) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					run()
				case <-stop:
					return
				}
			}
		}(t.name, t.interval, t.run)
	}

	wg.Wait()
	log.Println("lifecycle: all reaper tasks stopped")
}

// pingLatencyEnvelope is {"event":"latency_ping","data":<server ms>}.
type pingLatencyEnvelope struct {
	Event string `json:"event"`
	Data  int64  `json:"data"`
}

// pingSockets fans a latency_ping out to every live socket and arms
// the matching pending-probe record.
func (r *Reaper) pingSockets() {
	now := time.Now().UnixMilli()
	encoded, err := json.Marshal(pingLatencyEnvelope{Event: "latency_ping", Data: now})
	if err != nil {
		log.Printf("lifecycle: encode latency_ping: %v", err)
		return
	}

	for _, id := range r.Sessions.Sockets() {
		client, ok := r.Sockets.Get(id)
		if !ok {
			continue
		}
		r.Latency.RecordPing(id, now)
		r.Sockets.Send(client, encoded)
	}
}

// sweepDisconnected permanently removes players whose connected=false
// age exceeds the configured TTL, purging their pending answers from
// the current question buffer and enqueuing the matching Store delete.
func (r *Reaper) sweepDisconnected() {
	ttl := time.Duration(r.Cfg.DisconnectTTLMinutes) * time.Minute
	now := time.Now()

	for pin, inst := range r.Games.Snapshot() {
		unlock := r.Games.LockPin(pin)
		stale := inst.DisconnectedPastTTL(ttl, now)
		for _, playerID := range stale {
			inst.RemovePlayer(playerID, true)
			pid := playerID
			r.Sockets.Batcher().Enqueue("delete_player", func() error {
				return r.Store.DeletePlayer(pid)
			})
		}
		if len(stale) > 0 {
			inst.MarkCleaned(now)
			log.Printf("lifecycle: pin %s reaped %d disconnected player(s)", pin, len(stale))
		}
		unlock()
	}
}

// sweepAbandoned evicts Game Instances with zero connected subjects
// past the idle threshold from memory; the Store row is left intact.
func (r *Reaper) sweepAbandoned() {
	idle := time.Duration(r.Cfg.AbandonedGameIdleMinutes) * time.Minute
	now := time.Now()

	for pin, inst := range r.Games.Snapshot() {
		unlock := r.Games.LockPin(pin)
		if !inst.IsIdle() || inst.IdleSince(now) < idle {
			unlock()
			continue
		}
		r.Games.Evict(pin)
		r.Sockets.EvictPin(pin)
		unlock()
		log.Printf("lifecycle: evicted idle game %s from memory", pin)
	}
}

// reapStore deletes games (and cascades to their children) older than
// StoreReapAgeHours.
func (r *Reaper) reapStore() {
	cutoff := time.Now().Add(-time.Duration(r.Cfg.StoreReapAgeHours) * time.Hour).Unix()
	n, err := r.Store.CleanupOldGames(cutoff)
	if err != nil {
		log.Printf("lifecycle: store reap failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("lifecycle: store reap removed %d game(s)", n)
	}
}

// File: internal/game/accessors.go
// Quiz Engine - Game Instance: read accessors used by payload shaping

package game

import "time"

// Player returns a copy of a player's live state, if present.
func (inst *Instance) Player(playerID int64) (PlayerState, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	p, ok := inst.players[playerID]
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

// Players returns a snapshot of every player, for the moderator's full
// roster view.
func (inst *Instance) Players() []PlayerState {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make([]PlayerState, 0, len(inst.players))
	for _, p := range inst.players {
		out = append(out, *p)
	}
	return out
}

// AtCapacity reports whether the connected-player count has reached the
// cap, for the join handler's pre-admission check: a rejected join must
// not create a Player row anywhere.
func (inst *Instance) AtCapacity() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	connected := 0
	for _, p := range inst.players {
		if p.Connected {
			connected++
		}
	}
	return connected >= inst.MaxPlayers
}

// PlayerCount returns (connected, total).
func (inst *Instance) PlayerCount() (connected, total int) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	total = len(inst.players)
	for _, p := range inst.players {
		if p.Connected {
			connected++
		}
	}
	return connected, total
}

// ModeratorSocketIDs / PanelSocketIDs snapshot the observer socket sets.
func (inst *Instance) ModeratorSocketIDs() []string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make([]string, 0, len(inst.moderatorSockets))
	for id := range inst.moderatorSockets {
		out = append(out, id)
	}
	return out
}

func (inst *Instance) PanelSocketIDs() []string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make([]string, 0, len(inst.panelSockets))
	for id := range inst.panelSockets {
		out = append(out, id)
	}
	return out
}

// Stats returns a copy of the lifetime memory accounting. LastCleanup
// is the time MarkCleaned last stamped; reading it changes nothing.
func (inst *Instance) Stats() Stats {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.stats
}

// MarkCleaned stamps the last-cleanup time, called by the reaper after
// a disconnected-player sweep touches this instance.
func (inst *Instance) MarkCleaned(at time.Time) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.stats.LastCleanup = at
}

// IsIdle reports whether the instance has zero connected subjects
// (players, moderators, or panels), for the abandoned-game reaper.
func (inst *Instance) IsIdle() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if len(inst.moderatorSockets) > 0 || len(inst.panelSockets) > 0 {
		return false
	}
	for _, p := range inst.players {
		if p.Connected {
			return false
		}
	}
	return true
}

// DisconnectedPastTTL returns the playerIDs whose connected=false age
// exceeds ttl, for the reaper's sweep.
func (inst *Instance) DisconnectedPastTTL(ttl time.Duration, now time.Time) []int64 {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	var stale []int64
	for id, p := range inst.players {
		if !p.Connected && now.Sub(p.LastSeen) > ttl {
			stale = append(stale, id)
		}
	}
	return stale
}

// IdleSince returns how long it has been since the instance last saw activity.
func (inst *Instance) IdleSince(now time.Time) time.Duration {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return now.Sub(inst.lastActivity)
}

// QuestionCount returns the total number of questions loaded.
func (inst *Instance) QuestionCount() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return len(inst.Questions)
}

// CurrentQuestionIndex returns the 0-based index without the full state.
func (inst *Instance) CurrentQuestionIndex() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.currentQuestionIdx
}

package game

import "testing"

func TestCalculateScore(t *testing.T) {
	cases := []struct {
		name         string
		responseMs   int64
		correct      bool
		timeLimitSec int
		want         int
	}{
		{"incorrect scores zero regardless of speed", 0, false, 30, 0},
		{"instant correct answer gets full bonus", 0, true, 30, scoreBase + scoreMaxBonus},
		{"answer at the time limit gets no bonus", 30000, true, 30, scoreBase},
		{"answer past the time limit is clamped to base", 45000, true, 30, scoreBase},
		{"halfway through the limit gets half the bonus", 15000, true, 30, scoreBase + scoreMaxBonus/2},
		{"negative response time is treated as instant", -100, true, 30, scoreBase + scoreMaxBonus},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CalculateScore(c.responseMs, c.correct, c.timeLimitSec)
			if got != c.want {
				t.Errorf("CalculateScore(%d, %v, %d) = %d, want %d", c.responseMs, c.correct, c.timeLimitSec, got, c.want)
			}
		})
	}
}

func TestSubmitAnswerRejectsOutsideQuestionActive(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.AddPlayer(1, "Alice", 0, "tok")

	if a := inst.SubmitAnswer(1, 0, 0); a != nil {
		t.Fatalf("expected nil answer while waiting, got %+v", a)
	}
}

func TestSubmitAnswerRejectsUnknownPlayer(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.StartQuestion()

	if a := inst.SubmitAnswer(99, 0, 0); a != nil {
		t.Fatalf("expected nil answer for unknown player, got %+v", a)
	}
}

func TestSubmitAnswerRejectsDuplicate(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.AddPlayer(1, "Alice", 0, "tok")
	inst.StartQuestion()

	first := inst.SubmitAnswer(1, 1, 0)
	if first == nil {
		t.Fatal("expected first answer to be recorded")
	}
	if second := inst.SubmitAnswer(1, 2, 0); second != nil {
		t.Fatalf("expected duplicate submission to be rejected, got %+v", second)
	}
	if got := inst.AnswerCount(); got != 1 {
		t.Fatalf("AnswerCount() = %d, want 1", got)
	}
}

func TestSubmitAnswerCompensatesForLatency(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.AddPlayer(1, "Alice", 0, "tok")
	inst.StartQuestion()

	a := inst.SubmitAnswer(1, 0, 250)
	if a == nil {
		t.Fatal("expected answer to be recorded")
	}
	if a.ResponseTime < 0 {
		t.Fatalf("ResponseTime should never go negative, got %d", a.ResponseTime)
	}
}

func TestAnswerBufferStopsGrowingPastMax(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.MaxAnswers = 2
	for i := int64(1); i <= 3; i++ {
		inst.AddPlayer(i, "P", 0, "tok")
	}
	inst.StartQuestion()

	for i := int64(1); i <= 3; i++ {
		inst.SubmitAnswer(i, 0, 0)
	}

	if got := inst.AnswerCount(); got != 2 {
		t.Fatalf("AnswerCount() = %d, want capped at MaxAnswers=2", got)
	}
	if got := inst.TotalAnswers(); got != 3 {
		t.Fatalf("TotalAnswers() = %d, want 3 (lifetime counter keeps counting past the cap)", got)
	}

	// Player 3's answer never made it into the buffer, but it still
	// counted as their one shot: a resubmission stays rejected.
	if a := inst.SubmitAnswer(3, 1, 0); a != nil {
		t.Fatalf("expected the overflow player's resubmission to be rejected, got %+v", a)
	}
	if got := inst.TotalAnswers(); got != 3 {
		t.Fatalf("TotalAnswers() after rejected resubmission = %d, want 3", got)
	}
}

func TestQuestionLifecycleTransitions(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{
		{Prompt: "q1", TimeLimitSec: 30},
		{Prompt: "q2", TimeLimitSec: 30},
	})

	if got := inst.Phase(); got != Waiting {
		t.Fatalf("new instance phase = %q, want waiting", got)
	}

	inst.StartQuestion()
	if got := inst.Phase(); got != QuestionActive {
		t.Fatalf("phase after StartQuestion = %q, want question_active", got)
	}

	inst.EndQuestion()
	if got := inst.Phase(); got != Results {
		t.Fatalf("phase after EndQuestion = %q, want results", got)
	}

	if ok := inst.NextQuestion(); !ok {
		t.Fatal("NextQuestion should succeed while more questions remain")
	}
	if got := inst.Phase(); got != Waiting {
		t.Fatalf("phase after NextQuestion = %q, want waiting", got)
	}
	if got := inst.CurrentQuestionIndex(); got != 1 {
		t.Fatalf("CurrentQuestionIndex() = %d, want 1", got)
	}

	inst.StartQuestion()
	inst.EndQuestion()
	if ok := inst.NextQuestion(); ok {
		t.Fatal("NextQuestion should report exhaustion once the question list runs out")
	}
	if got := inst.Phase(); got != Finished {
		t.Fatalf("phase after exhausting questions = %q, want finished", got)
	}
}

func TestResetGameClearsScoresAndReturnsToStart(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.AddPlayer(1, "Alice", 0, "tok")
	inst.AddScore(1, 500)
	inst.StartQuestion()
	inst.EndGame()

	inst.ResetGame()

	if got := inst.Phase(); got != Waiting {
		t.Fatalf("phase after ResetGame = %q, want waiting", got)
	}
	if got := inst.CurrentQuestionIndex(); got != 0 {
		t.Fatalf("CurrentQuestionIndex after ResetGame = %d, want 0", got)
	}
	p, _ := inst.Player(1)
	if p.Score != 0 {
		t.Fatalf("player score after ResetGame = %d, want 0", p.Score)
	}
}

func TestLeaderboardOrdersByScoreThenJoinOrder(t *testing.T) {
	inst := NewInstance("123456", 1, nil)
	inst.AddPlayer(1, "Alice", 0, "tok1") // join order 1
	inst.AddPlayer(2, "Bob", 0, "tok2")   // join order 2
	inst.AddPlayer(3, "Cara", 0, "tok3")  // join order 3

	inst.AddScore(2, 100)
	inst.AddScore(3, 100) // ties Bob; earlier join order should still rank ahead
	inst.AddScore(1, 50)

	board := inst.Leaderboard()
	if len(board) != 3 {
		t.Fatalf("len(board) = %d, want 3", len(board))
	}
	if board[0].PlayerID != 2 || board[0].Position != 1 {
		t.Fatalf("first place = %+v, want player 2 at position 1", board[0])
	}
	if board[1].PlayerID != 3 || board[1].Position != 2 {
		t.Fatalf("second place = %+v, want player 3 (tie broken by earlier join order)", board[1])
	}
	if board[2].PlayerID != 1 || board[2].Position != 3 {
		t.Fatalf("third place = %+v, want player 1", board[2])
	}
}

func TestLeaderboardIncludesDisconnectedPlayers(t *testing.T) {
	inst := NewInstance("123456", 1, nil)
	inst.AddPlayer(1, "Alice", 0, "tok")
	inst.RemovePlayer(1, false) // disconnect, not permanent removal

	board := inst.Leaderboard()
	if len(board) != 1 {
		t.Fatalf("len(board) = %d, want 1 (disconnected players still rank)", len(board))
	}
	if board[0].Connected {
		t.Fatal("expected the entry to reflect the disconnected state")
	}
}

func TestAnswerOptionCounts(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	for i := int64(1); i <= 3; i++ {
		inst.AddPlayer(i, "P", 0, "tok")
	}
	inst.StartQuestion()
	inst.SubmitAnswer(1, 0, 0)
	inst.SubmitAnswer(2, 0, 0)
	inst.SubmitAnswer(3, 2, 0)

	counts := inst.AnswerOptionCounts()
	if counts[0] != 2 || counts[2] != 1 || counts[1] != 0 || counts[3] != 0 {
		t.Fatalf("AnswerOptionCounts() = %v, want [2 0 1 0]", counts)
	}
}

func TestRestoreDegradesLivePhasesToWaiting(t *testing.T) {
	// Neither the answer buffer behind "results" nor the auto-end timer
	// behind "question_active" can be rebuilt from a persisted row, so
	// both restore as "waiting" at the persisted question index.
	for _, status := range []string{"results", "question_active"} {
		inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}, {Prompt: "q2", TimeLimitSec: 30}})
		inst.Restore(status, 1)

		state := inst.GetState()
		if state.Status != "waiting" || state.CurrentQuestionIdx != 1 || state.QuestionStartTime != 0 {
			t.Fatalf("Restore(%q, 1) state = %+v, want waiting/1/0", status, state)
		}
	}
}

func TestRestoreKeepsTerminalPhase(t *testing.T) {
	inst := NewInstance("123456", 1, []Question{{Prompt: "q", TimeLimitSec: 30}})
	inst.Restore("finished", 0)

	if got := inst.Phase(); got != Finished {
		t.Fatalf("Restore(\"finished\", 0) phase = %q, want finished", got)
	}
}

package store

import (
	"path/filepath"
	"testing"

	"quizengine/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{
		DBType:           "sqlite",
		DBName:           filepath.Join(t.TempDir(), "quiz_test.db"),
		DBMaxConnections: 5,
		DBMaxIdleConns:   2,
		RedisEnabled:     false,
	}
	st, err := New(cfg)
	if err != nil {
		t.Fatalf("New(cfg) unexpected error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleQuestions() []Question {
	return []Question{
		{Prompt: "2+2?", Options: [4]string{"3", "4", "5", "6"}, CorrectOption: 1, TimeLimitSec: 30},
		{Prompt: "Capital of France?", Options: [4]string{"Berlin", "Madrid", "Paris", "Rome"}, CorrectOption: 2, TimeLimitSec: 20},
	}
}

func TestCreateGameAndGetGameByPinRoundTrip(t *testing.T) {
	st := newTestStore(t)

	gameID, err := st.CreateGame("123456", "mod-token", "s3cret", sampleQuestions())
	if err != nil {
		t.Fatalf("CreateGame unexpected error: %v", err)
	}
	if gameID == 0 {
		t.Fatal("expected a non-zero game id")
	}

	g, questions, err := st.GetGameByPin("123456")
	if err != nil {
		t.Fatalf("GetGameByPin unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected a game row")
	}
	if g.Pin != "123456" || g.ModeratorToken != "mod-token" || g.Status != StatusWaiting {
		t.Fatalf("game row = %+v, unexpected values", g)
	}
	if g.ModeratorPasswordHash == "" || g.ModeratorPasswordHash == "s3cret" {
		t.Fatal("expected the password to be hashed, not stored or left blank")
	}
	if len(questions) != 2 {
		t.Fatalf("len(questions) = %d, want 2", len(questions))
	}
	if questions[0].Prompt != "2+2?" || questions[1].Prompt != "Capital of France?" {
		t.Fatalf("questions out of order index: %+v", questions)
	}
}

func TestGetGameByPinMissingReturnsNilNotError(t *testing.T) {
	st := newTestStore(t)

	g, questions, err := st.GetGameByPin("000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g != nil || questions != nil {
		t.Fatalf("expected nil, nil for a missing pin, got %+v, %+v", g, questions)
	}
}

func TestUpdateGameQuestionsReplacesSet(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())

	replacement := []Question{
		{Prompt: "Only one now", Options: [4]string{"a", "b", "c", "d"}, CorrectOption: 0, TimeLimitSec: 15},
	}
	if err := st.UpdateGameQuestions(gameID, replacement); err != nil {
		t.Fatalf("UpdateGameQuestions unexpected error: %v", err)
	}

	_, questions, err := st.GetGameByPin("123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(questions) != 1 || questions[0].Prompt != "Only one now" {
		t.Fatalf("questions after replace = %+v, want a single replaced question", questions)
	}
}

func TestValidateModeratorByToken(t *testing.T) {
	st := newTestStore(t)
	st.CreateGame("123456", "mod-token", "", sampleQuestions())

	g, err := st.ValidateModerator("123456", "", "mod-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected the token to validate")
	}

	g, err = st.ValidateModerator("123456", "", "wrong-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g != nil {
		t.Fatal("expected a mismatched token to fail validation without erroring")
	}
}

func TestValidateModeratorByPassword(t *testing.T) {
	st := newTestStore(t)
	st.CreateGame("123456", "mod-token", "s3cret", sampleQuestions())

	g, err := st.ValidateModerator("123456", "s3cret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected the correct password to validate")
	}

	g, err = st.ValidateModerator("123456", "wrong-password", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g != nil {
		t.Fatal("expected an incorrect password to fail validation without erroring")
	}
}

func TestAddPlayerAssignsSequentialJoinOrder(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())

	id1, order1, err := st.AddPlayer(gameID, "tok-1")
	if err != nil {
		t.Fatalf("AddPlayer(1) unexpected error: %v", err)
	}
	id2, order2, err := st.AddPlayer(gameID, "tok-2")
	if err != nil {
		t.Fatalf("AddPlayer(2) unexpected error: %v", err)
	}
	if order1 != 1 || order2 != 2 {
		t.Fatalf("join orders = %d, %d, want 1, 2", order1, order2)
	}
	if id1 == id2 {
		t.Fatal("expected distinct player ids")
	}
}

func TestReconnectPlayerByToken(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())
	st.AddPlayer(gameID, "tok-1")
	playerID, _, _ := st.AddPlayer(gameID, "tok-2")
	st.DisconnectPlayer(playerID)

	p, err := st.ReconnectPlayer(gameID, "tok-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || !p.Connected {
		t.Fatalf("ReconnectPlayer = %+v, want a connected player row", p)
	}

	p, err = st.ReconnectPlayer(gameID, "not-a-real-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatal("expected a bad token to return nil, not an error")
	}
}

func TestListPlayersOrderedByJoinOrder(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())
	st.AddPlayer(gameID, "tok-1")
	st.AddPlayer(gameID, "tok-2")
	st.AddPlayer(gameID, "tok-3")

	players, err := st.ListPlayers(gameID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("len(players) = %d, want 3", len(players))
	}
	for i, p := range players {
		if p.JoinOrder != i+1 {
			t.Fatalf("players[%d].JoinOrder = %d, want %d", i, p.JoinOrder, i+1)
		}
	}
}

func TestSaveAnswerIsIdempotentOnDuplicateSubmission(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())
	playerID, _, _ := st.AddPlayer(gameID, "tok-1")

	first, err := st.SaveAnswer(gameID, playerID, 0, 1, true, 1200, 1500)
	if err != nil {
		t.Fatalf("first SaveAnswer unexpected error: %v", err)
	}

	second, err := st.SaveAnswer(gameID, playerID, 0, 2, false, 0, 5000)
	if err != nil {
		t.Fatalf("second SaveAnswer unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate submission returned a different answer id: %d vs %d", first, second)
	}
}

func TestSaveAnswerUnknownQuestionIndex(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())
	playerID, _, _ := st.AddPlayer(gameID, "tok-1")

	if _, err := st.SaveAnswer(gameID, playerID, 99, 0, true, 1000, 100); err != ErrQuestionNotFound {
		t.Fatalf("error = %v, want ErrQuestionNotFound", err)
	}
}

func TestListActiveGamesExcludesFinishedAndEnded(t *testing.T) {
	st := newTestStore(t)
	activeID, _ := st.CreateGame("111111", "tok-a", "", sampleQuestions())
	finishedID, _ := st.CreateGame("222222", "tok-b", "", sampleQuestions())
	st.UpdateGameState(finishedID, StatusFinished, 0, 0)

	active, err := st.ListActiveGames()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].ID != activeID {
		t.Fatalf("ListActiveGames() = %+v, want only the waiting game", active)
	}
}

func TestUpdatePlayerScoreAndDeletePlayer(t *testing.T) {
	st := newTestStore(t)
	gameID, _ := st.CreateGame("123456", "mod-token", "", sampleQuestions())
	playerID, _, _ := st.AddPlayer(gameID, "tok-1")

	if err := st.UpdatePlayerScore(playerID, 1500); err != nil {
		t.Fatalf("UpdatePlayerScore unexpected error: %v", err)
	}
	players, _ := st.ListPlayers(gameID)
	if len(players) != 1 || players[0].Score != 1500 {
		t.Fatalf("players after score update = %+v, want score 1500", players)
	}

	if err := st.DeletePlayer(playerID); err != nil {
		t.Fatalf("DeletePlayer unexpected error: %v", err)
	}
	players, _ = st.ListPlayers(gameID)
	if len(players) != 0 {
		t.Fatalf("players after DeletePlayer = %+v, want empty", players)
	}
}

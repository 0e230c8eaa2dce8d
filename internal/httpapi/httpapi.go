// File: internal/httpapi/httpapi.go
// Quiz Engine - minimal HTTP surface

// Package httpapi serves the handful of JSON endpoints the core
// consumes/exposes beyond the websocket protocol: a by-PIN game lookup,
// question CRUD for the moderator editor, the shared question-template
// bank, and a QR-encoded join link for the panel/stage display.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/julienschmidt/httprouter"

	"quizengine/internal/config"
	"quizengine/internal/game"
	"quizengine/internal/store"
)

// API holds the services the HTTP surface reads from. Constructed once
// in the composition root alongside the Protocol and passed explicitly.
type API struct {
	Store *store.Store
	Games *game.Registry
	Cfg   *config.Config
}

// New builds an API over the given services.
func New(st *store.Store, games *game.Registry, cfg *config.Config) *API {
	return &API{Store: st, Games: games, Cfg: cfg}
}

// Routes registers every endpoint on mux.
func (a *API) Routes(mux *httprouter.Router) {
	mux.GET("/api/game/:pin", a.getGame)
	mux.GET("/api/game/:pin/qr", a.getGameQR)
	mux.GET("/api/games/:pin/questions", a.getGameQuestions)
	mux.PUT("/api/games/:pin/questions", a.putGameQuestions)
	mux.GET("/api/question-templates/:category", a.getTemplate)
	mux.PUT("/api/question-templates/:category", a.putTemplate)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

type gameSummary struct {
	Pin                  string `json:"pin"`
	Status               string `json:"status"`
	QuestionCount        int    `json:"questionCount"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
}

// getGame implements GET /api/game/{pin}: 200 with a summary, 404 if
// no such PIN. When the game has a live in-memory instance, status and
// currentQuestionIndex come from it (the authoritative live view);
// otherwise they fall back to the last persisted Store row.
func (a *API) getGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")

	g, questions, err := a.Store.GetGameByPin(pin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "no such game")
		return
	}

	summary := gameSummary{
		Pin:                  pin,
		Status:               string(g.Status),
		QuestionCount:        len(questions),
		CurrentQuestionIndex: g.CurrentQuestionIdx,
	}
	if inst, ok := a.Games.Get(pin); ok {
		state := inst.GetState()
		summary.Status = state.Status
		summary.CurrentQuestionIndex = state.CurrentQuestionIdx
	}

	writeJSON(w, http.StatusOK, summary)
}

// getGameQR returns a PNG QR code encoding a join URL for pin, for the
// panel/stage display.
func (a *API) getGameQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")

	g, _, err := a.Store.GetGameByPin(pin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "no such game")
		return
	}

	joinURL := fmt.Sprintf("%s://%s/join/%s", scheme(r), r.Host, pin)

	code, err := qr.Encode(joinURL, qr.M, qr.Auto)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not encode qr code")
		return
	}
	code, err = barcode.Scale(code, 256, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not scale qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, code); err != nil {
		log.Printf("httpapi: encode qr png for %s: %v", pin, err)
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

type questionWire struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	TimeLimitSec  int      `json:"timeLimitSec"`
}

func toWire(q store.Question) questionWire {
	return questionWire{
		Prompt:        q.Prompt,
		Options:       q.Options[:],
		CorrectOption: q.CorrectOption,
		TimeLimitSec:  q.TimeLimitSec,
	}
}

func fromWire(w questionWire, orderIndex int) (store.Question, error) {
	var q store.Question
	if len(w.Options) != 4 {
		return q, fmt.Errorf("question %d: exactly 4 options required", orderIndex)
	}
	if w.CorrectOption < 0 || w.CorrectOption > 3 {
		return q, fmt.Errorf("question %d: correctOption must be 0-3", orderIndex)
	}
	if w.TimeLimitSec < 10 || w.TimeLimitSec > 180 {
		return q, fmt.Errorf("question %d: timeLimitSec must be 10-180", orderIndex)
	}
	if w.Prompt == "" {
		return q, fmt.Errorf("question %d: prompt cannot be empty", orderIndex)
	}
	q.OrderIndex = orderIndex
	q.Prompt = w.Prompt
	copy(q.Options[:], w.Options)
	q.CorrectOption = w.CorrectOption
	q.TimeLimitSec = w.TimeLimitSec
	return q, nil
}

// getGameQuestions implements GET /api/games/{pin}/questions for the
// moderator editor.
func (a *API) getGameQuestions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")

	g, questions, err := a.Store.GetGameByPin(pin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "no such game")
		return
	}

	wire := make([]questionWire, 0, len(questions))
	for _, q := range questions {
		wire = append(wire, toWire(q))
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": wire})
}

// putGameQuestions implements PUT /api/games/{pin}/questions: an
// atomic replace of the full question set. Rejects a replace on a
// finished game.
func (a *API) putGameQuestions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")

	g, _, err := a.Store.GetGameByPin(pin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "no such game")
		return
	}
	if g.Status == store.StatusFinished || g.Status == store.StatusEnded {
		writeError(w, http.StatusConflict, "cannot edit questions on a finished game")
		return
	}

	var body struct {
		Questions []questionWire `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	rows := make([]store.Question, 0, len(body.Questions))
	for i, qw := range body.Questions {
		q, err := fromWire(qw, i)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows = append(rows, q)
	}

	if err := a.Store.UpdateGameQuestions(g.ID, rows); err != nil {
		writeError(w, http.StatusInternalServerError, "could not update questions")
		return
	}

	if inst, ok := a.Games.Get(pin); ok {
		gameQuestions := make([]game.Question, 0, len(rows))
		for _, q := range rows {
			gameQuestions = append(gameQuestions, game.Question{
				Prompt:        q.Prompt,
				Options:       q.Options,
				CorrectOption: q.CorrectOption,
				TimeLimitSec:  q.TimeLimitSec,
			})
		}
		inst.SetQuestions(gameQuestions)
	}

	w.WriteHeader(http.StatusOK)
}

// getTemplate implements GET /api/question-templates/{category}.
func (a *API) getTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	category := ps.ByName("category")

	questions, err := a.Store.GetQuestionTemplate(r.Context(), category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if questions == nil {
		writeError(w, http.StatusNotFound, "no such template")
		return
	}

	wire := make([]questionWire, 0, len(questions))
	for _, q := range questions {
		wire = append(wire, toWire(q))
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": wire})
}

// putTemplate implements PUT /api/question-templates/{category}.
func (a *API) putTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	category := ps.ByName("category")

	var body struct {
		Questions []questionWire `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	rows := make([]store.Question, 0, len(body.Questions))
	for i, qw := range body.Questions {
		q, err := fromWire(qw, i)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows = append(rows, q)
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()
	if err := a.Store.PutQuestionTemplate(ctx, category, rows); err != nil {
		writeError(w, http.StatusInternalServerError, "could not save template")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func timeoutContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

// API is the request/response surface for authoring games and resolving
// team access codes.
type API struct {
	catalog *app.Catalog
	logger  *slog.Logger
}

func NewAPI(catalog *app.Catalog, logger *slog.Logger) *API {
	return &API{catalog: catalog, logger: logger.With(slog.String("component", "api"))}
}

// NewRouter mounts the REST API, the websocket endpoint and a health check.
func NewRouter(api *API, ws *WSHandler, logger *slog.Logger, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Get("/games", api.listGames)
			r.Post("/games", api.createGame)
			r.Get("/games/{id}", api.getGame)
			r.Delete("/games/{id}", api.deleteGame)

			r.Post("/teams", api.createTeam)
			r.Delete("/teams/{id}", api.deleteTeam)
			r.Get("/teams/{id}/qr", api.teamQR)

			r.Post("/questions", api.createQuestion)
			r.Delete("/questions/{id}", api.deleteQuestion)

			r.Post("/answers", api.createAnswer)
		})
		r.Post("/participant/join", api.joinTeam)
	})
	return r
}

type createGameRequest struct {
	Name string `json:"name"`
}

type createTeamRequest struct {
	GameID int64  `json:"gameId"`
	Name   string `json:"name"`
}

type createQuestionRequest struct {
	GameID       int64  `json:"gameId"`
	QuestionText string `json:"questionText"`
	TimeLimit    int    `json:"timeLimit"`
	Points       int    `json:"points"`
	OrderIndex   int    `json:"orderIndex"`
}

type createAnswerRequest struct {
	QuestionID int64  `json:"questionId"`
	AnswerText string `json:"answerText"`
	IsCorrect  bool   `json:"isCorrect"`
}

type joinRequest struct {
	AccessCode string `json:"accessCode"`
}

// teamView is a team as returned to the admin, with its join link.
type teamView struct {
	domain.Team
	JoinURL string `json:"joinUrl"`
	QRCode  string `json:"qrCode,omitempty"`
}

func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	games, err := a.catalog.ListGames(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if games == nil {
		games = []domain.Game{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "games": games})
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !a.decode(w, r, &req) {
		return
	}
	game, err := a.catalog.CreateGame(r.Context(), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "game": game})
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	detail, err := a.catalog.GetGameDetail(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	teams := make([]teamView, 0, len(detail.Teams))
	for _, t := range detail.Teams {
		teams = append(teams, teamView{Team: t, JoinURL: a.catalog.JoinURL(t)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"game":      detail.Game,
		"teams":     teams,
		"questions": nonNil(detail.Questions),
	})
}

func (a *API) deleteGame(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.catalog.DeleteGame(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !a.decode(w, r, &req) {
		return
	}
	team, err := a.catalog.CreateTeam(r.Context(), req.GameID, req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := teamView{Team: team, JoinURL: a.catalog.JoinURL(team)}
	if qr, err := qrDataURL(view.JoinURL); err == nil {
		view.QRCode = qr
	} else {
		a.logger.Warn("qr generation failed", slog.Int64("team_id", team.ID), slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "team": view})
}

func (a *API) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.catalog.DeleteTeam(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) teamQR(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	team, err := a.catalog.GetTeam(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	png, err := qrPNG(a.catalog.JoinURL(team))
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if !a.decode(w, r, &req) {
		return
	}
	q, err := a.catalog.CreateQuestion(r.Context(), domain.Question{
		GameID:     req.GameID,
		Text:       req.QuestionText,
		TimeLimit:  req.TimeLimit,
		Points:     req.Points,
		OrderIndex: req.OrderIndex,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "question": q})
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.catalog.DeleteQuestion(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) createAnswer(w http.ResponseWriter, r *http.Request) {
	var req createAnswerRequest
	if !a.decode(w, r, &req) {
		return
	}
	ans, err := a.catalog.CreateAnswer(r.Context(), domain.Answer{
		QuestionID: req.QuestionID,
		Text:       req.AnswerText,
		IsCorrect:  req.IsCorrect,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "answer": ans})
}

func (a *API) joinTeam(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !a.decode(w, r, &req) {
		return
	}
	team, err := a.catalog.ResolveAccessCode(r.Context(), req.AccessCode)
	if err != nil {
		if errors.Is(err, domain.ErrTeamNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Invalid access code"})
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "team": team})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid request body"})
		return false
	}
	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid id"})
		return 0, false
	}
	return id, true
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]any{"success": false, "message": clientMessage(err)})
}

func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

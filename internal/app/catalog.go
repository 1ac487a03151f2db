package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"team-quiz-service/internal/dependencies/random"
	"team-quiz-service/internal/domain"
)

const (
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	accessCodeLength   = 8
	accessCodeAttempts = 10
)

// ErrCodeExhausted is returned when no free access code could be generated.
var ErrCodeExhausted = errors.New("could not generate a unique access code")

// CatalogConfig wires the catalog service.
type CatalogConfig struct {
	Store     Store
	Questions QuestionRepository
	Sessions  SessionRegistry
	Random    random.Random
	Locks     *GameLocks
	PublicURL string
	Logger    *slog.Logger
}

// Catalog is the authoring surface: games, teams, questions and answers.
type Catalog struct {
	store     Store
	questions QuestionRepository
	sessions  SessionRegistry
	random    random.Random
	locks     *GameLocks
	publicURL string
	logger    *slog.Logger
}

func NewCatalog(cfg CatalogConfig) *Catalog {
	if cfg.Random == nil {
		cfg.Random = random.New()
	}
	if cfg.Locks == nil {
		cfg.Locks = NewGameLocks()
	}
	return &Catalog{
		store:     cfg.Store,
		questions: cfg.Questions,
		sessions:  cfg.Sessions,
		random:    cfg.Random,
		locks:     cfg.Locks,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    cfg.Logger.With(slog.String("component", "catalog")),
	}
}

func (c *Catalog) ListGames(ctx context.Context) ([]domain.Game, error) {
	games, err := c.store.ListGames(ctx)
	return games, storeErr("list games", err)
}

func (c *Catalog) CreateGame(ctx context.Context, name string) (domain.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Game{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	game, err := c.store.CreateGame(ctx, name)
	if err != nil {
		return domain.Game{}, storeErr("create game", err)
	}
	c.logger.Info("game created", slog.Int64("game_id", game.ID), slog.String("name", game.Name))
	return game, nil
}

// GetGameDetail returns the game with its teams and ordered questions.
func (c *Catalog) GetGameDetail(ctx context.Context, gameID int64) (domain.GameDetail, error) {
	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return domain.GameDetail{}, storeErr("get game", err)
	}
	teams, err := c.store.ListTeams(ctx, gameID)
	if err != nil {
		return domain.GameDetail{}, storeErr("list teams", err)
	}
	questions, err := c.store.ListQuestions(ctx, gameID)
	if err != nil {
		return domain.GameDetail{}, storeErr("list questions", err)
	}
	return domain.GameDetail{Game: game, Teams: teams, Questions: questions}, nil
}

// DeleteGame removes the game and everything it owns, including any live
// session and cached questions.
func (c *Catalog) DeleteGame(ctx context.Context, gameID int64) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	if err := c.store.DeleteGame(ctx, gameID); err != nil {
		return storeErr("delete game", err)
	}
	c.sessions.Delete(gameID)
	c.forget(ctx, gameID)
	c.logger.Info("game deleted", slog.Int64("game_id", gameID))
	return nil
}

// CreateTeam adds a team with a fresh access code.
func (c *Catalog) CreateTeam(ctx context.Context, gameID int64, name string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if _, err := c.store.GetGame(ctx, gameID); err != nil {
		return domain.Team{}, storeErr("get game", err)
	}
	code, err := c.uniqueAccessCode(ctx)
	if err != nil {
		return domain.Team{}, err
	}
	team, err := c.store.CreateTeam(ctx, domain.Team{GameID: gameID, Name: name, AccessCode: code})
	if err != nil {
		return domain.Team{}, storeErr("create team", err)
	}
	c.logger.Info("team created",
		slog.Int64("game_id", gameID),
		slog.Int64("team_id", team.ID),
		slog.String("access_code", team.AccessCode))
	return team, nil
}

func (c *Catalog) GetTeam(ctx context.Context, teamID int64) (domain.Team, error) {
	team, err := c.store.GetTeam(ctx, teamID)
	return team, storeErr("get team", err)
}

func (c *Catalog) DeleteTeam(ctx context.Context, teamID int64) error {
	return storeErr("delete team", c.store.DeleteTeam(ctx, teamID))
}

// ResolveAccessCode finds the team behind a code. Codes are matched
// case-insensitively.
func (c *Catalog) ResolveAccessCode(ctx context.Context, code string) (domain.Team, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Team{}, fmt.Errorf("%w: access code is required", domain.ErrInvalidInput)
	}
	team, err := c.store.GetTeamByAccessCode(ctx, code)
	return team, storeErr("get team by access code", err)
}

// JoinURL is the link encoded in a team's QR code.
func (c *Catalog) JoinURL(team domain.Team) string {
	return c.publicURL + "/participant.html?code=" + url.QueryEscape(team.AccessCode)
}

// CreateQuestion adds a question to a game that has not started yet.
// Question set changes hold the game lock, so none can land after a
// concurrent start has frozen the set.
func (c *Catalog) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q.Text = strings.TrimSpace(q.Text)
	switch {
	case q.Text == "":
		return domain.Question{}, fmt.Errorf("%w: question text is required", domain.ErrInvalidInput)
	case q.TimeLimit <= 0:
		return domain.Question{}, fmt.Errorf("%w: time limit must be positive", domain.ErrInvalidInput)
	case q.Points < 0:
		return domain.Question{}, fmt.Errorf("%w: points must not be negative", domain.ErrInvalidInput)
	}
	unlock := c.locks.Lock(q.GameID)
	defer unlock()

	if err := c.requireWaiting(ctx, q.GameID); err != nil {
		return domain.Question{}, err
	}
	q.Answers = nil
	created, err := c.store.CreateQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, storeErr("create question", err)
	}
	c.forget(ctx, q.GameID)
	return created, nil
}

func (c *Catalog) DeleteQuestion(ctx context.Context, questionID int64) error {
	q, err := c.store.GetQuestion(ctx, questionID)
	if err != nil {
		return storeErr("get question", err)
	}
	unlock := c.locks.Lock(q.GameID)
	defer unlock()

	if err := c.requireWaiting(ctx, q.GameID); err != nil {
		return err
	}
	if err := c.store.DeleteQuestion(ctx, questionID); err != nil {
		return storeErr("delete question", err)
	}
	c.forget(ctx, q.GameID)
	return nil
}

// CreateAnswer adds an option to a question. A question carries at most one
// correct answer.
func (c *Catalog) CreateAnswer(ctx context.Context, a domain.Answer) (domain.Answer, error) {
	a.Text = strings.TrimSpace(a.Text)
	if a.Text == "" {
		return domain.Answer{}, fmt.Errorf("%w: answer text is required", domain.ErrInvalidInput)
	}
	q, err := c.store.GetQuestion(ctx, a.QuestionID)
	if err != nil {
		return domain.Answer{}, storeErr("get question", err)
	}
	unlock := c.locks.Lock(q.GameID)
	defer unlock()

	if err := c.requireWaiting(ctx, q.GameID); err != nil {
		return domain.Answer{}, err
	}
	// Re-read under the lock; another answer may have been marked correct.
	if q, err = c.store.GetQuestion(ctx, a.QuestionID); err != nil {
		return domain.Answer{}, storeErr("get question", err)
	}
	if a.IsCorrect && q.CorrectAnswerID() != 0 {
		return domain.Answer{}, domain.ErrCorrectAnswerExists
	}
	created, err := c.store.CreateAnswer(ctx, a)
	if err != nil {
		return domain.Answer{}, storeErr("create answer", err)
	}
	c.forget(ctx, q.GameID)
	return created, nil
}

func (c *Catalog) requireWaiting(ctx context.Context, gameID int64) error {
	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return storeErr("get game", err)
	}
	if game.Status != domain.GameWaiting {
		return fmt.Errorf("%w: questions of a %s game are frozen", domain.ErrInvalidState, game.Status)
	}
	return nil
}

func (c *Catalog) uniqueAccessCode(ctx context.Context) (string, error) {
	for range accessCodeAttempts {
		code := c.random.String(accessCodeLength, accessCodeAlphabet)
		_, err := c.store.GetTeamByAccessCode(ctx, code)
		if errors.Is(err, domain.ErrTeamNotFound) {
			return code, nil
		}
		if err != nil {
			return "", storeErr("get team by access code", err)
		}
	}
	return "", ErrCodeExhausted
}

func (c *Catalog) forget(ctx context.Context, gameID int64) {
	if err := c.questions.Forget(ctx, gameID); err != nil {
		c.logger.Warn("failed to drop cached questions",
			slog.Int64("game_id", gameID),
			slog.String("error", err.Error()))
	}
}

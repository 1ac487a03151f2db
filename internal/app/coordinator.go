package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"team-quiz-service/internal/dependencies/clock"
	"team-quiz-service/internal/domain"
)

const (
	// DefaultGrace absorbs network delay before an answer counts as late.
	DefaultGrace = 500 * time.Millisecond
	// DefaultStoreTimeout bounds the storage calls of one operation.
	DefaultStoreTimeout = 5 * time.Second
)

// CoordinatorConfig wires the coordinator's collaborators.
type CoordinatorConfig struct {
	Store        Store
	Questions    QuestionRepository
	Sessions     SessionRegistry
	Router       *Router
	Answers      AnswerSource
	Ledger       *Ledger
	Evaluator    Evaluator
	Events       EventLog
	Clock        clock.Clock
	Logger       *slog.Logger
	Locks        *GameLocks
	Grace        time.Duration
	StoreTimeout time.Duration
}

// Coordinator drives each game's state machine, times answers against the
// live session and emits events to the right audiences. Operations on one
// game are serialized; different games never contend.
type Coordinator struct {
	store        Store
	questions    QuestionRepository
	sessions     SessionRegistry
	router       *Router
	ledger       *Ledger
	evaluator    Evaluator
	events       EventLog
	clock        clock.Clock
	logger       *slog.Logger
	grace        time.Duration
	storeTimeout time.Duration
	locks        *GameLocks
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Events == nil {
		cfg.Events = NopEventLog{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewLedger(cfg.Answers, cfg.Store)
	}
	if cfg.Locks == nil {
		cfg.Locks = NewGameLocks()
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &Coordinator{
		store:        cfg.Store,
		questions:    cfg.Questions,
		sessions:     cfg.Sessions,
		router:       cfg.Router,
		ledger:       cfg.Ledger,
		evaluator:    cfg.Evaluator,
		events:       cfg.Events,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With(slog.String("component", "coordinator")),
		grace:        cfg.Grace,
		storeTimeout: cfg.StoreTimeout,
		locks:        cfg.Locks,
	}
}

// ConnectAdmin joins conn to the game's admin audience.
func (c *Coordinator) ConnectAdmin(ctx context.Context, conn Conn, gameID int64) error {
	return c.connect(ctx, conn, gameID, AudienceAdmin)
}

// ConnectDisplay joins conn to the game's display audience and sends it the
// current participant count.
func (c *Coordinator) ConnectDisplay(ctx context.Context, conn Conn, gameID int64) error {
	if err := c.connect(ctx, conn, gameID, AudienceDisplay); err != nil {
		return err
	}
	conn.Send(domain.NewEvent(domain.EventParticipantCount, c.router.Count(gameID, AudienceParticipants)))
	return nil
}

func (c *Coordinator) connect(ctx context.Context, conn Conn, gameID int64, audience Audience) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if _, err := c.store.GetGame(ctx, gameID); err != nil {
		return storeErr("get game", err)
	}
	c.router.Join(gameID, audience, conn)
	c.logger.Info("client connected",
		slog.Int64("game_id", gameID),
		slog.String("audience", string(audience)),
		slog.String("conn_id", conn.ID()))
	return nil
}

// JoinParticipant creates a participant on the team and joins conn to the
// game's participants audience. Possession of the team id is the only
// credential.
func (c *Coordinator) JoinParticipant(ctx context.Context, conn Conn, teamID int64, nickname string) (domain.ParticipantJoinedPayload, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.ParticipantJoinedPayload{}, fmt.Errorf("%w: nickname is required", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	team, err := c.store.GetTeam(ctx, teamID)
	if err != nil {
		return domain.ParticipantJoinedPayload{}, storeErr("get team", err)
	}
	participant, err := c.store.CreateParticipant(ctx, domain.Participant{
		TeamID:       team.ID,
		Nickname:     nickname,
		ConnectionID: conn.ID(),
		JoinedAt:     c.clock.Now(),
	})
	if err != nil {
		return domain.ParticipantJoinedPayload{}, storeErr("create participant", err)
	}

	c.router.Join(team.GameID, AudienceParticipants, conn)

	c.emit(ctx, team.GameID, domain.NewEvent(domain.EventParticipantNew, domain.ParticipantNewPayload{
		ParticipantID: participant.ID,
		TeamID:        team.ID,
		Nickname:      participant.Nickname,
	}), AudienceAdmin)
	c.publishParticipantCount(team.GameID)

	c.logger.Info("participant joined",
		slog.Int64("game_id", team.GameID),
		slog.Int64("team_id", team.ID),
		slog.Int64("participant_id", participant.ID),
		slog.String("nickname", participant.Nickname))

	return domain.ParticipantJoinedPayload{
		ParticipantID: participant.ID,
		TeamID:        team.ID,
		Nickname:      participant.Nickname,
		Score:         0,
	}, nil
}

// Disconnect removes conn from every audience. Displays of games that lost a
// participant receive the new count.
func (c *Coordinator) Disconnect(conn Conn) {
	for _, m := range c.router.Leave(conn) {
		if m.Audience == AudienceParticipants {
			c.publishParticipantCount(m.GameID)
		}
	}
}

// StartGame moves a waiting game to active and reveals the first question.
func (c *Coordinator) StartGame(ctx context.Context, gameID int64) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return storeErr("get game", err)
	}
	if game.Status != domain.GameWaiting {
		return fmt.Errorf("%w: cannot start a %s game", domain.ErrInvalidState, game.Status)
	}

	// The question set is frozen from here on; load it fresh.
	if err := c.questions.Forget(ctx, gameID); err != nil {
		c.logger.Warn("failed to drop cached questions",
			slog.Int64("game_id", gameID),
			slog.String("error", err.Error()))
	}
	questions, err := c.questions.GetQuestions(ctx, gameID)
	if err != nil {
		return storeErr("get questions", err)
	}
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	if err := c.store.UpdateGameStatus(ctx, gameID, domain.GameActive); err != nil {
		return storeErr("update game status", err)
	}
	if err := c.store.UpdateCurrentQuestion(ctx, gameID, 0); err != nil {
		return storeErr("update current question", err)
	}

	c.logger.Info("game started",
		slog.Int64("game_id", gameID),
		slog.Int("question_count", len(questions)))

	c.emit(ctx, gameID, domain.NewEvent(domain.EventGameStarted, nil), AudienceParticipants)
	c.reveal(ctx, gameID, questions, 0)
	return nil
}

// NextQuestion advances an active game. Past the last question it does
// nothing and reports false.
func (c *Coordinator) NextQuestion(ctx context.Context, gameID int64) (bool, error) {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return false, storeErr("get game", err)
	}
	if game.Status != domain.GameActive {
		return false, fmt.Errorf("%w: cannot advance a %s game", domain.ErrInvalidState, game.Status)
	}
	questions, err := c.questions.GetQuestions(ctx, gameID)
	if err != nil {
		return false, storeErr("get questions", err)
	}

	next := game.CurrentQuestionIndex + 1
	if next >= len(questions) {
		c.logger.Debug("no further question",
			slog.Int64("game_id", gameID),
			slog.Int("current_index", game.CurrentQuestionIndex))
		return false, nil
	}

	if err := c.store.UpdateCurrentQuestion(ctx, gameID, next); err != nil {
		return false, storeErr("update current question", err)
	}
	c.reveal(ctx, gameID, questions, next)
	return true, nil
}

// ShowRanking recomputes every team's score and broadcasts the ranking to
// all audiences. Teams are ordered by score descending, then by id.
func (c *Coordinator) ShowRanking(ctx context.Context, gameID int64) (domain.RankingPayload, error) {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if _, err := c.store.GetGame(ctx, gameID); err != nil {
		return domain.RankingPayload{}, storeErr("get game", err)
	}
	teams, err := c.store.ListTeams(ctx, gameID)
	if err != nil {
		return domain.RankingPayload{}, storeErr("list teams", err)
	}

	rows := make([]domain.RankingTeam, len(teams))
	g, gctx := errgroup.WithContext(ctx)
	for i, team := range teams {
		g.Go(func() error {
			score, stats, err := c.ledger.Standing(gctx, team.ID)
			if err != nil {
				return err
			}
			participants, err := c.store.ListParticipants(gctx, team.ID)
			if err != nil {
				return err
			}
			rows[i] = domain.RankingTeam{
				ID:               team.ID,
				Name:             team.Name,
				Score:            score,
				ParticipantCount: len(participants),
				Accuracy:         stats.AccuracyPercent,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.RankingPayload{}, storeErr("compute ranking", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].ID < rows[j].ID
	})

	ranking := domain.RankingPayload{
		Teams:     rows,
		Timestamp: c.clock.Now().UnixMilli(),
	}
	c.emit(ctx, gameID, domain.NewEvent(domain.EventRankingShow, ranking),
		AudienceAdmin, AudienceDisplay, AudienceParticipants)
	return ranking, nil
}

// EndGame finishes an active game and discards its live session.
func (c *Coordinator) EndGame(ctx context.Context, gameID int64) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return storeErr("get game", err)
	}
	if game.Status != domain.GameActive {
		return fmt.Errorf("%w: cannot end a %s game", domain.ErrInvalidState, game.Status)
	}
	if err := c.store.UpdateGameStatus(ctx, gameID, domain.GameFinished); err != nil {
		return storeErr("update game status", err)
	}
	c.sessions.Delete(gameID)

	c.logger.Info("game ended", slog.Int64("game_id", gameID))
	c.emit(ctx, gameID, domain.NewEvent(domain.EventGameEnded, nil), AudienceParticipants, AudienceDisplay)
	return nil
}

// SubmitAnswer times, scores and records a participant's answer. Elapsed
// time is measured from the live session's start to the moment the call
// arrives; client clocks play no part.
func (c *Coordinator) SubmitAnswer(ctx context.Context, participantID, questionID, answerID int64) (domain.AnswerResult, error) {
	received := c.clock.Now()

	gameID, err := c.gameOf(ctx, participantID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	unlock := c.locks.Lock(gameID)
	defer unlock()

	// The storage budget starts once the game is ours, not while queued.
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return domain.AnswerResult{}, storeErr("get game", err)
	}
	session, ok := c.sessions.Get(gameID)
	if game.Status != domain.GameActive {
		if ok {
			// A session outliving its game, e.g. resumed from a mirror.
			c.sessions.Delete(gameID)
			c.logger.Warn("stale live session dropped",
				slog.Int64("game_id", gameID),
				slog.String("status", string(game.Status)))
		}
		return domain.AnswerResult{}, domain.ErrNotActive
	}
	if !ok {
		return domain.AnswerResult{}, domain.ErrNotActive
	}
	if session.QuestionID != questionID {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}

	elapsed := received.Sub(session.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > time.Duration(session.TimeLimit)*time.Second+c.grace {
		c.logger.Info("late answer rejected",
			slog.Int64("game_id", gameID),
			slog.Int64("participant_id", participantID),
			slog.Int64("question_id", questionID),
			slog.Duration("elapsed", elapsed))
		return domain.AnswerResult{}, domain.ErrTimedOut
	}

	question, err := c.findQuestion(ctx, gameID, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if !question.HasAnswer(answerID) {
		return domain.AnswerResult{}, domain.ErrAnswerNotFound
	}

	answered, err := c.store.HasAnswered(ctx, participantID, questionID)
	if err != nil {
		return domain.AnswerResult{}, storeErr("check answer", err)
	}
	if answered {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	timeTaken := elapsed.Seconds()
	eval := c.evaluator.Evaluate(answerID, question.CorrectAnswerID(), timeTaken, question.Points, question.TimeLimit)

	if _, err := c.store.CreateParticipantAnswer(ctx, domain.ParticipantAnswer{
		ParticipantID: participantID,
		QuestionID:    questionID,
		AnswerID:      answerID,
		TimeTaken:     timeTaken,
		PointsEarned:  eval.PointsEarned,
		IsCorrect:     eval.IsCorrect,
		CreatedAt:     received,
	}); err != nil {
		return domain.AnswerResult{}, storeErr("create participant answer", err)
	}

	// Only the admin learns other participants' results mid-question.
	c.emit(ctx, gameID, domain.NewEvent(domain.EventParticipantAnswered, domain.ParticipantAnsweredPayload{
		ParticipantID: participantID,
		QuestionID:    questionID,
		IsCorrect:     eval.IsCorrect,
		PointsEarned:  eval.PointsEarned,
	}), AudienceAdmin)

	return domain.AnswerResult{
		ParticipantID: participantID,
		QuestionID:    questionID,
		IsCorrect:     eval.IsCorrect,
		PointsEarned:  eval.PointsEarned,
		TimeTaken:     math.Round(timeTaken*100) / 100,
	}, nil
}

// gameOf resolves the game a participant plays in.
func (c *Coordinator) gameOf(ctx context.Context, participantID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	participant, err := c.store.GetParticipant(ctx, participantID)
	if err != nil {
		return 0, storeErr("get participant", err)
	}
	team, err := c.store.GetTeam(ctx, participant.TeamID)
	if err != nil {
		return 0, storeErr("get team", err)
	}
	return team.GameID, nil
}

// reveal replaces the live session and broadcasts questions[index]. Callers
// hold the game lock.
func (c *Coordinator) reveal(ctx context.Context, gameID int64, questions []domain.Question, index int) {
	question := questions[index]
	c.sessions.Set(domain.LiveSession{
		GameID:     gameID,
		QuestionID: question.ID,
		StartTime:  c.clock.Now(),
		TimeLimit:  question.TimeLimit,
	})

	payload := questionPayload(question, index, len(questions))
	c.emit(ctx, gameID, domain.NewEvent(domain.EventQuestionNew, payload), AudienceParticipants, AudienceDisplay)

	payload.CorrectAnswerID = question.CorrectAnswerID()
	c.emit(ctx, gameID, domain.NewEvent(domain.EventQuestionNew, payload), AudienceAdmin)

	c.logger.Info("question revealed",
		slog.Int64("game_id", gameID),
		slog.Int64("question_id", question.ID),
		slog.Int("question_number", index+1),
		slog.Int("time_limit", question.TimeLimit))
}

func (c *Coordinator) findQuestion(ctx context.Context, gameID, questionID int64) (domain.Question, error) {
	questions, err := c.questions.GetQuestions(ctx, gameID)
	if err != nil {
		return domain.Question{}, storeErr("get questions", err)
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (c *Coordinator) emit(ctx context.Context, gameID int64, ev domain.Event, audiences ...Audience) {
	c.router.Broadcast(gameID, ev, audiences...)
	rec := EventRecord{GameID: gameID, Audiences: audiences, Event: ev, At: c.clock.Now()}
	if err := c.events.Record(ctx, rec); err != nil {
		c.logger.Warn("failed to record event",
			slog.Int64("game_id", gameID),
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()))
	}
}

func (c *Coordinator) publishParticipantCount(gameID int64) {
	count := c.router.Count(gameID, AudienceParticipants)
	c.router.Broadcast(gameID, domain.NewEvent(domain.EventParticipantCount, count), AudienceDisplay)
}

func questionPayload(q domain.Question, index, total int) domain.QuestionPayload {
	answers := make([]domain.AnswerOption, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, domain.AnswerOption{ID: a.ID, Text: a.Text})
	}
	return domain.QuestionPayload{
		ID:             q.ID,
		Text:           q.Text,
		TimeLimit:      q.TimeLimit,
		Answers:        answers,
		QuestionNumber: index + 1,
		TotalQuestions: total,
	}
}

// storeErr passes domain errors through and marks everything else as a
// storage failure. Nothing is retried: a repeated write could double-apply.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{domain.ErrInvalidState, domain.ErrInvalidInput, domain.ErrAlreadyAnswered, domain.ErrPersistence} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if domain.IsNotFound(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

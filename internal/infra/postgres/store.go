package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"team-quiz-service/internal/domain"
)

// Store implements the relational model on Postgres through bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateGame(ctx context.Context, name string) (domain.Game, error) {
	row := gameRow{
		Name:                 name,
		Status:               string(domain.GameWaiting),
		CurrentQuestionIndex: domain.NoQuestion,
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("*").Exec(ctx); err != nil {
		return domain.Game{}, fmt.Errorf("insert game: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListGames(ctx context.Context) ([]domain.Game, error) {
	var rows []gameRow
	if err := s.db.NewSelect().Model(&rows).Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	games := make([]domain.Game, 0, len(rows))
	for _, r := range rows {
		games = append(games, r.toDomain())
	}
	return games, nil
}

func (s *Store) GetGame(ctx context.Context, gameID int64) (domain.Game, error) {
	var row gameRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", gameID).Scan(ctx)
	if err != nil {
		return domain.Game{}, notFound(err, domain.ErrGameNotFound, "select game")
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteGame(ctx context.Context, gameID int64) error {
	res, err := s.db.NewDelete().Model((*gameRow)(nil)).Where("id = ?", gameID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return affected(res, domain.ErrGameNotFound)
}

func (s *Store) UpdateGameStatus(ctx context.Context, gameID int64, status domain.GameStatus) error {
	res, err := s.db.NewUpdate().Model((*gameRow)(nil)).
		Set("status = ?", string(status)).
		Where("id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update game status: %w", err)
	}
	return affected(res, domain.ErrGameNotFound)
}

func (s *Store) UpdateCurrentQuestion(ctx context.Context, gameID int64, index int) error {
	res, err := s.db.NewUpdate().Model((*gameRow)(nil)).
		Set("current_question_index = ?", index).
		Where("id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update current question: %w", err)
	}
	return affected(res, domain.ErrGameNotFound)
}

func (s *Store) CreateTeam(ctx context.Context, team domain.Team) (domain.Team, error) {
	row := teamRow{GameID: team.GameID, Name: team.Name, AccessCode: team.AccessCode}
	if _, err := s.db.NewInsert().Model(&row).Returning("*").Exec(ctx); err != nil {
		return domain.Team{}, violation(err, domain.ErrGameNotFound, "insert team")
	}
	return row.toDomain(), nil
}

func (s *Store) GetTeam(ctx context.Context, teamID int64) (domain.Team, error) {
	var row teamRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", teamID).Scan(ctx); err != nil {
		return domain.Team{}, notFound(err, domain.ErrTeamNotFound, "select team")
	}
	return row.toDomain(), nil
}

func (s *Store) GetTeamByAccessCode(ctx context.Context, code string) (domain.Team, error) {
	var row teamRow
	if err := s.db.NewSelect().Model(&row).Where("access_code = ?", code).Scan(ctx); err != nil {
		return domain.Team{}, notFound(err, domain.ErrTeamNotFound, "select team by code")
	}
	return row.toDomain(), nil
}

func (s *Store) ListTeams(ctx context.Context, gameID int64) ([]domain.Team, error) {
	var rows []teamRow
	if err := s.db.NewSelect().Model(&rows).Where("game_id = ?", gameID).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select teams: %w", err)
	}
	teams := make([]domain.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, r.toDomain())
	}
	return teams, nil
}

func (s *Store) DeleteTeam(ctx context.Context, teamID int64) error {
	res, err := s.db.NewDelete().Model((*teamRow)(nil)).Where("id = ?", teamID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return affected(res, domain.ErrTeamNotFound)
}

func (s *Store) UpdateTeamScore(ctx context.Context, teamID int64, score int) error {
	res, err := s.db.NewUpdate().Model((*teamRow)(nil)).
		Set("total_score = ?", score).
		Where("id = ?", teamID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update team score: %w", err)
	}
	return affected(res, domain.ErrTeamNotFound)
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	row := questionRow{
		GameID:       q.GameID,
		QuestionText: q.Text,
		TimeLimit:    q.TimeLimit,
		Points:       q.Points,
		OrderIndex:   q.OrderIndex,
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("*").Exec(ctx); err != nil {
		return domain.Question{}, violation(err, domain.ErrGameNotFound, "insert question")
	}
	return row.toDomain(), nil
}

func (s *Store) GetQuestion(ctx context.Context, questionID int64) (domain.Question, error) {
	var row questionRow
	err := s.db.NewSelect().Model(&row).
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order("a.id") }).
		Where("q.id = ?", questionID).
		Scan(ctx)
	if err != nil {
		return domain.Question{}, notFound(err, domain.ErrQuestionNotFound, "select question")
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID int64) error {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).Where("id = ?", questionID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return affected(res, domain.ErrQuestionNotFound)
}

func (s *Store) CreateAnswer(ctx context.Context, a domain.Answer) (domain.Answer, error) {
	row := answerRow{QuestionID: a.QuestionID, AnswerText: a.Text, IsCorrect: a.IsCorrect}
	if _, err := s.db.NewInsert().Model(&row).Returning("*").Exec(ctx); err != nil {
		return domain.Answer{}, violation(err, domain.ErrQuestionNotFound, "insert answer")
	}
	return row.toDomain(), nil
}

// ListQuestions returns the game's questions in play order with answers.
func (s *Store) ListQuestions(ctx context.Context, gameID int64) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order("a.id") }).
		Where("q.game_id = ?", gameID).
		Order("q.order_index", "q.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	questions := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, r.toDomain())
	}
	return questions, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	row := participantRow{TeamID: p.TeamID, Nickname: p.Nickname, SocketID: p.ConnectionID, JoinedAt: p.JoinedAt}
	if _, err := s.db.NewInsert().Model(&row).Returning("*").Exec(ctx); err != nil {
		return domain.Participant{}, violation(err, domain.ErrTeamNotFound, "insert participant")
	}
	return row.toDomain(), nil
}

func (s *Store) GetParticipant(ctx context.Context, participantID int64) (domain.Participant, error) {
	var row participantRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", participantID).Scan(ctx); err != nil {
		return domain.Participant{}, notFound(err, domain.ErrParticipantNotFound, "select participant")
	}
	return row.toDomain(), nil
}

func (s *Store) ListParticipants(ctx context.Context, teamID int64) ([]domain.Participant, error) {
	var rows []participantRow
	if err := s.db.NewSelect().Model(&rows).Where("team_id = ?", teamID).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	participants := make([]domain.Participant, 0, len(rows))
	for _, r := range rows {
		participants = append(participants, r.toDomain())
	}
	return participants, nil
}

// CreateParticipantAnswer inserts a submission. The (participant, question)
// unique key turns a racing duplicate into ErrAlreadyAnswered.
func (s *Store) CreateParticipantAnswer(ctx context.Context, a domain.ParticipantAnswer) (domain.ParticipantAnswer, error) {
	row := participantAnswerRow{
		ParticipantID: a.ParticipantID,
		QuestionID:    a.QuestionID,
		AnswerID:      a.AnswerID,
		TimeTaken:     a.TimeTaken,
		PointsEarned:  a.PointsEarned,
		IsCorrect:     a.IsCorrect,
		CreatedAt:     a.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("*").Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation {
			return domain.ParticipantAnswer{}, domain.ErrAlreadyAnswered
		}
		return domain.ParticipantAnswer{}, violation(err, domain.ErrParticipantNotFound, "insert participant answer")
	}
	return row.toDomain(), nil
}

func (s *Store) HasAnswered(ctx context.Context, participantID, questionID int64) (bool, error) {
	exists, err := s.db.NewSelect().Model((*participantAnswerRow)(nil)).
		Where("participant_id = ?", participantID).
		Where("question_id = ?", questionID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check participant answer: %w", err)
	}
	return exists, nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func notFound(err, kind error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return kind
	}
	return fmt.Errorf("%s: %w", op, err)
}

// violation maps a foreign key failure to the missing parent's not-found kind.
func violation(err, parent error, op string) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == pgForeignKeyViolation {
		return parent
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(res sql.Result, kind error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return kind
	}
	return nil
}

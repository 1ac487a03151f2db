package app

import (
	"context"
	"time"

	"team-quiz-service/internal/domain"
)

// GameStore persists games and their lifecycle fields.
type GameStore interface {
	CreateGame(ctx context.Context, name string) (domain.Game, error)
	ListGames(ctx context.Context) ([]domain.Game, error)
	GetGame(ctx context.Context, gameID int64) (domain.Game, error)
	DeleteGame(ctx context.Context, gameID int64) error
	UpdateGameStatus(ctx context.Context, gameID int64, status domain.GameStatus) error
	UpdateCurrentQuestion(ctx context.Context, gameID int64, index int) error
}

// TeamStore persists teams.
type TeamStore interface {
	CreateTeam(ctx context.Context, team domain.Team) (domain.Team, error)
	GetTeam(ctx context.Context, teamID int64) (domain.Team, error)
	GetTeamByAccessCode(ctx context.Context, code string) (domain.Team, error)
	ListTeams(ctx context.Context, gameID int64) ([]domain.Team, error)
	DeleteTeam(ctx context.Context, teamID int64) error
	TeamScoreWriter
}

// QuestionStore persists questions and their answers. ListQuestions returns
// questions in play order with answers attached.
type QuestionStore interface {
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	GetQuestion(ctx context.Context, questionID int64) (domain.Question, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	CreateAnswer(ctx context.Context, a domain.Answer) (domain.Answer, error)
	ListQuestions(ctx context.Context, gameID int64) ([]domain.Question, error)
}

// ParticipantStore persists participants and their answers.
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	GetParticipant(ctx context.Context, participantID int64) (domain.Participant, error)
	ListParticipants(ctx context.Context, teamID int64) ([]domain.Participant, error)
	CreateParticipantAnswer(ctx context.Context, a domain.ParticipantAnswer) (domain.ParticipantAnswer, error)
	HasAnswered(ctx context.Context, participantID, questionID int64) (bool, error)
}

// Store is the relational persistence collaborator.
type Store interface {
	GameStore
	TeamStore
	QuestionStore
	ParticipantStore
}

// AnswerSource lists every answer given by a team's participants.
type AnswerSource interface {
	ListTeamAnswers(ctx context.Context, teamID int64) ([]domain.ParticipantAnswer, error)
}

// TeamScoreWriter writes a team's cached total score.
type TeamScoreWriter interface {
	UpdateTeamScore(ctx context.Context, teamID int64, score int) error
}

// QuestionRepository serves a game's questions, possibly from a cache.
// Forget drops any cached copy after the question set changes.
type QuestionRepository interface {
	GetQuestions(ctx context.Context, gameID int64) ([]domain.Question, error)
	Forget(ctx context.Context, gameID int64) error
}

// SessionRegistry holds live session state per game. Get on a missing game
// reports false rather than an error.
type SessionRegistry interface {
	Set(session domain.LiveSession)
	Get(gameID int64) (domain.LiveSession, bool)
	Delete(gameID int64)
}

// EventRecord is one broadcast as seen by an EventLog.
type EventRecord struct {
	GameID    int64
	Audiences []Audience
	Event     domain.Event
	At        time.Time
}

// EventLog records coordinator broadcasts for auditing.
type EventLog interface {
	Record(ctx context.Context, rec EventRecord) error
}

// NopEventLog discards records.
type NopEventLog struct{}

func (NopEventLog) Record(context.Context, EventRecord) error { return nil }

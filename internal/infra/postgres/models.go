package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"team-quiz-service/internal/domain"
)

type gameRow struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID                   int64     `bun:"id,pk,autoincrement"`
	Name                 string    `bun:"name,notnull"`
	Status               string    `bun:"status,notnull"`
	CurrentQuestionIndex int       `bun:"current_question_index,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type teamRow struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID         int64     `bun:"id,pk,autoincrement"`
	GameID     int64     `bun:"game_id,notnull"`
	Name       string    `bun:"name,notnull"`
	AccessCode string    `bun:"access_code,notnull,unique"`
	TotalScore int       `bun:"total_score,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID           int64        `bun:"id,pk,autoincrement"`
	GameID       int64        `bun:"game_id,notnull"`
	QuestionText string       `bun:"question_text,notnull"`
	TimeLimit    int          `bun:"time_limit,notnull"`
	Points       int          `bun:"points,notnull"`
	OrderIndex   int          `bun:"order_index,notnull"`
	Answers      []*answerRow `bun:"rel:has-many,join:id=question_id"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	AnswerText string `bun:"answer_text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID       int64     `bun:"id,pk,autoincrement"`
	TeamID   int64     `bun:"team_id,notnull"`
	Nickname string    `bun:"nickname,notnull"`
	SocketID string    `bun:"socket_id"`
	JoinedAt time.Time `bun:"joined_at,nullzero,notnull,default:current_timestamp"`
}

type participantAnswerRow struct {
	bun.BaseModel `bun:"table:participant_answers,alias:pa"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ParticipantID int64     `bun:"participant_id,notnull"`
	QuestionID    int64     `bun:"question_id,notnull"`
	AnswerID      int64     `bun:"answer_id,nullzero"`
	TimeTaken     float64   `bun:"time_taken,notnull"`
	PointsEarned  int       `bun:"points_earned,notnull"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r gameRow) toDomain() domain.Game {
	return domain.Game{
		ID:                   r.ID,
		Name:                 r.Name,
		Status:               domain.GameStatus(r.Status),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		CreatedAt:            r.CreatedAt,
	}
}

func (r teamRow) toDomain() domain.Team {
	return domain.Team{
		ID:         r.ID,
		GameID:     r.GameID,
		Name:       r.Name,
		AccessCode: r.AccessCode,
		TotalScore: r.TotalScore,
		CreatedAt:  r.CreatedAt,
	}
}

func (r questionRow) toDomain() domain.Question {
	q := domain.Question{
		ID:         r.ID,
		GameID:     r.GameID,
		Text:       r.QuestionText,
		TimeLimit:  r.TimeLimit,
		Points:     r.Points,
		OrderIndex: r.OrderIndex,
	}
	for _, a := range r.Answers {
		q.Answers = append(q.Answers, a.toDomain())
	}
	return q
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:         r.ID,
		QuestionID: r.QuestionID,
		Text:       r.AnswerText,
		IsCorrect:  r.IsCorrect,
	}
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:           r.ID,
		TeamID:       r.TeamID,
		Nickname:     r.Nickname,
		ConnectionID: r.SocketID,
		JoinedAt:     r.JoinedAt,
	}
}

func (r participantAnswerRow) toDomain() domain.ParticipantAnswer {
	return domain.ParticipantAnswer{
		ID:            r.ID,
		ParticipantID: r.ParticipantID,
		QuestionID:    r.QuestionID,
		AnswerID:      r.AnswerID,
		TimeTaken:     r.TimeTaken,
		PointsEarned:  r.PointsEarned,
		IsCorrect:     r.IsCorrect,
		CreatedAt:     r.CreatedAt,
	}
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"team-quiz-service/internal/domain"
)

// Reader serves the score ledger's aggregate read straight from a pgx pool.
// Rankings re-read every team's answers, so this path skips the ORM.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

const teamAnswersSQL = `
SELECT pa.id, pa.participant_id, pa.question_id, COALESCE(pa.answer_id, 0),
       pa.time_taken, pa.points_earned, pa.is_correct, pa.created_at
FROM participant_answers pa
JOIN participants p ON p.id = pa.participant_id
WHERE p.team_id = $1
ORDER BY pa.id`

// ListTeamAnswers returns every answer given by the team's participants.
func (r *Reader) ListTeamAnswers(ctx context.Context, teamID int64) ([]domain.ParticipantAnswer, error) {
	rows, err := r.pool.Query(ctx, teamAnswersSQL, teamID)
	if err != nil {
		return nil, fmt.Errorf("load team answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.ParticipantAnswer
	for rows.Next() {
		var a domain.ParticipantAnswer
		if err := rows.Scan(&a.ID, &a.ParticipantID, &a.QuestionID, &a.AnswerID,
			&a.TimeTaken, &a.PointsEarned, &a.IsCorrect, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load team answers: %w", err)
	}
	return answers, nil
}

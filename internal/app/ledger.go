package app

import (
	"context"
	"math"

	"team-quiz-service/internal/domain"
)

// Ledger derives team scores from participant answers. The stored team score
// is a cache and is only written here.
type Ledger struct {
	answers AnswerSource
	scores  TeamScoreWriter
}

func NewLedger(answers AnswerSource, scores TeamScoreWriter) *Ledger {
	return &Ledger{answers: answers, scores: scores}
}

// RecomputeTeamScore sums points over every answer of the team, stores the
// sum as the team's total score and returns it.
func (l *Ledger) RecomputeTeamScore(ctx context.Context, teamID int64) (int, error) {
	score, _, err := l.Standing(ctx, teamID)
	return score, err
}

// ComputeStats returns answered/correct counts and accuracy for the team.
func (l *Ledger) ComputeStats(ctx context.Context, teamID int64) (domain.TeamStats, error) {
	answers, err := l.answers.ListTeamAnswers(ctx, teamID)
	if err != nil {
		return domain.TeamStats{}, err
	}
	_, stats := Tally(answers)
	return stats, nil
}

// Standing recomputes the team's score and stats from a single read.
func (l *Ledger) Standing(ctx context.Context, teamID int64) (int, domain.TeamStats, error) {
	answers, err := l.answers.ListTeamAnswers(ctx, teamID)
	if err != nil {
		return 0, domain.TeamStats{}, err
	}
	score, stats := Tally(answers)
	if err := l.scores.UpdateTeamScore(ctx, teamID, score); err != nil {
		return 0, domain.TeamStats{}, err
	}
	return score, stats, nil
}

// Tally sums points and counts correct answers. Accuracy is 0 when nothing
// was answered.
func Tally(answers []domain.ParticipantAnswer) (int, domain.TeamStats) {
	score := 0
	stats := domain.TeamStats{TotalAnswered: len(answers)}
	for _, a := range answers {
		score += a.PointsEarned
		if a.IsCorrect {
			stats.TotalCorrect++
		}
	}
	if stats.TotalAnswered > 0 {
		stats.AccuracyPercent = int(math.Round(100 * float64(stats.TotalCorrect) / float64(stats.TotalAnswered)))
	}
	return score, stats
}

package app

import "math"

// ScoringScheme selects how points are awarded for a correct answer.
type ScoringScheme string

const (
	// ScoringFlat awards the question's full points for any correct answer.
	ScoringFlat ScoringScheme = "flat"
	// ScoringDecay scales points linearly down to zero at the time limit.
	ScoringDecay ScoringScheme = "decay"
)

// Evaluation is the outcome of scoring one answer.
type Evaluation struct {
	IsCorrect    bool
	PointsEarned int
}

// Evaluator decides correctness and points. It holds no state.
type Evaluator struct {
	scheme ScoringScheme
}

// NewEvaluator returns an evaluator for scheme; unknown schemes score flat.
func NewEvaluator(scheme ScoringScheme) Evaluator {
	if scheme != ScoringDecay {
		scheme = ScoringFlat
	}
	return Evaluator{scheme: scheme}
}

// Scheme reports the scheme in use.
func (e Evaluator) Scheme() ScoringScheme {
	return e.scheme
}

// Evaluate scores a chosen answer against the correct one. timeTaken and
// timeLimit are in seconds; timeTaken only matters for the decay scheme.
func (e Evaluator) Evaluate(chosenAnswerID, correctAnswerID int64, timeTaken float64, basePoints, timeLimit int) Evaluation {
	correct := correctAnswerID != 0 && chosenAnswerID == correctAnswerID
	if !correct || basePoints <= 0 {
		return Evaluation{IsCorrect: correct}
	}
	if e.scheme == ScoringFlat || timeLimit <= 0 {
		return Evaluation{IsCorrect: true, PointsEarned: basePoints}
	}
	factor := math.Max(0, 1-timeTaken/float64(timeLimit))
	return Evaluation{
		IsCorrect:    true,
		PointsEarned: int(math.Round(float64(basePoints) * factor)),
	}
}

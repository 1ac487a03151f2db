package domain

import "time"

// GameStatus is the lifecycle state of a game. Transitions only go
// waiting -> active -> finished.
type GameStatus string

const (
	GameWaiting  GameStatus = "waiting"
	GameActive   GameStatus = "active"
	GameFinished GameStatus = "finished"
)

// NoQuestion is the current question index of a game that has not started.
const NoQuestion = -1

// Game is one quiz session with an ordered question set.
type Game struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Status               GameStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Answer is one selectable option of a question.
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Question models an MCQ question; exactly one answer is expected to be correct.
type Question struct {
	ID         int64    `json:"id"`
	GameID     int64    `json:"gameId"`
	Text       string   `json:"text"`
	TimeLimit  int      `json:"timeLimit"` // seconds
	Points     int      `json:"points"`
	OrderIndex int      `json:"orderIndex"`
	Answers    []Answer `json:"answers"`
}

// CorrectAnswerID returns the id of the correct answer, or 0 when none is marked.
func (q Question) CorrectAnswerID() int64 {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return a.ID
		}
	}
	return 0
}

// HasAnswer reports whether answerID is one of the question's options.
func (q Question) HasAnswer(answerID int64) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// Team groups participants behind a shared access code. TotalScore is a cached
// recomputation and is only written by the score ledger.
type Team struct {
	ID         int64     `json:"id"`
	GameID     int64     `json:"gameId"`
	Name       string    `json:"name"`
	AccessCode string    `json:"accessCode"`
	TotalScore int       `json:"totalScore"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Participant is an individual answering from within a team.
type Participant struct {
	ID           int64     `json:"id"`
	TeamID       int64     `json:"teamId"`
	Nickname     string    `json:"nickname"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// ParticipantAnswer is an append-only record of one submission.
type ParticipantAnswer struct {
	ID            int64     `json:"id"`
	ParticipantID int64     `json:"participantId"`
	QuestionID    int64     `json:"questionId"`
	AnswerID      int64     `json:"answerId"`
	TimeTaken     float64   `json:"timeTaken"` // seconds
	PointsEarned  int       `json:"pointsEarned"`
	IsCorrect     bool      `json:"isCorrect"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LiveSession is the in-memory state of the currently revealed question.
// StartTime is the server clock at reveal and is the only timing authority.
type LiveSession struct {
	GameID     int64     `json:"gameId"`
	QuestionID int64     `json:"questionId"`
	StartTime  time.Time `json:"startTime"`
	TimeLimit  int       `json:"timeLimit"` // seconds
}

// Deadline is the nominal end of the question, without grace.
func (s LiveSession) Deadline() time.Time {
	return s.StartTime.Add(time.Duration(s.TimeLimit) * time.Second)
}

// TeamStats summarizes a team's answers.
type TeamStats struct {
	TotalAnswered   int `json:"totalAnswered"`
	TotalCorrect    int `json:"totalCorrect"`
	AccuracyPercent int `json:"accuracyPercent"`
}

// AnswerResult is the outcome of an accepted submission.
type AnswerResult struct {
	ParticipantID int64   `json:"participantId"`
	QuestionID    int64   `json:"questionId"`
	IsCorrect     bool    `json:"isCorrect"`
	PointsEarned  int     `json:"pointsEarned"`
	TimeTaken     float64 `json:"timeTaken"`
}

// GameDetail is a game with its teams and questions, as shown to the admin.
type GameDetail struct {
	Game
	Teams     []Team     `json:"teams"`
	Questions []Question `json:"questions"`
}

package domain

// EventType names a message on the websocket event surface.
type EventType string

// Coordinator -> client events.
const (
	EventGameStarted         EventType = "game:started"
	EventQuestionNew         EventType = "question:new"
	EventRankingShow         EventType = "ranking:show"
	EventGameEnded           EventType = "game:ended"
	EventParticipantJoined   EventType = "participant:joined"
	EventParticipantNew      EventType = "participant:new"
	EventParticipantAnswered EventType = "participant:answered"
	EventAnswerResult        EventType = "answer:result"
	EventParticipantCount    EventType = "participant:update_count"
	EventError               EventType = "error"
)

// Client -> coordinator events.
const (
	EventAdminConnect      EventType = "admin:connect"
	EventAdminStartGame    EventType = "admin:startGame"
	EventAdminNextQuestion EventType = "admin:nextQuestion"
	EventAdminShowRanking  EventType = "admin:showRanking"
	EventAdminEndGame      EventType = "admin:endGame"
	EventParticipantJoin   EventType = "participant:join"
	EventParticipantAnswer EventType = "participant:answer"
	EventDisplayConnect    EventType = "display:connect"
)

// Event is the envelope written to clients.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// NewEvent builds an event envelope.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

// AnswerOption is an answer as shown to players, without the correct marker.
type AnswerOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionPayload is the question:new payload. CorrectAnswerID is only set
// on the copy sent to the admin audience.
type QuestionPayload struct {
	ID              int64          `json:"id"`
	Text            string         `json:"text"`
	TimeLimit       int            `json:"timeLimit"`
	Answers         []AnswerOption `json:"answers"`
	QuestionNumber  int            `json:"questionNumber"`
	TotalQuestions  int            `json:"totalQuestions"`
	CorrectAnswerID int64          `json:"correctAnswerId,omitempty"`
}

// RankingTeam is one row of the ranking.
type RankingTeam struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Score            int    `json:"score"`
	ParticipantCount int    `json:"participantCount"`
	Accuracy         int    `json:"accuracy"`
}

// RankingPayload is the ranking:show payload. Timestamp is unix milliseconds.
type RankingPayload struct {
	Teams     []RankingTeam `json:"teams"`
	Timestamp int64         `json:"timestamp"`
}

// ParticipantJoinedPayload is sent back to a participant after joining.
type ParticipantJoinedPayload struct {
	ParticipantID int64  `json:"participantId"`
	TeamID        int64  `json:"teamId"`
	Nickname      string `json:"nickname"`
	Score         int    `json:"score"`
}

// ParticipantNewPayload notifies the admin of a new participant.
type ParticipantNewPayload struct {
	ParticipantID int64  `json:"participantId"`
	TeamID        int64  `json:"teamId"`
	Nickname      string `json:"nickname"`
}

// ParticipantAnsweredPayload is the admin-only progress notification.
type ParticipantAnsweredPayload struct {
	ParticipantID int64 `json:"participantId"`
	QuestionID    int64 `json:"questionId"`
	IsCorrect     bool  `json:"isCorrect"`
	PointsEarned  int   `json:"pointsEarned"`
}

// AnswerResultPayload is the reply to the submitting participant.
type AnswerResultPayload struct {
	Success      bool    `json:"success"`
	IsCorrect    bool    `json:"isCorrect"`
	PointsEarned int     `json:"pointsEarned"`
	TimeTaken    float64 `json:"timeTaken"`
	Message      string  `json:"message,omitempty"`
}

// ErrorPayload carries a human-readable error.
type ErrorPayload struct {
	Message string `json:"message"`
}

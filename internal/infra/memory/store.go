package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"team-quiz-service/internal/domain"
)

// Store keeps the relational model in maps. Deleting a game or team removes
// everything it owns, mirroring the cascading foreign keys of the SQL schema.
type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64

	games        map[int64]domain.Game
	teams        map[int64]domain.Team
	questions    map[int64]domain.Question
	answers      map[int64]domain.Answer
	participants map[int64]domain.Participant
	submissions  map[int64]domain.ParticipantAnswer
}

func NewStore() *Store {
	return &Store{
		now:          time.Now,
		games:        make(map[int64]domain.Game),
		teams:        make(map[int64]domain.Team),
		questions:    make(map[int64]domain.Question),
		answers:      make(map[int64]domain.Answer),
		participants: make(map[int64]domain.Participant),
		submissions:  make(map[int64]domain.ParticipantAnswer),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateGame(_ context.Context, name string) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := domain.Game{
		ID:                   s.id(),
		Name:                 name,
		Status:               domain.GameWaiting,
		CurrentQuestionIndex: domain.NoQuestion,
		CreatedAt:            s.now(),
	}
	s.games[g.ID] = g
	return g, nil
}

// ListGames returns games newest first.
func (s *Store) ListGames(_ context.Context) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetGame(_ context.Context, gameID int64) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return g, nil
}

func (s *Store) DeleteGame(_ context.Context, gameID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.ErrGameNotFound
	}
	delete(s.games, gameID)
	for id, t := range s.teams {
		if t.GameID == gameID {
			s.deleteTeamLocked(id)
		}
	}
	for id, q := range s.questions {
		if q.GameID == gameID {
			s.deleteQuestionLocked(id)
		}
	}
	return nil
}

func (s *Store) UpdateGameStatus(_ context.Context, gameID int64, status domain.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	g.Status = status
	s.games[gameID] = g
	return nil
}

func (s *Store) UpdateCurrentQuestion(_ context.Context, gameID int64, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	g.CurrentQuestionIndex = index
	s.games[gameID] = g
	return nil
}

func (s *Store) CreateTeam(_ context.Context, team domain.Team) (domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[team.GameID]; !ok {
		return domain.Team{}, domain.ErrGameNotFound
	}
	team.ID = s.id()
	team.TotalScore = 0
	team.CreatedAt = s.now()
	s.teams[team.ID] = team
	return team, nil
}

func (s *Store) GetTeam(_ context.Context, teamID int64) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[teamID]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return t, nil
}

func (s *Store) GetTeamByAccessCode(_ context.Context, code string) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teams {
		if t.AccessCode == code {
			return t, nil
		}
	}
	return domain.Team{}, domain.ErrTeamNotFound
}

// ListTeams returns the game's teams in creation order.
func (s *Store) ListTeams(_ context.Context, gameID int64) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Team
	for _, t := range s.teams {
		if t.GameID == gameID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteTeam(_ context.Context, teamID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return domain.ErrTeamNotFound
	}
	s.deleteTeamLocked(teamID)
	return nil
}

func (s *Store) UpdateTeamScore(_ context.Context, teamID int64, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return domain.ErrTeamNotFound
	}
	t.TotalScore = score
	s.teams[teamID] = t
	return nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[q.GameID]; !ok {
		return domain.Question{}, domain.ErrGameNotFound
	}
	q.ID = s.id()
	q.Answers = nil
	s.questions[q.ID] = q
	return q, nil
}

func (s *Store) GetQuestion(_ context.Context, questionID int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return s.withAnswersLocked(q), nil
}

func (s *Store) DeleteQuestion(_ context.Context, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	s.deleteQuestionLocked(questionID)
	return nil
}

func (s *Store) CreateAnswer(_ context.Context, a domain.Answer) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[a.QuestionID]; !ok {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	a.ID = s.id()
	s.answers[a.ID] = a
	return a, nil
}

// ListQuestions returns the game's questions ordered by order index, then id,
// with their answers in creation order.
func (s *Store) ListQuestions(_ context.Context, gameID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, q := range s.questions {
		if q.GameID == gameID {
			out = append(out, s.withAnswersLocked(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[p.TeamID]; !ok {
		return domain.Participant{}, domain.ErrTeamNotFound
	}
	p.ID = s.id()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}
	s.participants[p.ID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, participantID int64) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) ListParticipants(_ context.Context, teamID int64) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for _, p := range s.participants {
		if p.TeamID == teamID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateParticipantAnswer(_ context.Context, a domain.ParticipantAnswer) (domain.ParticipantAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[a.ParticipantID]; !ok {
		return domain.ParticipantAnswer{}, domain.ErrParticipantNotFound
	}
	a.ID = s.id()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.submissions[a.ID] = a
	return a, nil
}

func (s *Store) HasAnswered(_ context.Context, participantID, questionID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.submissions {
		if a.ParticipantID == participantID && a.QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

// ListTeamAnswers returns every answer recorded by the team's participants.
func (s *Store) ListTeamAnswers(_ context.Context, teamID int64) ([]domain.ParticipantAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ParticipantAnswer
	for _, a := range s.submissions {
		if p, ok := s.participants[a.ParticipantID]; ok && p.TeamID == teamID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) withAnswersLocked(q domain.Question) domain.Question {
	var answers []domain.Answer
	for _, a := range s.answers {
		if a.QuestionID == q.ID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	q.Answers = answers
	return q
}

func (s *Store) deleteTeamLocked(teamID int64) {
	delete(s.teams, teamID)
	for id, p := range s.participants {
		if p.TeamID == teamID {
			delete(s.participants, id)
			for sid, a := range s.submissions {
				if a.ParticipantID == id {
					delete(s.submissions, sid)
				}
			}
		}
	}
}

func (s *Store) deleteQuestionLocked(questionID int64) {
	delete(s.questions, questionID)
	for id, a := range s.answers {
		if a.QuestionID == questionID {
			delete(s.answers, id)
		}
	}
	for id, a := range s.submissions {
		if a.QuestionID == questionID {
			delete(s.submissions, id)
		}
	}
}

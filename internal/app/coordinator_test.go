package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/dependencies/mocks"
	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/infra/memory"
	infraredis "team-quiz-service/internal/infra/redis"
	"team-quiz-service/internal/testutil"
)

type CoordinatorSuite struct {
	suite.Suite
	ctx         context.Context
	clock       *mocks.MockClock
	store       *memory.Store
	sessions    *memory.SessionStore
	events      *recordingLog
	locks       *app.GameLocks
	coordinator *app.Coordinator
	catalog     *app.Catalog

	game domain.Game
	team domain.Team
	q1   domain.Question
	q1ok domain.Answer
	q1no domain.Answer

	admin       *recordingConn
	display     *recordingConn
	participant *recordingConn
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))
	s.store = memory.NewStore()
	s.sessions = memory.NewSessionStore()
	s.events = &recordingLog{}
	s.locks = app.NewGameLocks()
	questions := memory.NewQuestionRepository(s.store, time.Minute)

	rnd := mocks.NewMockRandom()
	rnd.QueueString("RED00001", "BLUE0002", "GREEN003")

	logger := testutil.NopLogger()
	s.coordinator = app.NewCoordinator(app.CoordinatorConfig{
		Store:     s.store,
		Questions: questions,
		Sessions:  s.sessions,
		Router:    app.NewRouter(logger),
		Ledger:    app.NewLedger(s.store, s.store),
		Evaluator: app.NewEvaluator(app.ScoringFlat),
		Events:    s.events,
		Clock:     s.clock,
		Logger:    logger,
		Locks:     s.locks,
		Grace:     500 * time.Millisecond,
	})
	s.catalog = app.NewCatalog(app.CatalogConfig{
		Store:     s.store,
		Questions: questions,
		Sessions:  s.sessions,
		Random:    rnd,
		Locks:     s.locks,
		PublicURL: "http://quiz.test",
		Logger:    logger,
	})

	var err error
	s.game, err = s.catalog.CreateGame(s.ctx, "Pub quiz")
	s.Require().NoError(err)
	s.team, err = s.catalog.CreateTeam(s.ctx, s.game.ID, "Red")
	s.Require().NoError(err)
	s.q1, s.q1no, s.q1ok = s.addQuestion("What is 2 + 2?", 2, 100, 0)

	s.admin = newRecordingConn("admin")
	s.display = newRecordingConn("display")
	s.participant = newRecordingConn("participant")
	s.Require().NoError(s.coordinator.ConnectAdmin(s.ctx, s.admin, s.game.ID))
	s.Require().NoError(s.coordinator.ConnectDisplay(s.ctx, s.display, s.game.ID))
}

// addQuestion creates a question with one wrong and one correct answer.
func (s *CoordinatorSuite) addQuestion(text string, timeLimit, points, order int) (domain.Question, domain.Answer, domain.Answer) {
	q, err := s.catalog.CreateQuestion(s.ctx, domain.Question{
		GameID: s.game.ID, Text: text, TimeLimit: timeLimit, Points: points, OrderIndex: order,
	})
	s.Require().NoError(err)
	wrong, err := s.catalog.CreateAnswer(s.ctx, domain.Answer{QuestionID: q.ID, Text: "wrong"})
	s.Require().NoError(err)
	right, err := s.catalog.CreateAnswer(s.ctx, domain.Answer{QuestionID: q.ID, Text: "right", IsCorrect: true})
	s.Require().NoError(err)
	return q, wrong, right
}

func (s *CoordinatorSuite) join(conn *recordingConn, team domain.Team, nickname string) domain.ParticipantJoinedPayload {
	joined, err := s.coordinator.JoinParticipant(s.ctx, conn, team.ID, nickname)
	s.Require().NoError(err)
	return joined
}

// Connect tests

func (s *CoordinatorSuite) TestConnectUnknownGame() {
	err := s.coordinator.ConnectAdmin(s.ctx, newRecordingConn("x"), 999)
	s.ErrorIs(err, domain.ErrGameNotFound)
}

func (s *CoordinatorSuite) TestConnectDisplaySendsParticipantCount() {
	counts := s.display.payloads(domain.EventParticipantCount)
	s.Require().Len(counts, 1)
	s.Equal(0, counts[0])
}

// JoinParticipant tests

func (s *CoordinatorSuite) TestJoinNotifiesAdminAndDisplay() {
	joined := s.join(s.participant, s.team, "alice")

	s.Equal(s.team.ID, joined.TeamID)
	s.Equal("alice", joined.Nickname)
	s.Equal(0, joined.Score)

	news := s.admin.payloads(domain.EventParticipantNew)
	s.Require().Len(news, 1)
	s.Equal(joined.ParticipantID, news[0].(domain.ParticipantNewPayload).ParticipantID)

	counts := s.display.payloads(domain.EventParticipantCount)
	s.Equal(1, counts[len(counts)-1])

	stored, err := s.store.GetParticipant(s.ctx, joined.ParticipantID)
	s.Require().NoError(err)
	s.Equal(s.participant.ID(), stored.ConnectionID)
}

func (s *CoordinatorSuite) TestJoinRejectsBlankNickname() {
	_, err := s.coordinator.JoinParticipant(s.ctx, s.participant, s.team.ID, "  ")
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *CoordinatorSuite) TestJoinUnknownTeam() {
	_, err := s.coordinator.JoinParticipant(s.ctx, s.participant, 999, "alice")
	s.ErrorIs(err, domain.ErrTeamNotFound)
}

func (s *CoordinatorSuite) TestDisconnectUpdatesDisplayCount() {
	s.join(s.participant, s.team, "alice")
	s.coordinator.Disconnect(s.participant)

	counts := s.display.payloads(domain.EventParticipantCount)
	s.Equal(0, counts[len(counts)-1])
}

// StartGame tests

func (s *CoordinatorSuite) TestStartGameRevealsFirstQuestion() {
	s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	s.Equal([]domain.EventType{domain.EventGameStarted, domain.EventQuestionNew}, s.participant.types())

	shown := s.participant.payloads(domain.EventQuestionNew)[0].(domain.QuestionPayload)
	s.Equal(s.q1.ID, shown.ID)
	s.Equal(1, shown.QuestionNumber)
	s.Equal(1, shown.TotalQuestions)
	s.Equal(2, shown.TimeLimit)
	s.Len(shown.Answers, 2)
	s.Zero(shown.CorrectAnswerID)

	onDisplay := s.display.payloads(domain.EventQuestionNew)[0].(domain.QuestionPayload)
	s.Zero(onDisplay.CorrectAnswerID)

	forAdmin := s.admin.payloads(domain.EventQuestionNew)[0].(domain.QuestionPayload)
	s.Equal(s.q1ok.ID, forAdmin.CorrectAnswerID)
	s.Empty(s.admin.payloads(domain.EventGameStarted))

	game, err := s.store.GetGame(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Equal(domain.GameActive, game.Status)
	s.Equal(0, game.CurrentQuestionIndex)

	session, ok := s.sessions.Get(s.game.ID)
	s.Require().True(ok)
	s.Equal(s.q1.ID, session.QuestionID)
	s.True(session.StartTime.Equal(s.clock.Now()))
}

func (s *CoordinatorSuite) TestStartGameWithoutQuestions() {
	empty, err := s.catalog.CreateGame(s.ctx, "Empty")
	s.Require().NoError(err)

	err = s.coordinator.StartGame(s.ctx, empty.ID)
	s.ErrorIs(err, domain.ErrNoQuestions)
	s.ErrorIs(err, domain.ErrInvalidState)

	game, err := s.store.GetGame(s.ctx, empty.ID)
	s.Require().NoError(err)
	s.Equal(domain.GameWaiting, game.Status)
	_, ok := s.sessions.Get(empty.ID)
	s.False(ok)
}

func (s *CoordinatorSuite) TestStartGameTwice() {
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))
	s.ErrorIs(s.coordinator.StartGame(s.ctx, s.game.ID), domain.ErrInvalidState)
}

// SubmitAnswer tests

func (s *CoordinatorSuite) TestCorrectAnswerScoresAndRanks() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	s.clock.Advance(500 * time.Millisecond)
	result, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.Require().NoError(err)
	s.True(result.IsCorrect)
	s.Equal(100, result.PointsEarned)
	s.InDelta(0.5, result.TimeTaken, 0.001)

	answered := s.admin.payloads(domain.EventParticipantAnswered)
	s.Require().Len(answered, 1)
	s.Equal(domain.ParticipantAnsweredPayload{
		ParticipantID: joined.ParticipantID,
		QuestionID:    s.q1.ID,
		IsCorrect:     true,
		PointsEarned:  100,
	}, answered[0])
	s.Empty(s.display.payloads(domain.EventParticipantAnswered))
	s.Empty(s.participant.payloads(domain.EventParticipantAnswered))

	ranking, err := s.coordinator.ShowRanking(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Require().Len(ranking.Teams, 1)
	s.Equal(100, ranking.Teams[0].Score)
	s.Equal(100, ranking.Teams[0].Accuracy)
	s.Equal(1, ranking.Teams[0].ParticipantCount)

	team, err := s.store.GetTeam(s.ctx, s.team.ID)
	s.Require().NoError(err)
	s.Equal(100, team.TotalScore)

	for _, conn := range []*recordingConn{s.admin, s.display, s.participant} {
		s.Len(conn.payloads(domain.EventRankingShow), 1, conn.ID())
	}
}

func (s *CoordinatorSuite) TestWrongAnswerScoresZero() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	result, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1no.ID)
	s.Require().NoError(err)
	s.False(result.IsCorrect)
	s.Zero(result.PointsEarned)
}

func (s *CoordinatorSuite) TestLateAnswerIsRejected() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	s.clock.Advance(3 * time.Second)
	_, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrTimedOut)

	answered, err := s.store.HasAnswered(s.ctx, joined.ParticipantID, s.q1.ID)
	s.Require().NoError(err)
	s.False(answered)
	s.Empty(s.admin.payloads(domain.EventParticipantAnswered))

	ranking, err := s.coordinator.ShowRanking(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Zero(ranking.Teams[0].Score)
	s.Zero(ranking.Teams[0].Accuracy)
}

func (s *CoordinatorSuite) TestAnswerWithinGraceIsAccepted() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	s.clock.Advance(2*time.Second + 400*time.Millisecond)
	result, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.Require().NoError(err)
	s.Equal(100, result.PointsEarned)
	s.InDelta(2.4, result.TimeTaken, 0.001)
}

func (s *CoordinatorSuite) TestDuplicateAnswerIsRejected() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	_, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1no.ID)
	s.Require().NoError(err)
	_, err = s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrAlreadyAnswered)

	answers, err := s.store.ListTeamAnswers(s.ctx, s.team.ID)
	s.Require().NoError(err)
	s.Len(answers, 1)
}

func (s *CoordinatorSuite) TestConcurrentDuplicatesPersistOnce() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		s.ErrorIs(err, domain.ErrAlreadyAnswered)
	}
	s.Equal(1, accepted)
}

func (s *CoordinatorSuite) TestAnswerForUnknownOption() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	_, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, 9999)
	s.ErrorIs(err, domain.ErrAnswerNotFound)
}

func (s *CoordinatorSuite) TestAnswerBeforeStart() {
	joined := s.join(s.participant, s.team, "alice")
	_, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrNotActive)
}

func (s *CoordinatorSuite) TestAnswerUnknownParticipant() {
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))
	_, err := s.coordinator.SubmitAnswer(s.ctx, 999, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrParticipantNotFound)
}

func (s *CoordinatorSuite) TestMirroredSessionOfWaitingGameIsDropped() {
	mr := miniredis.RunT(s.T())
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	infraredis.NewSessionStore(client, time.Minute, testutil.NopLogger()).Set(domain.LiveSession{
		GameID: s.game.ID, QuestionID: s.q1.ID, StartTime: s.clock.Now(), TimeLimit: 30,
	})
	sessions := infraredis.NewSessionStore(client, time.Minute, testutil.NopLogger())
	coordinator := s.coordinatorWith(s.store, sessions, 0)
	joined := s.join(s.participant, s.team, "alice")

	_, err := coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrNotActive)

	s.False(mr.Exists(fmt.Sprintf("quiz:session:%d", s.game.ID)))
	_, ok := sessions.Get(s.game.ID)
	s.False(ok)
	answered, err := s.store.HasAnswered(s.ctx, joined.ParticipantID, s.q1.ID)
	s.Require().NoError(err)
	s.False(answered)
}

func (s *CoordinatorSuite) TestMirroredSessionOfFinishedGameIsDropped() {
	mr := miniredis.RunT(s.T())
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	sessions := infraredis.NewSessionStore(client, time.Minute, testutil.NopLogger())
	coordinator := s.coordinatorWith(s.store, sessions, 0)
	joined, err := coordinator.JoinParticipant(s.ctx, s.participant, s.team.ID, "alice")
	s.Require().NoError(err)
	s.Require().NoError(coordinator.StartGame(s.ctx, s.game.ID))
	s.Require().NoError(coordinator.EndGame(s.ctx, s.game.ID))

	// Another instance still holding the old question rewrites the mirror.
	infraredis.NewSessionStore(client, time.Minute, testutil.NopLogger()).Set(domain.LiveSession{
		GameID: s.game.ID, QuestionID: s.q1.ID, StartTime: s.clock.Now(), TimeLimit: 30,
	})
	fresh := infraredis.NewSessionStore(client, time.Minute, testutil.NopLogger())
	coordinator = s.coordinatorWith(s.store, fresh, 0)

	_, err = coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrNotActive)
	s.False(mr.Exists(fmt.Sprintf("quiz:session:%d", s.game.ID)))

	answers, err := s.store.ListTeamAnswers(s.ctx, s.team.ID)
	s.Require().NoError(err)
	s.Empty(answers)
}

func (s *CoordinatorSuite) TestAnswerTimeoutExcludesLockWait() {
	store := deadlineStore{Store: s.store}
	coordinator := s.coordinatorWith(store, memory.NewSessionStore(), 50*time.Millisecond)
	joined, err := coordinator.JoinParticipant(s.ctx, s.participant, s.team.ID, "alice")
	s.Require().NoError(err)
	s.Require().NoError(coordinator.StartGame(s.ctx, s.game.ID))

	unlock := s.locks.Lock(s.game.ID)
	go func() {
		time.Sleep(250 * time.Millisecond)
		unlock()
	}()

	result, err := coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.Require().NoError(err)
	s.True(result.IsCorrect)
}

// NextQuestion tests

func (s *CoordinatorSuite) TestNextQuestionAdvancesAndClosesPrevious() {
	q2, _, q2ok := s.addQuestion("Second", 10, 50, 1)
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	s.clock.Advance(time.Second)
	advanced, err := s.coordinator.NextQuestion(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.True(advanced)

	shown := s.participant.payloads(domain.EventQuestionNew)
	s.Require().Len(shown, 2)
	second := shown[1].(domain.QuestionPayload)
	s.Equal(q2.ID, second.ID)
	s.Equal(2, second.QuestionNumber)
	s.Equal(2, second.TotalQuestions)

	_, err = s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrQuestionClosed)

	result, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, q2.ID, q2ok.ID)
	s.Require().NoError(err)
	s.Equal(50, result.PointsEarned)
	s.Zero(result.TimeTaken)
}

func (s *CoordinatorSuite) TestNextQuestionPastLastIsNoOp() {
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))
	before := len(s.admin.types())

	advanced, err := s.coordinator.NextQuestion(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.False(advanced)
	s.Len(s.admin.types(), before)

	game, err := s.store.GetGame(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Equal(0, game.CurrentQuestionIndex)
}

func (s *CoordinatorSuite) TestNextQuestionVisitsEveryQuestionInOrder() {
	questions := []domain.Question{s.q1}
	for i, text := range []string{"Second", "Third", "Fourth"} {
		q, _, _ := s.addQuestion(text, 10, 10, i+1)
		questions = append(questions, q)
	}
	s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	for range len(questions) - 1 {
		advanced, err := s.coordinator.NextQuestion(s.ctx, s.game.ID)
		s.Require().NoError(err)
		s.True(advanced)
	}
	before := len(s.participant.types())
	advanced, err := s.coordinator.NextQuestion(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.False(advanced)
	s.Len(s.participant.types(), before)

	shown := s.participant.payloads(domain.EventQuestionNew)
	s.Require().Len(shown, len(questions))
	for i, p := range shown {
		q := p.(domain.QuestionPayload)
		s.Equal(questions[i].ID, q.ID)
		s.Equal(i+1, q.QuestionNumber)
		s.Equal(len(questions), q.TotalQuestions)
	}

	game, err := s.store.GetGame(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Equal(len(questions)-1, game.CurrentQuestionIndex)
}

func (s *CoordinatorSuite) TestConcurrentNextQuestionAdvancesOnce() {
	s.addQuestion("Second", 10, 10, 1)
	s.addQuestion("Third", 10, 10, 2)
	s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			advanced, err := s.coordinator.NextQuestion(s.ctx, s.game.ID)
			s.NoError(err)
			results <- advanced
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for advanced := range results {
		if advanced {
			accepted++
		}
	}
	s.Equal(2, accepted)

	game, err := s.store.GetGame(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Equal(2, game.CurrentQuestionIndex)

	shown := s.participant.payloads(domain.EventQuestionNew)
	s.Require().Len(shown, 3)
	for i, p := range shown {
		s.Equal(i+1, p.(domain.QuestionPayload).QuestionNumber)
	}
}

func (s *CoordinatorSuite) TestNextQuestionBeforeStart() {
	_, err := s.coordinator.NextQuestion(s.ctx, s.game.ID)
	s.ErrorIs(err, domain.ErrInvalidState)
}

// ShowRanking tests

func (s *CoordinatorSuite) TestRankingOrdersByScoreThenTeamID() {
	blue, err := s.catalog.CreateTeam(s.ctx, s.game.ID, "Blue")
	s.Require().NoError(err)
	green, err := s.catalog.CreateTeam(s.ctx, s.game.ID, "Green")
	s.Require().NoError(err)

	bob := s.join(newRecordingConn("bob"), blue, "bob")
	s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))
	_, err = s.coordinator.SubmitAnswer(s.ctx, bob.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.Require().NoError(err)

	ranking, err := s.coordinator.ShowRanking(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Require().Len(ranking.Teams, 3)
	s.Equal(blue.ID, ranking.Teams[0].ID)
	s.Equal(s.team.ID, ranking.Teams[1].ID)
	s.Equal(green.ID, ranking.Teams[2].ID)
	s.Zero(ranking.Teams[2].ParticipantCount)
	s.Equal(s.clock.Now().UnixMilli(), ranking.Timestamp)
}

// EndGame tests

func (s *CoordinatorSuite) TestEndGameClosesSession() {
	joined := s.join(s.participant, s.team, "alice")
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))
	s.Require().NoError(s.coordinator.EndGame(s.ctx, s.game.ID))

	s.Len(s.participant.payloads(domain.EventGameEnded), 1)
	s.Len(s.display.payloads(domain.EventGameEnded), 1)
	s.Empty(s.admin.payloads(domain.EventGameEnded))

	_, ok := s.sessions.Get(s.game.ID)
	s.False(ok)

	_, err := s.coordinator.SubmitAnswer(s.ctx, joined.ParticipantID, s.q1.ID, s.q1ok.ID)
	s.ErrorIs(err, domain.ErrNotActive)

	game, err := s.store.GetGame(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Equal(domain.GameFinished, game.Status)

	s.ErrorIs(s.coordinator.EndGame(s.ctx, s.game.ID), domain.ErrInvalidState)
}

func (s *CoordinatorSuite) TestEndGameBeforeStart() {
	s.ErrorIs(s.coordinator.EndGame(s.ctx, s.game.ID), domain.ErrInvalidState)
}

// Event log tests

func (s *CoordinatorSuite) TestBroadcastsAreRecorded() {
	s.Require().NoError(s.coordinator.StartGame(s.ctx, s.game.ID))

	recs := s.events.records()
	s.Require().Len(recs, 3)
	s.Equal(domain.EventGameStarted, recs[0].Event.Type)
	s.Equal([]app.Audience{app.AudienceParticipants}, recs[0].Audiences)
	s.Equal(domain.EventQuestionNew, recs[1].Event.Type)
	s.Equal([]app.Audience{app.AudienceAdmin}, recs[2].Audiences)
	s.Equal(s.game.ID, recs[2].GameID)
}

// Catalog tests

func (s *CoordinatorSuite) TestQuestionAddedDuringStartIsRejected() {
	unlock := s.locks.Lock(s.game.ID)
	done := make(chan error, 1)
	go func() {
		_, err := s.catalog.CreateQuestion(s.ctx, domain.Question{GameID: s.game.ID, Text: "Late", TimeLimit: 10, Points: 10})
		done <- err
	}()

	select {
	case err := <-done:
		unlock()
		s.FailNow("question created while the game was locked", "err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}
	s.Require().NoError(s.store.UpdateGameStatus(s.ctx, s.game.ID, domain.GameActive))
	unlock()

	s.ErrorIs(<-done, domain.ErrInvalidState)
	questions, err := s.store.ListQuestions(s.ctx, s.game.ID)
	s.Require().NoError(err)
	s.Len(questions, 1)
}

// coordinatorWith builds a second coordinator over the suite's game, sharing
// its locks.
func (s *CoordinatorSuite) coordinatorWith(store app.Store, sessions app.SessionRegistry, timeout time.Duration) *app.Coordinator {
	logger := testutil.NopLogger()
	return app.NewCoordinator(app.CoordinatorConfig{
		Store:        store,
		Questions:    memory.NewQuestionRepository(s.store, time.Minute),
		Sessions:     sessions,
		Router:       app.NewRouter(logger),
		Answers:      s.store,
		Evaluator:    app.NewEvaluator(app.ScoringFlat),
		Clock:        s.clock,
		Logger:       logger,
		Locks:        s.locks,
		Grace:        500 * time.Millisecond,
		StoreTimeout: timeout,
	})
}

// deadlineStore fails game reads once the caller's deadline has passed.
type deadlineStore struct {
	*memory.Store
}

func (d deadlineStore) GetGame(ctx context.Context, gameID int64) (domain.Game, error) {
	if err := ctx.Err(); err != nil {
		return domain.Game{}, err
	}
	return d.Store.GetGame(ctx, gameID)
}

// recordingConn captures every event it is sent.
type recordingConn struct {
	id     string
	mu     sync.Mutex
	events []domain.Event
}

func newRecordingConn(id string) *recordingConn {
	return &recordingConn{id: id}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(ev domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *recordingConn) types() []domain.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventType, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *recordingConn) payloads(t domain.EventType) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev.Payload)
		}
	}
	return out
}

type recordingLog struct {
	mu   sync.Mutex
	recs []app.EventRecord
}

func (l *recordingLog) Record(_ context.Context, rec app.EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return nil
}

func (l *recordingLog) records() []app.EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]app.EventRecord(nil), l.recs...)
}

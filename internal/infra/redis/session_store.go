package redis

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"team-quiz-service/internal/domain"
)

const sessionOpTimeout = 2 * time.Second

// SessionStore keeps live sessions in process and mirrors each one to a
// Redis hash so a restarted instance can resume a running question.
//
//	HSET quiz:session:{gameID} questionId .. startTime .. timeLimit ..
//
// The local map is authoritative; Redis is only read on a local miss.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[int64]domain.LiveSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[int64]domain.LiveSession),
	}
}

func (s *SessionStore) Set(session domain.LiveSession) {
	s.mu.Lock()
	s.sessions[session.GameID] = session
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	key := sessionKey(session.GameID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"questionId", session.QuestionID,
		"startTime", session.StartTime.UnixMilli(),
		"timeLimit", session.TimeLimit,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to mirror live session",
			slog.Int64("game_id", session.GameID),
			slog.String("error", err.Error()))
	}
}

func (s *SessionStore) Get(gameID int64) (domain.LiveSession, bool) {
	s.mu.RLock()
	session, ok := s.sessions[gameID]
	s.mu.RUnlock()
	if ok {
		return session, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, sessionKey(gameID)).Result()
	if err != nil {
		if !isMiss(err) {
			s.logger.Warn("failed to read live session",
				slog.Int64("game_id", gameID),
				slog.String("error", err.Error()))
		}
		return domain.LiveSession{}, false
	}
	session, ok = decodeSession(gameID, fields)
	if !ok {
		return domain.LiveSession{}, false
	}

	s.mu.Lock()
	if current, exists := s.sessions[gameID]; exists {
		session = current
	} else {
		s.sessions[gameID] = session
	}
	s.mu.Unlock()
	return session, true
}

func (s *SessionStore) Delete(gameID int64) {
	s.mu.Lock()
	delete(s.sessions, gameID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, sessionKey(gameID)).Err(); err != nil {
		s.logger.Warn("failed to remove live session",
			slog.Int64("game_id", gameID),
			slog.String("error", err.Error()))
	}
}

func decodeSession(gameID int64, fields map[string]string) (domain.LiveSession, bool) {
	if len(fields) == 0 {
		return domain.LiveSession{}, false
	}
	questionID, err := strconv.ParseInt(fields["questionId"], 10, 64)
	if err != nil {
		return domain.LiveSession{}, false
	}
	startMillis, err := strconv.ParseInt(fields["startTime"], 10, 64)
	if err != nil {
		return domain.LiveSession{}, false
	}
	timeLimit, err := strconv.Atoi(fields["timeLimit"])
	if err != nil {
		return domain.LiveSession{}, false
	}
	return domain.LiveSession{
		GameID:     gameID,
		QuestionID: questionID,
		StartTime:  time.UnixMilli(startMillis),
		TimeLimit:  timeLimit,
	}, true
}

func sessionKey(gameID int64) string {
	return "quiz:session:" + strconv.FormatInt(gameID, 10)
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"team-quiz-service/internal/domain"
)

// QuestionLoader fetches a game's ordered questions from the backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, gameID int64) ([]domain.Question, error)
}

// QuestionRepository caches each game's question set in Redis as one JSON
// value and falls back to the loader on a miss.
//
//	SET quiz:game:{gameID}:questions <json> EX <ttl>
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, gameID int64) ([]domain.Question, error) {
	key := questionsKey(gameID)
	if qs, ok := r.cached(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := r.cached(ctx, key); ok {
			return qs, nil
		}

		questions, err := r.loader.ListQuestions(ctx, gameID)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(questions); err == nil {
			// best-effort: a failed write only costs a reload
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Forget deletes the cached question set.
func (r *QuestionRepository) Forget(ctx context.Context, gameID int64) error {
	key := questionsKey(gameID)
	r.sf.Forget(key)
	return r.client.Del(ctx, key).Err()
}

func (r *QuestionRepository) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func questionsKey(gameID int64) string {
	return "quiz:game:" + strconv.FormatInt(gameID, 10) + ":questions"
}

// isMiss reports a missing key.
func isMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

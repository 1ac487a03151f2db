package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"team-quiz-service/internal/domain"
)

// QuestionLoader fetches a game's ordered questions from the backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, gameID int64) ([]domain.Question, error)
}

// QuestionRepository caches question sets with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[int64]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuestions),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, gameID int64) ([]domain.Question, error) {
	if qs, ok := r.cached(gameID); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(sfKey(gameID), func() (interface{}, error) {
		if qs, ok := r.cached(gameID); ok {
			return qs, nil
		}

		now := r.clock()
		questions, err := r.loader.ListQuestions(ctx, gameID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[gameID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Forget drops the cached copy so the next read reloads.
func (r *QuestionRepository) Forget(_ context.Context, gameID int64) error {
	r.sf.Forget(sfKey(gameID))
	r.mu.Lock()
	delete(r.cache, gameID)
	r.mu.Unlock()
	return nil
}

func (r *QuestionRepository) cached(gameID int64) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[gameID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func sfKey(gameID int64) string {
	return strconv.FormatInt(gameID, 10)
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"team-quiz-service/internal/app"
)

const defaultStreamMaxLen = 10000

// EventLog appends every coordinator broadcast to a per-game Redis stream.
//
//	XADD quiz:events:{gameID} MAXLEN ~ N * type .. audiences .. payload .. at ..
type EventLog struct {
	client *redis.Client
	maxLen int64
}

func NewEventLog(client *redis.Client, maxLen int64) *EventLog {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &EventLog{client: client, maxLen: maxLen}
}

func (l *EventLog) Record(ctx context.Context, rec app.EventRecord) error {
	payload, err := json.Marshal(rec.Event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	audiences := make([]string, len(rec.Audiences))
	for i, a := range rec.Audiences {
		audiences[i] = string(a)
	}

	err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(rec.GameID),
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(rec.Event.Type),
			"audiences": strings.Join(audiences, ","),
			"payload":   string(payload),
			"at":        rec.At.UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", streamKey(rec.GameID), err)
	}
	return nil
}

func streamKey(gameID int64) string {
	return "quiz:events:" + strconv.FormatInt(gameID, 10)
}

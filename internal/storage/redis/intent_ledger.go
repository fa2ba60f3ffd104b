package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const keyPrefix = "checkout:intent:"

// IntentLedger хранит выданные платёжные намерения в Redis в виде JSON с TTL.
type IntentLedger struct {
	client goredis.UniversalClient
}

// NewIntentLedger создаёт журнал поверх готового клиента.
func NewIntentLedger(client goredis.UniversalClient) *IntentLedger {
	return &IntentLedger{client: client}
}

// Put сохраняет запись; ttl <= 0 означает хранение без срока.
func (l *IntentLedger) Put(ctx context.Context, rec domain.IntentRecord, ttl time.Duration) error {
	if rec.IntentID == "" {
		return errors.New("intent id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal intent record: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := l.client.Set(ctx, intentKey(rec.IntentID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set intent: %w", err)
	}
	return nil
}

// Get возвращает запись или domain.ErrIntentNotFound.
func (l *IntentLedger) Get(ctx context.Context, intentID string) (domain.IntentRecord, error) {
	data, err := l.client.Get(ctx, intentKey(intentID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.IntentRecord{}, domain.ErrIntentNotFound
	}
	if err != nil {
		return domain.IntentRecord{}, fmt.Errorf("redis get intent: %w", err)
	}

	var rec domain.IntentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.IntentRecord{}, fmt.Errorf("unmarshal intent record: %w", err)
	}
	return rec, nil
}

// Ping проверяет доступность Redis для readiness-проверки.
func (l *IntentLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func intentKey(intentID string) string {
	return keyPrefix + intentID
}

var _ domain.IntentLedger = (*IntentLedger)(nil)

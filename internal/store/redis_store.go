package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vulnalert/pkg/models"
)

// RedisConfig configures Redis access for alert definitions and
// SecInfo counters.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps alert definitions, task attachments and per-alert
// SecInfo counters in Redis. Alert definitions are written by the CRUD
// layer; this engine reads them and only writes the counters.
//
// Key scheme, under the configured prefix:
//
//	<prefix>:alert:<uuid>          JSON alert definition
//	<prefix>:alerts:event:<kind>   set of alert UUIDs per event kind
//	<prefix>:alerts:task:<uuid>    list of alert UUIDs per task
//	<prefix>:secinfo_count:<uuid>  persisted SecInfo count
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed alert store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "vulnalert"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis alert store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (s *RedisStore) alertKey(id string) string {
	return fmt.Sprintf("%s:alert:%s", s.prefix, id)
}

func (s *RedisStore) eventKey(kind models.EventKind) string {
	return fmt.Sprintf("%s:alerts:event:%d", s.prefix, kind)
}

func (s *RedisStore) taskKey(taskID string) string {
	return fmt.Sprintf("%s:alerts:task:%s", s.prefix, taskID)
}

func (s *RedisStore) countKey(alertID string) string {
	return fmt.Sprintf("%s:secinfo_count:%s", s.prefix, alertID)
}

// Alert returns one alert by UUID.
func (s *RedisStore) Alert(id string) (*models.Alert, error) {
	ctx := context.Background()
	raw, err := s.client.Get(ctx, s.alertKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read alert %s: %w", id, err)
	}
	var alert models.Alert
	if err := json.Unmarshal(raw, &alert); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", id, err)
	}
	return &alert, nil
}

func (s *RedisStore) alertsByIDs(ids []string) ([]*models.Alert, error) {
	out := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		alert, err := s.Alert(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}

// ForTask lists alerts attached to a task, in attachment order.
func (s *RedisStore) ForTask(taskID string) ([]*models.Alert, error) {
	ctx := context.Background()
	ids, err := s.client.LRange(ctx, s.taskKey(taskID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("list task alerts: %w", err)
	}
	return s.alertsByIDs(ids)
}

// ForEvent lists active alerts registered for an event kind.
func (s *RedisStore) ForEvent(kind models.EventKind) ([]*models.Alert, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, s.eventKey(kind)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("list event alerts: %w", err)
	}
	alerts, err := s.alertsByIDs(ids)
	if err != nil {
		return nil, err
	}
	active := alerts[:0]
	for _, a := range alerts {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

// PutAlert stores an alert definition and indexes it. The CRUD layer
// owns this path; it exists here so fixtures and tools can seed Redis.
func (s *RedisStore) PutAlert(alert *models.Alert, taskIDs ...string) error {
	ctx := context.Background()
	raw, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", alert.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.alertKey(alert.ID), raw, 0)
	pipe.SAdd(ctx, s.eventKey(alert.Event), alert.ID)
	for _, taskID := range taskIDs {
		pipe.RPush(ctx, s.taskKey(taskID), alert.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write alert %s: %w", alert.ID, err)
	}
	return nil
}

// SecInfoCount returns the persisted SecInfo count for an alert.
func (s *RedisStore) SecInfoCount(alertID string) (int, error) {
	ctx := context.Background()
	n, err := s.client.Get(ctx, s.countKey(alertID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read secinfo count: %w", err)
	}
	return n, nil
}

// SetSecInfoCount stores the SecInfo count for an alert.
func (s *RedisStore) SetSecInfoCount(alertID string, count int) error {
	ctx := context.Background()
	if err := s.client.Set(ctx, s.countKey(alertID), count, 0).Err(); err != nil {
		return fmt.Errorf("write secinfo count: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

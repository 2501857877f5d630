// Package redis consumes event envelopes from a Redis list queue. The
// scanner-facing side of the management layer pushes one JSON envelope
// per event; this side blocks on BLPOP and decodes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vulnalert/pkg/models"
)

// Config configures the Redis consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer wraps a Redis list popper.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Pop pops one raw envelope from the list. A nil result without error
// means the block timed out with nothing queued.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}

// Envelope is the queued JSON form of one event.
type Envelope struct {
	Event            string `json:"event"`
	Status           string `json:"status,omitempty"`
	TaskID           string `json:"task_id,omitempty"`
	ReportID         string `json:"report_id,omitempty"`
	SecInfoType      string `json:"secinfo_type,omitempty"`
	SecInfoCount     int    `json:"secinfo_count,omitempty"`
	SecInfoCheckTime int64  `json:"secinfo_check_time,omitempty"`
	TicketID         string `json:"ticket_id,omitempty"`
	TicketName       string `json:"ticket_name,omitempty"`
	TicketOwner      string `json:"ticket_owner,omitempty"`
}

var eventKinds = map[string]models.EventKind{
	"task_run_status_changed": models.EventTaskRunStatusChanged,
	"new_secinfo":             models.EventNewSecInfo,
	"updated_secinfo":         models.EventUpdatedSecInfo,
	"ticket_received":         models.EventTicketReceived,
	"assigned_ticket_changed": models.EventAssignedTicketChanged,
	"owned_ticket_changed":    models.EventOwnedTicketChanged,
}

var taskStatuses = map[string]models.TaskStatus{
	"New":              models.StatusNew,
	"Requested":        models.StatusRequested,
	"Queued":           models.StatusQueued,
	"Running":          models.StatusRunning,
	"Stop Requested":   models.StatusStopRequested,
	"Stopped":          models.StatusStopped,
	"Interrupted":      models.StatusInterrupted,
	"Processing":       models.StatusProcessing,
	"Done":             models.StatusDone,
	"Delete Requested": models.StatusDeleteRequested,
}

// Decode parses one raw envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if _, ok := eventKinds[env.Event]; !ok {
		return nil, fmt.Errorf("unknown event kind %q", env.Event)
	}
	return &env, nil
}

// ToEvent converts the envelope into the engine's event value.
func (env *Envelope) ToEvent() (models.Event, error) {
	kind := eventKinds[env.Event]
	ev := models.Event{
		Kind:             kind,
		SecInfoType:      env.SecInfoType,
		SecInfoCount:     env.SecInfoCount,
		SecInfoCheckTime: env.SecInfoCheckTime,
	}
	if kind == models.EventTaskRunStatusChanged {
		status, ok := taskStatuses[env.Status]
		if !ok {
			return models.Event{}, fmt.Errorf("unknown task status %q", env.Status)
		}
		ev.Status = status
	}
	if kind.IsTicket() {
		if env.TicketID == "" {
			return models.Event{}, fmt.Errorf("ticket event without ticket_id")
		}
		ev.Ticket = &models.Ticket{
			ID:    env.TicketID,
			Name:  env.TicketName,
			Owner: env.TicketOwner,
		}
	}
	return ev, nil
}

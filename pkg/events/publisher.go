// Package events publishes data-layer events to Redis channels.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

// Redis channels for data events
const (
	ChannelCommandExecuted = "events.command.executed"
	ChannelDataDeleted     = "events.data.deleted"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "fwdata",
		Version:   "1.0",
	}
}

// CommandExecutedEvent is published after a command handler succeeds.
type CommandExecutedEvent struct {
	BaseEvent

	Command     string    `json:"command"`
	Identifier  uuid.UUID `json:"identifier"`
	EventDate   time.Time `json:"event_date"`
	MailAddress *string   `json:"mail_address,omitempty"`
}

// DataDeletedEvent is published after a domain object and its dependants
// are deleted.
type DataDeletedEvent struct {
	BaseEvent

	Kind       string    `json:"kind"`
	Identifier uuid.UUID `json:"identifier"`
}

// CommandExecutedParams contains parameters for a command executed event.
type CommandExecutedParams struct {
	Command     string
	Identifier  uuid.UUID
	EventDate   time.Time
	MailAddress string
}

// redisClient is the part of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes data events to Redis.
type Publisher struct {
	client redisClient
	logger logging.Logger
}

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	return newPublisher(client, logger)
}

func newPublisher(client redisClient, logger logging.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPublisher(client, logger), nil
}

// PublishCommandExecuted publishes an event for a successful command.
func (p *Publisher) PublishCommandExecuted(ctx context.Context, params CommandExecutedParams) error {
	event := CommandExecutedEvent{
		BaseEvent:  NewBaseEvent("command.executed"),
		Command:    params.Command,
		Identifier: params.Identifier,
		EventDate:  params.EventDate.UTC(),
	}
	if params.MailAddress != "" {
		event.MailAddress = &params.MailAddress
	}

	return p.publish(ctx, ChannelCommandExecuted, event)
}

// PublishDataDeleted publishes an event for a deleted domain object.
func (p *Publisher) PublishDataDeleted(ctx context.Context, kind string, id uuid.UUID) error {
	event := DataDeletedEvent{
		BaseEvent:  NewBaseEvent("data.deleted"),
		Kind:       kind,
		Identifier: id,
	}

	return p.publish(ctx, ChannelDataDeleted, event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

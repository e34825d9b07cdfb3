// Package ingest feeds news published on a Redis channel into the broadcaster.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"newsdist/internal/microservices/tcp"
	"newsdist/internal/protocol"
)

var ErrInvalidMessage = errors.New("ingest: invalid message")

// Publisher distributes one news item; service.NewsService satisfies it.
type Publisher interface {
	Publish(news protocol.News, targets []string) (tcp.BroadcastResult, error)
}

// Message is the JSON payload expected on the channel.
type Message struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Targets     []string `json:"targets,omitempty"`
}

func (m Message) News() protocol.News {
	return protocol.News{Title: m.Title, Description: m.Description, Content: m.Content}
}

type RedisSource struct {
	client    *redis.Client
	channel   string
	publisher Publisher
	logger    *slog.Logger
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func NewRedisSource(client *redis.Client, channel string, publisher Publisher, logger *slog.Logger) *RedisSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{
		client:    client,
		channel:   channel,
		publisher: publisher,
		logger:    logger,
	}
}

// Run subscribes to the channel and publishes every valid message until ctx
// is done. Bad messages are logged and skipped.
func (s *RedisSource) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.logger.Info("redis_ingest_started", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("redis_ingest_stopped", "channel", s.channel)
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			if err := s.handle(msg.Payload); err != nil {
				s.logger.Warn("redis_message_rejected",
					"channel", msg.Channel,
					"error", err,
				)
			}
		}
	}
}

func (s *RedisSource) handle(payload string) error {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidMessage)
	}

	res, err := s.publisher.Publish(m.News(), m.Targets)
	if err != nil {
		return err
	}
	s.logger.Info("redis_news_published",
		"title", m.Title,
		"delivered", res.Delivered,
		"failed", len(res.Failed),
		"missing", len(res.Missing),
	)
	return nil
}

// Publish puts m on channel for every RedisSource listening to it. It returns
// the number of receivers.
func Publish(ctx context.Context, client *redis.Client, channel string, m Message) (int64, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}
	n, err := client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return n, nil
}

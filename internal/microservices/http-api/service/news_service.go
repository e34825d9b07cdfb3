package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"newsdist/internal/microservices/tcp"
	"newsdist/internal/protocol"
)

var (
	ErrInvalidNews        = errors.New("invalid news")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// Broadcaster is the part of tcp.Server the services need.
type Broadcaster interface {
	Broadcast(news protocol.News) (tcp.BroadcastResult, error)
	BroadcastTo(news protocol.News, names []string) (tcp.BroadcastResult, error)
	Subscribers() []string
	RemoveClient(name string) bool
}

type NewsService interface {
	Publish(news protocol.News, targets []string) (tcp.BroadcastResult, error)
	ListSubscribers() []string
	RemoveSubscriber(name string) error
}

type newsService struct {
	server Broadcaster
	logger *slog.Logger
}

func NewNewsService(server Broadcaster, logger *slog.Logger) NewsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &newsService{server: server, logger: logger}
}

// Publish validates news and hands it to the broadcaster. With no targets it
// goes to every current subscriber.
func (s *newsService) Publish(news protocol.News, targets []string) (tcp.BroadcastResult, error) {
	if strings.TrimSpace(news.Title) == "" {
		return tcp.BroadcastResult{}, fmt.Errorf("%w: title is required", ErrInvalidNews)
	}

	var (
		res   tcp.BroadcastResult
		err   error
		names = cleanTargets(targets)
	)
	if len(names) > 0 {
		res, err = s.server.BroadcastTo(news, names)
	} else {
		res, err = s.server.Broadcast(news)
	}
	if err != nil {
		if protocol.IsProtocolError(err) {
			return tcp.BroadcastResult{}, fmt.Errorf("%w: %w", ErrInvalidNews, err)
		}
		return tcp.BroadcastResult{}, err
	}

	s.logger.Info("news_published",
		"title", news.Title,
		"targets", len(names),
		"delivered", res.Delivered,
	)
	return res, nil
}

func (s *newsService) ListSubscribers() []string {
	return s.server.Subscribers()
}

func (s *newsService) RemoveSubscriber(name string) error {
	if !s.server.RemoveClient(name) {
		return ErrSubscriberNotFound
	}
	s.logger.Info("subscriber_removed", "name", name)
	return nil
}

// cleanTargets drops blank names.
func cleanTargets(targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

package dto

import (
	"time"

	"newsdist/internal/microservices/audit"
	"newsdist/internal/microservices/tcp"
	"newsdist/internal/protocol"
)

// PublishNewsRequest submits one news item. An empty Targets list means
// every current subscriber.
type PublishNewsRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Targets     []string `json:"targets,omitempty"`
}

func (r PublishNewsRequest) News() protocol.News {
	return protocol.News{
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
	}
}

type PublishNewsResponse struct {
	Delivered int      `json:"delivered"`
	Failed    []string `json:"failed"`
	Missing   []string `json:"missing"`
}

func FromBroadcastResult(res tcp.BroadcastResult) *PublishNewsResponse {
	out := &PublishNewsResponse{
		Delivered: res.Delivered,
		Failed:    res.Failed,
		Missing:   res.Missing,
	}
	if out.Failed == nil {
		out.Failed = []string{}
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	return out
}

type SubscribersResponse struct {
	Count       int      `json:"count"`
	Subscribers []string `json:"subscribers"`
}

// EventResponse is one audited lifecycle event
type EventResponse struct {
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	SessionID  string    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func FromModelToEventResponse(e *audit.SubscriptionEvent) *EventResponse {
	return &EventResponse{
		Type:       e.EventType,
		Name:       e.Name,
		SessionID:  e.SessionID,
		RemoteAddr: e.RemoteAddr,
		Reason:     e.Reason,
		OccurredAt: e.OccurredAt,
	}
}

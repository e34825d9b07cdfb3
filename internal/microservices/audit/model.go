package audit

import (
	"time"

	"newsdist/internal/microservices/tcp"
)

// SubscriptionEvent is one persisted subscribe or unsubscribe.
type SubscriptionEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventType  string    `gorm:"type:varchar(16);not null" json:"event_type"`
	Name       string    `gorm:"type:varchar(256);not null;index" json:"name"`
	SessionID  string    `gorm:"type:uuid;not null" json:"session_id"`
	RemoteAddr string    `gorm:"type:varchar(64)" json:"remote_addr"`
	Reason     string    `gorm:"type:varchar(32)" json:"reason,omitempty"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SubscriptionEvent) TableName() string {
	return "subscription_events"
}

func fromEvent(e tcp.Event) SubscriptionEvent {
	return SubscriptionEvent{
		EventType:  string(e.Type),
		Name:       e.Name,
		SessionID:  e.SessionID,
		RemoteAddr: e.RemoteAddr,
		Reason:     e.Reason,
		OccurredAt: e.At,
	}
}

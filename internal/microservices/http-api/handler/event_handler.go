package handler

import (
	"context"
	"net/http"
	"strconv"

	"newsdist/internal/microservices/audit"
	"newsdist/internal/microservices/http-api/dto"

	"github.com/gin-gonic/gin"
)

// EventReader reads audited lifecycle events; audit.Repository satisfies it.
type EventReader interface {
	Recent(ctx context.Context, limit int) ([]audit.SubscriptionEvent, error)
	RecentByName(ctx context.Context, name string, limit int) ([]audit.SubscriptionEvent, error)
}

type EventHandler struct {
	events EventReader
}

func NewEventHandler(events EventReader) *EventHandler {
	return &EventHandler{events: events}
}

// List returns recent subscribe/unsubscribe events, newest first
// GET /api/v1/events?limit=50&name=alice
func (h *EventHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	var events []audit.SubscriptionEvent
	if name := c.Query("name"); name != "" {
		events, err = h.events.RecentByName(c.Request.Context(), name, limit)
	} else {
		events, err = h.events.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}

	out := make([]*dto.EventResponse, 0, len(events))
	for i := range events {
		out = append(out, dto.FromModelToEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

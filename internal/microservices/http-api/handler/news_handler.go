package handler

import (
	"errors"
	"net/http"

	"newsdist/internal/microservices/http-api/dto"
	"newsdist/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type NewsHandler struct {
	newsService service.NewsService
}

func NewNewsHandler(newsService service.NewsService) *NewsHandler {
	return &NewsHandler{newsService: newsService}
}

// Publish distributes a news item to subscribers
// POST /api/v1/news
func (h *NewsHandler) Publish(c *gin.Context) {
	var req dto.PublishNewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.newsService.Publish(req.News(), req.Targets)
	if err != nil {
		if errors.Is(err, service.ErrInvalidNews) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish news"})
		return
	}

	c.JSON(http.StatusAccepted, dto.FromBroadcastResult(res))
}

// ListSubscribers returns the registered names
// GET /api/v1/subscribers
func (h *NewsHandler) ListSubscribers(c *gin.Context) {
	names := h.newsService.ListSubscribers()
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, dto.SubscribersResponse{Count: len(names), Subscribers: names})
}

// RemoveSubscriber force-disconnects a subscriber
// DELETE /api/v1/subscribers/:name
func (h *NewsHandler) RemoveSubscriber(c *gin.Context) {
	name := c.Param("name")
	if err := h.newsService.RemoveSubscriber(name); err != nil {
		if errors.Is(err, service.ErrSubscriberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove subscriber"})
		return
	}
	c.Status(http.StatusNoContent)
}

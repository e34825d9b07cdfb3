package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsdist/internal/microservices/audit"
	"newsdist/internal/microservices/http-api/dto"
	"newsdist/internal/microservices/http-api/service"
	"newsdist/internal/microservices/tcp"
	"newsdist/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNewsService mocks the NewsService interface
type MockNewsService struct {
	mock.Mock
}

func (m *MockNewsService) Publish(news protocol.News, targets []string) (tcp.BroadcastResult, error) {
	args := m.Called(news, targets)
	return args.Get(0).(tcp.BroadcastResult), args.Error(1)
}

func (m *MockNewsService) ListSubscribers() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockNewsService) RemoveSubscriber(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// MockEventReader mocks the EventReader interface
type MockEventReader struct {
	mock.Mock
}

func (m *MockEventReader) Recent(ctx context.Context, limit int) ([]audit.SubscriptionEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.SubscriptionEvent), args.Error(1)
}

func (m *MockEventReader) RecentByName(ctx context.Context, name string, limit int) ([]audit.SubscriptionEvent, error) {
	args := m.Called(ctx, name, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.SubscriptionEvent), args.Error(1)
}

func setupRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(cfg)
}

func doJSON(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPublish_Success(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	news := protocol.News{Title: "T", Description: "D", Content: "C"}
	mockNews.On("Publish", news, []string(nil)).
		Return(tcp.BroadcastResult{Delivered: 2}, nil)

	w := doJSON(router, "POST", "/api/v1/news", dto.PublishNewsRequest{
		Title: "T", Description: "D", Content: "C",
	}, "")

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.PublishNewsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Delivered)
	assert.Empty(t, response.Failed)
	assert.NotNil(t, response.Missing)

	mockNews.AssertExpectations(t)
}

func TestPublish_WithTargets(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	mockNews.On("Publish", protocol.News{Title: "T"}, []string{"alice", "zed"}).
		Return(tcp.BroadcastResult{Delivered: 1, Missing: []string{"zed"}}, nil)

	w := doJSON(router, "POST", "/api/v1/news", dto.PublishNewsRequest{
		Title: "T", Targets: []string{"alice", "zed"},
	}, "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	var response dto.PublishNewsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"zed"}, response.Missing)
	mockNews.AssertExpectations(t)
}

func TestPublish_MissingTitle(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	w := doJSON(router, "POST", "/api/v1/news", map[string]string{"content": "no title"}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockNews.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublish_InvalidNews(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	mockNews.On("Publish", mock.Anything, mock.Anything).
		Return(tcp.BroadcastResult{}, service.ErrInvalidNews)

	w := doJSON(router, "POST", "/api/v1/news", dto.PublishNewsRequest{Title: "too long"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublish_InternalError(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	mockNews.On("Publish", mock.Anything, mock.Anything).
		Return(tcp.BroadcastResult{}, errors.New("boom"))

	w := doJSON(router, "POST", "/api/v1/news", dto.PublishNewsRequest{Title: "T"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "failed to publish news", response["error"])
}

func TestListSubscribers(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	mockNews.On("ListSubscribers").Return([]string{"alice", "bob"})

	w := doJSON(router, "GET", "/api/v1/subscribers", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.SubscribersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
	assert.Equal(t, []string{"alice", "bob"}, response.Subscribers)
}

func TestRemoveSubscriber(t *testing.T) {
	mockNews := new(MockNewsService)
	router := setupRouter(RouterConfig{News: mockNews})

	mockNews.On("RemoveSubscriber", "alice").Return(nil)
	mockNews.On("RemoveSubscriber", "ghost").Return(service.ErrSubscriberNotFound)

	w := doJSON(router, "DELETE", "/api/v1/subscribers/alice", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, "DELETE", "/api/v1/subscribers/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockNews.AssertExpectations(t)
}

func TestEvents_List(t *testing.T) {
	mockNews := new(MockNewsService)
	mockEvents := new(MockEventReader)
	router := setupRouter(RouterConfig{News: mockNews, Events: mockEvents})

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockEvents.On("Recent", mock.Anything, 10).Return([]audit.SubscriptionEvent{
		{EventType: "UNSUBSCRIBED", Name: "alice", Reason: "unsubscribe", OccurredAt: at},
	}, nil)
	mockEvents.On("RecentByName", mock.Anything, "bob", 50).Return([]audit.SubscriptionEvent{}, nil)

	w := doJSON(router, "GET", "/api/v1/events?limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Events []dto.EventResponse `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Events, 1)
	assert.Equal(t, "alice", response.Events[0].Name)
	assert.Equal(t, "unsubscribe", response.Events[0].Reason)
	assert.True(t, at.Equal(response.Events[0].OccurredAt))

	w = doJSON(router, "GET", "/api/v1/events?name=bob", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "GET", "/api/v1/events?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockEvents.AssertExpectations(t)
}

func TestEvents_DisabledWithoutReader(t *testing.T) {
	router := setupRouter(RouterConfig{News: new(MockNewsService)})
	w := doJSON(router, "GET", "/api/v1/events", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	mockNews := new(MockNewsService)
	mockNews.On("ListSubscribers").Return([]string{"alice"})

	reg := prometheus.NewRegistry()
	tcp.NewMetrics(reg).Broadcasts.Inc()
	router := setupRouter(RouterConfig{News: mockNews, Gatherer: reg})

	w := doJSON(router, "GET", "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscribers":1`)

	w = doJSON(router, "GET", "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "newsdist_broadcasts_total 1")
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	auth, err := service.NewAuthService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	mockNews := new(MockNewsService)
	mockNews.On("ListSubscribers").Return([]string{})
	router := setupRouter(RouterConfig{News: mockNews, Auth: auth})

	w := doJSON(router, "GET", "/api/v1/subscribers", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	readOnly, err := auth.IssueToken("ops", []string{service.ScopeSubscribersRead}, time.Minute)
	require.NoError(t, err)

	w = doJSON(router, "GET", "/api/v1/subscribers", nil, readOnly)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "POST", "/api/v1/news", dto.PublishNewsRequest{Title: "T"}, readOnly)
	assert.Equal(t, http.StatusForbidden, w.Code)
	mockNews.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	// health stays public
	w = doJSON(router, "GET", "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

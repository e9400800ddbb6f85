package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "github-webhook-pulse/internal/errors"
	"github-webhook-pulse/internal/ingest"
	"github-webhook-pulse/internal/model"
	"github-webhook-pulse/internal/notify"
	"github-webhook-pulse/internal/store"
)

// MockQuerier is a mock of the store.Querier interface.
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) UpsertRepository(ctx context.Context, arg store.UpsertRepositoryParams) (model.Repository, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(model.Repository), args.Error(1)
}
func (m *MockQuerier) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Repository), args.Error(1)
}
func (m *MockQuerier) DeleteRepository(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) AppendEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(model.Event), args.Error(1)
}
func (m *MockQuerier) QueryEvents(ctx context.Context, arg store.QueryEventsParams) ([]model.Event, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]model.Event), args.Error(1)
}
func (m *MockQuerier) EventsAfter(ctx context.Context, lastSeenID int64) ([]model.Event, error) {
	args := m.Called(ctx, lastSeenID)
	return args.Get(0).([]model.Event), args.Error(1)
}
func (m *MockQuerier) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRouter(mockQ *MockQuerier, streamCfg notify.Config) http.Handler {
	logger := testLogger()
	return NewRouter(mockQ, ingest.New(mockQ, logger), nil, streamCfg, logger)
}

func TestHandleWebhook(t *testing.T) {
	t.Run("rejects a request without the event type header", func(t *testing.T) {
		mockQ := new(MockQuerier)
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockQ.AssertNotCalled(t, "AppendEvent")
	})

	t.Run("rejects a payload without a repository object", func(t *testing.T) {
		mockQ := new(MockQuerier)
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"action": "opened"}`))
		req.Header.Set("X-GitHub-Event", "pull_request")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockQ.AssertNotCalled(t, "UpsertRepository")
		mockQ.AssertNotCalled(t, "AppendEvent")
	})

	t.Run("accepts a valid delivery", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("UpsertRepository", mock.Anything, mock.Anything).
			Return(model.Repository{ID: "repo-uuid"}, nil).Once()
		mockQ.On("AppendEvent", mock.Anything, mock.Anything).
			Return(model.Event{ID: 11}, nil).Once()
		router := newTestRouter(mockQ, notify.Config{})

		body := `{"repository": {"id": 555, "name": "hello"}, "sender": {"login": "octocat"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		req.Header.Set("X-GitHub-Event", "push")
		req.Header.Set("X-GitHub-Delivery", "delivery-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "success", resp["status"])
		assert.Equal(t, "push", resp["event_type"])
		assert.Equal(t, float64(11), resp["event_id"])
		mockQ.AssertExpectations(t)
	})

	t.Run("maps a storage failure to 500", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("UpsertRepository", mock.Anything, mock.Anything).
			Return(model.Repository{}, &custom_errors.StorageError{Op: "upsert repository", Err: errors.New("down")}).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"repository": {"id": 1}}`))
		req.Header.Set("X-GitHub-Event", "push")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetTimeline(t *testing.T) {
	t.Run("uses the default limit and returns events", func(t *testing.T) {
		mockQ := new(MockQuerier)
		events := []model.Event{{ID: 2, EventType: "push"}, {ID: 1, EventType: "issues"}}
		mockQ.On("QueryEvents", mock.Anything, store.QueryEventsParams{Limit: store.DefaultTimelineLimit}).
			Return(events, nil).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodGet, "/api/timeline", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Timeline []model.Event `json:"timeline"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Timeline, 2)
		assert.Equal(t, int64(2), resp.Timeline[0].ID)
		mockQ.AssertExpectations(t)
	})

	t.Run("passes the repository filter and custom limit", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("QueryEvents", mock.Anything, store.QueryEventsParams{RepositoryID: "repo-uuid", Limit: 5}).
			Return([]model.Event{}, nil).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodGet, "/api/timeline?limit=5&repository_id=repo-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"timeline": []}`, rec.Body.String())
		mockQ.AssertExpectations(t)
	})

	t.Run("rejects an invalid limit", func(t *testing.T) {
		mockQ := new(MockQuerier)
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodGet, "/api/timeline?limit=nope", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockQ.AssertNotCalled(t, "QueryEvents")
	})
}

func TestGetStats(t *testing.T) {
	mockQ := new(MockQuerier)
	login := "alice"
	repos := []model.Repository{{ID: "r1", Name: "alpha", FullName: "org/alpha"}}
	window := []model.Event{
		{ID: 1, RepositoryID: "r1", EventType: "push", ActorLogin: &login, CreatedAt: time.Now()},
	}
	mockQ.On("ListRepositories", mock.Anything).Return(repos, nil).Once()
	mockQ.On("QueryEvents", mock.Anything, store.QueryEventsParams{Limit: store.MaxWindow}).
		Return(window, nil).Once()
	router := newTestRouter(mockQ, notify.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Stats []model.RepositoryStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Stats, 1)
	assert.Equal(t, 1, resp.Stats[0].TotalEvents)
	assert.Equal(t, 1, resp.Stats[0].Pushes)
	mockQ.AssertExpectations(t)
}

func TestGetUserStats_FetchesFullWindow(t *testing.T) {
	mockQ := new(MockQuerier)
	mockQ.On("QueryEvents", mock.Anything, store.QueryEventsParams{Limit: store.MaxWindow}).
		Return([]model.Event{}, nil).Once()
	router := newTestRouter(mockQ, notify.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/user-stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_stats": []}`, rec.Body.String())
	mockQ.AssertExpectations(t)
}

func TestGetActivity_RejectsInvalidHours(t *testing.T) {
	mockQ := new(MockQuerier)
	router := newTestRouter(mockQ, notify.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/activity?hours=-2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockQ.AssertNotCalled(t, "QueryEvents")
}

func TestDeleteRepository(t *testing.T) {
	t.Run("returns 404 for an unknown id", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("DeleteRepository", mock.Anything, "ghost").
			Return(int64(0), &custom_errors.NotFoundError{Resource: "repository", ID: "ghost"}).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodDelete, "/api/repositories/ghost", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		mockQ.AssertExpectations(t)
	})

	t.Run("reports how many events were removed", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("DeleteRepository", mock.Anything, "repo-uuid").Return(int64(12), nil).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodDelete, "/api/repositories/repo-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(12), resp["events_removed"])
		assert.Equal(t, "repo-uuid", resp["repository_id"])
		mockQ.AssertExpectations(t)
	})
}

func TestHealthCheck(t *testing.T) {
	t.Run("reports ok when storage responds", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("Ping", mock.Anything).Return(nil).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("reports error when storage is unreachable", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("Ping", mock.Anything).
			Return(&custom_errors.StorageError{Op: "ping", Err: errors.New("refused")}).Once()
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestBackfillNotConfigured(t *testing.T) {
	mockQ := new(MockQuerier)
	router := newTestRouter(mockQ, notify.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/repositories/octocat/hello/backfill", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamEvents(t *testing.T) {
	t.Run("rejects an invalid cursor", func(t *testing.T) {
		mockQ := new(MockQuerier)
		router := newTestRouter(mockQ, notify.Config{})

		req := httptest.NewRequest(http.MethodGet, "/api/stream?lastEventId=abc", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("replays stored events then closes at end of lifetime", func(t *testing.T) {
		mockQ := new(MockQuerier)
		events := []model.Event{{ID: 1, EventType: "push"}, {ID: 2, EventType: "issues"}, {ID: 3, EventType: "push"}}
		mockQ.On("EventsAfter", mock.Anything, int64(0)).Return(events, nil).Once()
		mockQ.On("EventsAfter", mock.Anything, int64(3)).Return([]model.Event{}, nil).Maybe()

		router := newTestRouter(mockQ, notify.Config{
			PollInterval:      5 * time.Millisecond,
			HeartbeatInterval: 10 * time.Millisecond,
			MaxLifetime:       60 * time.Millisecond,
		})

		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Equal(t, 3, strings.Count(body, "event: new_event"), "each stored event is emitted exactly once")
		assert.Contains(t, body, `"id":1`)
		assert.Contains(t, body, `"id":3`)
		assert.Contains(t, body, "event: heartbeat")
		assert.Contains(t, body, "event: close")
		mockQ.AssertExpectations(t)
	})
}

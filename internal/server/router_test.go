package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloo-solutions/unirank/internal/api/handlers"
	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerOutput), args.Error(1)
}

func newTestRouter(t *testing.T, answerer handlers.Answerer, health HealthCheck) http.Handler {
	t.Helper()
	sessions, err := service.NewSessionStore(16, 10)
	require.NoError(t, err)

	return NewRouter(RouterConfig{
		AnswerHandler:  handlers.NewAnswerHandler(answerer, sessions, nil),
		SessionHandler: handlers.NewSessionHandler(sessions, "help", "restarted"),
		HealthCheck:    health,
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, new(MockAnswerer), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp map[string]map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["data"]["status"])
}

func TestRouter_HealthReportsDependencyFailure(t *testing.T) {
	router := newTestRouter(t, new(MockAnswerer), func(context.Context) error {
		return errors.New("database unreachable")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_Answer(t *testing.T) {
	answerer := new(MockAnswerer)
	answerer.On("Answer", mock.Anything, mock.Anything).
		Return(&service.AnswerOutput{Answer: "QS World University Rank: 3", State: domain.QueryStateAnswered}, nil)
	router := newTestRouter(t, answerer, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(`{"query":"Harvard"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "QS World University Rank: 3")
}

func TestRouter_RejectsLargeBodies(t *testing.T) {
	answerer := new(MockAnswerer)
	router := newTestRouter(t, answerer, nil)

	body := `{"query":"` + strings.Repeat("a", 70*1024) + `"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestRouter_SessionRoutes(t *testing.T) {
	router := newTestRouter(t, new(MockAnswerer), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/chat-1/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/help", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/answer", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

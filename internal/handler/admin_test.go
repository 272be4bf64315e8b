package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/line-agent-relay/internal/agent"
	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/model"
)

type mockNameCards struct {
	mock.Mock
}

func (m *mockNameCards) List(ctx context.Context, ownerID string, limit, offset int) ([]model.StoredNameCard, int, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if c := args.Get(0); c != nil {
		return c.([]model.StoredNameCard), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *mockNameCards) Get(ctx context.Context, id string) (*model.StoredNameCard, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*model.StoredNameCard), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockConversations struct {
	mock.Mock
}

func (m *mockConversations) Reset(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockConversations) History(ctx context.Context, userID string) (*agent.Session, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.(*agent.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func passthrough(next http.Handler) http.Handler { return next }

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func sampleCard() model.StoredNameCard {
	return model.StoredNameCard{
		ID:        "0b5f2a9e-6a3c-4a51-9d0e-6f1c3f0d2a11",
		OwnerID:   "U1",
		MessageID: "m1",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		NameCard: model.NameCard{
			Name:    "Jane Doe",
			Company: "Acme",
			Email:   "jane@acme.test",
		},
	}
}

func TestAdminHandler_ListNameCards(t *testing.T) {
	t.Run("lists cards for a user with pagination", func(t *testing.T) {
		cards := new(mockNameCards)
		cards.On("List", mock.Anything, "U1", 10, 5).Return([]model.StoredNameCard{sampleCard()}, 6, nil)
		h := NewAdminHandler(cards, new(mockConversations), passthrough)

		req := httptest.NewRequest(http.MethodGet, "/namecards?userId=U1&limit=10&offset=5", nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Items []map[string]any `json:"items"`
			Total int              `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 6, body.Total)
		require.Len(t, body.Items, 1)
		assert.Equal(t, "Jane Doe", body.Items[0]["name"])
		assert.Equal(t, "2025-01-02T03:04:05Z", body.Items[0]["createdAt"])
	})

	t.Run("storage errors map to status codes", func(t *testing.T) {
		cards := new(mockNameCards)
		cards.On("List", mock.Anything, "", DefaultLimit, 0).Return(nil, 0, apperrors.Unavailable("Namecard storage"))
		h := NewAdminHandler(cards, new(mockConversations), passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namecards", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("auth middleware guards the routes", func(t *testing.T) {
		cards := new(mockNameCards)
		h := NewAdminHandler(cards, new(mockConversations), denyAll)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namecards", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		cards.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("namecard routes are absent without storage", func(t *testing.T) {
		h := NewAdminHandler(nil, new(mockConversations), passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namecards", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminHandler_GetNameCard(t *testing.T) {
	card := sampleCard()

	t.Run("returns the card", func(t *testing.T) {
		cards := new(mockNameCards)
		cards.On("Get", mock.Anything, card.ID).Return(&card, nil)
		h := NewAdminHandler(cards, new(mockConversations), passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namecards/"+card.ID, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "jane@acme.test")
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		cards := new(mockNameCards)
		cards.On("Get", mock.Anything, card.ID).Return(nil, apperrors.NotFound("Namecard"))
		h := NewAdminHandler(cards, new(mockConversations), passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namecards/"+card.ID, nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is rejected before lookup", func(t *testing.T) {
		cards := new(mockNameCards)
		h := NewAdminHandler(cards, new(mockConversations), passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namecards/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		cards.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestAdminHandler_ResetSession(t *testing.T) {
	convs := new(mockConversations)
	convs.On("Reset", mock.Anything, "U1").Return(nil)
	h := NewAdminHandler(nil, convs, passthrough)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/U1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	convs.AssertExpectations(t)
}

func TestAdminHandler_GetSession(t *testing.T) {
	t.Run("returns the stored history", func(t *testing.T) {
		convs := new(mockConversations)
		convs.On("History", mock.Anything, "U1").Return(&agent.Session{
			ID:      "session_U1",
			AppName: "app",
			UserID:  "U1",
			History: []agent.Content{agent.NewUserContent("hi"), agent.NewModelContent("hello")},
		}, nil)
		h := NewAdminHandler(nil, convs, passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/U1", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body agent.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "session_U1", body.ID)
		require.Len(t, body.History, 2)
		assert.Equal(t, "hello", body.History[1].Text())
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		convs := new(mockConversations)
		convs.On("History", mock.Anything, "U2").Return(nil, apperrors.SessionNotFound("app", "U2", "session_U2"))
		h := NewAdminHandler(nil, convs, passthrough)

		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/U2", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeSessionNotFound))
	})
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=1000", DefaultLimit, 0},
		{"limit=-1&offset=-5", DefaultLimit, 0},
		{"limit=abc", DefaultLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			p := ParsePagination(req)
			assert.Equal(t, tt.limit, p.Limit)
			assert.Equal(t, tt.offset, p.Offset)
		})
	}
}

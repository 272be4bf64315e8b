package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/agent"
	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/httputil"
	"github.com/openclaw/line-agent-relay/internal/model"
)

type NameCardLister interface {
	List(ctx context.Context, ownerID string, limit, offset int) ([]model.StoredNameCard, int, error)
	Get(ctx context.Context, id string) (*model.StoredNameCard, error)
}

type ConversationAdmin interface {
	ConversationResetter
	History(ctx context.Context, userID string) (*agent.Session, error)
}

type AdminHandler struct {
	namecards NameCardLister
	convs     ConversationAdmin
	auth      func(http.Handler) http.Handler
}

// NewAdminHandler builds the admin API. namecards may be nil when no
// database is configured; the namecard routes are then not mounted.
func NewAdminHandler(namecards NameCardLister, convs ConversationAdmin, auth func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{
		namecards: namecards,
		convs:     convs,
		auth:      auth,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.auth)

		if h.namecards != nil {
			r.Get("/namecards", h.ListNameCards)
			r.Get("/namecards/{id}", h.GetNameCard)
		}

		r.Get("/sessions/{userId}", h.GetSession)
		r.Delete("/sessions/{userId}", h.ResetSession)
	})

	return r
}

func (h *AdminHandler) ListNameCards(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	ownerID := r.URL.Query().Get("userId")

	cards, total, err := h.namecards.List(r.Context(), ownerID, p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list namecards")
		httputil.WriteError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(cards))
	for _, c := range cards {
		items = append(items, formatNameCard(c))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

func (h *AdminHandler) GetNameCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	card, err := h.namecards.Get(r.Context(), id)
	if err != nil {
		if apperrors.GetCode(err) != apperrors.ErrCodeNotFound {
			log.Error().Err(err).Str("id", id).Msg("failed to get namecard")
		}
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatNameCard(*card))
}

func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("userId"))
		return
	}

	session, err := h.convs.History(r.Context(), userID)
	if err != nil {
		if !apperrors.IsSessionNotFound(err) {
			log.Error().Err(err).Msg("failed to load session")
		}
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *AdminHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("userId"))
		return
	}

	if err := h.convs.Reset(r.Context(), userID); err != nil {
		log.Error().Err(err).Msg("failed to reset session")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

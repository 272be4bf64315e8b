package handler

import (
	"net/http"
	"time"

	"github.com/openclaw/line-agent-relay/internal/httputil"
	"github.com/openclaw/line-agent-relay/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}

func formatNameCard(card model.StoredNameCard) map[string]any {
	return map[string]any{
		"id":        card.ID,
		"ownerId":   card.OwnerID,
		"messageId": card.MessageID,
		"name":      card.Name,
		"title":     card.Title,
		"company":   card.Company,
		"address":   card.Address,
		"phone":     card.Phone,
		"email":     card.Email,
		"lineId":    card.LineID,
		"memo":      card.Memo,
		"createdAt": card.CreatedAt.Format(time.RFC3339),
	}
}

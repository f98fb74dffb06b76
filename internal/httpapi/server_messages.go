package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"socialhub/internal/realtime"
)

type sendMessageRequest struct {
	Email string `json:"email"`
	Text  string `json:"text"`
}

type messagePartyDTO struct {
	Email string `json:"email"`
}

type messageDTO struct {
	Text      *string         `json:"text"`
	Sender    messagePartyDTO `json:"sender"`
	Recipient messagePartyDTO `json:"recipient"`
}

func (s server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	senderEmail, ok := userEmailFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req sendMessageRequest
	if !readJSONLimited(w, r, &req, 64*1024) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	senderID, ok := userIDFromCtx(ctx)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var recipientID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, req.Email).Scan(&recipientID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	if err != nil {
		logError(ctx, "send message recipient lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	if _, err := s.db.Exec(ctx, `
		insert into messages (sender_id, recipient_user_id, text)
		values ($1, $2, $3)
	`, senderID, recipientID, req.Text); err != nil {
		logError(ctx, "insert message failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "send message failed"})
		return
	}

	payload := map[string]any{
		"text":      req.Text,
		"sender":    map[string]any{"email": senderEmail},
		"recipient": map[string]any{"email": req.Email},
	}
	nctx := context.WithoutCancel(ctx)
	s.rt.Notify(nctx, req.Email, realtime.Event{Type: realtime.EventMessageReceived, Data: payload})
	s.rt.Notify(nctx, senderEmail, realtime.Event{Type: realtime.EventMessageSent, Data: payload})

	writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Message sent"})
}

type getMessagesRequest struct {
	Email string `json:"email"`
	Q     string `json:"q"`
	page
}

type getMessagesResponse struct {
	Data       []messageDTO `json:"data"`
	NextOffset *int         `json:"next_offset,omitempty"`
	Total      int          `json:"total"`
}

func (s server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req getMessagesRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	req.normalize()
	q := strings.TrimSpace(req.Q)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var otherID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, req.Email).Scan(&otherID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": req.Email + " not found"})
		return
	}
	if err != nil {
		logError(ctx, "get messages user lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	fromClause := `
		from messages m
		join users snd on snd.id = m.sender_id
		join users rcp on rcp.id = m.recipient_user_id
		where ((m.sender_id = $1 and m.recipient_user_id = $2)
		    or (m.sender_id = $2 and m.recipient_user_id = $1))
	`
	args := []any{userID, otherID}
	if q != "" {
		args = append(args, "%"+q+"%")
		fromClause += " and m.text ilike $3"
	}

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) `+fromClause, args...).Scan(&total); err != nil {
		logError(ctx, "get messages count failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	sql := `select m.text, snd.email, rcp.email ` + fromClause + ` order by m.created_at asc`
	if q != "" {
		sql += " limit $4 offset $5"
	} else {
		sql += " limit $3 offset $4"
	}
	args = append(args, req.Limit, req.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		logError(ctx, "get messages query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	defer rows.Close()

	out := make([]messageDTO, 0, req.Limit)
	for rows.Next() {
		var m messageDTO
		if err := rows.Scan(&m.Text, &m.Sender.Email, &m.Recipient.Email); err != nil {
			logError(ctx, "get messages scan failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
			return
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "get messages iterate failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "iterate failed"})
		return
	}

	writeJSON(w, http.StatusOK, getMessagesResponse{
		Data:       out,
		NextOffset: nextOffset(req.Offset, req.Limit, total),
		Total:      total,
	})
}

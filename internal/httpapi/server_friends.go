package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"socialhub/internal/friends"
)

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func resultResponse(res friends.Result) actionResponse {
	return actionResponse{Success: res.Success(), Message: res.Message}
}

type sendFriendRequestRequest struct {
	Email string `json:"email"`
}

func (s server) handleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	email, ok := userEmailFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req sendFriendRequestRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.friends.Send(ctx, email, req.Email)
	if err != nil {
		logError(ctx, "send friend request failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "send friend request failed"})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse(res))
}

type answerFriendRequestRequest struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

func (s server) handleAnswerFriendRequest(w http.ResponseWriter, r *http.Request) {
	email, ok := userEmailFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req answerFriendRequestRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	status := friends.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	if !status.IsAnswer() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be 'accepted' or 'rejected'"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.friends.Answer(ctx, email, req.Email, status)
	if errors.Is(err, friends.ErrNoRequest) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "friend request not found"})
		return
	}
	if err != nil {
		logError(ctx, "answer friend request failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "answer friend request failed"})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse(res))
}

type removeFriendRequestRequest struct {
	Email string `json:"email"`
}

func (s server) handleRemoveFriendRequest(w http.ResponseWriter, r *http.Request) {
	email, ok := userEmailFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req removeFriendRequestRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.friends.Remove(ctx, email, req.Email)
	if err != nil {
		logError(ctx, "remove friend request failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "remove friend request failed"})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse(res))
}

type listFriendRequestsRequest struct {
	Status []string `json:"status"`
	page
}

type userPreviewDTO struct {
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	Phone       *string `json:"phone"`
}

type friendRequestDetailDTO struct {
	Status      string         `json:"status"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	RespondedAt *string        `json:"responded_at"`
	Requester   userPreviewDTO `json:"requester"`
	Recipient   userPreviewDTO `json:"recipient"`
}

type listFriendRequestsResponse struct {
	Data       []friendRequestDetailDTO `json:"data"`
	NextOffset *int                     `json:"next_offset,omitempty"`
	Total      int                      `json:"total"`
}

func (s server) handleListFriendRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req listFriendRequestsRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	if len(req.Status) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status filter is required"})
		return
	}
	statuses := make([]friends.Status, 0, len(req.Status))
	for _, raw := range req.Status {
		st := friends.Status(strings.ToLower(strings.TrimSpace(raw)))
		if !st.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status: " + raw})
			return
		}
		statuses = append(statuses, st)
	}
	req.normalize()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, total, err := s.friends.List(ctx, userID, statuses, req.Limit, req.Offset)
	if err != nil {
		logError(ctx, "list friend requests failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list friend requests failed"})
		return
	}

	out := make([]friendRequestDetailDTO, 0, len(items))
	for _, it := range items {
		d := friendRequestDetailDTO{
			Status:    string(it.Status),
			CreatedAt: it.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: it.UpdatedAt.UTC().Format(time.RFC3339),
			Requester: userPreviewDTO{
				Email:       it.Requester.Email,
				DisplayName: it.Requester.DisplayName,
				Phone:       it.Requester.Phone,
			},
			Recipient: userPreviewDTO{
				Email:       it.Recipient.Email,
				DisplayName: it.Recipient.DisplayName,
				Phone:       it.Recipient.Phone,
			},
		}
		if it.RespondedAt != nil {
			v := it.RespondedAt.UTC().Format(time.RFC3339)
			d.RespondedAt = &v
		}
		out = append(out, d)
	}

	writeJSON(w, http.StatusOK, listFriendRequestsResponse{
		Data:       out,
		NextOffset: nextOffset(req.Offset, req.Limit, total),
		Total:      total,
	})
}

type friendsWithLastMessageRequest struct {
	Q string `json:"q"`
	page
}

type friendWithMessageDTO struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	DisplayName      string  `json:"display_name"`
	FriendSince      string  `json:"friend_since"`
	LastMessage      *string `json:"last_message"`
	LastActivityTime string  `json:"last_activity_time"`
}

type friendsWithLastMessageResponse struct {
	Data       []friendWithMessageDTO `json:"data"`
	NextOffset *int                   `json:"next_offset,omitempty"`
	Total      int                    `json:"total"`
}

func (s server) handleFriendsWithLastMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req friendsWithLastMessageRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.normalize()
	q := strings.TrimSpace(req.Q)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Accepted friends joined with the latest direct message per pair,
	// ordered by whichever activity is newest.
	fromClause := `
		from friend_requests fr
		join users u
		  on u.id = case when fr.requester_id = $1 then fr.recipient_id else fr.requester_id end
		left join lateral (
			select m.text, m.updated_at
			from messages m
			where (m.sender_id = $1 and m.recipient_user_id = u.id)
			   or (m.sender_id = u.id and m.recipient_user_id = $1)
			order by m.updated_at desc
			limit 1
		) lm on true
		where (fr.requester_id = $1 or fr.recipient_id = $1)
		  and fr.status = 'accepted'
	`
	args := []any{userID}
	if q != "" {
		args = append(args, "%"+q+"%")
		fromClause += ` and (u.email ilike $2 or u.display_name ilike $2 or lm.text ilike $2)`
	}

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) `+fromClause, args...).Scan(&total); err != nil {
		logError(ctx, "friends with last message count failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	sql := `
		select u.id, u.email, u.display_name, fr.updated_at,
		       lm.text, lm.updated_at
	` + fromClause + `
		order by coalesce(lm.updated_at, fr.updated_at) desc
	`
	if q != "" {
		sql += " limit $3 offset $4"
	} else {
		sql += " limit $2 offset $3"
	}
	args = append(args, req.Limit, req.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		logError(ctx, "friends with last message query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	defer rows.Close()

	out := make([]friendWithMessageDTO, 0, req.Limit)
	for rows.Next() {
		var (
			id            uuid.UUID
			email         string
			displayName   string
			friendSince   time.Time
			lastMessage   *string
			lastMessageAt *time.Time
		)
		if err := rows.Scan(&id, &email, &displayName, &friendSince, &lastMessage, &lastMessageAt); err != nil {
			logError(ctx, "friends with last message scan failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
			return
		}
		lastActivity := friendSince
		if lastMessageAt != nil {
			lastActivity = *lastMessageAt
		}
		out = append(out, friendWithMessageDTO{
			ID:               id.String(),
			Email:            email,
			DisplayName:      displayName,
			FriendSince:      friendSince.UTC().Format(time.RFC3339),
			LastMessage:      lastMessage,
			LastActivityTime: lastActivity.UTC().Format(time.RFC3339),
		})
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "friends with last message iterate failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "iterate failed"})
		return
	}

	writeJSON(w, http.StatusOK, friendsWithLastMessageResponse{
		Data:       out,
		NextOffset: nextOffset(req.Offset, req.Limit, total),
		Total:      total,
	})
}

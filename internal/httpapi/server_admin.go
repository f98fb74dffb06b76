package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"socialhub/internal/keys"
)

type adminCreateUserRequest struct {
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	Phone       *string `json:"phone"`
}

type adminCreateUserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

func (s server) createUser(ctx context.Context, req adminCreateUserRequest) (adminCreateUserResponse, error) {
	email := strings.TrimSpace(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if email == "" || displayName == "" {
		return adminCreateUserResponse{Success: false, Message: "email and display_name are required"}, nil
	}

	apiKey, err := keys.NewAPIKey()
	if err != nil {
		return adminCreateUserResponse{}, err
	}
	hash := keys.HashAPIKey(s.pepper, apiKey)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return adminCreateUserResponse{}, err
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	if err := tx.QueryRow(ctx, `
		insert into users (email, display_name, phone)
		values ($1, $2, $3)
		returning id
	`, email, displayName, req.Phone).Scan(&userID); err != nil {
		return adminCreateUserResponse{}, err
	}
	if _, err := tx.Exec(ctx, `
		insert into user_api_keys (user_id, key_hash)
		values ($1, $2)
	`, userID, hash); err != nil {
		return adminCreateUserResponse{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return adminCreateUserResponse{}, err
	}

	s.audit(ctx, "admin", email, "user_created", map[string]any{"user_id": userID.String()})
	return adminCreateUserResponse{
		Success: true,
		Message: "User created",
		UserID:  userID.String(),
		APIKey:  apiKey,
	}, nil
}

func (s server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := s.createUser(ctx, req)
	if err != nil {
		logError(ctx, "admin create user failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create user failed"})
		return
	}
	status := http.StatusCreated
	if !resp.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

type adminDeleteUserRequest struct {
	Email string `json:"email"`
}

func (s server) deleteUser(ctx context.Context, email string) (actionResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return actionResponse{Success: false, Message: "email is required"}, nil
	}

	tag, err := s.db.Exec(ctx, `delete from users where email = $1`, email)
	if err != nil {
		return actionResponse{}, err
	}
	if tag.RowsAffected() == 0 {
		return actionResponse{Success: false, Message: "User not found"}, nil
	}

	s.audit(ctx, "admin", email, "user_deleted", map[string]any{})
	return actionResponse{Success: true, Message: "User deleted"}, nil
}

func (s server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req adminDeleteUserRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := s.deleteUser(ctx, req.Email)
	if err != nil {
		logError(ctx, "admin delete user failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "delete user failed"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type adminBulkCreateUsersRequest struct {
	Users []adminCreateUserRequest `json:"users"`
}

type adminBulkCreateUsersResponse struct {
	Result []adminCreateUserResponse `json:"result"`
}

// handleAdminBulkCreateUsers provisions users one by one; a failed item is
// reported in place and does not abort the batch.
func (s server) handleAdminBulkCreateUsers(w http.ResponseWriter, r *http.Request) {
	var req adminBulkCreateUsersRequest
	if !readJSONLimited(w, r, &req, 1024*1024) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	out := make([]adminCreateUserResponse, 0, len(req.Users))
	for _, u := range req.Users {
		resp, err := s.createUser(ctx, u)
		if err != nil {
			logError(ctx, "admin bulk create user failed", err)
			resp = adminCreateUserResponse{Success: false, Message: u.Email + ": create failed"}
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, adminBulkCreateUsersResponse{Result: out})
}

type adminBulkDeleteUsersRequest struct {
	Users []adminDeleteUserRequest `json:"users"`
}

type adminBulkDeleteUsersResponse struct {
	Result []actionResponse `json:"result"`
}

func (s server) handleAdminBulkDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req adminBulkDeleteUsersRequest
	if !readJSONLimited(w, r, &req, 1024*1024) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	out := make([]actionResponse, 0, len(req.Users))
	for _, u := range req.Users {
		resp, err := s.deleteUser(ctx, u.Email)
		if err != nil {
			logError(ctx, "admin bulk delete user failed", err)
			resp = actionResponse{Success: false, Message: u.Email + ": delete failed"}
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, adminBulkDeleteUsersResponse{Result: out})
}

type adminIssueUserKeyRequest struct {
	Email string `json:"email"`
}

type adminIssueUserKeyResponse struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// handleAdminIssueUserKey rotates the user's API key: prior keys are revoked
// and a fresh one issued.
func (s server) handleAdminIssueUserKey(w http.ResponseWriter, r *http.Request) {
	var req adminIssueUserKeyRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, email).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	if err != nil {
		logError(ctx, "admin issue key lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	apiKey, err := keys.NewAPIKey()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "key generation failed"})
		return
	}
	hash := keys.HashAPIKey(s.pepper, apiKey)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db begin failed"})
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		update user_api_keys set revoked_at = now()
		where user_id = $1 and revoked_at is null
	`, userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "revoke keys failed"})
		return
	}
	if _, err := tx.Exec(ctx, `
		insert into user_api_keys (user_id, key_hash)
		values ($1, $2)
	`, userID, hash); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create key failed"})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db commit failed"})
		return
	}

	s.audit(ctx, "admin", email, "user_api_key_issued", map[string]any{"user_id": userID.String()})
	writeJSON(w, http.StatusOK, adminIssueUserKeyResponse{UserID: userID.String(), APIKey: apiKey})
}

type adminGetAllUsersRequest struct {
	Q string `json:"q"`
	page
}

type adminUserDTO struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	Phone       *string `json:"phone"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type adminGetAllUsersResponse struct {
	Data       []adminUserDTO `json:"data"`
	NextOffset *int           `json:"next_offset,omitempty"`
	Total      int            `json:"total"`
}

func (s server) handleAdminGetAllUsers(w http.ResponseWriter, r *http.Request) {
	var req adminGetAllUsersRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.normalize()
	q := strings.TrimSpace(req.Q)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	fromClause := ` from users u`
	args := []any{}
	if q != "" {
		args = append(args, "%"+q+"%")
		fromClause += ` where u.email ilike $1 or u.display_name ilike $1`
	}

	var total int
	if err := s.db.QueryRow(ctx, `select count(*)`+fromClause, args...).Scan(&total); err != nil {
		logError(ctx, "admin list users count failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	sql := `select u.id, u.email, u.display_name, u.phone, u.created_at, u.updated_at` + fromClause + ` order by u.email asc`
	if q != "" {
		sql += " limit $2 offset $3"
	} else {
		sql += " limit $1 offset $2"
	}
	args = append(args, req.Limit, req.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		logError(ctx, "admin list users query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	defer rows.Close()

	out := make([]adminUserDTO, 0, req.Limit)
	for rows.Next() {
		var (
			id                 uuid.UUID
			email, displayName string
			phone              *string
			createdAt          time.Time
			updatedAt          time.Time
		)
		if err := rows.Scan(&id, &email, &displayName, &phone, &createdAt, &updatedAt); err != nil {
			logError(ctx, "admin list users scan failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
			return
		}
		out = append(out, adminUserDTO{
			ID:          id.String(),
			Email:       email,
			DisplayName: displayName,
			Phone:       phone,
			CreatedAt:   createdAt.UTC().Format(time.RFC3339),
			UpdatedAt:   updatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "admin list users iterate failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "iterate failed"})
		return
	}

	writeJSON(w, http.StatusOK, adminGetAllUsersResponse{
		Data:       out,
		NextOffset: nextOffset(req.Offset, req.Limit, total),
		Total:      total,
	})
}

type adminGetFriendsRequest struct {
	Email string `json:"email"`
	Q     string `json:"q"`
	page
}

type adminFriendRequestDTO struct {
	Requester userPreviewDTO `json:"requester"`
	Recipient userPreviewDTO `json:"recipient"`
	Status    string         `json:"status"`
}

type adminGetFriendsResponse struct {
	Data       []adminFriendRequestDTO `json:"data"`
	NextOffset *int                    `json:"next_offset,omitempty"`
	Total      int                     `json:"total"`
}

func (s server) handleAdminGetFriends(w http.ResponseWriter, r *http.Request) {
	var req adminGetFriendsRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	req.normalize()
	q := strings.TrimSpace(req.Q)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, email).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	if err != nil {
		logError(ctx, "admin get friends lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	fromClause := `
		from friend_requests fr
		join users rq on rq.id = fr.requester_id
		join users rc on rc.id = fr.recipient_id
		where (fr.requester_id = $1 or fr.recipient_id = $1)
	`
	args := []any{userID}
	if q != "" {
		args = append(args, "%"+q+"%")
		fromClause += ` and (rq.email ilike $2 or rq.display_name ilike $2 or rc.email ilike $2 or rc.display_name ilike $2)`
	}

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) `+fromClause, args...).Scan(&total); err != nil {
		logError(ctx, "admin get friends count failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	sql := `
		select rq.email, rq.display_name, rq.phone,
		       rc.email, rc.display_name, rc.phone,
		       fr.status
	` + fromClause + ` order by fr.updated_at desc, fr.id desc`
	if q != "" {
		sql += " limit $3 offset $4"
	} else {
		sql += " limit $2 offset $3"
	}
	args = append(args, req.Limit, req.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		logError(ctx, "admin get friends query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	defer rows.Close()

	out := make([]adminFriendRequestDTO, 0, req.Limit)
	for rows.Next() {
		var d adminFriendRequestDTO
		if err := rows.Scan(
			&d.Requester.Email, &d.Requester.DisplayName, &d.Requester.Phone,
			&d.Recipient.Email, &d.Recipient.DisplayName, &d.Recipient.Phone,
			&d.Status,
		); err != nil {
			logError(ctx, "admin get friends scan failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
			return
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "admin get friends iterate failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "iterate failed"})
		return
	}

	writeJSON(w, http.StatusOK, adminGetFriendsResponse{
		Data:       out,
		NextOffset: nextOffset(req.Offset, req.Limit, total),
		Total:      total,
	})
}

type adminSearchContextUsersRequest struct {
	ContextEmail string `json:"context_email"`
	Q            string `json:"q"`
	page
}

// handleAdminSearchContextUsers is the admin view of user search as seen
// from another user's context.
func (s server) handleAdminSearchContextUsers(w http.ResponseWriter, r *http.Request) {
	var req adminSearchContextUsersRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	email := strings.TrimSpace(req.ContextEmail)
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "context_email is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, email).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	if err != nil {
		logError(ctx, "admin search context users lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	// Same query as the user-facing search, on behalf of the context user.
	resp, err := s.searchUsers(ctx, userID, req.Q, req.page)
	if err != nil {
		logError(ctx, "admin search context users failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type adminSetFriendRequestRequest struct {
	RequesterEmail string `json:"requester_email"`
	RecipientEmail string `json:"recipient_email"`
	Status         string `json:"status"`
}

// handleAdminSetFriendRequest force-writes a relationship row without
// notifications: an operator repair tool, not part of the normal lifecycle.
func (s server) handleAdminSetFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req adminSetFriendRequestRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	requesterEmail := strings.TrimSpace(req.RequesterEmail)
	recipientEmail := strings.TrimSpace(req.RecipientEmail)
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if requesterEmail == "" || recipientEmail == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requester_email and recipient_email are required"})
		return
	}
	if requesterEmail == recipientEmail {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requester and recipient must differ"})
		return
	}
	if !validFriendStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var requesterID, recipientID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, requesterEmail).Scan(&requesterID)
	if err == nil {
		err = s.db.QueryRow(ctx, `select id from users where email = $1`, recipientEmail).Scan(&recipientID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	if err != nil {
		logError(ctx, "admin set friend request lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	var rowID int64
	err = s.db.QueryRow(ctx, `
		select id from friend_requests
		where (requester_id = $1 and recipient_id = $2)
		   or (requester_id = $2 and recipient_id = $1)
		order by id asc
		limit 1
	`, requesterID, recipientID).Scan(&rowID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = s.db.Exec(ctx, `
			insert into friend_requests (requester_id, recipient_id, status)
			values ($1, $2, $3)
		`, requesterID, recipientID, status)
	case err == nil:
		_, err = s.db.Exec(ctx, `
			update friend_requests set status = $2, updated_at = now() where id = $1
		`, rowID, status)
	}
	if err != nil {
		logError(ctx, "admin set friend request write failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "write failed"})
		return
	}

	s.audit(ctx, "admin", requesterEmail, "friend_request_forced", map[string]any{
		"recipient": recipientEmail,
		"status":    status,
	})
	writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Friend request added"})
}

func validFriendStatus(status string) bool {
	switch status {
	case "pending", "accepted", "rejected", "removed":
		return true
	default:
		return false
	}
}

type adminGetMessagesRequest struct {
	SenderEmail    string `json:"sender_email"`
	RecipientEmail string `json:"recipient_email"`
	page
}

type adminMessageDTO struct {
	Text      *string        `json:"text"`
	Sender    userPreviewDTO `json:"sender"`
	Recipient userPreviewDTO `json:"recipient"`
}

type adminGetMessagesResponse struct {
	Data       []adminMessageDTO `json:"data"`
	NextOffset *int              `json:"next_offset,omitempty"`
	Total      int               `json:"total"`
}

func (s server) handleAdminGetMessages(w http.ResponseWriter, r *http.Request) {
	var req adminGetMessagesRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	senderEmail := strings.TrimSpace(req.SenderEmail)
	recipientEmail := strings.TrimSpace(req.RecipientEmail)
	if senderEmail == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sender_email is required"})
		return
	}
	req.normalize()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var senderID uuid.UUID
	err := s.db.QueryRow(ctx, `select id from users where email = $1`, senderEmail).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "sender user not found"})
		return
	}
	if err != nil {
		logError(ctx, "admin get messages lookup failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	fromClause := `
		from messages m
		join users snd on snd.id = m.sender_id
		join users rcp on rcp.id = m.recipient_user_id
		where m.sender_id = $1
	`
	args := []any{senderID}
	if recipientEmail != "" {
		var recipientID uuid.UUID
		err := s.db.QueryRow(ctx, `select id from users where email = $1`, recipientEmail).Scan(&recipientID)
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "recipient user not found"})
			return
		}
		if err != nil {
			logError(ctx, "admin get messages lookup failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		args = append(args, recipientID)
		fromClause += " and m.recipient_user_id = $2"
	}

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) `+fromClause, args...).Scan(&total); err != nil {
		logError(ctx, "admin get messages count failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	sql := `
		select m.text,
		       snd.email, snd.display_name, snd.phone,
		       rcp.email, rcp.display_name, rcp.phone
	` + fromClause + ` order by m.created_at asc`
	if recipientEmail != "" {
		sql += " limit $3 offset $4"
	} else {
		sql += " limit $2 offset $3"
	}
	args = append(args, req.Limit, req.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		logError(ctx, "admin get messages query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	defer rows.Close()

	out := make([]adminMessageDTO, 0, req.Limit)
	for rows.Next() {
		var d adminMessageDTO
		if err := rows.Scan(
			&d.Text,
			&d.Sender.Email, &d.Sender.DisplayName, &d.Sender.Phone,
			&d.Recipient.Email, &d.Recipient.DisplayName, &d.Recipient.Phone,
		); err != nil {
			logError(ctx, "admin get messages scan failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
			return
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "admin get messages iterate failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "iterate failed"})
		return
	}

	writeJSON(w, http.StatusOK, adminGetMessagesResponse{
		Data:       out,
		NextOffset: nextOffset(req.Offset, req.Limit, total),
		Total:      total,
	})
}

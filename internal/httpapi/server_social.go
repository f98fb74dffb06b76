package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type searchUsersRequest struct {
	Q string `json:"q"`
	page
}

type userSearchDTO struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	DisplayName  string  `json:"display_name"`
	Phone        *string `json:"phone"`
	FriendStatus *string `json:"friend_status"`
}

type searchUsersResponse struct {
	Data       []userSearchDTO `json:"data"`
	NextOffset *int            `json:"next_offset,omitempty"`
	Total      int             `json:"total"`
}

// handleSearchUsers lists every other user, outer-joined with the pair's
// friend status when a relationship row exists in either direction.
func (s server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req searchUsersRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := s.searchUsers(ctx, userID, req.Q, req.page)
	if err != nil {
		logError(ctx, "search users failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s server) searchUsers(ctx context.Context, userID uuid.UUID, q string, pg page) (searchUsersResponse, error) {
	pg.normalize()
	q = strings.TrimSpace(q)

	fromClause := `
		from users u
		left join friend_requests fr
		  on (fr.requester_id = $1 and fr.recipient_id = u.id)
		  or (fr.recipient_id = $1 and fr.requester_id = u.id)
		where u.id <> $1
	`
	args := []any{userID}
	if q != "" {
		args = append(args, "%"+q+"%")
		fromClause += " and (u.email ilike $2 or u.display_name ilike $2)"
	}

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) `+fromClause, args...).Scan(&total); err != nil {
		return searchUsersResponse{}, err
	}

	sql := `select u.id, u.email, u.display_name, u.phone, fr.status ` + fromClause + ` order by u.email asc`
	if q != "" {
		sql += " limit $3 offset $4"
	} else {
		sql += " limit $2 offset $3"
	}
	args = append(args, pg.Limit, pg.Offset)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return searchUsersResponse{}, err
	}
	defer rows.Close()

	out := make([]userSearchDTO, 0, pg.Limit)
	for rows.Next() {
		var (
			id           uuid.UUID
			email        string
			displayName  string
			phone        *string
			friendStatus *string
		)
		if err := rows.Scan(&id, &email, &displayName, &phone, &friendStatus); err != nil {
			return searchUsersResponse{}, err
		}
		out = append(out, userSearchDTO{
			ID:           id.String(),
			Email:        email,
			DisplayName:  displayName,
			Phone:        phone,
			FriendStatus: friendStatus,
		})
	}
	if err := rows.Err(); err != nil {
		return searchUsersResponse{}, err
	}

	return searchUsersResponse{
		Data:       out,
		NextOffset: nextOffset(pg.Offset, pg.Limit, total),
		Total:      total,
	}, nil
}

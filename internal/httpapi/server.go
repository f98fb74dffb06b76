package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"socialhub/internal/friends"
	"socialhub/internal/keys"
	"socialhub/internal/realtime"
)

type server struct {
	db         *pgxpool.Pool
	pepper     string
	adminToken string

	registry *realtime.Registry
	rt       *realtime.Dispatcher
	friends  *friends.Service
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// page carries the limit/offset every paginated request body accepts.
type page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (p *page) normalize() {
	if p.Limit == 0 {
		p.Limit = 50
	}
	p.Limit = clampInt(p.Limit, 1, 200)
	p.Offset = clampInt(p.Offset, 0, 50_000)
}

// nextOffset returns offset+limit when a further page exists, nil otherwise.
func nextOffset(offset, limit, total int) *int {
	if n := offset + limit; n < total {
		return &n
	}
	return nil
}

type ctxKey string

const (
	ctxUserID    ctxKey = "user_id"
	ctxUserEmail ctxKey = "user_email"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func readJSONLimited(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := readJSON(r, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// userByAPIKey resolves a raw API key to the owning user.
func (s server) userByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, string, error) {
	hash := keys.HashAPIKey(s.pepper, apiKey)
	var userID uuid.UUID
	var email string
	err := s.db.QueryRow(ctx, `
		select u.id, u.email
		from user_api_keys k
		join users u on u.id = k.user_id
		where k.key_hash = $1 and k.revoked_at is null
	`, hash).Scan(&userID, &email)
	return userID, email, err
}

func (s server) userAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := bearerToken(r)
		if apiKey == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		userID, email, err := s.userByAPIKey(r.Context(), apiKey)
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "auth lookup failed"})
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxUserEmail, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !keys.TokenEqual(s.adminToken, bearerToken(r)) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxUserID).(uuid.UUID)
	return id, ok
}

func userEmailFromCtx(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(ctxUserEmail).(string)
	return email, ok
}

func (s server) audit(ctx context.Context, actorType, actorID, action string, data map[string]any) {
	// Best-effort.
	_, _ = s.db.Exec(ctx, `
		insert into audit_logs (actor_type, actor_id, action, data)
		values ($1, $2, $3, $4)
	`, actorType, actorID, action, data)
}

// userIdentityAuthority backs the realtime resolver with the users table:
// the connection key for an email is the user's id.
type userIdentityAuthority struct {
	db *pgxpool.Pool
}

func (a userIdentityAuthority) ConnectionKey(ctx context.Context, identity string) (string, error) {
	var id uuid.UUID
	if err := a.db.QueryRow(ctx, `select id from users where email = $1`, identity).Scan(&id); err != nil {
		return "", err
	}
	return id.String(), nil
}

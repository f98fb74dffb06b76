package friends

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		select id, email, display_name, phone
		from users
		where email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) PairRequests(ctx context.Context, a, b uuid.UUID) ([]Request, error) {
	rows, err := s.db.Query(ctx, `
		select id, requester_id, recipient_id, status, responded_at, created_at, updated_at
		from friend_requests
		where (requester_id = $1 and recipient_id = $2)
		   or (requester_id = $2 and recipient_id = $1)
		order by id asc
	`, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		var status string
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.RecipientID, &status, &r.RespondedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) DirectedRequest(ctx context.Context, requesterID, recipientID uuid.UUID) (*Request, error) {
	var r Request
	var status string
	err := s.db.QueryRow(ctx, `
		select id, requester_id, recipient_id, status, responded_at, created_at, updated_at
		from friend_requests
		where requester_id = $1 and recipient_id = $2
		order by id asc
		limit 1
	`, requesterID, recipientID).Scan(&r.ID, &r.RequesterID, &r.RecipientID, &status, &r.RespondedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func (s *PGStore) SavePending(ctx context.Context, req *Request, purgeIDs []int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Purge first so the forced direction cannot collide with a duplicate
	// row's unique (requester_id, recipient_id) pair.
	for _, id := range purgeIDs {
		if _, err := tx.Exec(ctx, `delete from friend_requests where id = $1`, id); err != nil {
			return err
		}
	}

	if req.ID == 0 {
		err = tx.QueryRow(ctx, `
			insert into friend_requests (requester_id, recipient_id, status)
			values ($1, $2, $3)
			returning id, responded_at, created_at, updated_at
		`, req.RequesterID, req.RecipientID, string(req.Status)).
			Scan(&req.ID, &req.RespondedAt, &req.CreatedAt, &req.UpdatedAt)
	} else {
		err = tx.QueryRow(ctx, `
			update friend_requests
			set requester_id = $2, recipient_id = $3, status = $4, updated_at = now()
			where id = $1
			returning responded_at, created_at, updated_at
		`, req.ID, req.RequesterID, req.RecipientID, string(req.Status)).
			Scan(&req.RespondedAt, &req.CreatedAt, &req.UpdatedAt)
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PGStore) SetStatus(ctx context.Context, id int64, status Status, respondedAt *time.Time) error {
	_, err := s.db.Exec(ctx, `
		update friend_requests
		set status = $2, responded_at = coalesce($3, responded_at), updated_at = now()
		where id = $1
	`, id, string(status), respondedAt)
	return err
}

func (s *PGStore) ListByUser(ctx context.Context, userID uuid.UUID, statuses []Status, limit, offset int) ([]RequestDetail, int, error) {
	if len(statuses) == 0 {
		return []RequestDetail{}, 0, nil
	}

	args := []any{userID}
	ph := make([]string, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
		ph = append(ph, "$"+strconv.Itoa(len(args)))
	}
	where := `
		where (fr.requester_id = $1 or fr.recipient_id = $1)
		  and fr.status in (` + strings.Join(ph, ", ") + `)`

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) from friend_requests fr`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.db.Query(ctx, `
		select fr.id, fr.requester_id, fr.recipient_id, fr.status, fr.responded_at, fr.created_at, fr.updated_at,
		       rq.email, rq.display_name, rq.phone,
		       rc.email, rc.display_name, rc.phone
		from friend_requests fr
		join users rq on rq.id = fr.requester_id
		join users rc on rc.id = fr.recipient_id`+where+`
		order by fr.updated_at desc, fr.id desc
		limit $`+strconv.Itoa(len(args)-1)+` offset $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]RequestDetail, 0, limit)
	for rows.Next() {
		var d RequestDetail
		var status string
		if err := rows.Scan(
			&d.ID, &d.RequesterID, &d.RecipientID, &status, &d.RespondedAt, &d.CreatedAt, &d.UpdatedAt,
			&d.Requester.Email, &d.Requester.DisplayName, &d.Requester.Phone,
			&d.Recipient.Email, &d.Recipient.DisplayName, &d.Recipient.Phone,
		); err != nil {
			return nil, 0, err
		}
		d.Status = Status(status)
		d.Requester.ID = d.RequesterID
		d.Recipient.ID = d.RecipientID
		out = append(out, d)
	}
	return out, total, rows.Err()
}

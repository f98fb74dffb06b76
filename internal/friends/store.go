package friends

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for relationship rows. Implementations
// must keep PairRequests ordered by ascending id: the lowest id is the
// canonical row when duplicates exist.
type Store interface {
	// UserByEmail returns (nil, nil) when the email is unknown.
	UserByEmail(ctx context.Context, email string) (*User, error)

	// PairRequests returns every row between a and b, either direction,
	// lowest id first.
	PairRequests(ctx context.Context, a, b uuid.UUID) ([]Request, error)

	// DirectedRequest returns the row with exactly this requester/recipient
	// direction, or (nil, nil) when absent.
	DirectedRequest(ctx context.Context, requesterID, recipientID uuid.UUID) (*Request, error)

	// SavePending inserts (ID zero) or updates the canonical row and deletes
	// purgeIDs in one transaction. On return req carries its persisted ID.
	SavePending(ctx context.Context, req *Request, purgeIDs []int64) error

	// SetStatus updates status (and responded timestamp when non-nil) on one
	// row, bumping updated_at.
	SetStatus(ctx context.Context, id int64, status Status, respondedAt *time.Time) error

	// ListByUser returns rows touching userID whose status is in statuses,
	// most recently updated first, plus the total count for the filter.
	ListByUser(ctx context.Context, userID uuid.UUID, statuses []Status, limit, offset int) ([]RequestDetail, int, error)
}

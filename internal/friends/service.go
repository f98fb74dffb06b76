package friends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"socialhub/internal/realtime"
)

// ErrNoRequest is returned by Answer when no request addressed to the
// responder exists. Unlike unresolvable users this is a protocol violation
// by the caller and propagates as a fault.
var ErrNoRequest = errors.New("friends: no matching friend request")

// Notifier pushes a live event to whoever is connected as identity. Delivery
// is best-effort and never reported back.
type Notifier interface {
	Notify(ctx context.Context, identity string, ev realtime.Event)
}

// Service owns the friend-relationship lifecycle. All writes commit before
// any notification is attempted; a notification miss never rolls anything
// back.
type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Send creates or reopens the relationship between requester and recipient as
// pending, with the caller as requester. Duplicate rows for the pair are
// reconciled down to the canonical (lowest id) row on every call.
func (s *Service) Send(ctx context.Context, requesterEmail, recipientEmail string) (Result, error) {
	if requesterEmail == recipientEmail {
		return notFound("Cannot send a friend request to yourself"), nil
	}

	requester, err := s.store.UserByEmail(ctx, requesterEmail)
	if err != nil {
		return Result{}, err
	}
	recipient, err := s.store.UserByEmail(ctx, recipientEmail)
	if err != nil {
		return Result{}, err
	}
	if requester == nil || recipient == nil {
		return notFound("User is not available"), nil
	}

	rows, err := s.store.PairRequests(ctx, requester.ID, recipient.ID)
	if err != nil {
		return Result{}, err
	}

	// Lowest id is canonical; the rest are integrity anomalies purged with
	// the same commit.
	var canonical Request
	var purge []int64
	if len(rows) > 0 {
		canonical = rows[0]
		for _, extra := range rows[1:] {
			purge = append(purge, extra.ID)
		}
	}
	canonical.RequesterID = requester.ID
	canonical.RecipientID = recipient.ID
	canonical.Status = StatusPending

	if err := s.store.SavePending(ctx, &canonical, purge); err != nil {
		return Result{}, err
	}

	nctx := context.WithoutCancel(ctx)
	s.notifier.Notify(nctx, recipientEmail, realtime.Event{
		Type: realtime.EventFriendRequestReceived,
		Data: map[string]any{"message": fmt.Sprintf("Friend request received from %s", requesterEmail)},
	})
	s.notifier.Notify(nctx, requesterEmail, realtime.Event{
		Type: realtime.EventFriendRequestSent,
		Data: map[string]any{"message": fmt.Sprintf("Friend request sent to %s", recipientEmail)},
	})

	return ok("Friend request sent"), nil
}

// Answer accepts or rejects the request sent to responder by requester. Only
// a request addressed to the responder matches; answering an absent request
// is ErrNoRequest. Answering with the current status is an idempotent no-op
// with no notification.
func (s *Service) Answer(ctx context.Context, responderEmail, requesterEmail string, status Status) (Result, error) {
	if !status.IsAnswer() {
		return Result{}, fmt.Errorf("friends: invalid answer status %q", status)
	}

	requester, err := s.store.UserByEmail(ctx, requesterEmail)
	if err != nil {
		return Result{}, err
	}
	responder, err := s.store.UserByEmail(ctx, responderEmail)
	if err != nil {
		return Result{}, err
	}
	if requester == nil || responder == nil {
		return notFound("User is not available"), nil
	}

	req, err := s.store.DirectedRequest(ctx, requester.ID, responder.ID)
	if err != nil {
		return Result{}, err
	}
	if req == nil {
		return Result{}, ErrNoRequest
	}

	if req.Status == status {
		return noop(fmt.Sprintf("Friend request already %s", status)), nil
	}

	now := time.Now().UTC()
	if err := s.store.SetStatus(ctx, req.ID, status, &now); err != nil {
		return Result{}, err
	}

	nctx := context.WithoutCancel(ctx)
	s.notifier.Notify(nctx, requesterEmail, realtime.Event{
		Type: realtime.EventFriendRequestAnswer,
		Data: map[string]any{"message": fmt.Sprintf("%s has %s the request", responderEmail, status)},
	})
	s.notifier.Notify(nctx, responderEmail, realtime.Event{
		Type: realtime.EventFriendRequestAnswer,
		Data: map[string]any{"message": fmt.Sprintf("you have %s the request from %s", status, requesterEmail)},
	})

	return ok(fmt.Sprintf("Friend request %s", status)), nil
}

// Remove marks the relationship between the two users as removed. Only the
// canonical row is flipped; duplicates, if any, are left for the next Send
// to reconcile.
func (s *Service) Remove(ctx context.Context, emailA, emailB string) (Result, error) {
	userA, err := s.store.UserByEmail(ctx, emailA)
	if err != nil {
		return Result{}, err
	}
	userB, err := s.store.UserByEmail(ctx, emailB)
	if err != nil {
		return Result{}, err
	}
	if userA == nil || userB == nil {
		return notFound("User is not available"), nil
	}

	rows, err := s.store.PairRequests(ctx, userA.ID, userB.ID)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return notFound("No request found"), nil
	}

	if err := s.store.SetStatus(ctx, rows[0].ID, StatusRemoved, nil); err != nil {
		return Result{}, err
	}

	nctx := context.WithoutCancel(ctx)
	s.notifier.Notify(nctx, emailA, realtime.Event{
		Type: realtime.EventFriendRequestRemoved,
		Data: map[string]any{"message": fmt.Sprintf("Friend request with %s is removed", emailB)},
	})
	s.notifier.Notify(nctx, emailB, realtime.Event{
		Type: realtime.EventFriendRequestRemoved,
		Data: map[string]any{"message": fmt.Sprintf("Friend request with %s is removed", emailA)},
	})

	return ok("Friend request removed"), nil
}

// List returns the user's relationship rows in the given statuses, most
// recently updated first, plus the total for the filter.
func (s *Service) List(ctx context.Context, userID uuid.UUID, statuses []Status, limit, offset int) ([]RequestDetail, int, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("friends: invalid status %q", st)
		}
	}
	return s.store.ListByUser(ctx, userID, statuses, limit, offset)
}

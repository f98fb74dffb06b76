package friends

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"socialhub/internal/realtime"
)

// memStore is an in-memory Store for exercising the state machine without
// Postgres. It mirrors PGStore's ordering contracts: PairRequests ascending
// by id, ListByUser by updated_at descending.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	clock  int64
	users  map[string]*User
	byID   map[uuid.UUID]*User
	rows   []*Request
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*User{}, byID: map[uuid.UUID]*User{}}
}

func (m *memStore) addUser(email, displayName string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &User{ID: uuid.New(), Email: email, DisplayName: displayName}
	m.users[email] = u
	m.byID[u.ID] = u
	return u
}

func (m *memStore) tick() time.Time {
	m.clock++
	return time.Unix(m.clock, 0).UTC()
}

func (m *memStore) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) PairRequests(_ context.Context, a, b uuid.UUID) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.rows {
		if (r.RequesterID == a && r.RecipientID == b) || (r.RequesterID == b && r.RecipientID == a) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DirectedRequest(_ context.Context, requesterID, recipientID uuid.UUID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.RequesterID == requesterID && r.RecipientID == recipientID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) SavePending(_ context.Context, req *Request, purgeIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	purge := map[int64]bool{}
	for _, id := range purgeIDs {
		purge[id] = true
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if !purge[r.ID] {
			kept = append(kept, r)
		}
	}
	m.rows = kept

	now := m.tick()
	if req.ID == 0 {
		m.nextID++
		req.ID = m.nextID
		req.CreatedAt = now
		req.UpdatedAt = now
		cp := *req
		m.rows = append(m.rows, &cp)
		return nil
	}
	for _, r := range m.rows {
		if r.ID == req.ID {
			r.RequesterID = req.RequesterID
			r.RecipientID = req.RecipientID
			r.Status = req.Status
			r.UpdatedAt = now
			*req = *r
			return nil
		}
	}
	return nil
}

func (m *memStore) SetStatus(_ context.Context, id int64, status Status, respondedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Status = status
			if respondedAt != nil {
				t := *respondedAt
				r.RespondedAt = &t
			}
			r.UpdatedAt = m.tick()
		}
	}
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID, statuses []Status, limit, offset int) ([]RequestDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := map[Status]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var matched []*Request
	for _, r := range m.rows {
		if (r.RequesterID == userID || r.RecipientID == userID) && want[r.Status] {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]RequestDetail, 0, end-offset)
	for _, r := range matched[offset:end] {
		out = append(out, RequestDetail{
			Request:   *r,
			Requester: *m.byID[r.RequesterID],
			Recipient: *m.byID[r.RecipientID],
		})
	}
	return out, total, nil
}

type notifyCall struct {
	identity string
	ev       realtime.Event
}

type notifyRecorder struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *notifyRecorder) Notify(_ context.Context, identity string, ev realtime.Event) {
	n.mu.Lock()
	n.calls = append(n.calls, notifyCall{identity: identity, ev: ev})
	n.mu.Unlock()
}

func (n *notifyRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *notifyRecorder) last(k int) []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls[len(n.calls)-k:]...)
}

func newTestService(t *testing.T) (*Service, *memStore, *notifyRecorder) {
	t.Helper()
	store := newMemStore()
	rec := &notifyRecorder{}
	return NewService(store, rec), store, rec
}

func TestSendCreatesPendingAndNotifiesBoth(t *testing.T) {
	svc, store, rec := newTestService(t)
	alice := store.addUser("alice@example.com", "Alice")
	bob := store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	res, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, "Friend request sent", res.Message)

	rows, err := store.PairRequests(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, StatusPending, rows[0].Status)
	require.Equal(t, alice.ID, rows[0].RequesterID)
	require.Equal(t, bob.ID, rows[0].RecipientID)

	require.Equal(t, 2, rec.count())
	calls := rec.last(2)
	require.Equal(t, "bob@example.com", calls[0].identity)
	require.Equal(t, realtime.EventFriendRequestReceived, calls[0].ev.Type)
	require.Equal(t, "alice@example.com", calls[1].identity)
	require.Equal(t, realtime.EventFriendRequestSent, calls[1].ev.Type)
}

func TestSendUnknownUserFails(t *testing.T) {
	svc, store, rec := newTestService(t)
	store.addUser("alice@example.com", "Alice")

	res, err := svc.Send(context.Background(), "alice@example.com", "nobody@example.com")
	require.NoError(t, err)
	require.False(t, res.Success())
	require.Equal(t, "User is not available", res.Message)
	require.Equal(t, 0, rec.count())
}

func TestSendToSelfRefused(t *testing.T) {
	svc, store, rec := newTestService(t)
	alice := store.addUser("alice@example.com", "Alice")

	res, err := svc.Send(context.Background(), "alice@example.com", "alice@example.com")
	require.NoError(t, err)
	require.False(t, res.Success())

	rows, err := store.PairRequests(context.Background(), alice.ID, alice.ID)
	require.NoError(t, err)
	require.Empty(t, rows, "no row may be created for a self request")
	require.Equal(t, 0, rec.count())
}

func TestSendReconcilesDuplicateRows(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := store.addUser("alice@example.com", "Alice")
	bob := store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	// Simulate a race that left one row per direction.
	store.rows = append(store.rows,
		&Request{ID: 1, RequesterID: alice.ID, RecipientID: bob.ID, Status: StatusPending},
		&Request{ID: 2, RequesterID: bob.ID, RecipientID: alice.ID, Status: StatusAccepted},
	)
	store.nextID = 2

	res, err := svc.Send(ctx, "bob@example.com", "alice@example.com")
	require.NoError(t, err)
	require.True(t, res.Success())

	rows, err := store.PairRequests(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "duplicates must be purged")
	require.Equal(t, int64(1), rows[0].ID, "lowest id is canonical")
	require.Equal(t, bob.ID, rows[0].RequesterID, "direction follows the current call")
	require.Equal(t, StatusPending, rows[0].Status)
}

func TestSendReopensRejectedOrRemoved(t *testing.T) {
	for _, prior := range []Status{StatusRejected, StatusRemoved} {
		t.Run(string(prior), func(t *testing.T) {
			svc, store, _ := newTestService(t)
			alice := store.addUser("alice@example.com", "Alice")
			bob := store.addUser("bob@example.com", "Bob")
			ctx := context.Background()

			_, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
			require.NoError(t, err)
			rows, _ := store.PairRequests(ctx, alice.ID, bob.ID)
			require.NoError(t, store.SetStatus(ctx, rows[0].ID, prior, nil))

			// The other party resends: the row reopens with them as requester.
			res, err := svc.Send(ctx, "bob@example.com", "alice@example.com")
			require.NoError(t, err)
			require.True(t, res.Success())

			rows, err = store.PairRequests(ctx, alice.ID, bob.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.Equal(t, StatusPending, rows[0].Status)
			require.Equal(t, bob.ID, rows[0].RequesterID)
			require.Equal(t, alice.ID, rows[0].RecipientID)
		})
	}
}

func TestAnswerAcceptsAndNotifiesBothDirectionally(t *testing.T) {
	svc, _, rec := newTestService(t)
	store := svc.store.(*memStore)
	store.addUser("alice@example.com", "Alice")
	store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)

	res, err := svc.Answer(ctx, "bob@example.com", "alice@example.com", StatusAccepted)
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, "Friend request accepted", res.Message)

	calls := rec.last(2)
	require.Equal(t, "alice@example.com", calls[0].identity)
	require.Equal(t, realtime.EventFriendRequestAnswer, calls[0].ev.Type)
	require.Equal(t, "bob@example.com has accepted the request", calls[0].ev.Data["message"])
	require.Equal(t, "bob@example.com", calls[1].identity)
	require.Equal(t, "you have accepted the request from alice@example.com", calls[1].ev.Data["message"])
}

func TestAnswerIsDirectional(t *testing.T) {
	svc, _, _ := newTestService(t)
	store := svc.store.(*memStore)
	store.addUser("alice@example.com", "Alice")
	store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)

	// The requester cannot answer their own request.
	_, err = svc.Answer(ctx, "alice@example.com", "bob@example.com", StatusAccepted)
	require.ErrorIs(t, err, ErrNoRequest)
}

func TestAnswerRedundantIsIdempotentNoop(t *testing.T) {
	svc, _, rec := newTestService(t)
	store := svc.store.(*memStore)
	store.addUser("alice@example.com", "Alice")
	store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)

	res, err := svc.Answer(ctx, "bob@example.com", "alice@example.com", StatusAccepted)
	require.NoError(t, err)
	require.True(t, res.Success())
	afterFirst := rec.count()

	res, err = svc.Answer(ctx, "bob@example.com", "alice@example.com", StatusAccepted)
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, OutcomeNoop, res.Outcome)
	require.Equal(t, "Friend request already accepted", res.Message)
	require.Equal(t, afterFirst, rec.count(), "redundant answer must not notify")
}

func TestAnswerWithoutRequestIsAFault(t *testing.T) {
	svc, _, _ := newTestService(t)
	store := svc.store.(*memStore)
	store.addUser("alice@example.com", "Alice")
	store.addUser("bob@example.com", "Bob")

	_, err := svc.Answer(context.Background(), "bob@example.com", "alice@example.com", StatusRejected)
	require.ErrorIs(t, err, ErrNoRequest)
}

func TestAnswerSetsRespondedAt(t *testing.T) {
	svc, _, _ := newTestService(t)
	store := svc.store.(*memStore)
	alice := store.addUser("alice@example.com", "Alice")
	bob := store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)

	_, err = svc.Answer(ctx, "bob@example.com", "alice@example.com", StatusRejected)
	require.NoError(t, err)

	rows, _ := store.PairRequests(ctx, alice.ID, bob.ID)
	require.Len(t, rows, 1)
	require.Equal(t, StatusRejected, rows[0].Status)
	require.NotNil(t, rows[0].RespondedAt)
}

func TestRemoveWithoutRowsFails(t *testing.T) {
	svc, _, rec := newTestService(t)
	store := svc.store.(*memStore)
	store.addUser("alice@example.com", "Alice")
	store.addUser("bob@example.com", "Bob")

	res, err := svc.Remove(context.Background(), "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	require.False(t, res.Success())
	require.Equal(t, "No request found", res.Message)
	require.Equal(t, 0, rec.count())
}

func TestRemoveFlipsCanonicalRowOnly(t *testing.T) {
	svc, store, rec := newTestService(t)
	alice := store.addUser("alice@example.com", "Alice")
	bob := store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	store.rows = append(store.rows,
		&Request{ID: 1, RequesterID: alice.ID, RecipientID: bob.ID, Status: StatusAccepted},
		&Request{ID: 2, RequesterID: bob.ID, RecipientID: alice.ID, Status: StatusPending},
	)
	store.nextID = 2

	res, err := svc.Remove(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	require.True(t, res.Success())

	rows, _ := store.PairRequests(ctx, alice.ID, bob.ID)
	require.Len(t, rows, 2, "remove does not reconcile duplicates")
	require.Equal(t, StatusRemoved, rows[0].Status)
	require.Equal(t, StatusPending, rows[1].Status)
	require.Equal(t, 2, rec.count())
}

func TestListFiltersAndOrders(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := store.addUser("alice@example.com", "Alice")
	store.addUser("bob@example.com", "Bob")
	store.addUser("carol@example.com", "Carol")
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "carol@example.com", "alice@example.com")
	require.NoError(t, err)
	_, err = svc.Answer(ctx, "alice@example.com", "carol@example.com", StatusAccepted)
	require.NoError(t, err)

	items, total, err := svc.List(ctx, alice.ID, []Status{StatusPending}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.Equal(t, "bob@example.com", items[0].Recipient.Email)

	// Most recently updated first across statuses.
	items, total, err = svc.List(ctx, alice.ID, []Status{StatusPending, StatusAccepted}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, StatusAccepted, items[0].Status)
	require.Equal(t, StatusPending, items[1].Status)
}

func TestEndToEndLifecycle(t *testing.T) {
	svc, store, rec := newTestService(t)
	alice := store.addUser("alice@example.com", "Alice")
	bob := store.addUser("bob@example.com", "Bob")
	ctx := context.Background()

	res, err := svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	require.True(t, res.Success())

	res, err = svc.Answer(ctx, "bob@example.com", "alice@example.com", StatusAccepted)
	require.NoError(t, err)
	require.True(t, res.Success())

	res, err = svc.Remove(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	require.True(t, res.Success())

	res, err = svc.Send(ctx, "alice@example.com", "bob@example.com")
	require.NoError(t, err)
	require.True(t, res.Success())

	rows, err := store.PairRequests(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, StatusPending, rows[0].Status)
	require.Equal(t, alice.ID, rows[0].RequesterID)
	require.Equal(t, bob.ID, rows[0].RecipientID)

	// Two notification attempts per operation, none requiring a live peer.
	require.Equal(t, 8, rec.count())
}

package friends

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusRemoved  Status = "removed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusRemoved:
		return true
	default:
		return false
	}
}

// IsAnswer reports whether s is a status a recipient may answer with.
func (s Status) IsAnswer() bool {
	return s == StatusAccepted || s == StatusRejected
}

type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Phone       *string
}

// Request is one friend-relationship row. The requester/recipient direction
// records who initiated the current pending state; the relationship itself is
// symmetric in effect.
type Request struct {
	ID          int64
	RequesterID uuid.UUID
	RecipientID uuid.UUID
	Status      Status
	RespondedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RequestDetail is a Request expanded with both parties' public profiles.
type RequestDetail struct {
	Request
	Requester User
	Recipient User
}

type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeNotFound covers unresolvable identities and refused actions;
	// it is a reported failure, not a fault.
	OutcomeNotFound
	// OutcomeNoop is a redundant transition: success, no side effects.
	OutcomeNoop
)

// Result is the structured outcome of a state-mutating operation.
type Result struct {
	Outcome Outcome
	Message string
}

func (r Result) Success() bool { return r.Outcome != OutcomeNotFound }

func ok(msg string) Result       { return Result{Outcome: OutcomeOK, Message: msg} }
func notFound(msg string) Result { return Result{Outcome: OutcomeNotFound, Message: msg} }
func noop(msg string) Result     { return Result{Outcome: OutcomeNoop, Message: msg} }

package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is a deterministic in-memory Collaborator for tests and local development.
type Fake struct {
	mu sync.Mutex
	// Decline, when set, is returned for every call.
	Decline *DeclinedError
	// Err, when set, is returned for every call (after Decline).
	Err error
	// Balance is enforced when Limited is set: payments above it are declined with
	// ReasonInsufficientFunds and accepted payments decrement it.
	Balance int64
	Limited bool
	Now     func() time.Time

	calls []Request
	seq   int
}

// Pay implements Collaborator.
func (f *Fake) Pay(ctx context.Context, req Request) (Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if err := req.Validate(); err != nil {
		return Confirmation{}, err
	}
	if f.Decline != nil {
		return Confirmation{}, f.Decline
	}
	if f.Err != nil {
		return Confirmation{}, f.Err
	}
	if f.Limited {
		if req.Amount.Minor > f.Balance {
			return Confirmation{}, &DeclinedError{Code: ReasonInsufficientFunds, Reason: "insufficient balance"}
		}
		f.Balance -= req.Amount.Minor
	}
	f.seq++
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Confirmation{
		TransactionID: fmt.Sprintf("txn-%06d", f.seq),
		Amount:        req.Amount,
		AcceptedAt:    now().UTC(),
	}, nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

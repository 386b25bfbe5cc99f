package split

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/superapp-core/internal/money"
)

var (
	// ErrInvalidAmount is returned when the total is not a positive amount.
	ErrInvalidAmount = errors.New("split: invalid amount")
	// ErrNoParticipants is returned when the participant list is empty.
	ErrNoParticipants = errors.New("split: no participants")
	// ErrInvalidParticipant is returned for a blank participant identifier.
	ErrInvalidParticipant = errors.New("split: invalid participant")
	// ErrAlreadyPaid is returned when settling a participant twice.
	ErrAlreadyPaid = errors.New("split: participant already paid")
	// ErrParticipantNotFound is returned for an unknown index or identifier.
	ErrParticipantNotFound = errors.New("split: participant not found")
)

// Participant is one listed payer and their share. Duplicate ids are separate participants.
type Participant struct {
	ID    string      `json:"participantId"`
	Share money.Money `json:"-"`
	Paid  bool        `json:"paid"`
}

// Request is an allocated bill split. The total and participant list are fixed at creation;
// only the paid flags change.
type Request struct {
	id           string
	title        string
	total        money.Money
	participants []Participant
	createdAt    time.Time
}

// Allocator builds bill split requests.
type Allocator struct {
	Rounding money.RoundingMode
	Currency string
	NewID    func() string
	Now      func() time.Time
}

// Allocate parses a major-unit decimal total such as "123.45" and splits it equally.
func (a Allocator) Allocate(total, title string, participantIDs []string) (*Request, error) {
	amount, err := money.ParseMajor(total, a.currency(), a.Rounding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return a.AllocateAmount(amount, title, participantIDs)
}

// AllocateFloat splits a number-typed major-unit total.
func (a Allocator) AllocateFloat(total float64, title string, participantIDs []string) (*Request, error) {
	amount, err := money.FromMajorFloat(total, a.currency(), a.Rounding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return a.AllocateAmount(amount, title, participantIDs)
}

// AllocateAmount splits a total already held in minor units. The remainder of the equal integer
// division goes one minor unit at a time to the first participants in list order.
func (a Allocator) AllocateAmount(total money.Money, title string, participantIDs []string) (*Request, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("total %s must be positive: %w", total.Format(), ErrInvalidAmount)
	}
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}
	ids := make([]string, len(participantIDs))
	for i, raw := range participantIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("participant %d: %w", i, ErrInvalidParticipant)
		}
		ids[i] = id
	}

	shares := Shares(total.Minor, len(ids))
	participants := make([]Participant, len(ids))
	for i, id := range ids {
		participants[i] = Participant{ID: id, Share: money.New(shares[i], total.Currency)}
	}
	return &Request{
		id:           a.newID(),
		title:        strings.TrimSpace(title),
		total:        total,
		participants: participants,
		createdAt:    a.now().UTC(),
	}, nil
}

// Shares divides total minor units into n parts that sum exactly to total.
func Shares(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	base := total / int64(n)
	rem := total % int64(n)
	out := make([]int64, n)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

func (a Allocator) currency() string {
	if a.Currency == "" {
		return "BDT"
	}
	return a.Currency
}

func (a Allocator) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

func (a Allocator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// ID returns the request identifier.
func (r *Request) ID() string { return r.id }

// Title returns the request title.
func (r *Request) Title() string { return r.title }

// Total returns the amount being split.
func (r *Request) Total() money.Money { return r.total }

// CreatedAt returns the allocation time.
func (r *Request) CreatedAt() time.Time { return r.createdAt }

// Len returns the number of participants.
func (r *Request) Len() int { return len(r.participants) }

// Participants returns a copy of the participant list.
func (r *Request) Participants() []Participant {
	return append([]Participant(nil), r.participants...)
}

// Participant returns the participant at index.
func (r *Request) Participant(index int) (Participant, error) {
	if index < 0 || index >= len(r.participants) {
		return Participant{}, fmt.Errorf("index %d: %w", index, ErrParticipantNotFound)
	}
	return r.participants[index], nil
}

// MarkPaid flags the participant at index as settled.
func (r *Request) MarkPaid(index int) error {
	p, err := r.Participant(index)
	if err != nil {
		return err
	}
	if p.Paid {
		return fmt.Errorf("index %d: %w", index, ErrAlreadyPaid)
	}
	r.participants[index].Paid = true
	return nil
}

// MarkPaidByID flags the first unpaid occurrence of id and returns its index.
func (r *Request) MarkPaidByID(id string) (int, error) {
	found := false
	for i, p := range r.participants {
		if p.ID != id {
			continue
		}
		found = true
		if !p.Paid {
			r.participants[i].Paid = true
			return i, nil
		}
	}
	if found {
		return -1, fmt.Errorf("%s: %w", id, ErrAlreadyPaid)
	}
	return -1, fmt.Errorf("%s: %w", id, ErrParticipantNotFound)
}

// Outstanding sums the shares not yet paid.
func (r *Request) Outstanding() money.Money {
	out := money.Zero(r.total.Currency)
	for _, p := range r.participants {
		if !p.Paid {
			out.Minor += p.Share.Minor
		}
	}
	return out
}

// Settled reports whether every participant has paid.
func (r *Request) Settled() bool {
	for _, p := range r.participants {
		if !p.Paid {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.participants = r.Participants()
	return &c
}

type participantJSON struct {
	ID         string `json:"participantId"`
	ShareMinor int64  `json:"shareMinorUnits"`
	Share      string `json:"share"`
	Paid       bool   `json:"paid"`
}

// MarshalJSON renders the request using minor units plus display strings.
func (r *Request) MarshalJSON() ([]byte, error) {
	ps := make([]participantJSON, len(r.participants))
	for i, p := range r.participants {
		ps[i] = participantJSON{ID: p.ID, ShareMinor: p.Share.Minor, Share: p.Share.Format(), Paid: p.Paid}
	}
	return json.Marshal(struct {
		ID           string            `json:"id"`
		Title        string            `json:"title"`
		TotalMinor   int64             `json:"totalMinorUnits"`
		Total        string            `json:"total"`
		Currency     string            `json:"currency"`
		Outstanding  int64             `json:"outstandingMinorUnits"`
		Settled      bool              `json:"settled"`
		Participants []participantJSON `json:"participants"`
		CreatedAt    time.Time         `json:"createdAt"`
	}{
		ID:           r.id,
		Title:        r.title,
		TotalMinor:   r.total.Minor,
		Total:        r.total.Format(),
		Currency:     r.total.Currency,
		Outstanding:  r.Outstanding().Minor,
		Settled:      r.Settled(),
		Participants: ps,
		CreatedAt:    r.createdAt,
	})
}

package split

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/superapp-core/internal/events"
	"github.com/noah-isme/superapp-core/internal/money"
	"github.com/noah-isme/superapp-core/internal/payment"
)

// Settlement records one participant paying their share.
type Settlement struct {
	RequestID     string      `json:"requestId"`
	Index         int         `json:"index"`
	ParticipantID string      `json:"participantId"`
	Share         money.Money `json:"share"`
	TransactionID string      `json:"transactionId,omitempty"`
	PaidAt        time.Time   `json:"paidAt"`
}

// Settler pays a single participant's share through the payment collaborator.
type Settler struct {
	Payments payment.Collaborator
	Events   events.Emitter
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Settle pays the share at index with the participant's credential and marks it paid. A zero
// share is marked paid without contacting the collaborator.
func (s *Settler) Settle(ctx context.Context, req *Request, index int, credential string) (Settlement, error) {
	if s == nil || s.Payments == nil {
		return Settlement{}, fmt.Errorf("split: settler not configured")
	}
	if req == nil {
		return Settlement{}, ErrParticipantNotFound
	}
	p, err := req.Participant(index)
	if err != nil {
		return Settlement{}, err
	}
	if p.Paid {
		return Settlement{}, fmt.Errorf("index %d: %w", index, ErrAlreadyPaid)
	}

	settlement := Settlement{
		RequestID:     req.ID(),
		Index:         index,
		ParticipantID: p.ID,
		Share:         p.Share,
	}
	if p.Share.IsPositive() {
		conf, err := s.Payments.Pay(ctx, payment.Request{
			Reference:  fmt.Sprintf("split:%s:%d", req.ID(), index),
			Kind:       payment.KindSplitShare,
			Amount:     p.Share,
			Credential: credential,
		})
		if err != nil {
			return Settlement{}, fmt.Errorf("settle participant %d: %w", index, err)
		}
		settlement.TransactionID = conf.TransactionID
	}
	if err := req.MarkPaid(index); err != nil {
		return Settlement{}, err
	}
	settlement.PaidAt = s.now()

	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicSplitParticipantPaid, req.ID(), settlement); err != nil {
			s.Logger.Warn().Err(err).Str("split_id", req.ID()).Int("index", index).Msg("emit participant paid")
		}
	}
	return settlement, nil
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

package events

import (
	"context"

	"github.com/noah-isme/superapp-core/internal/cart"
)

// CartNotifier publishes cart signals as domain events.
type CartNotifier struct {
	Emitter Emitter
}

// AddressChanged implements cart.Notifier.
func (n CartNotifier) AddressChanged(ctx context.Context, change cart.AddressChange) error {
	if n.Emitter == nil {
		return nil
	}
	_, err := n.Emitter.Emit(ctx, TopicCartAddressChanged, change.SessionID, change)
	return err
}

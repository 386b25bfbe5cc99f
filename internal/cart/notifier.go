package cart

import "context"

// AddressChange describes a delivery address replaced by a repeated add.
type AddressChange struct {
	SessionID string `json:"sessionId"`
	ProductID string `json:"productId"`
	Previous  string `json:"previous"`
	Current   string `json:"current"`
}

// Notifier receives cart signals the UI surfaces to the user.
type Notifier interface {
	AddressChanged(ctx context.Context, change AddressChange) error
}

// NopNotifier drops every signal.
type NopNotifier struct{}

// AddressChanged implements Notifier.
func (NopNotifier) AddressChanged(context.Context, AddressChange) error { return nil }

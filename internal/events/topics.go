package events

// Topic constants for domain events emitted by the wallet core.
const (
	TopicCartAddressChanged   = "cart.address_changed"
	TopicCheckoutCompleted    = "checkout.completed"
	TopicCheckoutFailed       = "checkout.failed"
	TopicSplitCreated         = "split.created"
	TopicSplitParticipantPaid = "split.participant_paid"
)

// DefaultTopics returns every topic the core can emit.
func DefaultTopics() []string {
	return []string{
		TopicCartAddressChanged,
		TopicCheckoutCompleted,
		TopicCheckoutFailed,
		TopicSplitCreated,
		TopicSplitParticipantPaid,
	}
}

package events

// Topic constants for bill lifecycle events.
const (
	TopicBillSaved   = "bill.saved"
	TopicBillPrinted = "bill.printed"
	TopicBillShared  = "bill.shared"
	TopicBillReset   = "bill.reset"
)

// DefaultTopics returns the canonical list of bill topics.
func DefaultTopics() []string {
	return []string{TopicBillSaved, TopicBillPrinted, TopicBillShared, TopicBillReset}
}

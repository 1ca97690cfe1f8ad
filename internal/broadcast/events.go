package broadcast

// Fine-grained event types emitted alongside the authoritative
// full-state event. Observers may react to these, but must reconcile
// against EventState, which is always republished after a mutation.
const (
	EventState = "lane.state"

	EventSessionStarted   = "session.started"
	EventSessionReset     = "session.reset"
	EventSessionCompleted = "session.completed"
	EventKioskAck         = "kiosk.ack"

	EventSelectionProposed     = "selection.proposed"
	EventSelectionLocked       = "selection.locked"
	EventSelectionAcknowledged = "selection.acknowledged"

	EventAssignmentCreated    = "assignment.created"
	EventAssignmentFailed     = "assignment.failed"
	EventConfirmationRequired = "assignment.confirmation_required"
	EventCustomerConfirmed    = "customer.confirmed"
	EventCustomerDeclined     = "customer.declined"

	EventPaymentIntentCreated = "payment.intent_created"
	EventPaymentPaid          = "payment.paid"
)

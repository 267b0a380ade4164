package taskname

const (
	// Notification tasks
	NotificationDeliver = "notification:deliver"

	// Ledger tasks
	LedgerReconcile = "ledger:reconcile"
)

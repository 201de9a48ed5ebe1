// Package finance holds the scheduler's finance sweeps: the trust
// reconciliation summary, the payment-reminder sweep, and the scheduled
// vendor-payment sweep. Ledger internals stay behind interfaces; this
// package only orchestrates them with per-item fault isolation.
package finance

import "context"

// AccountOutcome is one trust account's result from a reconciliation sweep.
type AccountOutcome struct {
	AccountID        string `json:"accountId"`
	ReconciliationID string `json:"reconciliationId"`
	Status           string `json:"status"`
}

// Reconciliations is the external trust-accounting collaborator. Consumed,
// never implemented, by this module.
type Reconciliations interface {
	// ProcessDue runs every due reconciliation and reports one outcome per
	// account, failures included.
	ProcessDue(ctx context.Context) ([]AccountOutcome, error)
}

// ReminderStatus is the collaborator's verdict for one reminder.
type ReminderStatus string

const (
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ReminderSender delivers one invoice reminder. A cancelled verdict (the
// invoice was paid in the meantime) is a legitimate non-error outcome.
type ReminderSender interface {
	Send(ctx context.Context, reminderID string) (ReminderStatus, error)
}

// ReconciliationSummary aggregates one reconciliation sweep.
type ReconciliationSummary struct {
	Processed int              `json:"processed"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Accounts  []AccountOutcome `json:"accounts,omitempty"`
}

// ReminderSummary aggregates one reminder sweep.
type ReminderSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// BillFailure records one bill that could not be paid in a sweep.
type BillFailure struct {
	BillID string `json:"billId"`
	Error  string `json:"error"`
}

// VendorPaymentSummary aggregates one vendor-payment sweep. A sweep with
// failures still counts as a successful sweep; the failures travel in the
// summary.
type VendorPaymentSummary struct {
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	TotalAmount float64       `json:"totalAmount"`
	Failures    []BillFailure `json:"failures,omitempty"`
}

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"lexflow/pkg/logx"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDisabled = errors.New("storage disabled")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process store, lost on restart (tests, demos)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Jobs is the scheduler's view of the job table.
type Jobs interface {
	// FindDue returns enabled jobs with NextRunAt <= now, earliest first.
	FindDue(ctx context.Context, now time.Time) ([]ScheduledJob, error)
	// UpdateStatus persists the post-execution fields as one atomic write.
	UpdateStatus(ctx context.Context, id string, lastRunAt time.Time, lastStatus string, nextRunAt time.Time) error
}

// Workflows is the engine's view of workflow definitions and runs.
type Workflows interface {
	// GetWithSteps returns the workflow and its steps in ascending order,
	// or ErrNotFound.
	GetWithSteps(ctx context.Context, id string) (*Workflow, error)
	CreateRun(ctx context.Context, run *WorkflowRun) error
	UpdateRun(ctx context.Context, id string, patch RunPatch) error
}

// ToolRuns records tool invocations.
type ToolRuns interface {
	AppendToolRun(ctx context.Context, run ToolRun) error
}

// Reminders is the payment-reminder sweep's view of reminder and invoice rows.
type Reminders interface {
	// FindDueReminders returns reminders with status "scheduled" and
	// ScheduledFor <= now.
	FindDueReminders(ctx context.Context, now time.Time) ([]PaymentReminder, error)
	GetReminder(ctx context.Context, id string) (PaymentReminder, error)
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	// MarkReminderSent flips the reminder to sent and bumps the invoice
	// reminder counters in one transaction.
	MarkReminderSent(ctx context.Context, reminderID, invoiceID string, at time.Time) error
	MarkReminderCancelled(ctx context.Context, reminderID string) error
}

// Bills is the vendor-payment sweep's view of bills and vendors.
type Bills interface {
	// FindScheduledBills returns bills with status "scheduled" and a
	// ScheduledPaymentDate in [from, to).
	FindScheduledBills(ctx context.Context, from, to time.Time) ([]VendorBill, error)
	// PayBill applies one scheduled payment atomically: insert the payment,
	// zero the bill balance and mark it paid, bump the vendor totals.
	// Partial application never persists.
	PayBill(ctx context.Context, payment VendorPayment) error
	GetBill(ctx context.Context, id string) (VendorBill, error)
}

// Activity appends audit records.
type Activity interface {
	AppendActivity(ctx context.Context, e ActivityEntry) error
}

// Store is the full persistence API. The core services each depend only on
// the narrow slice they use; Store exists so one backend can serve all of
// them.
type Store interface {
	Jobs
	Workflows
	ToolRuns
	Reminders
	Bills
	Activity
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

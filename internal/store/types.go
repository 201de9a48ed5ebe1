package store

import (
	"encoding/json"
	"time"
)

// JobType tags a ScheduledJob with the handler that executes it.
// The set is closed; anything else is rejected at dispatch time.
type JobType string

const (
	JobTool                    JobType = "tool"
	JobWorkflow                JobType = "workflow"
	JobTrustReconciliation     JobType = "trust_reconciliation"
	JobPaymentReminders        JobType = "payment_reminders"
	JobScheduledVendorPayments JobType = "scheduled_vendor_payments"
)

// Frequency is a coarse recurrence rule. "monthly" is a flat 30 days,
// not calendar-aware; jobs that need calendar precision use CronExpression.
type Frequency string

const (
	FreqHourly  Frequency = "hourly"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// Job outcome statuses, shared by ScheduledJob.LastStatus and WorkflowRun.Status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ScheduledJob is a persistent, recurring unit of work. The scheduler is the
// only writer of NextRunAt/LastRunAt/LastStatus; everything else is owned by
// the admin surface that created the job.
type ScheduledJob struct {
	ID             string
	Type           JobType
	ToolID         string
	WorkflowID     string
	Config         json.RawMessage // opaque, interpreted by the handler for Type
	EmailResults   bool
	EmailTo        []string
	CreatedBy      string
	Enabled        bool
	NextRunAt      time.Time
	Frequency      Frequency
	CronExpression string
	Timezone       string
	LastRunAt      time.Time
	LastStatus     string
}

// InputFromConfig extracts the conventional "input" field from a job config.
// Missing config or field yields an empty string, never an error.
func (j *ScheduledJob) InputFromConfig() string {
	if len(j.Config) == 0 {
		return ""
	}
	var c struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal(j.Config, &c); err != nil {
		return ""
	}
	return c.Input
}

// Workflow is a named ordered pipeline of steps. Status must be "active"
// for the engine to run it.
type Workflow struct {
	ID     string
	Name   string
	Status string
	Steps  []WorkflowStep // ascending Order
}

const WorkflowActive = "active"

// WorkflowStep is one pipeline stage, bound to a single tool invocation.
// Order is 1-based and doubles as the addressing key in placeholders
// ({{stepN...}}).
type WorkflowStep struct {
	ID              string
	WorkflowID      string
	Order           int
	ToolID          string
	Name            string
	Input           string // template, may embed placeholders
	WaitForPrevious bool
	ContinueOnError bool
}

// WorkflowRun is one execution instance of a Workflow. Status moves from
// running to exactly one terminal state.
type WorkflowRun struct {
	ID          string
	WorkflowID  string
	UserID      string
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time
	ErrorMsg    string
	Results     map[string]StepResult // keyed by step ID
}

// Step outcome statuses.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// StepResult is the recorded outcome of one scheduled step. Every step that
// was in the run's plan ends with exactly one of these, success or not.
type StepResult struct {
	StepID     string        `json:"stepId"`
	Order      int           `json:"order"`
	Status     string        `json:"status"`
	Output     any           `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	TokensUsed int           `json:"tokensUsed,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// RunPatch carries the terminal update for a WorkflowRun.
type RunPatch struct {
	Status      string
	CompletedAt time.Time
	ErrorMsg    string
	Results     map[string]StepResult
}

// ToolRun records one tool invocation, scheduled or workflow-driven.
type ToolRun struct {
	ID          string
	UserID      string
	ToolID      string
	Input       string
	Output      string
	TokensUsed  int
	Cost        float64
	Status      string
	CompletedAt time.Time
}

// Reminder statuses.
const (
	ReminderScheduled = "scheduled"
	ReminderSent      = "sent"
	ReminderCancelled = "cancelled"
)

// PaymentReminder is a queued invoice reminder email.
type PaymentReminder struct {
	ID           string
	InvoiceID    string
	ReminderType string
	EmailTo      string
	EmailSubject string
	EmailBody    string
	Status       string
	ScheduledFor time.Time
	SentAt       time.Time
}

// Invoice is the projection the reminder sweep needs: enough to tell
// whether a reminder is still worth sending.
type Invoice struct {
	ID             string
	Number         string
	Status         string
	BalanceDue     float64
	LastReminderAt time.Time
	ReminderCount  int
}

const InvoicePaid = "paid"

// Vendor bill statuses used by the payment sweep.
const (
	BillApproved  = "approved"
	BillScheduled = "scheduled"
	BillPaid      = "paid"
)

type Vendor struct {
	ID            string
	Name          string
	TotalPaid     float64
	TotalInvoices int
}

type VendorBill struct {
	ID                   string
	VendorID             string
	BillNumber           string
	Status               string
	TotalAmount          float64
	PaidAmount           float64
	BalanceDue           float64
	ScheduledPaymentDate time.Time
	PaidAt               time.Time
}

type VendorPayment struct {
	ID            string
	VendorID      string
	BillID        string
	Amount        float64
	PaymentMethod string
	PaymentDate   time.Time
	Status        string
	ProcessedBy   string
}

// ActivityEntry is an audit record of a scheduler outcome.
// Keep it compact and schema-stable.
type ActivityEntry struct {
	At          time.Time
	UserID      string
	Action      string
	TargetType  string
	TargetID    string
	Description string
	MetaJSON    string
}

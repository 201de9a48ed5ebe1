package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs the test suite and the "memory"
// driver; nothing survives a restart.
//
// All methods are safe for concurrent use. Mutations validate first and
// mutate second so a failed call leaves no partial state, matching the
// transactional guarantees of the SQLite backend.
type Memory struct {
	mu sync.Mutex

	jobs      map[string]ScheduledJob
	workflows map[string]Workflow
	runs      map[string]WorkflowRun
	toolRuns  []ToolRun
	reminders map[string]PaymentReminder
	invoices  map[string]Invoice
	vendors   map[string]Vendor
	bills     map[string]VendorBill
	payments  []VendorPayment
	activity  []ActivityEntry
}

func NewMemory() *Memory {
	return &Memory{
		jobs:      map[string]ScheduledJob{},
		workflows: map[string]Workflow{},
		runs:      map[string]WorkflowRun{},
		reminders: map[string]PaymentReminder{},
		invoices:  map[string]Invoice{},
		vendors:   map[string]Vendor{},
		bills:     map[string]VendorBill{},
	}
}

func (m *Memory) Close() error { return nil }

// ---- Jobs ----

func (m *Memory) FindDue(_ context.Context, now time.Time) ([]ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []ScheduledJob
	for _, j := range m.jobs {
		if j.Enabled && !j.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].NextRunAt.Before(due[k].NextRunAt) })
	return due, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, lastRunAt time.Time, lastStatus string, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	j.LastRunAt = lastRunAt
	j.LastStatus = lastStatus
	j.NextRunAt = nextRunAt
	m.jobs[id] = j
	return nil
}

func (m *Memory) PutJob(j ScheduledJob) {
	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()
}

func (m *Memory) Job(id string) (ScheduledJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// ---- Workflows ----

func (m *Memory) GetWithSteps(_ context.Context, id string) (*Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	cp := wf
	cp.Steps = append([]WorkflowStep(nil), wf.Steps...)
	sort.Slice(cp.Steps, func(i, k int) bool { return cp.Steps[i].Order < cp.Steps[k].Order })
	return &cp, nil
}

func (m *Memory) CreateRun(_ context.Context, run *WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *Memory) UpdateRun(_ context.Context, id string, patch RunPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("workflow run %s: %w", id, ErrNotFound)
	}
	r.Status = patch.Status
	r.CompletedAt = patch.CompletedAt
	r.ErrorMsg = patch.ErrorMsg
	r.Results = patch.Results
	m.runs[id] = r
	return nil
}

func (m *Memory) PutWorkflow(wf Workflow) {
	m.mu.Lock()
	m.workflows[wf.ID] = wf
	m.mu.Unlock()
}

func (m *Memory) Run(id string) (WorkflowRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return r, ok
}

func (m *Memory) RunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// ---- Tool runs ----

func (m *Memory) AppendToolRun(_ context.Context, run ToolRun) error {
	m.mu.Lock()
	m.toolRuns = append(m.toolRuns, run)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ToolRunList() []ToolRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolRun(nil), m.toolRuns...)
}

// ---- Reminders ----

func (m *Memory) FindDueReminders(_ context.Context, now time.Time) ([]PaymentReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []PaymentReminder
	for _, r := range m.reminders {
		if r.Status == ReminderScheduled && !r.ScheduledFor.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ScheduledFor.Before(due[k].ScheduledFor) })
	return due, nil
}

func (m *Memory) GetReminder(_ context.Context, id string) (PaymentReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return PaymentReminder{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) GetInvoice(_ context.Context, id string) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	return inv, nil
}

func (m *Memory) MarkReminderSent(_ context.Context, reminderID, invoiceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[reminderID]
	if !ok {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
	}
	r.Status = ReminderSent
	r.SentAt = at
	inv.LastReminderAt = at
	inv.ReminderCount++
	m.reminders[reminderID] = r
	m.invoices[invoiceID] = inv
	return nil
}

func (m *Memory) MarkReminderCancelled(_ context.Context, reminderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[reminderID]
	if !ok {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	r.Status = ReminderCancelled
	m.reminders[reminderID] = r
	return nil
}

func (m *Memory) PutReminder(r PaymentReminder) {
	m.mu.Lock()
	m.reminders[r.ID] = r
	m.mu.Unlock()
}

func (m *Memory) PutInvoice(inv Invoice) {
	m.mu.Lock()
	m.invoices[inv.ID] = inv
	m.mu.Unlock()
}

func (m *Memory) Reminder(id string) (PaymentReminder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	return r, ok
}

// ---- Bills ----

func (m *Memory) FindScheduledBills(_ context.Context, from, to time.Time) ([]VendorBill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []VendorBill
	for _, b := range m.bills {
		if b.Status == BillScheduled && !b.ScheduledPaymentDate.Before(from) && b.ScheduledPaymentDate.Before(to) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ID < due[k].ID })
	return due, nil
}

func (m *Memory) PayBill(_ context.Context, p VendorPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[p.BillID]
	if !ok {
		return fmt.Errorf("vendor bill %s: %w", p.BillID, ErrNotFound)
	}
	v, ok := m.vendors[b.VendorID]
	if !ok {
		return fmt.Errorf("vendor %s: %w", b.VendorID, ErrNotFound)
	}
	if b.Status != BillScheduled && b.Status != BillApproved {
		return fmt.Errorf("vendor bill %s is %s, not payable", b.ID, b.Status)
	}

	b.PaidAmount += p.Amount
	b.BalanceDue = b.TotalAmount - b.PaidAmount
	if b.BalanceDue <= 0 {
		b.BalanceDue = 0
		b.Status = BillPaid
		b.PaidAt = p.PaymentDate
	}
	v.TotalPaid += p.Amount
	v.TotalInvoices++

	m.bills[b.ID] = b
	m.vendors[v.ID] = v
	m.payments = append(m.payments, p)
	return nil
}

func (m *Memory) GetBill(_ context.Context, id string) (VendorBill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return VendorBill{}, fmt.Errorf("vendor bill %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (m *Memory) PutVendor(v Vendor) {
	m.mu.Lock()
	m.vendors[v.ID] = v
	m.mu.Unlock()
}

func (m *Memory) PutBill(b VendorBill) {
	m.mu.Lock()
	m.bills[b.ID] = b
	m.mu.Unlock()
}

func (m *Memory) Vendor(id string) (Vendor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	return v, ok
}

func (m *Memory) Payments() []VendorPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VendorPayment(nil), m.payments...)
}

// ---- Activity ----

func (m *Memory) AppendActivity(_ context.Context, e ActivityEntry) error {
	m.mu.Lock()
	m.activity = append(m.activity, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ActivityList() []ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActivityEntry(nil), m.activity...)
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lexflow/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Jobs ----

func (s *sqliteStore) FindDue(ctx context.Context, now time.Time) ([]ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, tool_id, workflow_id, config, email_results, email_to,
		        created_by, enabled, next_run_at, frequency, cron_expression,
		        timezone, last_run_at, last_status
		   FROM scheduled_jobs
		  WHERE enabled = 1 AND next_run_at <= ?
		  ORDER BY next_run_at ASC`,
		fmtTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ScheduledJob
	for rows.Next() {
		var (
			j                             ScheduledJob
			toolID, wfID, config, emailTo sql.NullString
			freq, cronExpr, tz            sql.NullString
			nextRun, lastRun, lastStatus  sql.NullString
			typ                           string
			emailResults, enabled         int
		)
		if err := rows.Scan(&j.ID, &typ, &toolID, &wfID, &config, &emailResults, &emailTo,
			&j.CreatedBy, &enabled, &nextRun, &freq, &cronExpr, &tz, &lastRun, &lastStatus); err != nil {
			return nil, err
		}
		j.Type = JobType(typ)
		j.ToolID = toolID.String
		j.WorkflowID = wfID.String
		if config.Valid && config.String != "" {
			j.Config = json.RawMessage(config.String)
		}
		j.EmailResults = emailResults != 0
		if emailTo.Valid && emailTo.String != "" {
			_ = json.Unmarshal([]byte(emailTo.String), &j.EmailTo)
		}
		j.Enabled = enabled != 0
		j.NextRunAt = parseTime(nextRun.String)
		j.Frequency = Frequency(freq.String)
		j.CronExpression = cronExpr.String
		j.Timezone = tz.String
		j.LastRunAt = parseTime(lastRun.String)
		j.LastStatus = lastStatus.String
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, id string, lastRunAt time.Time, lastStatus string, nextRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET last_run_at = ?, last_status = ?, next_run_at = ? WHERE id = ?`,
		fmtTime(lastRunAt), lastStatus, fmtTime(nextRunAt), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- Workflows ----

func (s *sqliteStore) GetWithSteps(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &wf.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, step_order, tool_id, name, input, wait_for_previous, continue_on_error
		   FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st          WorkflowStep
			name, input sql.NullString
			wait, cont  int
		)
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.Order, &st.ToolID, &name, &input, &wait, &cont); err != nil {
			return nil, err
		}
		st.Name = name.String
		st.Input = input.String
		st.WaitForPrevious = wait != 0
		st.ContinueOnError = cont != 0
		wf.Steps = append(wf.Steps, st)
	}
	return &wf, rows.Err()
}

func (s *sqliteStore) CreateRun(ctx context.Context, run *WorkflowRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs(id, workflow_id, user_id, status, started_at)
		 VALUES(?,?,?,?,?)`,
		run.ID, run.WorkflowID, run.UserID, run.Status, fmtTime(run.StartedAt),
	)
	return err
}

func (s *sqliteStore) UpdateRun(ctx context.Context, id string, patch RunPatch) error {
	var results any
	if patch.Results != nil {
		b, err := json.Marshal(patch.Results)
		if err != nil {
			return err
		}
		results = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, completed_at = ?, error_msg = ?, results = ? WHERE id = ?`,
		patch.Status, fmtTime(patch.CompletedAt), nullStr(patch.ErrorMsg), results, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow run %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- Tool runs ----

func (s *sqliteStore) AppendToolRun(ctx context.Context, run ToolRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_runs(id, user_id, tool_id, input, output, tokens_used, cost, status, completed_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		run.ID, run.UserID, run.ToolID, nullStr(run.Input), nullStr(run.Output),
		run.TokensUsed, run.Cost, run.Status, fmtTime(run.CompletedAt),
	)
	return err
}

// ---- Reminders ----

func (s *sqliteStore) FindDueReminders(ctx context.Context, now time.Time) ([]PaymentReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invoice_id, reminder_type, email_to, email_subject, email_body, status, scheduled_for, sent_at
		   FROM payment_reminders
		  WHERE status = ? AND scheduled_for <= ?
		  ORDER BY scheduled_for ASC`,
		ReminderScheduled, fmtTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []PaymentReminder
	for rows.Next() {
		var (
			r                PaymentReminder
			typ, subj, body  sql.NullString
			schedFor, sentAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.InvoiceID, &typ, &r.EmailTo, &subj, &body, &r.Status, &schedFor, &sentAt); err != nil {
			return nil, err
		}
		r.ReminderType = typ.String
		r.EmailSubject = subj.String
		r.EmailBody = body.String
		r.ScheduledFor = parseTime(schedFor.String)
		r.SentAt = parseTime(sentAt.String)
		due = append(due, r)
	}
	return due, rows.Err()
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (PaymentReminder, error) {
	var (
		r                PaymentReminder
		typ, subj, body  sql.NullString
		schedFor, sentAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, invoice_id, reminder_type, email_to, email_subject, email_body, status, scheduled_for, sent_at
		   FROM payment_reminders WHERE id = ?`, id,
	).Scan(&r.ID, &r.InvoiceID, &typ, &r.EmailTo, &subj, &body, &r.Status, &schedFor, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PaymentReminder{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return PaymentReminder{}, err
	}
	r.ReminderType = typ.String
	r.EmailSubject = subj.String
	r.EmailBody = body.String
	r.ScheduledFor = parseTime(schedFor.String)
	r.SentAt = parseTime(sentAt.String)
	return r, nil
}

func (s *sqliteStore) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	var (
		inv     Invoice
		lastRem sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, invoice_number, status, balance_due, last_reminder_at, reminder_count
		   FROM invoices WHERE id = ?`, id,
	).Scan(&inv.ID, &inv.Number, &inv.Status, &inv.BalanceDue, &lastRem, &inv.ReminderCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Invoice{}, err
	}
	inv.LastReminderAt = parseTime(lastRem.String)
	return inv, nil
}

func (s *sqliteStore) MarkReminderSent(ctx context.Context, reminderID, invoiceID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_reminders SET status = ?, sent_at = ? WHERE id = ?`,
		ReminderSent, fmtTime(at), reminderID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE invoices SET last_reminder_at = ?, reminder_count = reminder_count + 1 WHERE id = ?`,
		fmtTime(at), invoiceID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) MarkReminderCancelled(ctx context.Context, reminderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payment_reminders SET status = ? WHERE id = ?`,
		ReminderCancelled, reminderID,
	)
	return err
}

// ---- Bills ----

func (s *sqliteStore) FindScheduledBills(ctx context.Context, from, to time.Time) ([]VendorBill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor_id, bill_number, status, total_amount, paid_amount, balance_due, scheduled_payment_date, paid_at
		   FROM vendor_bills
		  WHERE status = ? AND scheduled_payment_date >= ? AND scheduled_payment_date < ?`,
		BillScheduled, fmtTime(from), fmtTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []VendorBill
	for rows.Next() {
		var (
			b                     VendorBill
			number, sched, paidAt sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.VendorID, &number, &b.Status, &b.TotalAmount, &b.PaidAmount, &b.BalanceDue, &sched, &paidAt); err != nil {
			return nil, err
		}
		b.BillNumber = number.String
		b.ScheduledPaymentDate = parseTime(sched.String)
		b.PaidAt = parseTime(paidAt.String)
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// PayBill is the one multi-table mutation in this store and must be
// all-or-nothing per bill.
func (s *sqliteStore) PayBill(ctx context.Context, p VendorPayment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		vendorID    string
		status      string
		totalAmount float64
		paidAmount  float64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT vendor_id, status, total_amount, paid_amount FROM vendor_bills WHERE id = ?`, p.BillID,
	).Scan(&vendorID, &status, &totalAmount, &paidAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vendor bill %s: %w", p.BillID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if status != BillScheduled && status != BillApproved {
		return fmt.Errorf("vendor bill %s is %s, not payable", p.BillID, status)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vendor_payments(id, vendor_id, bill_id, amount, payment_method, payment_date, status, processed_by)
		 VALUES(?,?,?,?,?,?,?,?)`,
		p.ID, vendorID, p.BillID, p.Amount, nullStr(p.PaymentMethod), fmtTime(p.PaymentDate), p.Status, nullStr(p.ProcessedBy),
	); err != nil {
		return err
	}

	newPaid := paidAmount + p.Amount
	newBalance := totalAmount - newPaid
	newStatus := status
	var paidAt any
	if newBalance <= 0 {
		newBalance = 0
		newStatus = BillPaid
		paidAt = fmtTime(p.PaymentDate)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE vendor_bills SET paid_amount = ?, balance_due = ?, status = ?, paid_at = ? WHERE id = ?`,
		newPaid, newBalance, newStatus, paidAt, p.BillID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE vendors SET total_paid = total_paid + ?, total_invoices = total_invoices + 1 WHERE id = ?`,
		p.Amount, vendorID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) GetBill(ctx context.Context, id string) (VendorBill, error) {
	var (
		b                     VendorBill
		number, sched, paidAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, vendor_id, bill_number, status, total_amount, paid_amount, balance_due, scheduled_payment_date, paid_at
		   FROM vendor_bills WHERE id = ?`, id,
	).Scan(&b.ID, &b.VendorID, &number, &b.Status, &b.TotalAmount, &b.PaidAmount, &b.BalanceDue, &sched, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return VendorBill{}, fmt.Errorf("vendor bill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return VendorBill{}, err
	}
	b.BillNumber = number.String
	b.ScheduledPaymentDate = parseTime(sched.String)
	b.PaidAt = parseTime(paidAt.String)
	return b, nil
}

// ---- Activity ----

func (s *sqliteStore) AppendActivity(ctx context.Context, e ActivityEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log(at, user_id, action, target_type, target_id, description, meta)
		 VALUES(?,?,?,?,?,?,?)`,
		fmtTime(e.At), nullStr(e.UserID), e.Action, e.TargetType, e.TargetID,
		nullStr(e.Description), nullStr(e.MetaJSON),
	)
	return err
}

// ---- helpers ----

// fmtTime stores timestamps as fixed-width UTC RFC3339 (second precision)
// so string comparison in SQL matches chronological order.
func fmtTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lexflow/internal/notify"
	"lexflow/internal/store"
	"lexflow/pkg/logx"
)

// ReminderSweep walks every due payment reminder and delegates each to the
// sender. One reminder's failure never aborts the rest of the sweep.
type ReminderSweep struct {
	Store  store.Reminders
	Sender ReminderSender
	Log    logx.Logger
	Now    func() time.Time
}

func NewReminderSweep(st store.Reminders, sender ReminderSender, log logx.Logger) *ReminderSweep {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ReminderSweep{Store: st, Sender: sender, Log: log, Now: time.Now}
}

func (s *ReminderSweep) Run(ctx context.Context) (*ReminderSummary, error) {
	due, err := s.Store.FindDueReminders(ctx, s.Now())
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}

	sum := &ReminderSummary{Processed: len(due)}
	for _, r := range due {
		status, err := s.Sender.Send(ctx, r.ID)
		switch {
		case err != nil:
			sum.Failed++
			s.Log.Warn("reminder not sent", logx.String("reminder", r.ID), logx.Err(err))
		case status == ReminderStatusCancelled:
			sum.Skipped++
		default:
			sum.Sent++
		}
	}
	return sum, nil
}

// MailReminderSender is the in-process ReminderSender: it re-checks the
// invoice, cancels reminders for invoices that were paid in the meantime,
// and otherwise emails the reminder and marks it sent.
type MailReminderSender struct {
	Store  store.Reminders
	Mailer notify.Mailer
	Log    logx.Logger
	Now    func() time.Time
}

func NewMailReminderSender(st store.Reminders, mailer notify.Mailer, log logx.Logger) *MailReminderSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MailReminderSender{Store: st, Mailer: mailer, Log: log, Now: time.Now}
}

func (m *MailReminderSender) Send(ctx context.Context, reminderID string) (ReminderStatus, error) {
	now := m.Now()

	reminder, err := m.Store.GetReminder(ctx, reminderID)
	if err != nil {
		return "", err
	}

	inv, err := m.Store.GetInvoice(ctx, reminder.InvoiceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	// Paid (or vanished) invoice: cancel instead of nagging the client.
	if errors.Is(err, store.ErrNotFound) || inv.Status == store.InvoicePaid || inv.BalanceDue <= 0 {
		if cerr := m.Store.MarkReminderCancelled(ctx, reminderID); cerr != nil {
			return "", fmt.Errorf("cancel reminder %s: %w", reminderID, cerr)
		}
		m.Log.Info("reminder cancelled, invoice settled",
			logx.String("reminder", reminderID), logx.String("invoice", reminder.InvoiceID))
		return ReminderStatusCancelled, nil
	}

	if err := m.Mailer.Send(ctx, notify.Message{
		To:      []string{reminder.EmailTo},
		Subject: reminder.EmailSubject,
		Body:    reminder.EmailBody,
	}); err != nil {
		// Keep the reminder scheduled so a later sweep retries it.
		return "", fmt.Errorf("send reminder %s: %w", reminderID, err)
	}

	if err := m.Store.MarkReminderSent(ctx, reminderID, reminder.InvoiceID, now); err != nil {
		return "", fmt.Errorf("mark reminder %s sent: %w", reminderID, err)
	}
	return ReminderStatusSent, nil
}

package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lexflow/internal/store"
	"lexflow/pkg/logx"
)

// VendorPaymentSweep pays every vendor bill scheduled for today. Each bill
// is applied in its own store transaction, so one bill's failure neither
// blocks the others nor leaves partial state behind.
type VendorPaymentSweep struct {
	Bills store.Bills
	Log   logx.Logger
	Now   func() time.Time
	NewID func() string
}

func NewVendorPaymentSweep(bills store.Bills, log logx.Logger) *VendorPaymentSweep {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &VendorPaymentSweep{Bills: bills, Log: log, Now: time.Now, NewID: uuid.NewString}
}

func (s *VendorPaymentSweep) Run(ctx context.Context) (*VendorPaymentSummary, error) {
	now := s.Now()
	// Local day boundary, start inclusive, end exclusive.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	bills, err := s.Bills.FindScheduledBills(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("find scheduled bills: %w", err)
	}

	sum := &VendorPaymentSummary{}
	for _, bill := range bills {
		payment := store.VendorPayment{
			ID:            s.NewID(),
			VendorID:      bill.VendorID,
			BillID:        bill.ID,
			Amount:        bill.BalanceDue,
			PaymentMethod: "scheduled",
			PaymentDate:   now,
			Status:        store.StatusCompleted,
			ProcessedBy:   "scheduler",
		}
		if err := s.Bills.PayBill(ctx, payment); err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, BillFailure{BillID: bill.ID, Error: err.Error()})
			s.Log.Warn("scheduled payment failed",
				logx.String("bill", bill.ID),
				logx.String("vendor", bill.VendorID),
				logx.Err(err))
			continue
		}
		sum.Processed++
		sum.TotalAmount += bill.BalanceDue
	}
	return sum, nil
}

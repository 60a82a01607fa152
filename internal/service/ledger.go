package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"school-fees/internal/domain"
	"school-fees/internal/lock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultPaymentRetries = 3

// PaymentLedger records payments against invoices. Writers of one invoice are
// serialized in process, and the version check in the repository catches writers
// running in other processes.
type PaymentLedger struct {
	invoices   InvoiceRepository
	locks      *lock.KeyedMutex
	notifier   InvoiceNotifier
	log        *zap.Logger
	now        Clock
	maxRetries int
}

func NewPaymentLedger(invoices InvoiceRepository, notifier InvoiceNotifier, logger *zap.Logger, maxRetries int) *PaymentLedger {
	if maxRetries <= 0 {
		maxRetries = defaultPaymentRetries
	}
	return &PaymentLedger{
		invoices:   invoices,
		locks:      lock.NewKeyedMutex(),
		notifier:   notifier,
		log:        logger.Named("ledger"),
		now:        time.Now,
		maxRetries: maxRetries,
	}
}

// RecordPayment applies amount to the invoice as of date. A zero date means now.
func (l *PaymentLedger) RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, date time.Time) (domain.Invoice, error) {
	if !domain.ValidPaymentAmount(amount) {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}

	unlock, err := l.locks.Lock(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer unlock()

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		inv, err := l.apply(ctx, invoiceID, amount, date)
		if errors.Is(err, domain.ErrConflict) {
			l.log.Info("concurrent invoice update, retrying",
				zap.String("invoice_id", invoiceID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return domain.Invoice{}, err
		}

		l.log.Info("payment recorded",
			zap.String("invoice_id", inv.ID),
			zap.String("amount", amount.String()),
			zap.String("status", string(inv.Status)),
		)
		if l.notifier != nil {
			if err := l.notifier.NotifyInvoiceUpdated(ctx, inv); err != nil {
				l.log.Warn("notify invoice update failed", zap.String("invoice_id", inv.ID), zap.Error(err))
			}
		}
		return inv, nil
	}

	return domain.Invoice{}, fmt.Errorf("record payment on invoice %s after %d attempts: %w", invoiceID, l.maxRetries, domain.ErrConflict)
}

func (l *PaymentLedger) apply(ctx context.Context, invoiceID string, amount decimal.Decimal, date time.Time) (domain.Invoice, error) {
	inv, err := l.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invoice{}, fmt.Errorf("invoice %s: %w", invoiceID, err)
		}
		return domain.Invoice{}, fmt.Errorf("load invoice %s: %w", invoiceID, err)
	}

	now := l.now()
	if date.IsZero() {
		date = now
	}
	p := domain.Payment{ID: uuid.NewString(), Amount: amount, Date: date, RecordedAt: now}

	expected := inv.Version
	if err := inv.ApplyPayment(p); err != nil {
		return domain.Invoice{}, err
	}

	if err := l.invoices.SavePayment(ctx, inv, p, expected); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, fmt.Errorf("save payment on invoice %s: %w", invoiceID, err)
	}
	return inv, nil
}

// GetInvoice returns the invoice with its payment history.
func (l *PaymentLedger) GetInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	return l.invoices.GetInvoice(ctx, invoiceID)
}

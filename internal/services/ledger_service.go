package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/repositories"
	"shuttle/internal/utils"
)

// LedgerEntry describes one balance mutation. Amount is a magnitude; the
// direction comes from Debit or Credit.
type LedgerEntry struct {
	UserID      int64
	Amount      int64
	Type        models.TransactionType
	Description string
	BookingID   *int64
	TripID      *int64
	// Reference makes the entry idempotent; a uuid is used when empty.
	Reference string
	// AllowOverdraft lets a debit take the balance below zero (admins).
	AllowOverdraft bool
}

// LedgerService mutates balances and appends the matching transaction row in
// the same database transaction.
type LedgerService struct {
	Store     repositories.Store
	RequestID string
	Now       func() time.Time
}

func (s LedgerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

// EnsureFunds locks the user's balance and fails with InsufficientCreditsError
// when it cannot cover amount. Nothing is written besides the lock.
func (s LedgerService) EnsureFunds(ctx context.Context, tx repositories.CreditStore, userID, amount int64, allowOverdraft bool) error {
	balance, err := tx.LockBalance(ctx, userID)
	if err != nil {
		return err
	}
	if !allowOverdraft && balance < amount {
		return domain.InsufficientCreditsError{UserID: userID, Balance: balance, Required: amount}
	}
	return nil
}

// Debit removes credits and records a USAGE transaction (or e.Type).
func (s LedgerService) Debit(ctx context.Context, tx repositories.CreditStore, e LedgerEntry) (models.CreditTransaction, error) {
	if e.Amount <= 0 {
		return models.CreditTransaction{}, domain.ValidationError{Field: "amount", Msg: "debit must be positive"}
	}
	if e.Type == "" {
		e.Type = models.TxUsage
	}
	return s.apply(ctx, tx, e, -e.Amount)
}

// Credit adds credits and records a REFUND transaction (or e.Type). It never
// fails on balance grounds.
func (s LedgerService) Credit(ctx context.Context, tx repositories.CreditStore, e LedgerEntry) (models.CreditTransaction, error) {
	if e.Amount <= 0 {
		return models.CreditTransaction{}, domain.ValidationError{Field: "amount", Msg: "credit must be positive"}
	}
	if e.Type == "" {
		e.Type = models.TxRefund
	}
	if e.Type == models.TxUsage {
		return models.CreditTransaction{}, domain.ValidationError{Field: "type", Msg: "usage cannot be credited"}
	}
	return s.apply(ctx, tx, e, e.Amount)
}

func (s LedgerService) apply(ctx context.Context, tx repositories.CreditStore, e LedgerEntry, delta int64) (models.CreditTransaction, error) {
	if e.UserID <= 0 {
		return models.CreditTransaction{}, domain.ValidationError{Field: "user_id", Msg: "invalid id"}
	}
	balance, err := tx.LockBalance(ctx, e.UserID)
	if err != nil {
		return models.CreditTransaction{}, err
	}
	next := balance + delta
	if delta < 0 && next < 0 && !e.AllowOverdraft {
		return models.CreditTransaction{}, domain.InsufficientCreditsError{UserID: e.UserID, Balance: balance, Required: -delta}
	}

	now := s.now()
	if err := tx.SetBalance(ctx, e.UserID, next, now); err != nil {
		return models.CreditTransaction{}, err
	}

	ref := e.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	t := models.CreditTransaction{
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       delta,
		BalanceAfter: next,
		Description:  utils.Truncate(utils.NormalizeSpace(e.Description), 500),
		BookingID:    e.BookingID,
		TripID:       e.TripID,
		Reference:    ref,
		CreatedAt:    now,
	}
	if err := tx.AppendTransaction(ctx, &t); err != nil {
		return models.CreditTransaction{}, err
	}
	return t, nil
}

// Purchase records credits bought with real money. reference is the payment
// id; recording the same payment twice is a conflict.
func (s LedgerService) Purchase(ctx context.Context, actor domain.RequestContext, userID, amount int64, reference string) (models.CreditTransaction, error) {
	if !actor.IsAdmin() {
		return models.CreditTransaction{}, domain.ForbiddenError{Msg: "only admins can record purchases"}
	}
	reference = utils.TrimOrEmpty(reference)
	if reference == "" {
		return models.CreditTransaction{}, domain.ValidationError{Field: "reference", Msg: "payment reference is required"}
	}

	var out models.CreditTransaction
	err := s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		var err error
		out, err = s.Credit(ctx, tx, LedgerEntry{
			UserID:      userID,
			Amount:      amount,
			Type:        models.TxPurchase,
			Description: fmt.Sprintf("Purchased %s", utils.FormatCredits(amount)),
			Reference:   "purchase:" + reference,
		})
		return err
	})
	if err != nil {
		return models.CreditTransaction{}, wrapInternal(err)
	}
	utils.LogEvent(s.RequestID, "ledger", "purchase", fmt.Sprintf("user_id=%d amount=%d", userID, amount))
	return out, nil
}

// Adjust applies an admin correction of either sign. Negative adjustments may
// not take the balance below zero.
func (s LedgerService) Adjust(ctx context.Context, actor domain.RequestContext, userID, delta int64, reason string) (models.CreditTransaction, error) {
	if !actor.IsAdmin() {
		return models.CreditTransaction{}, domain.ForbiddenError{Msg: "only admins can adjust balances"}
	}
	if delta == 0 {
		return models.CreditTransaction{}, domain.ValidationError{Field: "amount", Msg: "must not be zero"}
	}
	reason = utils.NormalizeSpace(reason)
	if reason == "" {
		return models.CreditTransaction{}, domain.ValidationError{Field: "reason", Msg: "is required"}
	}

	entry := LedgerEntry{
		UserID:      userID,
		Type:        models.TxAdminAdjustment,
		Description: fmt.Sprintf("Adjustment by admin #%d: %s", actor.UserID, reason),
	}
	var out models.CreditTransaction
	err := s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		var err error
		if delta > 0 {
			entry.Amount = delta
			out, err = s.Credit(ctx, tx, entry)
		} else {
			entry.Amount = -delta
			out, err = s.Debit(ctx, tx, entry)
		}
		return err
	})
	if err != nil {
		return models.CreditTransaction{}, wrapInternal(err)
	}
	utils.LogEvent(s.RequestID, "ledger", "adjust", fmt.Sprintf("user_id=%d delta=%d", userID, delta))
	return out, nil
}

func (s LedgerService) Balance(ctx context.Context, actor domain.RequestContext, userID int64) (models.CreditBalance, error) {
	if !actor.CanActFor(userID) {
		return models.CreditBalance{}, domain.ForbiddenError{}
	}
	b, err := s.Store.GetBalance(ctx, userID)
	if err != nil {
		return models.CreditBalance{}, domain.InternalError{Err: err}
	}
	return b, nil
}

func (s LedgerService) Transactions(ctx context.Context, actor domain.RequestContext, userID int64, page domain.Pagination) ([]models.CreditTransaction, domain.Pagination, error) {
	if !actor.CanActFor(userID) {
		return nil, page, domain.ForbiddenError{}
	}
	page = page.Normalize()
	txs, total, err := s.Store.ListTransactions(ctx, userID, page)
	if err != nil {
		return nil, page, domain.InternalError{Err: err}
	}
	page.Total = total
	return txs, page, nil
}

// Reconcile compares the cached balance with the transaction log. With repair
// the cached balance is rewritten from the log.
func (s LedgerService) Reconcile(ctx context.Context, userID int64, repair bool) (models.LedgerCheck, error) {
	check := models.LedgerCheck{UserID: userID}
	err := s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		balance, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := tx.LedgerSum(ctx, userID)
		if err != nil {
			return err
		}
		check.Balance = balance
		check.LedgerSum = sum
		check.Drift = balance - sum
		if repair && check.Drift != 0 {
			if err := tx.SetBalance(ctx, userID, sum, s.now()); err != nil {
				return err
			}
			check.Repaired = true
		}
		return nil
	})
	if err != nil {
		return models.LedgerCheck{}, domain.InternalError{Err: err}
	}
	return check, nil
}

// ReconcileAll checks every user on the ledger and returns the drifted ones.
func (s LedgerService) ReconcileAll(ctx context.Context, repair bool) ([]models.LedgerCheck, error) {
	ids, err := s.Store.LedgerUserIDs(ctx)
	if err != nil {
		return nil, domain.InternalError{Err: err}
	}
	drifted := []models.LedgerCheck{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifted, err
		}
		check, err := s.Reconcile(ctx, id, repair)
		if err != nil {
			return drifted, err
		}
		if !check.Consistent() {
			drifted = append(drifted, check)
		}
	}
	return drifted, nil
}

// ReconcileAndReport runs ReconcileAll and logs every drifted balance.
func (s LedgerService) ReconcileAndReport(ctx context.Context, repair bool) ([]models.LedgerCheck, error) {
	log := utils.GetLogger().With(zap.String("module", "RECONCILE"), zap.String("request_id", s.RequestID))
	drifted, err := s.ReconcileAll(ctx, repair)
	if err != nil {
		log.Error("ledger reconciliation failed", zap.Error(err))
		return drifted, err
	}
	for _, c := range drifted {
		log.Warn("ledger drift",
			zap.Int64("user_id", c.UserID),
			zap.Int64("balance", c.Balance),
			zap.Int64("ledger_sum", c.LedgerSum),
			zap.Bool("repaired", c.Repaired),
		)
	}
	return drifted, nil
}

// ReconcileWorker is the in-process schedule used when no task queue is
// configured (TASK_QUEUE=inline). The asynq scheduler replaces it otherwise.
type ReconcileWorker struct {
	Ledger   LedgerService
	Interval time.Duration
	Repair   bool
}

func (w ReconcileWorker) Run(ctx context.Context) {
	if w.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Ledger.ReconcileAndReport(ctx, w.Repair)
		}
	}
}

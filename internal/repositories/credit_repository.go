package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "shuttle/internal/db"
	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
)

type CreditRepository struct {
	DB intdb.DBTX
}

func (r CreditRepository) db() intdb.DBTX {
	return dbOrGlobal(r.DB)
}

func (r CreditRepository) LockBalance(ctx context.Context, userID int64) (int64, error) {
	db := r.db()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO credit_balances (user_id, credits, updated_at) VALUES (?, 0, ?)
		ON DUPLICATE KEY UPDATE user_id=user_id`, userID, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("ensure balance row for user %d: %w", userID, err)
	}
	var credits int64
	if err := db.QueryRowContext(ctx, `SELECT credits FROM credit_balances WHERE user_id=? FOR UPDATE`, userID).Scan(&credits); err != nil {
		return 0, fmt.Errorf("lock balance for user %d: %w", userID, err)
	}
	return credits, nil
}

func (r CreditRepository) GetBalance(ctx context.Context, userID int64) (models.CreditBalance, error) {
	b := models.CreditBalance{UserID: userID}
	err := r.db().QueryRowContext(ctx, `SELECT credits, updated_at FROM credit_balances WHERE user_id=? LIMIT 1`, userID).
		Scan(&b.Credits, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return models.CreditBalance{}, fmt.Errorf("load balance for user %d: %w", userID, err)
	}
	return b, nil
}

func (r CreditRepository) SetBalance(ctx context.Context, userID, credits int64, at time.Time) error {
	if _, err := r.db().ExecContext(ctx, `UPDATE credit_balances SET credits=?, updated_at=? WHERE user_id=?`, credits, at, userID); err != nil {
		return fmt.Errorf("update balance for user %d: %w", userID, err)
	}
	return nil
}

func (r CreditRepository) AppendTransaction(ctx context.Context, t *models.CreditTransaction) error {
	res, err := r.db().ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, type, amount, balance_after, description, booking_id, trip_id, reference, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		t.UserID, string(t.Type), t.Amount, t.BalanceAfter, t.Description,
		intdb.NullIfZero(t.BookingID), intdb.NullIfZero(t.TripID), t.Reference, t.CreatedAt,
	)
	if err != nil {
		if intdb.IsDuplicateKey(err) {
			return domain.ConflictError{Resource: "credit transaction", Msg: "reference already recorded", Err: err}
		}
		return fmt.Errorf("append %s transaction for user %d: %w", t.Type, t.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append transaction id: %w", err)
	}
	t.ID = id
	return nil
}

func (r CreditRepository) ListTransactions(ctx context.Context, userID int64, page domain.Pagination) ([]models.CreditTransaction, int, error) {
	page = page.Normalize()
	db := r.db()

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credit_transactions WHERE user_id=?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions for user %d: %w", userID, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, balance_after, description, booking_id, trip_id, reference, created_at
		FROM credit_transactions
		WHERE user_id=?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, userID, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	out := []models.CreditTransaction{}
	for rows.Next() {
		var t models.CreditTransaction
		var typ string
		var booking, trip sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.BalanceAfter, &t.Description, &booking, &trip, &t.Reference, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = models.TransactionType(typ)
		t.BookingID = intdb.Int64Ptr(booking)
		t.TripID = intdb.Int64Ptr(trip)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list transactions for user %d: %w", userID, err)
	}
	return out, total, nil
}

func (r CreditRepository) LedgerSum(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	if err := r.db().QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0) FROM credit_transactions WHERE user_id=?`, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger for user %d: %w", userID, err)
	}
	return sum, nil
}

// LedgerUserIDs lists every user with a balance row or a transaction.
func (r CreditRepository) LedgerUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db().QueryContext(ctx, `
		SELECT user_id FROM credit_balances
		UNION
		SELECT DISTINCT user_id FROM credit_transactions
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list ledger users: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ledger user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

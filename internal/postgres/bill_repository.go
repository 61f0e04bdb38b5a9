package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"billtracker/internal/core"
	"billtracker/internal/remote"
)

var _ remote.BillRepository = (*BillRepository)(nil)

// BillRepository handles bill persistence.
type BillRepository struct {
	db *DB
}

func NewBillRepository(db *DB) *BillRepository {
	return &BillRepository{db: db}
}

func (r *BillRepository) ListBills(ctx context.Context, userID string) ([]core.Bill, error) {
	query := `
		SELECT id::text, name, amount::text, category, due_date, is_paid, is_recurring, frequency, description
		FROM bills
		WHERE user_id = $1
		ORDER BY due_date ASC, id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}
	return bills, nil
}

func (r *BillRepository) InsertBill(ctx context.Context, userID string, d core.BillDraft) (core.Bill, error) {
	b := d.Bill(uuid.New().String())

	query := `
		INSERT INTO bills (id, user_id, name, amount, category, due_date, is_paid, is_recurring, frequency, description)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		b.ID,
		userID,
		b.Name,
		b.Amount.StringFixed(2),
		b.Category,
		b.DueDate.Time,
		b.IsPaid,
		b.IsRecurring,
		string(b.Frequency),
		optional(b.Description),
	)
	if err != nil {
		return core.Bill{}, fmt.Errorf("failed to insert bill: %w", translate(err))
	}
	return b, nil
}

func (r *BillRepository) UpdateBill(ctx context.Context, userID, id string, d core.BillDraft) error {
	if uuid.Validate(id) != nil {
		return core.ErrNotFound
	}
	query := `
		UPDATE bills
		SET name = $3, amount = $4::numeric, category = $5, due_date = $6, is_paid = $7,
		    is_recurring = $8, frequency = $9, description = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.db.Pool().Exec(ctx, query,
		id,
		userID,
		d.Name,
		d.Amount.StringFixed(2),
		d.Category,
		d.DueDate.Time,
		d.IsPaid,
		d.IsRecurring,
		string(d.Frequency),
		optional(d.Description),
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", translate(err))
	}
	return expectRow(tag)
}

func (r *BillRepository) SetBillPaid(ctx context.Context, userID, id string, paid bool) error {
	if uuid.Validate(id) != nil {
		return core.ErrNotFound
	}
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE bills SET is_paid = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		id, userID, paid)
	if err != nil {
		return fmt.Errorf("failed to set bill paid: %w", err)
	}
	return expectRow(tag)
}

func (r *BillRepository) DeleteBill(ctx context.Context, userID, id string) error {
	if uuid.Validate(id) != nil {
		return core.ErrNotFound
	}
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM bills WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	return expectRow(tag)
}

func scanBill(row pgx.Row) (core.Bill, error) {
	var (
		b      core.Bill
		amount string
		due    time.Time
		freq   string
		desc   *string
	)
	if err := row.Scan(&b.ID, &b.Name, &amount, &b.Category, &due, &b.IsPaid, &b.IsRecurring, &freq, &desc); err != nil {
		return core.Bill{}, fmt.Errorf("failed to scan bill: %w", err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Bill{}, fmt.Errorf("failed to parse amount for bill %s: %w", b.ID, err)
	}
	b.Amount = amt
	b.DueDate = core.DateOf(due)
	b.Frequency = core.Frequency(freq)
	if desc != nil {
		b.Description = *desc
	}
	return b, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

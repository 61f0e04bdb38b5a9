// Package storage implements the remote store ports on an embedded SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"billtracker/internal/core"
	"billtracker/internal/remote"
)

var (
	_ remote.BillRepository     = (*SQLiteRepository)(nil)
	_ remote.CategoryRepository = (*SQLiteRepository)(nil)
	_ remote.UserRepository     = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const billColumns = `id, name, amount, category, due_date, is_paid, is_recurring, frequency, description`

func (r *SQLiteRepository) ListBills(ctx context.Context, userID string) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE user_id = ? ORDER BY due_date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
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
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, nil
}

func (r *SQLiteRepository) InsertBill(ctx context.Context, userID string, d core.BillDraft) (core.Bill, error) {
	b := d.Bill(uuid.NewString())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bills (id, user_id, name, amount, category, due_date, is_paid, is_recurring, frequency, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, userID, b.Name, b.Amount.StringFixed(2), b.Category, b.DueDate.String(),
		b.IsPaid, b.IsRecurring, string(b.Frequency), nullString(b.Description))
	if err != nil {
		return core.Bill{}, fmt.Errorf("insert bill: %w", translate(err))
	}

	slog.DebugContext(ctx, "Bill saved to SQLite", "id", b.ID, "due_date", b.DueDate.String())
	return b, nil
}

func (r *SQLiteRepository) UpdateBill(ctx context.Context, userID, id string, d core.BillDraft) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bills SET name = ?, amount = ?, category = ?, due_date = ?, is_paid = ?, is_recurring = ?,
		        frequency = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		d.Name, d.Amount.StringFixed(2), d.Category, d.DueDate.String(), d.IsPaid, d.IsRecurring,
		string(d.Frequency), nullString(d.Description), id, userID)
	if err != nil {
		return fmt.Errorf("update bill: %w", translate(err))
	}
	return expectRow(res, "update bill")
}

func (r *SQLiteRepository) SetBillPaid(ctx context.Context, userID, id string, paid bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bills SET is_paid = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`,
		paid, id, userID)
	if err != nil {
		return fmt.Errorf("set bill paid: %w", err)
	}
	return expectRow(res, "set bill paid")
}

func (r *SQLiteRepository) DeleteBill(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bills WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	return expectRow(res, "delete bill")
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM custom_categories WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLiteRepository) InsertCategory(ctx context.Context, userID, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO custom_categories (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return fmt.Errorf("insert category: %w", translate(err))
	}
	return nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, name string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM custom_categories WHERE user_id = ? AND name = ?`, userID, name); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return r.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query, arg string) (*core.User, error) {
	var (
		u       core.User
		created string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		u.CreatedAt = t
	}
	return &u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBill(s scanner) (core.Bill, error) {
	var (
		b                core.Bill
		amount, due, frq string
		desc             sql.NullString
	)
	if err := s.Scan(&b.ID, &b.Name, &amount, &b.Category, &due, &b.IsPaid, &b.IsRecurring, &frq, &desc); err != nil {
		return core.Bill{}, fmt.Errorf("scan bill: %w", err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse amount for bill %s: %w", b.ID, err)
	}
	date, err := core.ParseDate(due)
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse due date for bill %s: %w", b.ID, err)
	}
	b.Amount = amt
	b.DueDate = date
	b.Frequency = core.Frequency(frq)
	b.Description = desc.String
	return b, nil
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// translate maps uniqueness violations to core.ErrDuplicate.
func translate(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return core.ErrDuplicate
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
		return core.ErrDuplicate
	}
	return err
}

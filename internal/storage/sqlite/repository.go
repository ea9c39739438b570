// Package sqlite implements the persistence adapter over a row-oriented
// SQL store. Every query carries an owner predicate taken from the
// authenticated principal, so one user's rows are never visible to
// another regardless of what a row payload claims.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/storage"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- UserStore ---

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, storage.ErrConflict
		}
		return core.User{}, wrapUnavailable("insert user", err)
	}
	return u, nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at
		 FROM users WHERE email = ?`, email))
}

func (r *Repository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at
		 FROM users WHERE id = ?`, id))
}

func (r *Repository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, storage.ErrNotFound
	}
	if err != nil {
		return core.User{}, wrapUnavailable("select user", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return u, nil
}

// --- WalletStore ---

func (r *Repository) LoadWallets(ctx context.Context, owner string) ([]core.Wallet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, type, color_tag, opening_cents, balance_cents
		 FROM wallets WHERE owner_id = ?`, owner)
	if err != nil {
		return nil, wrapUnavailable("select wallets", err)
	}
	defer rows.Close()

	var out []core.Wallet
	for rows.Next() {
		var w core.Wallet
		var typ string
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Name, &typ, &w.ColorTag, &w.Opening.Cents, &w.Balance.Cents); err != nil {
			return nil, wrapUnavailable("scan wallet", err)
		}
		w.Type = core.WalletType(typ)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate wallets", err)
	}
	return out, nil
}

func (r *Repository) InsertWallet(ctx context.Context, w core.Wallet) (core.Wallet, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallets (id, owner_id, name, type, color_tag, opening_cents, balance_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Name, string(w.Type), w.ColorTag, w.Opening.Cents, w.Balance.Cents)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Wallet{}, storage.ErrConflict
		}
		return core.Wallet{}, wrapUnavailable("insert wallet", err)
	}
	return w, nil
}

func (r *Repository) UpdateWalletBalance(ctx context.Context, owner, id string, balance core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = ? WHERE id = ? AND owner_id = ?`,
		balance.Cents, id, owner)
	if err != nil {
		return wrapUnavailable("update wallet balance", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapUnavailable("update wallet balance", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteWallet(ctx context.Context, owner, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM wallets WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return wrapUnavailable("delete wallet", err)
	}
	return nil
}

func (r *Repository) DeleteAllWallets(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM wallets WHERE owner_id = ?`, owner)
	if err != nil {
		return wrapUnavailable("delete wallets", err)
	}
	return nil
}

// --- TransactionStore ---

func (r *Repository) LoadTransactions(ctx context.Context, owner string) ([]core.Transaction, error) {
	// Dates are stored as UTC RFC3339 text, so lexical order is
	// chronological; rowid breaks ties by insertion order.
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, wallet_id, amount_cents, category, kind, date
		 FROM transactions WHERE owner_id = ?
		 ORDER BY date DESC, rowid DESC`, owner)
	if err != nil {
		return nil, wrapUnavailable("select transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var kind, date string
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.WalletID, &t.Amount.Cents, &t.Category, &kind, &date); err != nil {
			return nil, wrapUnavailable("scan transaction", err)
		}
		t.Kind = core.TxKind(kind)
		t.Date, _ = time.Parse(time.RFC3339, date)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate transactions", err)
	}
	return out, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, owner_id, wallet_id, amount_cents, category, kind, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.WalletID, t.Amount.Cents, t.Category, string(t.Kind),
		t.Date.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Transaction{}, storage.ErrConflict
		}
		return core.Transaction{}, wrapUnavailable("insert transaction", err)
	}
	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, owner, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return wrapUnavailable("delete transaction", err)
	}
	return nil
}

func (r *Repository) DeleteAllTransactions(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = ?`, owner)
	if err != nil {
		return wrapUnavailable("delete transactions", err)
	}
	return nil
}

// --- BudgetStore ---

func (r *Repository) LoadBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner_id, category, limit_cents FROM budgets WHERE owner_id = ?`, owner)
	if err != nil {
		return nil, wrapUnavailable("select budgets", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.OwnerID, &b.Category, &b.Limit.Cents); err != nil {
			return nil, wrapUnavailable("scan budget", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate budgets", err)
	}
	return out, nil
}

func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (owner_id, category, limit_cents) VALUES (?, ?, ?)
		 ON CONFLICT (owner_id, category) DO UPDATE SET limit_cents = excluded.limit_cents`,
		b.OwnerID, b.Category, b.Limit.Cents)
	if err != nil {
		return wrapUnavailable("upsert budget", err)
	}
	return nil
}

func (r *Repository) DeleteBudget(ctx context.Context, owner, category string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE owner_id = ? AND category = ?`, owner, category)
	if err != nil {
		return wrapUnavailable("delete budget", err)
	}
	return nil
}

func (r *Repository) DeleteAllBudgets(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE owner_id = ?`, owner)
	if err != nil {
		return wrapUnavailable("delete budgets", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", storage.ErrUnavailable, op, err)
}

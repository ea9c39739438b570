package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Bank        WalletType = "Bank"
	Cash        WalletType = "Cash"
	Savings     WalletType = "Savings"
	CreditCard  WalletType = "CreditCard"
	MobileMoney WalletType = "MobileMoney"
)

const (
	Expense TxKind = "expense"
	Income  TxKind = "income"
)

type (
	WalletType string

	TxKind string

	// User is an account holder. Users are created at registration and
	// never destroyed by the core.
	User struct {
		ID           string
		Email        string
		DisplayName  string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Principal identifies the authenticated user bound to a session.
	// DisplayName may be empty; consumers fall back to a placeholder.
	Principal struct {
		UserID      string
		Email       string
		DisplayName string
	}

	// Wallet is a named container holding a monetary balance. Balance is
	// materialized: it equals the opening position plus the signed sum of
	// all transactions referencing the wallet. Opening is recorded on the
	// row itself and never appears in the transaction log.
	Wallet struct {
		ID       string
		OwnerID  string
		Name     string
		Type     WalletType
		ColorTag string
		Opening  Money
		Balance  Money
	}

	// Transaction is a signed monetary movement attributed to one wallet
	// and one category. Expenses carry negative amounts, income positive.
	Transaction struct {
		ID       string
		OwnerID  string
		WalletID string
		Amount   Money
		Category string
		Kind     TxKind
		Date     time.Time
	}

	// Budget is an advisory spending limit per category. At most one
	// budget exists per (owner, category).
	Budget struct {
		OwnerID  string
		Category string
		Limit    Money
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrUnknownWallet    = errors.New("unknown wallet")
	ErrWalletInUse      = errors.New("wallet has transactions")
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmailInUse       = errors.New("email already in use")
	ErrWeakPassword     = errors.New("password too weak")
	ErrAuthFailed       = errors.New("authentication failed")
)

// IsValid returns true if the wallet type is one of the known kinds.
func (wt WalletType) IsValid() bool {
	switch wt {
	case Bank, Cash, Savings, CreditCard, MobileMoney:
		return true
	default:
		return false
	}
}

// IsValid returns true for the two supported transaction kinds.
func (k TxKind) IsValid() bool {
	return k == Expense || k == Income
}

// Signed converts an absolute amount to the signed form mandated by the
// kind: expenses are negative, income positive.
func (k TxKind) Signed(abs Money) Money {
	if k == Expense {
		return Money{Cents: -abs.Cents}
	}
	return Money{Cents: abs.Cents}
}

// KindOf derives the transaction kind from a signed amount.
func KindOf(amount Money) TxKind {
	if amount.Cents < 0 {
		return Expense
	}
	return Income
}

func (w Wallet) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrInvalidName
	}
	if len(w.Name) > 100 {
		return ErrInvalidName
	}
	if !w.Type.IsValid() {
		return errors.New("invalid wallet type")
	}
	return nil
}

// Validate checks the sign/kind coherence of a fully formed transaction:
// the amount must be non-zero, and its sign must match the kind.
func (t Transaction) Validate() error {
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if !t.Kind.IsValid() {
		return errors.New("invalid transaction kind")
	}
	if t.Kind == Expense && t.Amount.Cents > 0 {
		return ErrInvalidAmount
	}
	if t.Kind == Income && t.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if t.WalletID == "" {
		return ErrUnknownWallet
	}
	if t.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return errors.New("empty category")
	}
	if b.Limit.Cents < 0 {
		return ErrInvalidLimit
	}
	return nil
}

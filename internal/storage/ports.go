// Package storage defines the persistence adapter contract shared by the
// local file-backed adapter and the sqlite adapter. All reads and writes
// are scoped to an owner id supplied by the caller from the authenticated
// principal, never taken from row payloads.
package storage

import (
	"context"
	"errors"

	"github.com/Joram-tec/expense-pro/internal/core"
)

// Well-known collection keys of the local adapter.
const (
	KeyUsers        = "ep_users"
	KeyCurrentUser  = "ep_current_user"
	KeyWallets      = "ep_wallets"
	KeyTransactions = "ep_transactions"
	KeyBudgets      = "ep_budgets"
)

var (
	// ErrNotFound reports a missing row for owner-scoped updates.
	ErrNotFound = errors.New("storage: row not found")
	// ErrConflict reports a uniqueness violation (e.g. duplicate email).
	ErrConflict = errors.New("storage: conflict")
	// ErrUnavailable reports a transient adapter failure; callers may retry.
	ErrUnavailable = errors.New("storage: unavailable")
)

// Ports for persistence adapters.
type (
	UserStore interface {
		// CreateUser inserts a user; ErrConflict if the email is taken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		// UserByEmail returns ErrNotFound for unknown addresses.
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id string) (core.User, error)
	}

	WalletStore interface {
		// LoadWallets returns all wallets owned by owner.
		LoadWallets(ctx context.Context, owner string) ([]core.Wallet, error)
		// InsertWallet stores the wallet and returns it with its assigned id.
		// The row is durable before the call returns.
		InsertWallet(ctx context.Context, w core.Wallet) (core.Wallet, error)
		// UpdateWalletBalance patches the materialized balance of one wallet.
		UpdateWalletBalance(ctx context.Context, owner, id string, balance core.Money) error
		// DeleteWallet is idempotent; deleting an absent row succeeds.
		DeleteWallet(ctx context.Context, owner, id string) error
		DeleteAllWallets(ctx context.Context, owner string) error
	}

	TransactionStore interface {
		// LoadTransactions returns the owner's transactions ordered by
		// date descending, then insertion order descending.
		LoadTransactions(ctx context.Context, owner string) ([]core.Transaction, error)
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// DeleteTransaction is idempotent; deleting an absent row succeeds.
		DeleteTransaction(ctx context.Context, owner, id string) error
		DeleteAllTransactions(ctx context.Context, owner string) error
	}

	BudgetStore interface {
		LoadBudgets(ctx context.Context, owner string) ([]core.Budget, error)
		// UpsertBudget atomically inserts or replaces on (owner, category).
		UpsertBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, owner, category string) error
		DeleteAllBudgets(ctx context.Context, owner string) error
	}

	// PrincipalCache persists the signed-in principal between restarts.
	// Only the local adapter implements it; the session service probes for
	// it with a type assertion.
	PrincipalCache interface {
		SaveCurrentPrincipal(ctx context.Context, p *core.Principal) error
		LoadCurrentPrincipal(ctx context.Context) (*core.Principal, error)
	}
)

// Store is the full persistence adapter surface the composition root wires.
type Store interface {
	UserStore
	WalletStore
	TransactionStore
	BudgetStore
}

package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/storage"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dir
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, core.User{Email: "Ada@Example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected minted id")
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}

	if _, err := s.CreateUser(ctx, core.User{Email: "ada@example.com"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}

	got, err := s.UserByEmail(ctx, "ADA@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("UserByEmail = %+v, %v", got, err)
	}
	if _, err := s.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing user: got %v, want ErrNotFound", err)
	}
}

func TestWalletRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	w, err := s.InsertWallet(ctx, core.Wallet{
		OwnerID: "u1",
		Name:    "Checking",
		Type:    core.Bank,
		Opening: core.Money{Cents: 1000},
		Balance: core.Money{Cents: 1000},
	})
	if err != nil {
		t.Fatalf("InsertWallet: %v", err)
	}

	if err := s.UpdateWalletBalance(ctx, "u1", w.ID, core.Money{Cents: 2500}); err != nil {
		t.Fatalf("UpdateWalletBalance: %v", err)
	}
	if err := s.UpdateWalletBalance(ctx, "u1", "missing", core.Money{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown wallet: got %v, want ErrNotFound", err)
	}
	if err := s.UpdateWalletBalance(ctx, "other", w.ID, core.Money{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("wrong owner: got %v, want ErrNotFound", err)
	}

	wallets, err := s.LoadWallets(ctx, "u1")
	if err != nil || len(wallets) != 1 {
		t.Fatalf("LoadWallets = %v, %v", wallets, err)
	}
	if wallets[0].Balance.Cents != 2500 || wallets[0].Opening.Cents != 1000 {
		t.Fatalf("wallet state = %+v", wallets[0])
	}

	// Other owners see nothing.
	other, _ := s.LoadWallets(ctx, "u2")
	if len(other) != 0 {
		t.Fatalf("owner isolation violated: %v", other)
	}
}

func TestTransactionOrdering(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
	}

	for _, d := range []int{10, 25, 17} {
		_, err := s.InsertTransaction(ctx, core.Transaction{
			OwnerID:  "u1",
			WalletID: "w1",
			Amount:   core.Money{Cents: -100},
			Kind:     core.Expense,
			Date:     day(d),
		})
		if err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}

	txs, err := s.LoadTransactions(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions", len(txs))
	}
	if txs[0].Date.Day() != 25 || txs[1].Date.Day() != 17 || txs[2].Date.Day() != 10 {
		t.Fatalf("not date descending: %v %v %v", txs[0].Date, txs[1].Date, txs[2].Date)
	}
}

func TestDeleteTransactionIsIdempotent(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	tx, err := s.InsertTransaction(ctx, core.Transaction{
		OwnerID:  "u1",
		WalletID: "w1",
		Amount:   core.Money{Cents: -50},
		Kind:     core.Expense,
		Date:     time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	if err := s.DeleteTransaction(ctx, "u1", tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	// Deleting again is not an error.
	if err := s.DeleteTransaction(ctx, "u1", tx.ID); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}

	txs, _ := s.LoadTransactions(ctx, "u1")
	if len(txs) != 0 {
		t.Fatalf("transaction survived delete: %v", txs)
	}
}

func TestUpsertBudgetReplacesLimit(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	b := core.Budget{OwnerID: "u1", Category: "Food", Limit: core.Money{Cents: 5000}}
	if err := s.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	b.Limit = core.Money{Cents: 7500}
	if err := s.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("second UpsertBudget: %v", err)
	}

	budgets, err := s.LoadBudgets(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadBudgets: %v", err)
	}
	if len(budgets) != 1 || budgets[0].Limit.Cents != 7500 {
		t.Fatalf("budgets = %+v", budgets)
	}

	if err := s.DeleteBudget(ctx, "u1", "Food"); err != nil {
		t.Fatalf("DeleteBudget: %v", err)
	}
	budgets, _ = s.LoadBudgets(ctx, "u1")
	if len(budgets) != 0 {
		t.Fatalf("budget survived delete: %v", budgets)
	}
}

func TestPrincipalCacheRoundTrip(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	p := &core.Principal{UserID: "u1", Email: "ada@example.com", DisplayName: "Ada"}
	if err := s.SaveCurrentPrincipal(ctx, p); err != nil {
		t.Fatalf("SaveCurrentPrincipal: %v", err)
	}

	// A fresh handle over the same directory sees the session.
	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.LoadCurrentPrincipal(ctx)
	if err != nil || got == nil || got.UserID != "u1" {
		t.Fatalf("LoadCurrentPrincipal = %+v, %v", got, err)
	}

	if err := s.SaveCurrentPrincipal(ctx, nil); err != nil {
		t.Fatalf("clear principal: %v", err)
	}
	got, err = s.LoadCurrentPrincipal(ctx)
	if err != nil || got != nil {
		t.Fatalf("cleared principal = %+v, %v", got, err)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	w, _ := s.InsertWallet(ctx, core.Wallet{OwnerID: "u1", Name: "Cash", Type: core.Cash})
	tx, _ := s.InsertTransaction(ctx, core.Transaction{
		OwnerID:  "u1",
		WalletID: w.ID,
		Amount:   core.Money{Cents: -300},
		Kind:     core.Expense,
		Date:     time.Now().UTC(),
	})

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	wallets, _ := reopened.LoadWallets(ctx, "u1")
	txs, _ := reopened.LoadTransactions(ctx, "u1")
	if len(wallets) != 1 || wallets[0].ID != w.ID {
		t.Fatalf("wallets after restart: %+v", wallets)
	}
	if len(txs) != 1 || txs[0].ID != tx.ID || txs[0].Amount.Cents != -300 {
		t.Fatalf("transactions after restart: %+v", txs)
	}

	// The id watermark moves forward across restarts.
	w2, err := reopened.InsertWallet(ctx, core.Wallet{OwnerID: "u1", Name: "Bank", Type: core.Bank})
	if err != nil {
		t.Fatalf("InsertWallet after restart: %v", err)
	}
	if w2.ID <= w.ID && len(w2.ID) == len(w.ID) {
		t.Fatalf("id watermark regressed: %s after %s", w2.ID, w.ID)
	}
}

package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/events"
	applog "github.com/Joram-tec/expense-pro/internal/log"
)

// AddTransactionInput carries the absolute amount; the kind supplies the
// sign.
type AddTransactionInput struct {
	AmountCents int64
	Kind        core.TxKind
	Category    string
	WalletID    string
	Date        time.Time
}

// AddWalletInput describes a new wallet. The initial balance is an
// opening position recorded on the wallet row, not a transaction.
type AddWalletInput struct {
	Name         string
	Type         core.WalletType
	ColorTag     string
	OpeningCents int64
}

// AddTransaction inserts a transaction and moves its wallet's balance by
// the signed amount, atomically from the caller's point of view: if the
// balance write fails, the inserted row is deleted again.
func (s *Store) AddTransaction(ctx context.Context, in AddTransactionInput) (core.Transaction, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return core.Transaction{}, err
	}
	if in.AmountCents <= 0 {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	if !in.Kind.IsValid() {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	s.mu.RLock()
	wallet, ok := s.wallets[in.WalletID]
	s.mu.RUnlock()
	if !ok {
		return core.Transaction{}, core.ErrUnknownWallet
	}

	tx := core.Transaction{
		OwnerID:  p.UserID,
		WalletID: in.WalletID,
		Amount:   in.Kind.Signed(core.Money{Cents: in.AmountCents}),
		Category: strings.TrimSpace(in.Category),
		Kind:     in.Kind,
		Date:     in.Date,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err = s.adapter.InsertTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, &PersistenceError{Op: "insert transaction", Err: err}
	}

	newBalance := wallet.Balance.Add(tx.Amount)
	if err := s.adapter.UpdateWalletBalance(ctx, p.UserID, wallet.ID, newBalance); err != nil {
		// Compensate: take the just-inserted row back out.
		if derr := s.adapter.DeleteTransaction(ctx, p.UserID, tx.ID); derr != nil {
			s.logger.ErrorContext(ctx, "Compensating delete failed, balance repair will fix on next hydration",
				applog.FieldTxID, tx.ID, applog.FieldError, derr)
		}
		return core.Transaction{}, &PersistenceError{Op: "update wallet balance", Err: err}
	}

	s.mu.Lock()
	wallet.Balance = newBalance
	s.wallets[wallet.ID] = wallet
	s.txs = insertOrdered(s.txs, tx)
	s.epoch++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction added",
		applog.FieldTxID, tx.ID,
		applog.FieldWalletID, wallet.ID,
		applog.FieldAmountCents, tx.Amount.Cents,
		applog.FieldCategory, tx.Category)
	s.notify()
	s.publish(ctx, &events.LedgerEvent{
		Kind:        events.KindTransactionCreated,
		OwnerID:     p.UserID,
		TxID:        tx.ID,
		WalletID:    wallet.ID,
		Category:    tx.Category,
		AmountCents: tx.Amount.Cents,
	})
	return tx, nil
}

// DeleteTransaction removes a transaction and reverses its effect on the
// wallet balance using the original signed amount, so the round trip is
// exact. A transaction whose wallet is gone is reaped without a balance
// write.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return err
	}

	s.mu.RLock()
	idx := -1
	for i, t := range s.txs {
		if t.ID == id {
			idx = i
			break
		}
	}
	var tx core.Transaction
	if idx >= 0 {
		tx = s.txs[idx]
	}
	wallet, walletOK := core.Wallet{}, false
	if idx >= 0 {
		wallet, walletOK = s.wallets[tx.WalletID]
	}
	s.mu.RUnlock()

	if idx < 0 {
		return core.ErrNotFound
	}

	if err := s.adapter.DeleteTransaction(ctx, p.UserID, id); err != nil {
		return &PersistenceError{Op: "delete transaction", Err: err}
	}

	if walletOK {
		newBalance := wallet.Balance.Sub(tx.Amount)
		if err := s.adapter.UpdateWalletBalance(ctx, p.UserID, wallet.ID, newBalance); err != nil {
			// Compensate: put the row back so no half-applied state survives.
			if _, rerr := s.adapter.InsertTransaction(ctx, tx); rerr != nil {
				s.logger.ErrorContext(ctx, "Compensating re-insert failed, balance repair will fix on next hydration",
					applog.FieldTxID, tx.ID, applog.FieldError, rerr)
			}
			return &PersistenceError{Op: "update wallet balance", Err: err}
		}
		wallet.Balance = newBalance
	} else {
		// Dangling row after an out-of-band wallet deletion.
		s.logger.WarnContext(ctx, "Orphan transaction reaped",
			applog.FieldTxID, tx.ID, applog.FieldWalletID, tx.WalletID)
	}

	s.mu.Lock()
	if walletOK {
		s.wallets[wallet.ID] = wallet
	}
	s.txs = append(s.txs[:idx], s.txs[idx+1:]...)
	s.epoch++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction deleted", applog.FieldTxID, id)
	s.notify()
	s.publish(ctx, &events.LedgerEvent{
		Kind:        events.KindTransactionDeleted,
		OwnerID:     p.UserID,
		TxID:        tx.ID,
		WalletID:    tx.WalletID,
		Category:    tx.Category,
		AmountCents: tx.Amount.Cents,
	})
	return nil
}

// AddWallet creates a wallet carrying its opening position.
func (s *Store) AddWallet(ctx context.Context, in AddWalletInput) (core.Wallet, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return core.Wallet{}, err
	}

	w := core.Wallet{
		OwnerID:  p.UserID,
		Name:     strings.TrimSpace(in.Name),
		Type:     in.Type,
		ColorTag: in.ColorTag,
		Opening:  core.Money{Cents: in.OpeningCents},
		Balance:  core.Money{Cents: in.OpeningCents},
	}
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}

	w, err = s.adapter.InsertWallet(ctx, w)
	if err != nil {
		return core.Wallet{}, &PersistenceError{Op: "insert wallet", Err: err}
	}

	s.mu.Lock()
	s.wallets[w.ID] = w
	s.walletOrder = append(s.walletOrder, w.ID)
	s.epoch++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Wallet added", applog.FieldWalletID, w.ID, "name", w.Name)
	s.notify()
	return w, nil
}

// DeleteWallet removes an empty wallet; a wallet still referenced by
// transactions is rejected.
func (s *Store) DeleteWallet(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.wallets[id]
	inUse := false
	for _, t := range s.txs {
		if t.WalletID == id {
			inUse = true
			break
		}
	}
	s.mu.RUnlock()

	if !ok {
		return core.ErrNotFound
	}
	if inUse {
		return core.ErrWalletInUse
	}

	if err := s.adapter.DeleteWallet(ctx, p.UserID, id); err != nil {
		return &PersistenceError{Op: "delete wallet", Err: err}
	}

	s.mu.Lock()
	delete(s.wallets, id)
	for i, wid := range s.walletOrder {
		if wid == id {
			s.walletOrder = append(s.walletOrder[:i], s.walletOrder[i+1:]...)
			break
		}
	}
	s.epoch++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Wallet deleted", applog.FieldWalletID, id)
	s.notify()
	return nil
}

// UpsertBudget sets the advisory limit for a category, keyed by
// (owner, category).
func (s *Store) UpsertBudget(ctx context.Context, category string, limitCents int64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return err
	}
	if limitCents < 0 {
		return core.ErrInvalidLimit
	}

	b := core.Budget{
		OwnerID:  p.UserID,
		Category: strings.TrimSpace(category),
		Limit:    core.Money{Cents: limitCents},
	}
	if err := b.Validate(); err != nil {
		return err
	}

	if err := s.adapter.UpsertBudget(ctx, b); err != nil {
		return &PersistenceError{Op: "upsert budget", Err: err}
	}

	s.mu.Lock()
	s.budgets[b.Category] = b
	s.epoch++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Budget upserted", applog.FieldCategory, b.Category, applog.FieldAmountCents, b.Limit.Cents)
	s.notify()
	return nil
}

// DeleteBudget removes a category's budget.
func (s *Store) DeleteBudget(ctx context.Context, category string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.budgets[category]
	s.mu.RUnlock()
	if !ok {
		return core.ErrNotFound
	}

	if err := s.adapter.DeleteBudget(ctx, p.UserID, category); err != nil {
		return &PersistenceError{Op: "delete budget", Err: err}
	}

	s.mu.Lock()
	delete(s.budgets, category)
	s.epoch++
	s.mu.Unlock()

	s.notify()
	return nil
}

// ResetAccount purges every transaction, budget and wallet owned by the
// principal. Deletion order keeps referential integrity for concurrent
// readers: rows that reference wallets go first. Each step is
// re-issuable, so a partial failure is recovered by calling again.
func (s *Store) ResetAccount(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.currentPrincipal()
	if err != nil {
		return err
	}

	if err := s.adapter.DeleteAllTransactions(ctx, p.UserID); err != nil {
		return &PersistenceError{Op: "purge transactions", Err: err}
	}
	if err := s.adapter.DeleteAllBudgets(ctx, p.UserID); err != nil {
		return &PersistenceError{Op: "purge budgets", Err: err}
	}
	if err := s.adapter.DeleteAllWallets(ctx, p.UserID); err != nil {
		return &PersistenceError{Op: "purge wallets", Err: err}
	}

	s.mu.Lock()
	s.wallets = make(map[string]core.Wallet)
	s.walletOrder = nil
	s.txs = nil
	s.budgets = make(map[string]core.Budget)
	s.epoch++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Account reset", applog.FieldUserID, p.UserID)
	s.notify()
	return nil
}

// insertOrdered places tx by date descending; among equal dates the
// newest insertion comes first.
func insertOrdered(txs []core.Transaction, tx core.Transaction) []core.Transaction {
	idx := len(txs)
	for i, t := range txs {
		if !t.Date.After(tx.Date) {
			idx = i
			break
		}
	}
	txs = append(txs, core.Transaction{})
	copy(txs[idx+1:], txs[idx:])
	txs[idx] = tx
	return txs
}

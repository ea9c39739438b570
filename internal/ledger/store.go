// Package ledger owns the in-memory collections of wallets, transactions
// and budgets, keeps wallet balances consistent with the transaction log,
// and is the single writer for both. Views read through snapshots or
// subscriptions; mutations are serialized so concurrent calls produce a
// consistent end state.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/events"
	applog "github.com/Joram-tec/expense-pro/internal/log"
	"github.com/Joram-tec/expense-pro/internal/storage"
)

// Snapshot is the immutable view delivered to subscribers on every
// committed mutation and on hydration completion. Callers must not
// mutate the contained slices.
type Snapshot struct {
	Wallets      []core.Wallet
	Transactions []core.Transaction
	Budgets      []core.Budget
	Loading      bool
	LoadFailed   bool
	Epoch        uint64
}

// Publisher fans committed mutations out to external consumers. A nil
// publisher disables fan-out; publish failures never fail a mutation.
type Publisher interface {
	Publish(ctx context.Context, event *events.LedgerEvent) error
}

// PersistenceError reports an adapter failure in the middle of a
// mutation, preserving the adapter's original diagnostic.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the ledger state manager. Two locks split its duties: opMu
// serializes mutators across their adapter calls, mu guards the
// in-memory state so reads never observe a partial commit.
type Store struct {
	adapter storage.Store
	pub     Publisher
	logger  *applog.Logger

	opMu sync.Mutex

	mu          sync.RWMutex
	principal   *core.Principal
	wallets     map[string]core.Wallet
	walletOrder []string
	txs         []core.Transaction
	budgets     map[string]core.Budget
	loading     bool
	loadFailed  bool
	epoch       uint64
	subs        map[int]func(Snapshot)
	nextSub     int
}

func NewStore(adapter storage.Store, pub Publisher, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Store{
		adapter: adapter,
		pub:     pub,
		logger:  logger.WithComponent("ledger"),
		wallets: make(map[string]core.Wallet),
		budgets: make(map[string]core.Budget),
		loading: true,
		subs:    make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	wallets := make([]core.Wallet, 0, len(s.walletOrder))
	for _, id := range s.walletOrder {
		wallets = append(wallets, s.wallets[id])
	}
	txs := make([]core.Transaction, len(s.txs))
	copy(txs, s.txs)
	budgets := make([]core.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		budgets = append(budgets, b)
	}
	return Snapshot{
		Wallets:      wallets,
		Transactions: txs,
		Budgets:      budgets,
		Loading:      s.loading,
		LoadFailed:   s.loadFailed,
		Epoch:        s.epoch,
	}
}

// Subscribe registers a listener for committed snapshots. Notifications
// arrive in mutation order. The returned handle unsubscribes and is
// idempotent.
func (s *Store) Subscribe(listener func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// notify delivers the current snapshot to all subscribers. Callers hold
// opMu, which keeps delivery in mutation order.
func (s *Store) notify() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Hydrate loads the principal's collections from the adapter, replacing
// all in-memory state. It runs on startup and on every sign-in. A nil
// principal clears the store (sign-out path).
func (s *Store) Hydrate(ctx context.Context, p *core.Principal) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if p == nil {
		s.clearLocked(nil, false)
		s.notify()
		return nil
	}
	return s.hydrateLocked(ctx, *p)
}

// Retry re-runs a failed hydration for the bound principal.
func (s *Store) Retry(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	p := s.principal
	s.mu.RUnlock()
	if p == nil {
		return core.ErrNotAuthenticated
	}
	return s.hydrateLocked(ctx, *p)
}

// clearLocked resets all collections. Caller holds opMu.
func (s *Store) clearLocked(p *core.Principal, loading bool) {
	s.mu.Lock()
	s.principal = p
	s.wallets = make(map[string]core.Wallet)
	s.walletOrder = nil
	s.txs = nil
	s.budgets = make(map[string]core.Budget)
	s.loading = loading
	s.loadFailed = false
	s.epoch++
	s.mu.Unlock()
}

func (s *Store) hydrateLocked(ctx context.Context, p core.Principal) error {
	s.clearLocked(&p, true)

	var (
		wallets []core.Wallet
		txs     []core.Transaction
		budgets []core.Budget
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.adapter.LoadTransactions(gctx, p.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		wallets, err = s.adapter.LoadWallets(gctx, p.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		budgets, err = s.adapter.LoadBudgets(gctx, p.UserID)
		return err
	})

	if err := g.Wait(); err != nil {
		s.mu.Lock()
		s.loadFailed = true
		s.epoch++
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "Hydration failed", applog.FieldUserID, p.UserID, applog.FieldError, err)
		s.notify()
		return fmt.Errorf("load state: %w", err)
	}

	wallets = s.repairBalances(ctx, p.UserID, wallets, txs)

	s.mu.Lock()
	for _, w := range wallets {
		s.wallets[w.ID] = w
		s.walletOrder = append(s.walletOrder, w.ID)
	}
	s.txs = txs
	for _, b := range budgets {
		s.budgets[b.Category] = b
	}
	s.loading = false
	s.loadFailed = false
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger hydrated",
		applog.FieldUserID, p.UserID,
		"wallets", len(wallets),
		"transactions", len(txs),
		"budgets", len(budgets),
		applog.FieldEpoch, epoch)
	s.notify()
	return nil
}

// repairBalances revalidates balance coherence: each wallet's stored
// balance must equal its opening position plus the signed sum of its
// transactions. The recomputed value wins and is written back.
func (s *Store) repairBalances(ctx context.Context, owner string, wallets []core.Wallet, txs []core.Transaction) []core.Wallet {
	sums := make(map[string]int64)
	for _, t := range txs {
		sums[t.WalletID] += t.Amount.Cents
	}

	for i, w := range wallets {
		expected := w.Opening.Cents + sums[w.ID]
		if w.Balance.Cents == expected {
			continue
		}

		s.logger.WarnContext(ctx, "Balance repaired",
			applog.FieldWalletID, w.ID,
			"stored_cents", w.Balance.Cents,
			"recomputed_cents", expected)

		wallets[i].Balance = core.Money{Cents: expected}
		if err := s.adapter.UpdateWalletBalance(ctx, owner, w.ID, wallets[i].Balance); err != nil {
			// Keep the repaired value in memory; the write retries on the
			// next hydration.
			s.logger.WarnContext(ctx, "Failed to persist repaired balance",
				applog.FieldWalletID, w.ID, applog.FieldError, err)
		}
		s.publish(ctx, &events.LedgerEvent{
			Kind:        events.KindBalanceRepaired,
			OwnerID:     owner,
			WalletID:    w.ID,
			AmountCents: expected,
		})
	}
	return wallets
}

// publish emits an event on the fan-out channel; failures are logged and
// never propagate into the mutation result.
func (s *Store) publish(ctx context.Context, event *events.LedgerEvent) {
	if s.pub == nil {
		return
	}
	s.mu.RLock()
	event.Epoch = s.epoch
	s.mu.RUnlock()
	if err := s.pub.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"kind", event.Kind, applog.FieldError, err)
	}
}

// currentPrincipal returns the bound principal or ErrNotAuthenticated.
func (s *Store) currentPrincipal() (core.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return core.Principal{}, core.ErrNotAuthenticated
	}
	return *s.principal, nil
}

package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/events"
	"github.com/Joram-tec/expense-pro/internal/storage"
	"github.com/Joram-tec/expense-pro/internal/storage/local"
)

var errAdapterDown = errors.New("adapter down")

// flakyStore wraps a real adapter with switchable failure points.
type flakyStore struct {
	storage.Store
	failBalance bool
	failLoad    bool
}

func (f *flakyStore) UpdateWalletBalance(ctx context.Context, owner, id string, balance core.Money) error {
	if f.failBalance {
		return errAdapterDown
	}
	return f.Store.UpdateWalletBalance(ctx, owner, id, balance)
}

func (f *flakyStore) LoadTransactions(ctx context.Context, owner string) ([]core.Transaction, error) {
	if f.failLoad {
		return nil, errAdapterDown
	}
	return f.Store.LoadTransactions(ctx, owner)
}

type capturePublisher struct {
	events []events.LedgerEvent
}

func (c *capturePublisher) Publish(_ context.Context, e *events.LedgerEvent) error {
	c.events = append(c.events, *e)
	return nil
}

var ada = core.Principal{UserID: "u1", Email: "ada@example.com"}

func newHydrated(t *testing.T) (*Store, *flakyStore, *capturePublisher) {
	t.Helper()
	adapter, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	flaky := &flakyStore{Store: adapter}
	pub := &capturePublisher{}
	s := NewStore(flaky, pub, nil)
	if err := s.Hydrate(context.Background(), &ada); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	return s, flaky, pub
}

func addWallet(t *testing.T, s *Store, name string, opening int64) core.Wallet {
	t.Helper()
	w, err := s.AddWallet(context.Background(), AddWalletInput{
		Name:         name,
		Type:         core.Bank,
		OpeningCents: opening,
	})
	if err != nil {
		t.Fatalf("AddWallet(%s): %v", name, err)
	}
	return w
}

func TestMutationsRequireAuthentication(t *testing.T) {
	adapter, _ := local.New(t.TempDir())
	s := NewStore(adapter, nil, nil)
	ctx := context.Background()

	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 100, Kind: core.Expense}); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("AddTransaction: got %v, want ErrNotAuthenticated", err)
	}
	if _, err := s.AddWallet(ctx, AddWalletInput{Name: "X", Type: core.Cash}); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("AddWallet: got %v, want ErrNotAuthenticated", err)
	}
	if err := s.ResetAccount(ctx); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("ResetAccount: got %v, want ErrNotAuthenticated", err)
	}
	if err := s.Retry(ctx); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("Retry: got %v, want ErrNotAuthenticated", err)
	}
}

func TestAddTransactionMovesBalance(t *testing.T) {
	s, _, pub := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Checking", 10000)

	var notified []Snapshot
	defer s.Subscribe(func(snap Snapshot) { notified = append(notified, snap) })()

	tx, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 2550,
		Kind:        core.Expense,
		Category:    "Food",
		WalletID:    w.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if tx.Amount.Cents != -2550 {
		t.Fatalf("expense not negated: %d", tx.Amount.Cents)
	}

	snap := s.Snapshot()
	if snap.Wallets[0].Balance.Cents != 7450 {
		t.Fatalf("balance = %d, want 7450", snap.Wallets[0].Balance.Cents)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].ID != tx.ID {
		t.Fatalf("transactions = %+v", snap.Transactions)
	}

	if len(notified) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notified))
	}
	if notified[0].Epoch != snap.Epoch {
		t.Fatalf("notified epoch %d, snapshot epoch %d", notified[0].Epoch, snap.Epoch)
	}

	// Income moves the balance the other way.
	if _, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 550,
		Kind:        core.Income,
		Category:    "Salary",
		WalletID:    w.ID,
	}); err != nil {
		t.Fatalf("income: %v", err)
	}
	if got := s.Snapshot().Wallets[0].Balance.Cents; got != 8000 {
		t.Fatalf("balance after income = %d, want 8000", got)
	}

	var kinds []string
	for _, e := range pub.events {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[0] != events.KindTransactionCreated {
		t.Fatalf("published events = %v", kinds)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Cash", 0)

	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 0, Kind: core.Expense, WalletID: w.ID}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: -100, Kind: core.Expense, WalletID: w.ID}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("negative amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 100, Kind: "refund", WalletID: w.ID}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("bad kind: got %v, want ErrInvalidAmount", err)
	}
	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 100, Kind: core.Expense, WalletID: "missing"}); !errors.Is(err, core.ErrUnknownWallet) {
		t.Fatalf("unknown wallet: got %v, want ErrUnknownWallet", err)
	}

	// One cent is the smallest representable movement.
	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 1, Kind: core.Expense, WalletID: w.ID}); err != nil {
		t.Fatalf("one cent rejected: %v", err)
	}
	if got := s.Snapshot().Wallets[0].Balance.Cents; got != -1 {
		t.Fatalf("balance = %d, want -1", got)
	}
}

func TestDeleteTransactionReversesBalance(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Checking", 5000)

	tx, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 1234,
		Kind:        core.Expense,
		Category:    "Food",
		WalletID:    w.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Transactions) != 0 {
		t.Fatalf("transaction survived: %+v", snap.Transactions)
	}
	if snap.Wallets[0].Balance.Cents != 5000 {
		t.Fatalf("round trip not exact: %d", snap.Wallets[0].Balance.Cents)
	}

	if err := s.DeleteTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestAddTransactionCompensatesOnBalanceFailure(t *testing.T) {
	s, flaky, _ := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Checking", 1000)

	flaky.failBalance = true
	_, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 100,
		Kind:        core.Expense,
		WalletID:    w.ID,
	})
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want PersistenceError", err)
	}
	flaky.failBalance = false

	// The inserted row was taken back out and no state moved.
	snap := s.Snapshot()
	if len(snap.Transactions) != 0 {
		t.Fatalf("orphan row left behind: %+v", snap.Transactions)
	}
	if snap.Wallets[0].Balance.Cents != 1000 {
		t.Fatalf("balance moved: %d", snap.Wallets[0].Balance.Cents)
	}
	persisted, _ := flaky.Store.LoadTransactions(ctx, ada.UserID)
	if len(persisted) != 0 {
		t.Fatalf("adapter kept the row: %+v", persisted)
	}
}

func TestDeleteWalletGuards(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Checking", 0)

	tx, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 100,
		Kind:        core.Expense,
		WalletID:    w.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	if err := s.DeleteWallet(ctx, w.ID); !errors.Is(err, core.ErrWalletInUse) {
		t.Fatalf("wallet in use: got %v, want ErrWalletInUse", err)
	}
	if err := s.DeleteWallet(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown wallet: got %v, want ErrNotFound", err)
	}

	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if err := s.DeleteWallet(ctx, w.ID); err != nil {
		t.Fatalf("DeleteWallet: %v", err)
	}
	if len(s.Snapshot().Wallets) != 0 {
		t.Fatal("wallet survived delete")
	}
}

func TestBudgetLifecycle(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()

	if err := s.UpsertBudget(ctx, "Food", -1); !errors.Is(err, core.ErrInvalidLimit) {
		t.Fatalf("negative limit: got %v, want ErrInvalidLimit", err)
	}

	if err := s.UpsertBudget(ctx, "Food", 5000); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if err := s.UpsertBudget(ctx, "Food", 7500); err != nil {
		t.Fatalf("second UpsertBudget: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Budgets) != 1 || snap.Budgets[0].Limit.Cents != 7500 {
		t.Fatalf("budgets = %+v", snap.Budgets)
	}

	if err := s.DeleteBudget(ctx, "Food"); err != nil {
		t.Fatalf("DeleteBudget: %v", err)
	}
	if err := s.DeleteBudget(ctx, "Food"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestResetAccountPurgesEverything(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Checking", 1000)

	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 100, Kind: core.Expense, WalletID: w.ID}); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if err := s.UpsertBudget(ctx, "Food", 5000); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}

	if err := s.ResetAccount(ctx); err != nil {
		t.Fatalf("ResetAccount: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Wallets) != 0 || len(snap.Transactions) != 0 || len(snap.Budgets) != 0 {
		t.Fatalf("state after reset: %+v", snap)
	}

	// The purge is durable: a fresh hydration sees nothing.
	if err := s.Hydrate(ctx, &ada); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	snap = s.Snapshot()
	if len(snap.Wallets) != 0 || len(snap.Transactions) != 0 || len(snap.Budgets) != 0 {
		t.Fatalf("reset did not persist: %+v", snap)
	}
}

func TestHydrateRepairsBalances(t *testing.T) {
	adapter, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	ctx := context.Background()

	// Seed the adapter behind the ledger's back with a drifted balance.
	w, err := adapter.InsertWallet(ctx, core.Wallet{
		OwnerID: ada.UserID,
		Name:    "Checking",
		Type:    core.Bank,
		Opening: core.Money{Cents: 1000},
		Balance: core.Money{Cents: 9999},
	})
	if err != nil {
		t.Fatalf("InsertWallet: %v", err)
	}
	if _, err := adapter.InsertTransaction(ctx, core.Transaction{
		OwnerID:  ada.UserID,
		WalletID: w.ID,
		Amount:   core.Money{Cents: -300},
		Kind:     core.Expense,
		Date:     time.Now(),
	}); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	pub := &capturePublisher{}
	s := NewStore(adapter, pub, nil)
	if err := s.Hydrate(ctx, &ada); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	snap := s.Snapshot()
	if snap.Wallets[0].Balance.Cents != 700 {
		t.Fatalf("balance = %d, want 700 (opening 1000 - 300)", snap.Wallets[0].Balance.Cents)
	}

	// The repaired value was written back to the adapter.
	persisted, _ := adapter.LoadWallets(ctx, ada.UserID)
	if persisted[0].Balance.Cents != 700 {
		t.Fatalf("persisted balance = %d, want 700", persisted[0].Balance.Cents)
	}

	found := false
	for _, e := range pub.events {
		if e.Kind == events.KindBalanceRepaired && e.WalletID == w.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("no balance.repaired event: %+v", pub.events)
	}
}

func TestFailedHydrationAndRetry(t *testing.T) {
	adapter, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	flaky := &flakyStore{Store: adapter, failLoad: true}
	s := NewStore(flaky, nil, nil)
	ctx := context.Background()

	if err := s.Hydrate(ctx, &ada); err == nil {
		t.Fatal("expected hydration failure")
	}
	snap := s.Snapshot()
	if !snap.LoadFailed {
		t.Fatal("LoadFailed not set")
	}
	if !snap.Loading {
		t.Fatal("store left the loading state despite the failure")
	}

	// A mutation against the broken state still validates against the
	// empty wallet set.
	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 100, Kind: core.Expense, WalletID: "w"}); !errors.Is(err, core.ErrUnknownWallet) {
		t.Fatalf("got %v, want ErrUnknownWallet", err)
	}

	flaky.failLoad = false
	if err := s.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	snap = s.Snapshot()
	if snap.Loading || snap.LoadFailed {
		t.Fatalf("retry did not recover: %+v", snap)
	}
}

func TestSignOutClearsState(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()
	addWallet(t, s, "Checking", 1000)

	if err := s.Hydrate(ctx, nil); err != nil {
		t.Fatalf("Hydrate(nil): %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Wallets) != 0 || snap.Loading {
		t.Fatalf("state after sign-out: %+v", snap)
	}
	if _, err := s.AddTransaction(ctx, AddTransactionInput{AmountCents: 100, Kind: core.Expense, WalletID: "w"}); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("got %v, want ErrNotAuthenticated", err)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	s, _, _ := newHydrated(t)
	ctx := context.Background()
	w := addWallet(t, s, "Checking", 0)

	day := func(d int) time.Time { return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC) }
	for _, d := range []int{12, 3, 20} {
		if _, err := s.AddTransaction(ctx, AddTransactionInput{
			AmountCents: 100,
			Kind:        core.Income,
			WalletID:    w.ID,
			Date:        day(d),
		}); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}

	txs := s.Snapshot().Transactions
	if len(txs) != 3 {
		t.Fatalf("got %d transactions", len(txs))
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].Date.After(txs[i-1].Date) {
			t.Fatalf("not date descending: %v before %v", txs[i-1].Date, txs[i].Date)
		}
	}
}

func TestConcurrentMutatorsSerialize(t *testing.T) {
	s, _, _ := newHydrated(t)
	w := addWallet(t, s, "Main", 100000)
	ctx := context.Background()

	const adds = 50
	var wg sync.WaitGroup
	ids := make(chan string, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.AddTransaction(ctx, AddTransactionInput{
				AmountCents: 100,
				Kind:        core.Expense,
				Category:    "Food",
				WalletID:    w.ID,
			})
			if err != nil {
				t.Errorf("AddTransaction: %v", err)
				return
			}
			ids <- tx.ID
		}()
	}
	wg.Wait()
	close(ids)

	all := make([]string, 0, adds)
	for id := range ids {
		all = append(all, id)
	}
	if len(all) != adds {
		t.Fatalf("committed %d transactions, want %d", len(all), adds)
	}

	const dels = 25
	for _, id := range all[:dels] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.DeleteTransaction(ctx, id); err != nil {
				t.Errorf("DeleteTransaction(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Transactions) != adds-dels {
		t.Fatalf("transactions = %d, want %d", len(snap.Transactions), adds-dels)
	}

	// The end state matches a serial execution: opening plus the signed
	// sum of every surviving transaction, with no lost or double-applied
	// balance step.
	var sum int64
	for _, tx := range snap.Transactions {
		sum += tx.Amount.Cents
	}
	want := 100000 + sum
	if got := snap.Wallets[0].Balance.Cents; got != want {
		t.Fatalf("balance = %d, want %d", got, want)
	}

	stored, err := s.adapter.LoadTransactions(ctx, ada.UserID)
	if err != nil {
		t.Fatalf("LoadTransactions: %v", err)
	}
	if len(stored) != adds-dels {
		t.Fatalf("adapter holds %d transactions, want %d", len(stored), adds-dels)
	}
}

func TestPrincipalChangeIsolatesRows(t *testing.T) {
	adapter, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	s := NewStore(adapter, nil, nil)
	ctx := context.Background()

	if err := s.Hydrate(ctx, &ada); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	w := addWallet(t, s, "Checking", 5000)
	if _, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 100,
		Kind:        core.Expense,
		Category:    "Food",
		WalletID:    w.ID,
	}); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	bob := core.Principal{UserID: "u2", Email: "bob@example.com"}
	if err := s.Hydrate(ctx, &bob); err != nil {
		t.Fatalf("Hydrate as second user: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Wallets) != 0 || len(snap.Transactions) != 0 || len(snap.Budgets) != 0 {
		t.Fatalf("second user sees %d wallets, %d transactions, %d budgets, want none",
			len(snap.Wallets), len(snap.Transactions), len(snap.Budgets))
	}

	// The first user's rows are not addressable either.
	if err := s.DeleteWallet(ctx, w.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("DeleteWallet across users: got %v, want ErrNotFound", err)
	}
	if _, err := s.AddTransaction(ctx, AddTransactionInput{
		AmountCents: 100,
		Kind:        core.Expense,
		WalletID:    w.ID,
	}); !errors.Is(err, core.ErrUnknownWallet) {
		t.Fatalf("AddTransaction across users: got %v, want ErrUnknownWallet", err)
	}

	// Switching back restores the first user's rows untouched.
	if err := s.Hydrate(ctx, &ada); err != nil {
		t.Fatalf("Hydrate back: %v", err)
	}
	snap = s.Snapshot()
	if len(snap.Wallets) != 1 || len(snap.Transactions) != 1 {
		t.Fatalf("first user has %d wallets, %d transactions, want 1 and 1",
			len(snap.Wallets), len(snap.Transactions))
	}
	if got := snap.Wallets[0].Balance.Cents; got != 4900 {
		t.Fatalf("balance after switching back = %d, want 4900", got)
	}
}

func TestOneCentEntriesAccumulateExactly(t *testing.T) {
	s, _, _ := newHydrated(t)
	w := addWallet(t, s, "Coins", 0)
	ctx := context.Background()

	const n = 1000
	for i := 0; i < n; i++ {
		if _, err := s.AddTransaction(ctx, AddTransactionInput{
			AmountCents: 1,
			Kind:        core.Expense,
			Category:    "Fees",
			WalletID:    w.ID,
		}); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}

	snap := s.Snapshot()
	if got := snap.Wallets[0].Balance.Cents; got != -n {
		t.Fatalf("balance = %d cents, want %d", got, -n)
	}
	if got := snap.Wallets[0].Balance.String(); got != "-10.00" {
		t.Fatalf("balance = %q, want -10.00", got)
	}
}

func TestTenCentStepsAreExact(t *testing.T) {
	s, _, _ := newHydrated(t)
	w := addWallet(t, s, "Main", 100000)
	ctx := context.Background()

	for i, want := range []int64{99990, 99980, 99970} {
		if _, err := s.AddTransaction(ctx, AddTransactionInput{
			AmountCents: 10,
			Kind:        core.Expense,
			Category:    "Coffee",
			WalletID:    w.ID,
		}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := s.Snapshot().Wallets[0].Balance.Cents; got != want {
			t.Fatalf("step %d balance = %d, want %d", i, got, want)
		}
	}
}

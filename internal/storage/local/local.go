// Package local implements the persistence adapter over a durable
// key/value area on disk: one JSON document per well-known key, read
// whole and filtered in memory. It mirrors the browser localStorage
// layout of the original app (ep_users, ep_wallets, ...).
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/storage"
)

type (
	userRow struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		DisplayName  string `json:"display_name"`
		PasswordHash string `json:"password_hash"`
		CreatedAt    string `json:"created_at"`
	}

	walletRow struct {
		ID           string `json:"id"`
		OwnerID      string `json:"owner_id"`
		Name         string `json:"name"`
		Type         string `json:"type"`
		ColorTag     string `json:"color_tag"`
		OpeningCents int64  `json:"opening_cents"`
		BalanceCents int64  `json:"balance_cents"`
	}

	txRow struct {
		ID          string `json:"id"`
		OwnerID     string `json:"owner_id"`
		WalletID    string `json:"wallet_id"`
		AmountCents int64  `json:"amount_cents"`
		Category    string `json:"category"`
		Kind        string `json:"kind"`
		Date        string `json:"date"`
	}

	budgetRow struct {
		OwnerID    string `json:"owner_id"`
		Category   string `json:"category"`
		LimitCents int64  `json:"limit_cents"`
	}

	principalRow struct {
		UserID      string `json:"user_id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
)

// Store is a mutex-guarded in-memory copy of the whole database, synced
// to disk on every mutation.
type Store struct {
	mu      sync.Mutex
	dir     string
	users   []userRow
	wallets []walletRow
	txs     []txRow
	budgets []budgetRow
	current *principalRow

	lastID int64
}

// New opens (or creates) the key/value area rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{dir: dir}

	if err := readKey(dir, storage.KeyUsers, &s.users); err != nil {
		return nil, err
	}
	if err := readKey(dir, storage.KeyWallets, &s.wallets); err != nil {
		return nil, err
	}
	if err := readKey(dir, storage.KeyTransactions, &s.txs); err != nil {
		return nil, err
	}
	if err := readKey(dir, storage.KeyBudgets, &s.budgets); err != nil {
		return nil, err
	}
	if err := readKey(dir, storage.KeyCurrentUser, &s.current); err != nil {
		return nil, err
	}

	// Recover the id watermark so restarts keep minting forward.
	for _, w := range s.wallets {
		s.bumpWatermark(w.ID)
	}
	for _, t := range s.txs {
		s.bumpWatermark(t.ID)
	}
	for _, u := range s.users {
		s.bumpWatermark(u.ID)
	}

	return s, nil
}

func (s *Store) bumpWatermark(id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > s.lastID {
		s.lastID = n
	}
}

// nextID mints monotonically increasing integer ids derived from the
// wall clock. If the clock stands still or runs backwards, the previous
// id is bumped instead.
func (s *Store) nextID() string {
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

// --- UserStore ---

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, row := range s.users {
		if row.Email == email {
			return core.User{}, storage.ErrConflict
		}
	}

	if u.ID == "" {
		u.ID = s.nextID()
	}
	u.Email = email
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users = append(s.users, userRow{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	})
	if err := s.writeKey(storage.KeyUsers, s.users); err != nil {
		s.users = s.users[:len(s.users)-1]
		return core.User{}, err
	}
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, row := range s.users {
		if row.Email == email {
			return userFromRow(row), nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.users {
		if row.ID == id {
			return userFromRow(row), nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

// --- WalletStore ---

func (s *Store) LoadWallets(_ context.Context, owner string) ([]core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Wallet
	for _, row := range s.wallets {
		if row.OwnerID == owner {
			out = append(out, walletFromRow(row))
		}
	}
	return out, nil
}

func (s *Store) InsertWallet(_ context.Context, w core.Wallet) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = s.nextID()
	}
	s.wallets = append(s.wallets, walletToRow(w))
	if err := s.writeKey(storage.KeyWallets, s.wallets); err != nil {
		s.wallets = s.wallets[:len(s.wallets)-1]
		return core.Wallet{}, err
	}
	return w, nil
}

func (s *Store) UpdateWalletBalance(_ context.Context, owner, id string, balance core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, row := range s.wallets {
		if row.ID == id && row.OwnerID == owner {
			prev := row.BalanceCents
			s.wallets[i].BalanceCents = balance.Cents
			if err := s.writeKey(storage.KeyWallets, s.wallets); err != nil {
				s.wallets[i].BalanceCents = prev
				return err
			}
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) DeleteWallet(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.wallets[:0]
	for _, row := range s.wallets {
		if row.ID == id && row.OwnerID == owner {
			continue
		}
		kept = append(kept, row)
	}
	s.wallets = kept
	return s.writeKey(storage.KeyWallets, s.wallets)
}

func (s *Store) DeleteAllWallets(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.wallets[:0]
	for _, row := range s.wallets {
		if row.OwnerID != owner {
			kept = append(kept, row)
		}
	}
	s.wallets = kept
	return s.writeKey(storage.KeyWallets, s.wallets)
}

// --- TransactionStore ---

func (s *Store) LoadTransactions(_ context.Context, owner string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, row := range s.txs {
		if row.OwnerID == owner {
			out = append(out, txFromRow(row))
		}
	}
	// Date descending, then insertion order (integer id) descending.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextID()
	}
	s.txs = append(s.txs, txToRow(t))
	if err := s.writeKey(storage.KeyTransactions, s.txs); err != nil {
		s.txs = s.txs[:len(s.txs)-1]
		return core.Transaction{}, err
	}
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.txs[:0]
	for _, row := range s.txs {
		if row.ID == id && row.OwnerID == owner {
			continue
		}
		kept = append(kept, row)
	}
	s.txs = kept
	return s.writeKey(storage.KeyTransactions, s.txs)
}

func (s *Store) DeleteAllTransactions(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.txs[:0]
	for _, row := range s.txs {
		if row.OwnerID != owner {
			kept = append(kept, row)
		}
	}
	s.txs = kept
	return s.writeKey(storage.KeyTransactions, s.txs)
}

// --- BudgetStore ---

func (s *Store) LoadBudgets(_ context.Context, owner string) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Budget
	for _, row := range s.budgets {
		if row.OwnerID == owner {
			out = append(out, core.Budget{
				OwnerID:  row.OwnerID,
				Category: row.Category,
				Limit:    core.Money{Cents: row.LimitCents},
			})
		}
	}
	return out, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, row := range s.budgets {
		if row.OwnerID == b.OwnerID && row.Category == b.Category {
			prev := row.LimitCents
			s.budgets[i].LimitCents = b.Limit.Cents
			if err := s.writeKey(storage.KeyBudgets, s.budgets); err != nil {
				s.budgets[i].LimitCents = prev
				return err
			}
			return nil
		}
	}
	s.budgets = append(s.budgets, budgetRow{
		OwnerID:    b.OwnerID,
		Category:   b.Category,
		LimitCents: b.Limit.Cents,
	})
	if err := s.writeKey(storage.KeyBudgets, s.budgets); err != nil {
		s.budgets = s.budgets[:len(s.budgets)-1]
		return err
	}
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, owner, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.budgets[:0]
	for _, row := range s.budgets {
		if row.OwnerID == owner && row.Category == category {
			continue
		}
		kept = append(kept, row)
	}
	s.budgets = kept
	return s.writeKey(storage.KeyBudgets, s.budgets)
}

func (s *Store) DeleteAllBudgets(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.budgets[:0]
	for _, row := range s.budgets {
		if row.OwnerID != owner {
			kept = append(kept, row)
		}
	}
	s.budgets = kept
	return s.writeKey(storage.KeyBudgets, s.budgets)
}

// --- PrincipalCache ---

func (s *Store) SaveCurrentPrincipal(_ context.Context, p *core.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == nil {
		s.current = nil
	} else {
		s.current = &principalRow{
			UserID:      p.UserID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
		}
	}
	return s.writeKey(storage.KeyCurrentUser, s.current)
}

func (s *Store) LoadCurrentPrincipal(_ context.Context) (*core.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, nil
	}
	return &core.Principal{
		UserID:      s.current.UserID,
		Email:       s.current.Email,
		DisplayName: s.current.DisplayName,
	}, nil
}

// --- blob I/O ---

func readKey(dir, key string, out any) error {
	path := filepath.Join(dir, key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", storage.ErrUnavailable, key, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", storage.ErrUnavailable, key, err)
	}
	return nil
}

// writeKey serializes one collection and replaces its file atomically so
// readers never observe a torn blob.
func (s *Store) writeKey(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", storage.ErrUnavailable, key, err)
	}
	path := filepath.Join(s.dir, key+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", storage.ErrUnavailable, key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", storage.ErrUnavailable, key, err)
	}
	return nil
}

// --- row conversions ---

func userFromRow(row userRow) core.User {
	created, _ := time.Parse(time.RFC3339, row.CreatedAt)
	return core.User{
		ID:           row.ID,
		Email:        row.Email,
		DisplayName:  row.DisplayName,
		PasswordHash: row.PasswordHash,
		CreatedAt:    created,
	}
}

func walletFromRow(row walletRow) core.Wallet {
	return core.Wallet{
		ID:       row.ID,
		OwnerID:  row.OwnerID,
		Name:     row.Name,
		Type:     core.WalletType(row.Type),
		ColorTag: row.ColorTag,
		Opening:  core.Money{Cents: row.OpeningCents},
		Balance:  core.Money{Cents: row.BalanceCents},
	}
}

func walletToRow(w core.Wallet) walletRow {
	return walletRow{
		ID:           w.ID,
		OwnerID:      w.OwnerID,
		Name:         w.Name,
		Type:         string(w.Type),
		ColorTag:     w.ColorTag,
		OpeningCents: w.Opening.Cents,
		BalanceCents: w.Balance.Cents,
	}
}

func txFromRow(row txRow) core.Transaction {
	date, _ := time.Parse(time.RFC3339, row.Date)
	return core.Transaction{
		ID:       row.ID,
		OwnerID:  row.OwnerID,
		WalletID: row.WalletID,
		Amount:   core.Money{Cents: row.AmountCents},
		Category: row.Category,
		Kind:     core.TxKind(row.Kind),
		Date:     date,
	}
}

func txToRow(t core.Transaction) txRow {
	return txRow{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		WalletID:    t.WalletID,
		AmountCents: t.Amount.Cents,
		Category:    t.Category,
		Kind:        string(t.Kind),
		Date:        t.Date.Format(time.RFC3339),
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/ledger"
	"github.com/Joram-tec/expense-pro/internal/query"
)

type walletResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ColorTag     string `json:"color_tag,omitempty"`
	OpeningCents int64  `json:"opening_cents"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Kind        string `json:"kind"`
	Date        string `json:"date"`
}

type budgetStatusResponse struct {
	Category   string `json:"category"`
	LimitCents int64  `json:"limit_cents"`
	SpentCents int64  `json:"spent_cents"`
	Over       bool   `json:"over"`
}

type snapshotResponse struct {
	Wallets      []walletResponse       `json:"wallets"`
	Transactions []transactionResponse  `json:"transactions"`
	Budgets      []budgetStatusResponse `json:"budgets"`
	Loading      bool                   `json:"loading"`
	LoadFailed   bool                   `json:"load_failed"`
	Epoch        uint64                 `json:"epoch"`
}

func toWalletResponse(w core.Wallet) walletResponse {
	return walletResponse{
		ID:           w.ID,
		Name:         w.Name,
		Type:         string(w.Type),
		ColorTag:     w.ColorTag,
		OpeningCents: w.Opening.Cents,
		BalanceCents: w.Balance.Cents,
		Balance:      w.Balance.String(),
	}
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		WalletID:    t.WalletID,
		AmountCents: t.Amount.Cents,
		Amount:      t.Amount.String(),
		Category:    t.Category,
		Kind:        string(t.Kind),
		Date:        t.Date.Format(time.RFC3339),
	}
}

func toSnapshotResponse(snap ledger.Snapshot, now time.Time) snapshotResponse {
	out := snapshotResponse{
		Wallets:      make([]walletResponse, 0, len(snap.Wallets)),
		Transactions: make([]transactionResponse, 0, len(snap.Transactions)),
		Budgets:      []budgetStatusResponse{},
		Loading:      snap.Loading,
		LoadFailed:   snap.LoadFailed,
		Epoch:        snap.Epoch,
	}
	for _, w := range snap.Wallets {
		out.Wallets = append(out.Wallets, toWalletResponse(w))
	}
	for _, t := range snap.Transactions {
		out.Transactions = append(out.Transactions, toTransactionResponse(t))
	}
	for _, b := range query.BudgetReport(snap.Transactions, snap.Budgets, now) {
		out.Budgets = append(out.Budgets, budgetStatusResponse{
			Category:   b.Category,
			LimitCents: b.Limit.Cents,
			SpentCents: b.Spent.Cents,
			Over:       b.Over,
		})
	}
	return out
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponse(s.ledger.Snapshot(), time.Now()))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Retry(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(s.ledger.Snapshot(), time.Now()))
}

type createWalletRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	ColorTag string `json:"color_tag,omitempty"`
	Opening  string `json:"opening,omitempty"`
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	out := make([]walletResponse, 0, len(snap.Wallets))
	for _, wl := range snap.Wallets {
		out = append(out, toWalletResponse(wl))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var openingCents int64
	if req.Opening != "" {
		cents, err := core.ParseNonNegativeCents(req.Opening)
		if err != nil {
			writeError(w, r, err)
			return
		}
		openingCents = cents
	}

	wallet, err := s.ledger.AddWallet(r.Context(), ledger.AddWalletInput{
		Name:         req.Name,
		Type:         core.WalletType(req.Type),
		ColorTag:     req.ColorTag,
		OpeningCents: openingCents,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWalletResponse(wallet))
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteWallet(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type createTransactionRequest struct {
	Amount      string `json:"amount,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	WalletID    string `json:"wallet_id"`
	Date        string `json:"date,omitempty"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	period := query.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = query.All
	}
	if !period.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid period"})
		return
	}

	snap := s.ledger.Snapshot()
	txs := query.FilterByPeriod(snap.Transactions, period, time.Now())
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	amountCents := req.AmountCents
	if req.Amount != "" {
		cents, err := core.ParseDecimalToCents(req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		amountCents = cents
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date"})
			return
		}
		date = parsed
	}

	tx, err := s.ledger.AddTransaction(r.Context(), ledger.AddTransactionInput{
		AmountCents: amountCents,
		Kind:        core.TxKind(req.Kind),
		Category:    req.Category,
		WalletID:    req.WalletID,
		Date:        date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type upsertBudgetRequest struct {
	Limit      string `json:"limit,omitempty"`
	LimitCents int64  `json:"limit_cents,omitempty"`
}

func (s *Server) handleBudgetReport(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	report := query.BudgetReport(snap.Transactions, snap.Budgets, time.Now())
	out := make([]budgetStatusResponse, 0, len(report))
	for _, b := range report {
		out = append(out, budgetStatusResponse{
			Category:   b.Category,
			LimitCents: b.Limit.Cents,
			SpentCents: b.Spent.Cents,
			Over:       b.Over,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req upsertBudgetRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	limitCents := req.LimitCents
	if req.Limit != "" {
		cents, err := core.ParseNonNegativeCents(req.Limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		limitCents = cents
	}

	if err := s.ledger.UpsertBudget(r.Context(), r.PathValue("category"), limitCents); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBudget(r.Context(), r.PathValue("category")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ResetAccount(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// parseDate accepts a bare day or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

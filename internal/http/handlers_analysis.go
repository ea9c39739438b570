package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Joram-tec/expense-pro/internal/export"
	"github.com/Joram-tec/expense-pro/internal/query"
)

type trendPointResponse struct {
	Bucket     string `json:"bucket"`
	TotalCents int64  `json:"total_cents"`
}

type categoryTotalResponse struct {
	Category   string `json:"category"`
	TotalCents int64  `json:"total_cents"`
}

type summaryResponse struct {
	Period        string                  `json:"period"`
	TotalCents    int64                   `json:"total_cents"`
	Total         string                  `json:"total"`
	TopCategories []categoryTotalResponse `json:"top_categories"`
	Trend         []trendPointResponse    `json:"trend"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period := query.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = query.Month
	}
	if !period.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid period"})
		return
	}

	now := time.Now()
	snap := s.ledger.Snapshot()
	txs := query.FilterByPeriod(snap.Transactions, period, now)

	total := query.ExpenseTotal(txs)
	top := query.TopCategories(txs, 5)
	trend := query.Trend(txs, period, now)

	resp := summaryResponse{
		Period:        string(period),
		TotalCents:    total.Cents,
		Total:         total.String(),
		TopCategories: make([]categoryTotalResponse, 0, len(top)),
		Trend:         make([]trendPointResponse, 0, len(trend)),
	}
	for _, c := range top {
		resp.TopCategories = append(resp.TopCategories, categoryTotalResponse{
			Category:   c.Category,
			TotalCents: c.Total.Cents,
		})
	}
	for _, p := range trend {
		resp.Trend = append(resp.Trend, trendPointResponse{
			Bucket:     p.Bucket,
			TotalCents: p.Total.Cents,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	body := export.CSV(snap.Transactions)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", attachment("transactions", "csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	body, err := export.JSON(snap.Transactions, snap.Wallets, snap.Budgets, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment("backup", "json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	body, err := export.XLSX(snap.Transactions)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment("transactions", "xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func attachment(stem, ext string) string {
	return fmt.Sprintf("attachment; filename=%s_%s.%s", stem, time.Now().Format("2006-01-02"), ext)
}

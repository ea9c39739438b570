package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Joram-tec/expense-pro/internal/core"
)

func sampleTxs() []core.Transaction {
	day := time.Date(2026, 7, 3, 10, 0, 0, 0, time.UTC)
	return []core.Transaction{
		{
			ID:       "t1",
			WalletID: "w1",
			Amount:   core.Money{Cents: -1250},
			Category: "Food",
			Kind:     core.Expense,
			Date:     day,
		},
		{
			ID:       "t2",
			WalletID: "w1",
			Amount:   core.Money{Cents: 50000},
			Category: `Salary, "net"`,
			Kind:     core.Income,
			Date:     day.AddDate(0, 0, -1),
		},
	}
}

func TestCSV(t *testing.T) {
	got := string(CSV(sampleTxs()))

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), got)
	}
	if lines[0] != "Date,Category,Amount" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "2026-07-03,Food,-12.50" {
		t.Fatalf("row = %q", lines[1])
	}
	// Commas and quotes in the category are quoted and doubled.
	if lines[2] != `2026-07-02,"Salary, ""net""",500.00` {
		t.Fatalf("quoted row = %q", lines[2])
	}
}

func TestCSVEmpty(t *testing.T) {
	if got := string(CSV(nil)); got != "Date,Category,Amount\n" {
		t.Fatalf("empty export = %q", got)
	}
}

func TestJSONBackup(t *testing.T) {
	now := time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC)
	wallets := []core.Wallet{{ID: "w1", Name: "Checking", Type: core.Bank, Balance: core.Money{Cents: 48750}}}
	budgets := []core.Budget{{Category: "Food", Limit: core.Money{Cents: 5000}}}

	data, err := JSON(sampleTxs(), wallets, budgets, now)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var doc struct {
		ExportedAt   string `json:"exported_at"`
		Transactions []struct {
			ID     string  `json:"id"`
			Amount float64 `json:"amount"`
			Date   string  `json:"date"`
		} `json:"transactions"`
		Wallets []struct {
			Balance float64 `json:"balance"`
		} `json:"wallets"`
		Budgets []struct {
			Limit float64 `json:"limit"`
		} `json:"budgets"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("backup is not valid JSON: %v", err)
	}

	if doc.ExportedAt != "2026-07-04T09:00:00Z" {
		t.Fatalf("exported_at = %q", doc.ExportedAt)
	}
	if len(doc.Transactions) != 2 || doc.Transactions[0].Amount != -12.5 || doc.Transactions[0].Date != "2026-07-03" {
		t.Fatalf("transactions = %+v", doc.Transactions)
	}
	if len(doc.Wallets) != 1 || doc.Wallets[0].Balance != 487.5 {
		t.Fatalf("wallets = %+v", doc.Wallets)
	}
	if len(doc.Budgets) != 1 || doc.Budgets[0].Limit != 50 {
		t.Fatalf("budgets = %+v", doc.Budgets)
	}
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleTxs())
	if err != nil {
		t.Fatalf("XLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Transactions")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][0] != "Date" || rows[0][2] != "Amount" {
		t.Fatalf("header row = %v", rows[0])
	}
	if rows[1][0] != "2026-07-03" || rows[1][1] != "Food" {
		t.Fatalf("data row = %v", rows[1])
	}
}

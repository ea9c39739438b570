// Package export serializes ledger state for download: transactions as
// CSV or XLSX, the full state as a JSON backup. The JSON backup is
// human-readable only; nothing re-imports it.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Joram-tec/expense-pro/internal/core"
)

// CSV renders one row per transaction: Date,Category,Amount with ISO
// dates and signed two-decimal amounts. Categories containing a comma,
// quote or newline are quoted defensively.
func CSV(txs []core.Transaction) []byte {
	var buf bytes.Buffer
	buf.WriteString("Date,Category,Amount\n")
	for _, t := range txs {
		buf.WriteString(t.Date.Format("2006-01-02"))
		buf.WriteByte(',')
		buf.WriteString(escapeCSV(t.Category))
		buf.WriteByte(',')
		buf.WriteString(t.Amount.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func escapeCSV(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

type (
	backupTx struct {
		ID       string  `json:"id"`
		WalletID string  `json:"wallet_id"`
		Amount   float64 `json:"amount"`
		Category string  `json:"category"`
		Kind     string  `json:"kind"`
		Date     string  `json:"date"`
	}

	backupWallet struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Type     string  `json:"type"`
		ColorTag string  `json:"color_tag"`
		Balance  float64 `json:"balance"`
	}

	backupBudget struct {
		Category string  `json:"category"`
		Limit    float64 `json:"limit"`
	}

	backup struct {
		ExportedAt   string         `json:"exported_at"`
		Transactions []backupTx     `json:"transactions"`
		Wallets      []backupWallet `json:"wallets"`
		Budgets      []backupBudget `json:"budgets"`
	}
)

// JSON renders the full-state backup document.
func JSON(txs []core.Transaction, wallets []core.Wallet, budgets []core.Budget, now time.Time) ([]byte, error) {
	doc := backup{
		ExportedAt:   now.Format(time.RFC3339),
		Transactions: make([]backupTx, 0, len(txs)),
		Wallets:      make([]backupWallet, 0, len(wallets)),
		Budgets:      make([]backupBudget, 0, len(budgets)),
	}
	for _, t := range txs {
		doc.Transactions = append(doc.Transactions, backupTx{
			ID:       t.ID,
			WalletID: t.WalletID,
			Amount:   t.Amount.Float(),
			Category: t.Category,
			Kind:     string(t.Kind),
			Date:     t.Date.Format("2006-01-02"),
		})
	}
	for _, w := range wallets {
		doc.Wallets = append(doc.Wallets, backupWallet{
			ID:       w.ID,
			Name:     w.Name,
			Type:     string(w.Type),
			ColorTag: w.ColorTag,
			Balance:  w.Balance.Float(),
		})
	}
	for _, b := range budgets {
		doc.Budgets = append(doc.Budgets, backupBudget{
			Category: b.Category,
			Limit:    b.Limit.Float(),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// XLSX renders the transaction list as a spreadsheet with the same
// columns as the CSV export.
func XLSX(txs []core.Transaction) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Transactions"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headers := []string{"Date", "Category", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, t := range txs {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), t.Date.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), t.Category)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), t.Amount.Float())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Package report builds monthly expense statements for premium accounts.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Percent  decimal.Decimal `json:"percent"`
}

// MonthlySummary aggregates an account's active expenses for one month.
type MonthlySummary struct {
	AccountName string           `json:"account_name"`
	Month       time.Time        `json:"month"`
	Total       decimal.Decimal  `json:"total"`
	Categories  []CategoryTotal  `json:"categories"`
	Expenses    []models.Expense `json:"expenses"`
}

// Monthly collects the summary for the calendar month (UTC) of year and month.
func Monthly(ctx context.Context, db *storage.DB, account *models.Account, year int, month time.Month) (*MonthlySummary, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	expenses, err := db.ListActiveExpensesBetween(ctx, account.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return summarize(account.Name, from, expenses), nil
}

func summarize(name string, month time.Time, expenses []models.Expense) *MonthlySummary {
	sum := &MonthlySummary{
		AccountName: name,
		Month:       month,
		Total:       decimal.Zero,
		Categories:  make([]CategoryTotal, 0),
		Expenses:    expenses,
	}

	byCategory := map[string]decimal.Decimal{}
	for _, e := range expenses {
		sum.Total = sum.Total.Add(e.Amount)
		byCategory[e.CategoryName] = byCategory[e.CategoryName].Add(e.Amount)
	}

	hundred := decimal.NewFromInt(100)
	for name, total := range byCategory {
		pct := decimal.Zero
		if sum.Total.IsPositive() {
			pct = total.Mul(hundred).Div(sum.Total).Round(1)
		}
		sum.Categories = append(sum.Categories, CategoryTotal{Category: name, Total: total, Percent: pct})
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		if c := sum.Categories[i].Total.Cmp(sum.Categories[j].Total); c != 0 {
			return c > 0
		}
		return sum.Categories[i].Category < sum.Categories[j].Category
	})
	return sum
}

// BuildPDF renders a summary as an A4 statement.
func BuildPDF(sum *MonthlySummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Expense Report "+sum.Month.Format("January 2006"), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Expense Report")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Report Month: %s", sum.Month.Format("January 2006")))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("User: %s", sum.AccountName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, fmt.Sprintf("Total Spend: INR %s", sum.Total.StringFixed(models.MinorUnits)))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Category Breakdown")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(70, 7, "Category")
	pdf.Cell(50, 7, "Amount")
	pdf.Cell(30, 7, "%")
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 11)
	for _, c := range sum.Categories {
		pdf.Cell(70, 7, c.Category)
		pdf.Cell(50, 7, c.Total.StringFixed(models.MinorUnits))
		pdf.Cell(30, 7, c.Percent.StringFixed(1)+"%")
		pdf.Ln(7)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Expenses")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(30, 7, "Date")
	pdf.Cell(80, 7, "Description")
	pdf.Cell(40, 7, "Category")
	pdf.Cell(30, 7, "Amount")
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, e := range sum.Expenses {
		pdf.Cell(30, 6, e.CreatedAt.Format("2006-01-02"))
		pdf.Cell(80, 6, tr(truncate(e.Description, 45)))
		pdf.Cell(40, 6, tr(e.CategoryName))
		pdf.CellFormat(30, 6, e.Amount.StringFixed(models.MinorUnits), "", 0, "R", false, 0, "")
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

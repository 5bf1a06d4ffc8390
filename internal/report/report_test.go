package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	month := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	sum := summarize("Ada", month, []models.Expense{
		{Amount: decimal.NewFromInt(30), CategoryName: "Food"},
		{Amount: decimal.NewFromInt(60), CategoryName: "Housing"},
		{Amount: decimal.NewFromInt(10), CategoryName: "Food"},
	})

	assert.True(t, decimal.NewFromInt(100).Equal(sum.Total))
	require.Len(t, sum.Categories, 2)
	assert.Equal(t, "Housing", sum.Categories[0].Category)
	assert.Equal(t, "60.0", sum.Categories[0].Percent.StringFixed(1))
	assert.Equal(t, "Food", sum.Categories[1].Category)
	assert.True(t, decimal.NewFromInt(40).Equal(sum.Categories[1].Total))
}

func TestSummarizeEmpty(t *testing.T) {
	sum := summarize("Ada", time.Now(), nil)
	assert.True(t, sum.Total.IsZero())
	assert.Empty(t, sum.Categories)

	pdf, err := BuildPDF(sum)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestMonthly(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	account, err := db.CreateAccount(ctx, "Ada", "ada@example.com", "", "hash")
	require.NoError(t, err)
	categories, err := db.ListCategories(ctx)
	require.NoError(t, err)

	svc := ledger.NewService(db)
	_, err = svc.AddExpense(ctx, account.ID, "12.50", "Groceries", categories[0].ID)
	require.NoError(t, err)
	now := time.Now().UTC()

	sum, err := Monthly(ctx, db, account, now.Year(), now.Month())
	require.NoError(t, err)
	require.Len(t, sum.Expenses, 1)
	assert.Equal(t, "12.50", sum.Total.StringFixed(2))

	last, err := Monthly(ctx, db, account, now.Year()-1, now.Month())
	require.NoError(t, err)
	assert.Empty(t, last.Expenses)

	pdf, err := BuildPDF(sum)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = Monthly(ctx, db, account, 2026, 13)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

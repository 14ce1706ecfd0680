package budget_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/notion/notiontest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var databases = map[string]string{
	"expenses":      "db-exp",
	"income":        "db-inc",
	"categories":    "db-cat",
	"subscriptions": "db-sub",
}

func fixedNow() time.Time { return time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC) }

func expense(id, name string, amount float64, date, category string) notion.Page {
	return notiontest.NewPage(id, map[string]notion.FieldValue{
		"Name":       notion.Title(name),
		"Amount":     notion.Number(amount),
		"Date":       notion.Date(date),
		"Categories": notion.Relation{category},
	})
}

func seeded() *notiontest.Store {
	s := notiontest.New()
	s.Seed("db-cat",
		notiontest.NewPage("cat-food", map[string]notion.FieldValue{"Name": notion.Title("Food"), "Budget": notion.Number(1000)}),
		notiontest.NewPage("cat-transport", map[string]notion.FieldValue{"Name": notion.Title("Transport")}),
		notiontest.NewPage("cat-fun", map[string]notion.FieldValue{"Name": notion.Title("Fun"), "Monthly Budget": notion.Number(100)}),
	)
	s.Seed("db-exp",
		expense("e1", "Lunch", 150, "2024-05-03", "cat-food"),
		expense("e2", "Dinner", 650, "2024-05-10", "cat-food"),
		expense("e3", "Bus", 50, "2024-05-11", "cat-transport"),
		expense("e4", "Groceries", 500, "2024-04-28", "cat-food"),
		expense("e5", "Netflix", 15, "2024-05-02", "cat-fun"),
	)
	s.Seed("db-inc",
		notiontest.NewPage("i1", map[string]notion.FieldValue{"Name": notion.Title("Salary"), "Amount": notion.Number(5000), "Date": notion.Date("2024-05-01")}),
		notiontest.NewPage("i2", map[string]notion.FieldValue{"Name": notion.Title("Bonus"), "Amount": notion.Number(900), "Date": notion.Date("2024-04-30")}),
	)
	return s
}

func newTracker(s *notiontest.Store) *budget.Tracker {
	return budget.New(s, databases, budget.WithClock(fixedNow))
}

// ─── Month bounds ─────────────────────────────────────────────────────────────

func TestMonthBounds(t *testing.T) {
	start, end := budget.MonthBounds(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-12-01", start.Format("2006-01-02"))
	assert.Equal(t, "2025-01-01", end.Format("2006-01-02"))
}

// ─── Monthly summary ──────────────────────────────────────────────────────────

func TestMonthlySummary(t *testing.T) {
	sum, err := newTracker(seeded()).MonthlySummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "May 2024", sum.Month)
	assert.InDelta(t, 5000, sum.TotalIncome, 0.001)
	assert.InDelta(t, 865, sum.TotalSpent, 0.001)
	assert.InDelta(t, 4135, sum.Remaining, 0.001)
	assert.InDelta(t, 1100, sum.TotalBudget, 0.001)

	byName := map[string]budget.CategorySpend{}
	for _, c := range sum.Categories {
		byName[c.Name] = c
	}
	require.Len(t, byName, 3)
	assert.InDelta(t, 800, byName["Food"].Spent, 0.001)
	require.NotNil(t, byName["Food"].Budget)
	assert.InDelta(t, 1000, *byName["Food"].Budget, 0.001)
	assert.Nil(t, byName["Transport"].Budget)
	require.NotNil(t, byName["Fun"].Budget)
}

func TestMonthlySummary_SkipsCategoriesWithoutSpend(t *testing.T) {
	s := seeded()
	s.Seed("db-cat", notiontest.NewPage("cat-travel", map[string]notion.FieldValue{"Name": notion.Title("Travel"), "Budget": notion.Number(300)}))

	sum, err := newTracker(s).MonthlySummary(context.Background())
	require.NoError(t, err)
	for _, c := range sum.Categories {
		assert.NotEqual(t, "Travel", c.Name)
	}
	assert.InDelta(t, 1100, sum.TotalBudget, 0.001)
}

func TestMonthlySummary_QueryError(t *testing.T) {
	s := seeded()
	s.FailAlways("Query", errors.New("notion down"))
	_, err := newTracker(s).MonthlySummary(context.Background())
	assert.ErrorContains(t, err, "notion down")
}

func TestMonthlySummary_CategoriesNotConfigured(t *testing.T) {
	_, err := budget.New(seeded(), map[string]string{"expenses": "db-exp"}, budget.WithClock(fixedNow)).MonthlySummary(context.Background())
	assert.ErrorContains(t, err, "categories table is not configured")
}

// ─── Budget impact ────────────────────────────────────────────────────────────

func TestBudgetImpact(t *testing.T) {
	tr := newTracker(seeded())
	ctx := context.Background()

	tests := []struct {
		name     string
		category string
		amount   float64
		status   budget.Status
	}{
		{"approaching", "Food", 0, budget.StatusApproachingLimit},
		{"close", "food", 100, budget.StatusCloseToLimit},
		{"over", "Food", 300, budget.StatusOverBudget},
		{"safe", "Fun", 10, budget.StatusSafe},
		{"no budget", "Transport", 20, budget.StatusNoBudget},
		{"unknown", "Healthcare", 20, budget.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.BudgetImpact(ctx, tt.category, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestBudgetImpact_Figures(t *testing.T) {
	got, err := newTracker(seeded()).BudgetImpact(context.Background(), "Food", 100)
	require.NoError(t, err)
	assert.InDelta(t, 800, got.CurrentSpent, 0.001)
	assert.InDelta(t, 900, got.ProjectedSpent, 0.001)
	assert.InDelta(t, 100, got.Remaining, 0.001)
	assert.InDelta(t, 90, got.Percentage, 0.001)
	assert.Equal(t, "⚠️ You are close to your budget, be cautious!", got.Message)
}

func TestClassify_Boundaries(t *testing.T) {
	b := decimal.NewFromInt(100)
	s, _ := budget.Classify(decimal.NewFromInt(75), b)
	assert.Equal(t, budget.StatusApproachingLimit, s)
	s, _ = budget.Classify(decimal.NewFromFloat(74.99), b)
	assert.Equal(t, budget.StatusSafe, s)
	s, _ = budget.Classify(decimal.NewFromInt(100), b)
	assert.Equal(t, budget.StatusCloseToLimit, s)
	s, _ = budget.Classify(decimal.NewFromFloat(100.01), b)
	assert.Equal(t, budget.StatusOverBudget, s)
}

func TestOverBudgetWarning(t *testing.T) {
	s := seeded()
	s.Seed("db-exp", expense("e6", "Party", 300, "2024-05-14", "cat-food"))
	tr := newTracker(s)

	msg, err := tr.OverBudgetWarning(context.Background(), "Food")
	require.NoError(t, err)
	assert.Equal(t, "⚠️ Budget Alert: You've spent 1100.00 in 'Food' this month (Budget: 1000.00). You're over by 100.00!", msg)

	msg, err = tr.OverBudgetWarning(context.Background(), "Fun")
	require.NoError(t, err)
	assert.Empty(t, msg)
}

// ─── Recurring bills ──────────────────────────────────────────────────────────

func TestIsRecurring(t *testing.T) {
	assert.True(t, budget.IsRecurring("Netflix Premium"))
	assert.True(t, budget.IsRecurring("Phone bill May"))
	assert.True(t, budget.IsRecurring("House RENT"))
	assert.False(t, budget.IsRecurring("Lunch"))
}

func TestFindDuplicate(t *testing.T) {
	tr := newTracker(seeded())
	ctx := context.Background()

	d, err := tr.FindDuplicate(ctx, "expenses", "netflix")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "e5", d.ID)
	assert.Equal(t, "⚠️ You already paid 'Netflix' on May 02, 2024 this month.", d.Message("expenses"))

	d, err = tr.FindDuplicate(ctx, "income", "Salary")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "⚠️ 'Salary' was already credited on May 01, 2024 this month.", d.Message("income"))

	// Last month's record does not count.
	d, err = tr.FindDuplicate(ctx, "income", "Bonus")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestTickAndResetSubscriptions(t *testing.T) {
	s := seeded()
	s.Seed("db-sub",
		notiontest.NewPage("s1", map[string]notion.FieldValue{"Name": notion.Title("Netflix"), "Checkbox": notion.Checkbox(false)}),
		notiontest.NewPage("s2", map[string]notion.FieldValue{"Name": notion.Title("Gym"), "Checkbox": notion.Checkbox(true)}),
	)
	tr := newTracker(s)
	ctx := context.Background()

	ok, err := tr.TickSubscription(ctx, "Netflix May")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tr.TickSubscription(ctx, "Coffee")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := tr.ResetSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, p := range s.Pages("db-sub") {
		v, ok, err := p.Property("Checkbox")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, false, v.Plain())
	}
}

func TestLatest(t *testing.T) {
	s := notiontest.New()
	tr := newTracker(s)
	_, err := tr.Latest(context.Background(), "expenses")
	assert.ErrorIs(t, err, notion.ErrNotFound)

	_, err = s.Create(context.Background(), "db-exp", map[string]any{"Name": map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": "Tea"}}}}})
	require.NoError(t, err)
	p, err := tr.Latest(context.Background(), "expenses")
	require.NoError(t, err)
	assert.Equal(t, "Tea", p.Title())
}

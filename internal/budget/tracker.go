// Package budget computes monthly spending summaries and budget checks on top
// of the remote store.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/operation"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// budgetFields are tried in order when reading a category's budget.
var budgetFields = []string{"Budget", "Monthly Budget", "Limit", "Monthly Cost"}

// Remote is the subset of the Notion client the tracker uses.
type Remote interface {
	Query(ctx context.Context, databaseID string, filter map[string]any) ([]notion.Page, error)
	Update(ctx context.Context, pageID string, props map[string]any) error
	Latest(ctx context.Context, databaseID string) (*notion.Page, error)
}

type Tracker struct {
	remote      Remote
	databases   map[string]string
	now         func() time.Time
	concurrency int
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func New(remote Remote, databases map[string]string, opts ...Option) *Tracker {
	t := &Tracker{remote: remote, databases: databases, now: time.Now, concurrency: 4}
	for _, o := range opts {
		o(t)
	}
	return t
}

// MonthBounds returns the first instant of t's month and of the following month.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

func monthFilter(start, end time.Time, extra ...map[string]any) map[string]any {
	and := []any{
		map[string]any{"property": "Date", "date": map[string]any{"on_or_after": start.Format("2006-01-02")}},
		map[string]any{"property": "Date", "date": map[string]any{"before": end.Format("2006-01-02")}},
	}
	for _, e := range extra {
		and = append(and, e)
	}
	return map[string]any{"and": and}
}

// Has reports whether table has a configured database.
func (t *Tracker) Has(table string) bool { return t.databases[table] != "" }

func (t *Tracker) db(table string) (string, error) {
	id := t.databases[table]
	if id == "" {
		return "", fmt.Errorf("%s table is not configured", table)
	}
	return id, nil
}

func sumAmounts(pages []notion.Page) decimal.Decimal {
	total := decimal.Zero
	for _, p := range pages {
		if amt, ok := p.Number("Amount"); ok {
			total = total.Add(decimal.NewFromFloat(amt))
		}
	}
	return total
}

// categorySpend totals this month's expenses linked to categoryID.
func (t *Tracker) categorySpend(ctx context.Context, categoryID string, start, end time.Time) (decimal.Decimal, error) {
	expDB, err := t.db(operation.TableExpenses)
	if err != nil {
		return decimal.Zero, err
	}
	filter := monthFilter(start, end, map[string]any{
		"property": "Categories", "relation": map[string]any{"contains": categoryID},
	})
	pages, err := t.remote.Query(ctx, expDB, filter)
	if err != nil {
		return decimal.Zero, fmt.Errorf("category spend: %w", err)
	}
	return sumAmounts(pages), nil
}

func (t *Tracker) income(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	incDB, err := t.db(operation.TableIncome)
	if err != nil {
		return decimal.Zero, err
	}
	pages, err := t.remote.Query(ctx, incDB, monthFilter(start, end))
	if err != nil {
		return decimal.Zero, fmt.Errorf("income: %w", err)
	}
	return sumAmounts(pages), nil
}

// budgetOf reads the first non-empty budget field on a category.
func budgetOf(p notion.Page) (float64, bool) {
	for _, f := range budgetFields {
		if v, ok := p.Number(f); ok {
			return v, true
		}
	}
	return 0, false
}

// CategorySpend is one row of the monthly summary.
type CategorySpend struct {
	Name   string   `json:"name"`
	Spent  float64  `json:"spent"`
	Budget *float64 `json:"budget"`
}

// Summary is the current month's financial position.
type Summary struct {
	Month       string          `json:"month"`
	TotalIncome float64         `json:"total_income"`
	TotalSpent  float64         `json:"total_spent"`
	Remaining   float64         `json:"remaining"`
	TotalBudget float64         `json:"total_budget"`
	Categories  []CategorySpend `json:"categories"`
}

// MonthlySummary reports income, spend per category and remaining money for
// the current month. Categories with no spend are left out.
func (t *Tracker) MonthlySummary(ctx context.Context) (*Summary, error) {
	catDB, err := t.db(operation.TableCategories)
	if err != nil {
		return nil, err
	}
	start, end := MonthBounds(t.now())

	cats, err := t.remote.Query(ctx, catDB, nil)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	spent := make([]decimal.Decimal, len(cats))
	var income decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, c := range cats {
		g.Go(func() error {
			s, err := t.categorySpend(gctx, c.ID, start, end)
			if err != nil {
				return err
			}
			spent[i] = s
			return nil
		})
	}
	g.Go(func() error {
		v, err := t.income(gctx, start, end)
		if err != nil {
			return err
		}
		income = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{Month: start.Format("January 2006"), Categories: []CategorySpend{}}
	totalSpent, totalBudget := decimal.Zero, decimal.Zero
	for i, c := range cats {
		name := c.Title()
		if name == "" || !spent[i].IsPositive() {
			continue
		}
		row := CategorySpend{Name: name, Spent: spent[i].InexactFloat64()}
		if b, ok := budgetOf(c); ok && b > 0 {
			row.Budget = &b
			totalBudget = totalBudget.Add(decimal.NewFromFloat(b))
		}
		sum.Categories = append(sum.Categories, row)
		totalSpent = totalSpent.Add(spent[i])
	}

	sum.TotalIncome = income.InexactFloat64()
	sum.TotalSpent = totalSpent.InexactFloat64()
	sum.Remaining = income.Sub(totalSpent).InexactFloat64()
	sum.TotalBudget = totalBudget.InexactFloat64()
	return sum, nil
}

// Status classifies projected spend against a budget.
type Status string

const (
	StatusSafe             Status = "safe"
	StatusApproachingLimit Status = "approaching_limit"
	StatusCloseToLimit     Status = "close_to_limit"
	StatusOverBudget       Status = "over_budget"
	StatusNoBudget         Status = "no_budget"
	StatusUnknown          Status = "unknown"
)

// Impact is the projected effect of a hypothetical expense on a category budget.
type Impact struct {
	Status         Status  `json:"status"`
	Message        string  `json:"message"`
	Category       string  `json:"category,omitempty"`
	CurrentSpent   float64 `json:"current_spent"`
	ProjectedSpent float64 `json:"projected_spent"`
	Budget         float64 `json:"budget,omitempty"`
	Remaining      float64 `json:"remaining,omitempty"`
	Percentage     float64 `json:"percentage,omitempty"`
}

// Classify maps projected spend and budget onto a status.
func Classify(projected, budget decimal.Decimal) (Status, string) {
	pct := projected.Div(budget).Mul(decimal.NewFromInt(100))
	switch {
	case projected.GreaterThan(budget):
		return StatusOverBudget, "⚠️ You will go over budget!"
	case pct.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return StatusCloseToLimit, "⚠️ You are close to your budget, be cautious!"
	case pct.GreaterThanOrEqual(decimal.NewFromInt(75)):
		return StatusApproachingLimit, "✅ You are within budget but approaching the limit."
	}
	return StatusSafe, "✅ You are well within your budget!"
}

// BudgetImpact simulates adding amount to category this month.
func (t *Tracker) BudgetImpact(ctx context.Context, category string, amount float64) (*Impact, error) {
	catDB, err := t.db(operation.TableCategories)
	if err != nil {
		return nil, err
	}
	cats, err := t.remote.Query(ctx, catDB, nil)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cat, ok := notion.MatchTitle(cats, category)
	if !ok {
		return &Impact{Status: StatusUnknown, Message: fmt.Sprintf("Category '%s' not found.", category)}, nil
	}

	start, end := MonthBounds(t.now())
	current, err := t.categorySpend(ctx, cat.ID, start, end)
	if err != nil {
		return nil, err
	}
	projected := current.Add(decimal.NewFromFloat(amount))

	b, ok := budgetOf(cat)
	if !ok || b <= 0 {
		return &Impact{
			Status:         StatusNoBudget,
			Message:        fmt.Sprintf("No budget set for '%s'.", category),
			Category:       cat.Title(),
			CurrentSpent:   current.InexactFloat64(),
			ProjectedSpent: projected.InexactFloat64(),
		}, nil
	}

	budget := decimal.NewFromFloat(b)
	status, msg := Classify(projected, budget)
	return &Impact{
		Status:         status,
		Message:        msg,
		Category:       cat.Title(),
		CurrentSpent:   current.InexactFloat64(),
		ProjectedSpent: projected.InexactFloat64(),
		Budget:         b,
		Remaining:      budget.Sub(projected).InexactFloat64(),
		Percentage:     projected.Div(budget).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64(),
	}, nil
}

// OverBudgetWarning returns an alert when category's spend this month exceeds
// its budget, or "" when it does not.
func (t *Tracker) OverBudgetWarning(ctx context.Context, category string) (string, error) {
	impact, err := t.BudgetImpact(ctx, category, 0)
	if err != nil {
		return "", err
	}
	if impact.Status != StatusOverBudget {
		return "", nil
	}
	over := impact.CurrentSpent - impact.Budget
	log.Info().Str("category", impact.Category).Float64("over", over).Msg("category over budget")
	return fmt.Sprintf("⚠️ Budget Alert: You've spent %.2f in '%s' this month (Budget: %.2f). You're over by %.2f!",
		impact.CurrentSpent, impact.Category, impact.Budget, over), nil
}

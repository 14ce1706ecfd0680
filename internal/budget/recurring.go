package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/operation"
	"github.com/rs/zerolog/log"
)

var recurringKeywords = []string{
	"subscription", "spotify", "netflix", "youtube", "prime", "amazon",
	"rent", "electricity", "water", "gas", "internet", "wifi", "broadband",
	"insurance", "premium", "emi", "installment", "membership", "gym",
	"phone bill", "mobile recharge", "postpaid",
}

// IsRecurring reports whether an expense name looks like a monthly bill.
func IsRecurring(name string) bool {
	n := strings.ToLower(name)
	for _, k := range recurringKeywords {
		if strings.Contains(n, k) {
			return true
		}
	}
	return false
}

// Duplicate describes an earlier record this month with a matching name.
type Duplicate struct {
	ID   string
	Name string
	Date string
}

// Message renders the duplicate warning shown to the user.
func (d *Duplicate) Message(table string) string {
	date := d.Date
	if t, err := time.Parse("2006-01-02", firstN(d.Date, 10)); err == nil {
		date = t.Format("January 02, 2006")
	}
	if table == operation.TableIncome {
		return fmt.Sprintf("⚠️ '%s' was already credited on %s this month.", d.Name, date)
	}
	return fmt.Sprintf("⚠️ You already paid '%s' on %s this month.", d.Name, date)
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// FindDuplicate looks for a record named like name in table during the
// current month. It returns nil when there is none.
func (t *Tracker) FindDuplicate(ctx context.Context, table, name string) (*Duplicate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	dbID, err := t.db(table)
	if err != nil {
		return nil, err
	}
	start, end := MonthBounds(t.now())
	pages, err := t.remote.Query(ctx, dbID, monthFilter(start, end))
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	p, ok := notion.MatchTitle(pages, name)
	if !ok {
		return nil, nil
	}
	d := &Duplicate{ID: p.ID, Name: p.Title()}
	if v, ok, _ := p.Property("Date"); ok {
		if s, ok := v.Plain().(string); ok {
			d.Date = s
		}
	}
	return d, nil
}

// TickSubscription marks the subscription matching expenseName as paid.
// It reports whether a subscription was found.
func (t *Tracker) TickSubscription(ctx context.Context, expenseName string) (bool, error) {
	dbID, err := t.db(operation.TableSubscriptions)
	if err != nil {
		return false, err
	}
	subs, err := t.remote.Query(ctx, dbID, nil)
	if err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	sub, ok := notion.MatchTitle(subs, expenseName)
	if !ok {
		return false, nil
	}
	props := map[string]any{"Checkbox": map[string]any{"checkbox": true}}
	if err := t.remote.Update(ctx, sub.ID, props); err != nil {
		return false, fmt.Errorf("tick subscription: %w", err)
	}
	log.Info().Str("subscription", sub.Title()).Msg("subscription marked paid")
	return true, nil
}

// ResetSubscriptions clears the paid checkbox on every subscription. It
// returns the number of records reset.
func (t *Tracker) ResetSubscriptions(ctx context.Context) (int, error) {
	dbID, err := t.db(operation.TableSubscriptions)
	if err != nil {
		return 0, err
	}
	filter := map[string]any{"property": "Checkbox", "checkbox": map[string]any{"equals": true}}
	subs, err := t.remote.Query(ctx, dbID, filter)
	if err != nil {
		return 0, fmt.Errorf("list paid subscriptions: %w", err)
	}
	props := map[string]any{"Checkbox": map[string]any{"checkbox": false}}
	n := 0
	for _, s := range subs {
		if err := t.remote.Update(ctx, s.ID, props); err != nil {
			log.Warn().Err(err).Str("subscription", s.ID).Msg("reset failed")
			continue
		}
		n++
	}
	return n, nil
}

// Latest returns the most recently created record in table.
func (t *Tracker) Latest(ctx context.Context, table string) (*notion.Page, error) {
	dbID, err := t.db(table)
	if err != nil {
		return nil, err
	}
	return t.remote.Latest(ctx, dbID)
}

package cli

import (
	"fmt"

	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/server"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print this month's income, spend per category and remaining money",
		RunE:  runSummary,
	})

	impact := &cobra.Command{
		Use:   "impact <category> <amount>",
		Short: "Show what a planned expense would do to a category budget",
		Args:  cobra.ExactArgs(2),
		RunE:  runImpact,
	}
	RootCmd.AddCommand(impact)

	RootCmd.AddCommand(&cobra.Command{
		Use:   "reset-subscriptions",
		Short: "Untick every item in the fixed-expense checklist now",
		RunE:  runResetSubscriptions,
	})
}

func tracker() *budget.Tracker {
	return budget.New(server.NewNotionClient(cfg), cfg.Databases)
}

func runSummary(cmd *cobra.Command, args []string) error {
	sum, err := tracker().MonthlySummary(commandContext(cmd))
	if err != nil {
		return err
	}
	if formatFlag != "text" {
		return printJSON(sum)
	}
	fmt.Printf("%s\n", sum.Month)
	fmt.Printf("  income     %10.2f\n", sum.TotalIncome)
	fmt.Printf("  spent      %10.2f\n", sum.TotalSpent)
	fmt.Printf("  remaining  %10.2f\n", sum.Remaining)
	for _, c := range sum.Categories {
		if c.Budget != nil {
			fmt.Printf("  %-20s %10.2f / %.2f\n", c.Name, c.Spent, *c.Budget)
		} else {
			fmt.Printf("  %-20s %10.2f\n", c.Name, c.Spent)
		}
	}
	return nil
}

func runImpact(cmd *cobra.Command, args []string) error {
	var amount float64
	if _, err := fmt.Sscanf(args[1], "%g", &amount); err != nil {
		return fmt.Errorf("amount must be a number: %w", err)
	}
	impact, err := tracker().BudgetImpact(commandContext(cmd), args[0], amount)
	if err != nil {
		return err
	}
	if formatFlag == "text" {
		fmt.Println(impact.Message)
		return nil
	}
	return printJSON(impact)
}

func runResetSubscriptions(cmd *cobra.Command, args []string) error {
	n, err := tracker().ResetSubscriptions(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Printf("reset %d subscription(s)\n", n)
	return nil
}

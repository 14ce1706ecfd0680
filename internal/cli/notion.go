package cli

import (
	"fmt"
	"strings"

	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/schema"
	"github.com/finbot/finbot/internal/server"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "check-dbs",
		Short: "Check that every configured database is reachable",
		RunE:  runCheckDBs,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "schema [table]",
		Short: "Print live field kinds for one table, or all configured tables",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSchema,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "list <table>",
		Short: "List record names in a table",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	})
}

type dbCheck struct {
	Table    string `json:"table"`
	Database string `json:"database"`
	Status   string `json:"status"`
	Fields   int    `json:"fields,omitempty"`
}

func runCheckDBs(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	client := server.NewNotionClient(cfg)
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("notion token check failed: %w", err)
	}

	var checks []dbCheck
	failed := 0
	for _, table := range operation.Tables {
		id := cfg.Databases[table]
		c := dbCheck{Table: table, Database: id, Status: "not configured"}
		if id != "" {
			db, err := client.RetrieveDatabase(ctx, id)
			if err != nil {
				c.Status = "error: " + err.Error()
				failed++
			} else {
				c.Status = "ok"
				c.Fields = len(db.Properties)
			}
		}
		checks = append(checks, c)
	}

	if formatFlag == "text" {
		for _, c := range checks {
			fmt.Printf("%-14s %-36s %s\n", c.Table, c.Database, c.Status)
		}
	} else if err := printJSON(checks); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d database(s) unreachable", failed)
	}
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	fetcher := schema.NewNotionFetcher(server.NewNotionClient(cfg), cfg.Databases)

	tables := args
	if len(tables) == 0 {
		for _, t := range operation.Tables {
			if cfg.Databases[t] != "" {
				tables = append(tables, t)
			}
		}
	}

	out := make(map[string]schema.Schema, len(tables))
	for _, t := range tables {
		s, err := fetcher.Fetch(ctx, t)
		if err != nil {
			return err
		}
		out[t] = s
	}

	if formatFlag != "text" {
		return printJSON(out)
	}
	for _, t := range tables {
		fmt.Printf("%s:\n", t)
		for _, f := range out[t].Fields() {
			fmt.Printf("  %-24s %s\n", f, out[t][f])
		}
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	table := strings.ToLower(args[0])
	id := cfg.Databases[table]
	if id == "" {
		return fmt.Errorf("table '%s' not configured", table)
	}
	names, err := server.NewNotionClient(cfg).ListTitles(commandContext(cmd), id)
	if err != nil {
		return err
	}
	if formatFlag == "text" {
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}
	return printJSON(map[string]any{"table": table, "names": names})
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotecraft/drew/pkg/adapters/sqlite"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the sqlite product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <products.yaml>",
	Short: "Upsert products from a YAML file into the catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Catalog.Path == "" {
			return fmt.Errorf("catalog.path (or DREW_CATALOG) must name a database file to import into")
		}
		catalog, err := sqlite.Open(cmd.Context(), cfg.Catalog.Path)
		if err != nil {
			return err
		}
		defer catalog.Close() //nolint:errcheck

		n, err := catalog.ImportFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d products into %s\n", n, cfg.Catalog.Path)
		return nil
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <term>...",
	Short: "Search the catalog the way the conversation does",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		catalog, err := openCatalog(cmd.Context(), cfg.Catalog, logger)
		if err != nil {
			return err
		}
		defer catalog.Close() //nolint:errcheck

		products, err := catalog.Search(cmd.Context(), strings.Join(args, " "), category, limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(products) == 0 {
			fmt.Fprintln(out, "No products found.")
			return nil
		}
		for _, p := range products {
			fmt.Fprintf(out, "%-12s %-40s %s%.2f/%s\n", p.ID, p.Name, cfg.Quote.Currency, p.UnitPrice, unitOrEach(p.Unit))
		}
		return nil
	},
}

func unitOrEach(unit string) string {
	if unit == "" {
		return "ea"
	}
	return unit
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd, catalogSearchCmd)
	catalogSearchCmd.Flags().String("category", "", "Restrict results to a checklist category")
	catalogSearchCmd.Flags().Int("limit", 10, "Maximum number of results")
}

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tax-intake/internal/export"
	"github.com/sells-group/tax-intake/internal/model"
)

// -- calculate --

var calculateCmd = &cobra.Command{
	Use:   "calculate <tax-year>",
	Short: "Run the tax calculation for a year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := loadWorkspace(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Workspace.CalculateTax(ctx, args[0])
		if err != nil {
			return userError(err)
		}
		formatTaxRows(cmd.OutOrStdout(), rows)

		out, _ := cmd.Flags().GetString("xlsx")
		if out == "" {
			return nil
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "create results file")
		}
		defer f.Close() //nolint:errcheck
		if err := export.WriteResultsXLSX(f, args[0], rows); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s.\n", out)
		return nil
	},
}

func formatTaxRows(w io.Writer, rows []model.TaxResultRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ITEM\tREGISTERED\tSPOUSE\tTOTAL\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Title, r.Main, r.Spouse, r.Total)
	}
	_ = tw.Flush()
}

// -- results --

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List the result files of the selected customer",
	Long:  "Lists result descriptors and their processing messages. With --read, prints a results spreadsheet written by `calculate --xlsx` instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if path, _ := cmd.Flags().GetString("read"); path != "" {
			rows, err := export.ReadResultsXLSX(path)
			if err != nil {
				return err
			}
			formatTaxRows(cmd.OutOrStdout(), rows)
			return nil
		}

		env, err := loadWorkspace(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Workspace.Results()
		if len(results) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No results yet.")
			return nil
		}
		formatResults(cmd.OutOrStdout(), results)
		return nil
	},
}

func formatResults(w io.Writer, results []model.ResultDescriptor) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tFILE\tSTATUS")
	for i := range results {
		r := &results[i]
		status := "ok"
		if r.Fatal() {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.TaxYear, r.FileName, status)
		for _, m := range r.Messages {
			fmt.Fprintf(tw, "\t  %s\t%s\n", m.Type, m.Text)
		}
	}
	_ = tw.Flush()
}

func init() {
	calculateCmd.Flags().String("xlsx", "", "also write the rows to this spreadsheet")
	resultsCmd.Flags().String("read", "", "print a results spreadsheet")

	rootCmd.AddCommand(calculateCmd, resultsCmd)
}

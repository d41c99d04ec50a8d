package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/tax-intake/internal/model"
)

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Manage the customers (workspaces) of the account",
}

// -- customers list --

var customersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := requireSignIn(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		refresh, _ := cmd.Flags().GetBool("refresh")
		cs, err := env.Flow.Customers(ctx, refresh)
		if err != nil {
			return userError(err)
		}
		selected, err := env.Session.SelectedCustomer(ctx)
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No customers found.")
			return nil
		}
		formatCustomers(cmd.OutOrStdout(), cs, selected)
		return nil
	},
}

func formatCustomers(w io.Writer, cs []model.Customer, selected string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tMODIFIED")
	for _, c := range cs {
		mark := ""
		if c.Name == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, c.Name, c.Modified)
	}
	_ = tw.Flush()
}

// -- customers select --

var customersSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Make a customer the current workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := requireSignIn(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Flow.SelectCustomer(ctx, args[0]); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Selected %s.\n", args[0])
		return nil
	},
}

// -- customers rename --

var customersRenameCmd = &cobra.Command{
	Use:   "rename <from> <to>",
	Short: "Rename a customer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := requireSignIn(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Flow.RenameCustomer(ctx, args[0], args[1]); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s.\n", args[0], args[1])
		return nil
	},
}

// -- customers duplicate --

var customersDuplicateCmd = &cobra.Command{
	Use:   "duplicate <from> <to>",
	Short: "Copy a customer with all its documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := requireSignIn(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Flow.DuplicateCustomer(ctx, args[0], args[1]); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s.\n", args[0], args[1])
		return nil
	},
}

// -- customers delete --

var customersDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a customer and its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := requireSignIn(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := newLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).Confirm(fmt.Sprintf("Delete %s and all its documents?", args[0]))
			if err != nil || !ok {
				return err
			}
		}
		if err := env.Flow.DeleteCustomer(ctx, args[0]); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
		return nil
	},
}

func init() {
	customersListCmd.Flags().Bool("refresh", false, "bypass the cached list")
	customersDeleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	customersCmd.AddCommand(customersListCmd, customersSelectCmd, customersRenameCmd, customersDuplicateCmd, customersDeleteCmd)
	rootCmd.AddCommand(customersCmd)
}

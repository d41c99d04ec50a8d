package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/editor"
	"github.com/sells-group/tax-intake/internal/export"
	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/upload"
)

// -- files --

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the documents of the selected customer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadWorkspace(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		items := env.Workspace.Files()
		if len(items) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No documents found.")
			return nil
		}
		formatFiles(cmd.OutOrStdout(), items)
		return nil
	},
}

func formatFiles(w io.Writer, items []editor.FileItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE ID\tYEAR\tTYPE\tFILE\tNOTE")
	for _, it := range items {
		note := it.Reason
		if it.RetryFileID != "" {
			note += " (retry with --replace " + it.RetryFileID + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.FileID, it.TaxYear, it.FormType, it.FileName, note)
	}
	_ = tw.Flush()
}

// -- show --

var showCmd = &cobra.Command{
	Use:   "show <file-id>",
	Short: "Print the editable fields of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadWorkspace(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		all, _ := cmd.Flags().GetBool("all")
		if all {
			if _, err := env.Editor.ToggleAllFields(args[0]); err != nil {
				return err
			}
		}
		p := env.Editor.View().Panel(args[0])
		if p == nil {
			return eris.Wrapf(editor.ErrUnknownDocument, "%s", args[0])
		}
		formatPanel(cmd.OutOrStdout(), p)
		return nil
	},
}

func formatPanel(w io.Writer, p *editor.Panel) {
	fmt.Fprintf(w, "%s  %s  %s\n", p.FileID, p.FormType, p.TaxYear)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTROL\tLABEL\tVALUE")
	for _, c := range p.Header {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Spec.Label, c.Display)
	}
	for _, c := range p.Body {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Spec.Label, c.Display)
	}
	for _, g := range p.Groups {
		for i, it := range g.Items {
			for _, c := range it.Controls {
				fmt.Fprintf(tw, "%s\t%s #%d %s\t%s\n", c.ID, g.Label, i+1, c.Spec.Label, c.Display)
			}
		}
	}
	_ = tw.Flush()
}

// -- upload --

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents for the selected customer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prompter := newLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		env, err := loadWorkspace(ctx, prompter)
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.Session.TermsAccepted(ctx) {
			return eris.New("the terms of use must be accepted first; run `tax-intake accept-terms`")
		}

		password, _ := cmd.Flags().GetString("password")
		replace, _ := cmd.Flags().GetString("replace")

		files, err := readFiles(args, password)
		if err != nil {
			return err
		}

		report, err := env.Workspace.Upload(ctx, files, replace)
		if report != nil {
			for _, name := range report.Uploaded {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded  %s\n", name)
			}
			for _, name := range report.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped   %s\n", name)
			}
		}
		var ve *upload.ValidationError
		if eris.As(err, &ve) {
			for _, p := range ve.Problems {
				fmt.Fprintln(cmd.ErrOrStderr(), p)
			}
			return eris.New("no files were uploaded")
		}
		return userError(err)
	},
}

func readFiles(paths []string, password string) ([]upload.File, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", p)
		}
		files = append(files, upload.File{Name: filepath.Base(p), Data: data, Password: password})
	}
	return files, nil
}

// -- forms --

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List the form types that can be created by hand",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadWorkspace(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		forms, err := env.Workspace.CreatableForms(cmd.Context())
		if err != nil {
			return userError(err)
		}
		formatForms(cmd.OutOrStdout(), forms)
		return nil
	},
}

func formatForms(w io.Writer, forms []model.FormType) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME")
	for _, f := range forms {
		fmt.Fprintf(tw, "%s\t%s\n", f.FormType, f.FormName)
	}
	_ = tw.Flush()
}

// -- create-form --

var createFormCmd = &cobra.Command{
	Use:   "create-form <form-type>",
	Short: "Create an empty form for the selected customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := loadWorkspace(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		id, _ := cmd.Flags().GetString("id-number")
		if _, err := env.Workspace.CreateForm(ctx, args[0], id); err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s.\n", args[0])
		return nil
	},
}

// -- edit --

var editCmd = &cobra.Command{
	Use:   "edit <file-id>",
	Short: "Change document fields and save",
	Long:  "Each --set takes CONTROL=VALUE, where CONTROL is an id printed by `show`. Values are normalized the same way the editor does before saving.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := loadWorkspace(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		fileID := args[0]
		sets, _ := cmd.Flags().GetStringArray("set")
		if len(sets) == 0 {
			return eris.New("nothing to change; pass --set CONTROL=VALUE")
		}
		if err := applyEdits(env.Editor, fileID, sets); err != nil {
			return err
		}
		if err := env.Workspace.Save(ctx, fileID); err != nil {
			return userError(err)
		}
		zap.L().Info("document saved", zap.String("file_id", fileID), zap.Int("changes", len(sets)))
		if p := env.Editor.View().Panel(fileID); p != nil {
			formatPanel(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

// applyEdits enters each CONTROL=VALUE pair and blurs the control.
func applyEdits(ed *editor.Editor, fileID string, sets []string) error {
	for _, s := range sets {
		id, value, ok := strings.Cut(s, "=")
		if !ok || id == "" {
			return eris.Errorf("invalid --set %q; want CONTROL=VALUE", s)
		}
		if _, err := ed.SetValue(fileID, id, value); err != nil {
			return err
		}
		if _, err := ed.Blur(fileID, id); err != nil {
			return eris.Wrapf(err, "%s", id)
		}
	}
	return nil
}

// -- delete --

var deleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Delete a document, or every document with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := loadWorkspace(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		all, _ := cmd.Flags().GetBool("all")
		switch {
		case all:
			ok, err := newLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).Confirm(
				fmt.Sprintf("Delete every document of %s?", env.Workspace.Customer()))
			if err != nil || !ok {
				return err
			}
			return userError(env.Workspace.DeleteAll(ctx))
		case len(args) == 1:
			return userError(env.Workspace.Delete(ctx, args[0]))
		default:
			return eris.New("pass a file id or --all")
		}
	},
}

// -- export --

var exportCmd = &cobra.Command{
	Use:   "export <file-id>",
	Short: "Write a document, including unsaved edits, to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadWorkspace(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		sets, _ := cmd.Flags().GetStringArray("set")
		if err := applyEdits(env.Editor, args[0], sets); err != nil {
			return err
		}
		doc, err := env.Editor.Export(args[0])
		if err != nil {
			return err
		}

		dir, _ := cmd.Flags().GetString("dir")
		path := filepath.Join(dir, export.DocumentFileName(doc))
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "create export file")
		}
		defer f.Close() //nolint:errcheck

		if err := export.WriteDocumentJSON(f, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s.\n", path)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("all", false, "include fields that have no value")

	uploadCmd.Flags().String("password", "", "password sent with every file")
	uploadCmd.Flags().String("replace", "", "file id of the error record this upload replaces")

	createFormCmd.Flags().String("id-number", "", "identification number printed on the form")

	editCmd.Flags().StringArray("set", nil, "CONTROL=VALUE (repeatable)")
	exportCmd.Flags().StringArray("set", nil, "CONTROL=VALUE applied before export (repeatable)")
	exportCmd.Flags().String("dir", ".", "output directory")

	deleteCmd.Flags().Bool("all", false, "delete every document of the customer")

	rootCmd.AddCommand(filesCmd, showCmd, uploadCmd, formsCmd, createFormCmd, editCmd, deleteCmd, exportCmd)
}

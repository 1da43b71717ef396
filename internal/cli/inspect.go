package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/internal/openapi"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/tableview"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the step plan derived from the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle, err := loadBundle(configFrom(cmd.Context()), false)
			if err != nil {
				return err
			}
			plan := bundle.Plan()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			renderPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func renderPlan(w io.Writer, plan steps.Plan) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Step", "Table", "Kind", "Business key", "Title"})
	for idx, step := range plan.Steps {
		bk := ""
		if step.RequiresBusinessKey {
			bk = "yes"
		}
		t.AppendRow(table.Row{idx, step.ID, step.Table, step.Kind, bk, step.Title})
	}
	t.Render()

	for _, omitted := range plan.Omitted {
		fmt.Fprintf(w, "skipped %s: %s\n", omitted.Table, omitted.Reason)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the schema and UI documents for consistency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle, err := loadBundle(configFrom(cmd.Context()), false)
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), bundle.Report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), bundle.Report)
			}
			if !bundle.Report.Valid {
				return fmt.Errorf("validate: %d issue(s)", len(bundle.Report.Issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func renderReport(w io.Writer, report validation.Result) {
	if report.Valid {
		fmt.Fprintln(w, "configuration is valid")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Path", "Field", "Message"})
	for _, issue := range report.Issues {
		t.AppendRow(table.Row{issue.Path, issue.Field, issue.Message})
	}
	t.Render()
}

// NewViewCommand creates the view command.
func NewViewCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "view <table>",
		Short: "Print a table joined with its foreign-key parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)
			bundle, err := loadBundle(cfg, false)
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg, bundle, loggerFrom(ctx))
			if err != nil {
				return err
			}
			defer st.Close()

			grid, err := tableview.Build(ctx, bundle.Schema, st, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), grid)
			}
			renderGrid(cmd.OutOrStdout(), grid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func renderGrid(w io.Writer, grid tableview.Grid) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(grid.Table)

	header := table.Row{"id"}
	for _, key := range grid.Headers() {
		header = append(header, key)
	}
	t.AppendHeader(header)
	for _, row := range grid.Rows {
		line := table.Row{row.ID}
		for _, column := range grid.Columns {
			value := row.Values[column.Key]
			if value == nil {
				value = ""
			}
			line = append(line, value)
		}
		t.AppendRow(line)
	}
	t.Render()
}

// NewOpenAPICommand creates the openapi command.
func NewOpenAPICommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document of the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle, err := loadBundle(configFrom(cmd.Context()), true)
			if err != nil {
				return err
			}
			doc, err := openapi.Build(cmd.Context(), bundle.Schema, openapi.WithVersion(Version))
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, doc.JSON(), 0o644); err != nil {
					return fmt.Errorf("openapi: write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OpenAPI document written to %s\n", output)
				return nil
			}
			var pretty any
			if err := json.Unmarshal(doc.JSON(), &pretty); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pretty)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "formwizard v%s\n", Version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/tui"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommand(nil)
}

// newRunCommand prompts through driver, or the terminal when driver is nil.
func newRunCommand(driver tui.PromptDriver) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Walk the wizard interactively in the terminal",
		Example: `  # Enter a lot with the bundled sample configuration
  formwizard run --dsn ./lots.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)
			logger := loggerFrom(ctx)

			bundle, err := loadBundle(cfg, true)
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg, bundle, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			session, err := bundle.NewSession(st,
				wizard.WithLogger(logger),
				wizard.WithAdapterOptions(persist.WithSanitize(cfg.Wizard.Sanitize)),
			)
			if err != nil {
				return err
			}

			if driver == nil {
				driver = tui.NewSurveyDriver(cmd.OutOrStdout())
			}
			runner := tui.New(tui.WithPromptDriver(driver), tui.WithLogger(logger))
			view, err := runner.Run(ctx, session)
			if errors.Is(err, tui.ErrQuit) {
				fmt.Fprintf(cmd.OutOrStdout(), "Left the wizard with %d of %d steps completed.\n",
					len(view.Progress.Completed), len(view.Steps))
				return nil
			}
			return err
		},
	}
}

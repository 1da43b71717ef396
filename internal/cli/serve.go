package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve wizard sessions and table operations over HTTP",
		Long: `Start the HTTP API. Every route is described by the OpenAPI document at
/api/openapi.json. With --watch the configuration directory is reloaded on
change; running sessions keep the configuration they started with.`,
		Example: `  # Serve the bundled sample on :8080 with a local SQLite file
  formwizard serve

  # Serve a custom configuration against PostgreSQL
  formwizard serve --config-dir ./wizard --dialect postgres --dsn postgres://localhost/app --watch`,
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

			srv, err := server.New(ctx, server.Config{
				Addr:            cfg.Server.Addr,
				Bundle:          bundle,
				Collaborator:    st,
				SessionSecret:   cfg.Server.SessionSecret,
				CookieName:      cfg.Server.CookieName,
				SecureCookie:    cfg.Server.SecureCookie,
				SessionTTL:      cfg.Server.SessionTTL,
				SweepInterval:   cfg.Server.SweepInterval,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				ConfigDir:       cfg.Wizard.ConfigDir,
				Watch:           cfg.Wizard.Watch,
				Sanitize:        cfg.Wizard.Sanitize,
				Version:         Version,
				Logger:          logger,
			})
			if err != nil {
				return err
			}
			if err := srv.Serve(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().Bool("watch", false, "reload the configuration directory on change")
	return cmd
}

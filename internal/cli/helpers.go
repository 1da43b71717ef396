package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	formwizard "github.com/goliatone/go-formwizard"
	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/internal/store"
)

// loadBundle loads the configured documents. With strict set, a bundle with
// consistency issues is an error; otherwise it is returned for reporting.
func loadBundle(cfg *config.Config, strict bool) (formwizard.Bundle, error) {
	bundle, err := formwizard.LoadDir(cfg.Wizard.ConfigDir)
	if err != nil && (strict || !errors.Is(err, formwizard.ErrInvalidConfig)) {
		return bundle, err
	}
	return bundle, nil
}

// openStore connects to the configured database and wraps it as the wizard
// collaborator, migrating first when enabled.
func openStore(ctx context.Context, cfg *config.Config, bundle formwizard.Bundle, logger *slog.Logger) (*store.Store, error) {
	dialect, err := store.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := store.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cli: migrate: %w", err)
		}
	}
	logger.Debug("database ready", "dialect", string(dialect), "migrate", cfg.Database.Migrate)
	return store.New(db, bundle.Schema, store.WithDialect(dialect), store.WithLogger(logger)), nil
}

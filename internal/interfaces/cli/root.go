// Package cli implements settlectl, the operator command line of the
// settlement service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/persistence/inmemory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is reported by the version command
var Version = "dev"

// App carries what every command needs. Store may be left nil, in which
// case it is opened from Config on first use.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Store  financeapp.Store

	closeStore func()
}

// store returns the configured store, opening the database when needed
func (a *App) store() (financeapp.Store, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	if a.Config.Database.Driver == config.DriverMemory {
		a.Store = inmemory.NewStore()
		return a.Store, nil
	}

	db, err := persistence.NewDatabase(&a.Config.Database,
		persistence.WithLogger(logger.NewGormLogger(a.Logger, logger.MapGormLogLevel(a.Config.Log.Level))))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.Store = persistence.NewGormUnitOfWork(db.DB)
	a.closeStore = func() {
		if err := db.Close(); err != nil {
			a.Logger.Warn("Error closing database", zap.Error(err))
		}
	}
	return a.Store, nil
}

// Close releases the database opened by store
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
		a.closeStore = nil
	}
}

// NewRootCommand builds the settlectl command tree
func NewRootCommand(app *App) *cobra.Command {
	if app.Logger == nil {
		app.Logger = zap.NewNop()
	}

	root := &cobra.Command{
		Use:   "settlectl",
		Short: "Operator tools for the settlement service",
		Long: `settlectl works against the same configuration as the settlement server
(config.toml, SETTLE_* environment variables and an optional .env file).

It issues API tokens for operators and prints read-only reports straight
from the configured database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newTokenCommand(app),
		newAgingCommand(app),
		newClassifyCommand(),
		newFundingCommand(app),
		newFundingListCommand(app, "balances"),
		newCreditCommand(app),
		newVersionCommand(),
	)
	return root
}

// Execute runs settlectl and exits non-zero on failure
func Execute(app *App) {
	defer app.Close()

	if err := NewRootCommand(app).Execute(); err != nil {
		app.Logger.Debug("Command execution failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		app.Close()
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the settlectl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "settlectl %s\n", Version)
			return err
		},
	}
}

var errMissingFlag = errors.New("missing required flag")

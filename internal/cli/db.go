package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gasoline/internal/config"
	"github.com/roach88/gasoline/internal/persist"
)

// dbFlags are the flags of commands reading a store database.
type dbFlags struct {
	Database string
	Config   string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&f.Config, "config", "", "gasoline.yaml to take persistence.database from")
}

// resolve returns the database path: --db, else persistence.database of
// --config.
func (f *dbFlags) resolve() (string, error) {
	if f.Database != "" {
		return f.Database, nil
	}
	if f.Config == "" {
		return "", errors.New("--db or --config is required")
	}
	cfg, err := config.Load(f.Config)
	if err != nil {
		return "", err
	}
	if cfg.Persistence.Database == "" {
		return "", errors.New("persistence.database is not set in " + f.Config)
	}
	return cfg.Persistence.Database, nil
}

// openDB opens an existing store database. Unlike persist.Open, a missing
// file is an error instead of a new empty database.
func openDB(opts *RootOptions, flags *dbFlags, cmd *cobra.Command) (*persist.DB, error) {
	path, err := flags.resolve()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, errors.New("database not found: " + path)
	}
	return persist.Open(path, persist.WithLogger(opts.logger(cmd, slog.LevelWarn)))
}

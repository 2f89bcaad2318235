// Package cli implements niramayctl, the operator command line.
package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dukerupert/niramay/internal/database"
	"github.com/dukerupert/niramay/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath  string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for niramayctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "niramayctl",
		Short: "Operator tools for the Niramay waste-reporting service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				err := NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return err
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "niramay.db", "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewCreateAdminCommand(opts))
	cmd.AddCommand(NewVAPIDKeysCommand(opts))

	return cmd
}

// logger writes diagnostics to the command's stderr; debug level with --verbose.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logging.New(cmd.ErrOrStderr(), level)
}

// openDB opens the database named by --db, applying migrations.
func (o *RootOptions) openDB() (*sql.DB, error) {
	db, err := database.Open(o.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database "+o.DBPath, err)
	}
	return db, nil
}

// openExistingDB opens --db without creating or migrating it.
func (o *RootOptions) openExistingDB() (*sql.DB, error) {
	db, err := database.OpenExisting(o.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database "+o.DBPath, err)
	}
	return db, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: o.Verbose,
	}
}

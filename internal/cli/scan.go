package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dukerupert/niramay/internal/integrity"
	"github.com/dukerupert/niramay/internal/model"
)

// ScanResult is the data payload of `scan --format json`.
type ScanResult struct {
	Fixes  []integrity.Fix   `json:"fixes,omitempty"`
	Report *integrity.Report `json:"report"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check the database for integrity violations",
		Long: `Run every integrity check against the database read-only and print
the issues found, most severe first.

With --fix, the auto-fixable issues are repaired in one transaction
before the scan runs. Exits 1 when issues remain and 2 when the database file does not exist.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(rootOpts, fix, cmd)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "apply auto-fixable repairs before scanning")

	return cmd
}

func runScan(opts *RootOptions, fix bool, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	db, err := opts.openExistingDB()
	if err != nil {
		return out.Fail(ExitCommandError, "open database", err)
	}
	defer db.Close()

	scanner := integrity.NewScanner(db, opts.logger(cmd))
	ctx := cmd.Context()

	var result ScanResult
	if fix {
		result.Fixes, err = scanner.AutoFix(ctx)
		if err != nil {
			return out.Fail(ExitFailure, "auto-fix", err)
		}
	}
	result.Report, err = scanner.Scan(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "scan", err)
	}

	status := "ok"
	if !result.Report.Clean() {
		status = "issues"
	}
	if err := out.Emit(status, result, func(w io.Writer) { writeScanText(w, result) }); err != nil {
		return err
	}
	if !result.Report.Clean() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d integrity issue(s) found", result.Report.Total()))
	}
	return nil
}

func writeScanText(w io.Writer, r ScanResult) {
	for _, f := range r.Fixes {
		fmt.Fprintf(w, "fixed   %s %s#%d %s: %s -> %s\n", f.Check, f.Table, f.RecordID, f.Field, f.Before, f.After)
	}
	if len(r.Fixes) > 0 {
		fmt.Fprintln(w)
	}

	rep := r.Report
	if rep.Clean() {
		fmt.Fprintln(w, "No integrity issues found.")
		return
	}
	for _, is := range rep.Issues {
		fixable := ""
		if is.AutoFixable {
			fixable = " (auto-fixable)"
		}
		fmt.Fprintf(w, "%-8s %s %s#%d %s: %s%s\n", is.Severity, is.Check, is.Table, is.RecordID, is.Field, is.Problem, fixable)
		fmt.Fprintf(w, "         fix: %s\n", is.SuggestedFix)
	}
	fmt.Fprintf(w, "\n%d issue(s):", rep.Total())
	for _, sev := range model.Severities {
		fmt.Fprintf(w, " %s=%d", sev, rep.Counts[sev])
	}
	fmt.Fprintln(w)
}

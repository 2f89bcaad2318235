package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/niramay/internal/account"
	"github.com/dukerupert/niramay/internal/model"
)

const minPasswordLen = 8

// NewCreateAdminCommand creates the create-admin command.
func NewCreateAdminCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create a user with the admin role and its profile in one step.

Admins can only be created here or by another admin; public sign-up
always produces citizens.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateAdmin(rootOpts, cmd, email, password, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "admin password, at least 8 characters (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the email)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}

func runCreateAdmin(opts *RootOptions, cmd *cobra.Command, email, password, name string) error {
	out := opts.formatter(cmd)

	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return out.Fail(ExitCommandError, "invalid email "+email, nil)
	}
	if len(password) < minPasswordLen {
		return out.Fail(ExitCommandError, fmt.Sprintf("password must be at least %d characters", minPasswordLen), nil)
	}

	db, err := opts.openDB()
	if err != nil {
		return out.Fail(ExitCommandError, "open database", err)
	}
	defer db.Close()

	p, err := account.NewService(db).CreateWithProfile(email, password, model.SignupMetadata{
		Name: strings.TrimSpace(name),
		Role: model.RoleAdmin,
	})
	if errors.Is(err, account.ErrEmailTaken) {
		return out.Fail(ExitFailure, "an account with this email already exists", nil)
	}
	if err != nil {
		return out.Fail(ExitFailure, "create admin", err)
	}

	return out.Emit("ok", p, func(w io.Writer) {
		fmt.Fprintf(w, "Created admin %s (id %d)\n", p.Email, p.ID)
	})
}

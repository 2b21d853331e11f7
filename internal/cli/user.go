package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satchelwiki/satchel/internal/auth"
	"github.com/satchelwiki/satchel/internal/model"
	"github.com/satchelwiki/satchel/internal/store"
)

// UserOptions holds flags for the user subcommands.
type UserOptions struct {
	*RootOptions
	Database string
	Email    string
	Password string
	Admin    bool
}

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user account",
		Long: `Create a user account.

Example:
  satchel user add alice --db ./satchel.db --password s3cret --admin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(opts, cmd, args[0])
		},
	}
	add.Flags().StringVar(&opts.Email, "email", "", "email address")
	add.Flags().StringVar(&opts.Password, "password", "", "password (required)")
	add.Flags().BoolVar(&opts.Admin, "admin", false, "grant administrator rights")
	_ = add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List user accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(opts, cmd)
		},
	}

	assign := &cobra.Command{
		Use:           "assign <username> <role>",
		Short:         "Add a user to a role",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAssign(opts, cmd, args[0], args[1])
		},
	}

	cmd.AddCommand(add, list, assign)
	return cmd
}

func runUserAdd(opts *UserOptions, cmd *cobra.Command, username string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	verifier, err := auth.HashPassword(opts.Password)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash password", err)
	}
	user, err := st.CreateUser(cmd.Context(), model.User{
		Username: username,
		Email:    opts.Email,
		Verifier: verifier,
		IsAdmin:  opts.Admin,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create user", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(user)
	}
	return formatter.Success(fmt.Sprintf("created user %s (id %d)", user.Username, user.ID))
}

func runUserList(opts *UserOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	users, err := st.ListUsers(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list users", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(users)
	}
	for _, u := range users {
		marker := ""
		if u.IsAdmin {
			marker = " [admin]"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s%s\n", u.ID, u.Username, u.Email, marker)
	}
	return nil
}

func runUserAssign(opts *UserOptions, cmd *cobra.Command, username, roleName string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	user, err := st.GetUserByName(cmd.Context(), username)
	if err != nil {
		return WrapExitError(ExitFailure, "unknown user", err)
	}
	role, err := st.GetRoleByName(cmd.Context(), roleName)
	if err != nil {
		return WrapExitError(ExitFailure, "unknown role", err)
	}
	if err := st.AssignRole(cmd.Context(), user.ID, role.ID); err != nil {
		return WrapExitError(ExitFailure, "failed to assign role", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(fmt.Sprintf("assigned role %s to %s", role.Name, user.Username))
}

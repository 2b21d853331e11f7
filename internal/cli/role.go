package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satchelwiki/satchel/internal/model"
	"github.com/satchelwiki/satchel/internal/store"
)

// RoleOptions holds flags for the role subcommands.
type RoleOptions struct {
	*RootOptions
	Database    string
	Description string
}

// NewRoleCommand creates the role command group.
func NewRoleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	add := &cobra.Command{
		Use:           "add <name>",
		Short:         "Create a role",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleAdd(opts, cmd, args[0])
		},
	}
	add.Flags().StringVar(&opts.Description, "description", "", "role description")

	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a role",
		Long: `Delete a role. User memberships of the role are removed as well;
ACL grants referencing the role remain but stop granting anything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleRemove(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func runRoleAdd(opts *RoleOptions, cmd *cobra.Command, name string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	role, err := st.CreateRole(cmd.Context(), model.Role{Name: name, Description: opts.Description})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create role", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(role)
	}
	return formatter.Success(fmt.Sprintf("created role %s (id %d)", role.Name, role.ID))
}

func runRoleRemove(opts *RoleOptions, cmd *cobra.Command, name string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.DeleteRole(cmd.Context(), name); err != nil {
		return WrapExitError(ExitFailure, "failed to delete role", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(fmt.Sprintf("deleted role %s", name))
}

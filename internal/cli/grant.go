package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satchelwiki/satchel/internal/model"
	"github.com/satchelwiki/satchel/internal/store"
)

// GrantOptions holds flags for the grant subcommands.
type GrantOptions struct {
	*RootOptions
	Database   string
	EntityType string
	Entity     string
	Role       string
	Permission string
}

// NewGrantCommand creates the grant command group for ACL rows.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GrantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Manage ACL grants",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().StringVar(&opts.EntityType, "entity-type", "bag", "entity type (bag|recipe)")
	cmd.PersistentFlags().StringVar(&opts.Entity, "entity", "", "entity name (required)")
	cmd.PersistentFlags().StringVar(&opts.Role, "role", "", "role name (required)")
	cmd.PersistentFlags().StringVar(&opts.Permission, "permission", "READ", "permission (READ|WRITE)")
	_ = cmd.MarkPersistentFlagRequired("db")
	_ = cmd.MarkPersistentFlagRequired("entity")
	_ = cmd.MarkPersistentFlagRequired("role")

	add := &cobra.Command{
		Use:   "add",
		Short: "Grant a permission on an entity to a role",
		Long: `Grant a permission on a bag or recipe to a role.

Example:
  satchel grant add --db ./satchel.db --entity-type recipe --entity wiki --role readers --permission READ`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrantAdd(opts, cmd)
		},
	}

	remove := &cobra.Command{
		Use:           "remove",
		Short:         "Revoke a previously granted permission",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrantRemove(opts, cmd)
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func runGrantAdd(opts *GrantOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	role, err := st.GetRoleByName(cmd.Context(), opts.Role)
	if err != nil {
		return WrapExitError(ExitFailure, "unknown role", err)
	}
	rec, err := st.CreateACL(cmd.Context(), model.ACLRecord{
		EntityType: model.EntityType(opts.EntityType),
		EntityName: opts.Entity,
		RoleID:     role.ID,
		Permission: model.Permission(opts.Permission),
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create grant", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(rec)
	}
	return formatter.Success(fmt.Sprintf("granted %s on %s %s to %s",
		rec.Permission, rec.EntityType, rec.EntityName, opts.Role))
}

func runGrantRemove(opts *GrantOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rec, err := findGrant(cmd.Context(), st, opts)
	if err != nil {
		return err
	}
	if err := st.DeleteACL(cmd.Context(), rec.ID); err != nil {
		return WrapExitError(ExitFailure, "failed to delete grant", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(fmt.Sprintf("revoked %s on %s %s from %s",
		opts.Permission, opts.EntityType, opts.Entity, opts.Role))
}

// findGrant locates the ACL row matching the flag tuple.
func findGrant(ctx context.Context, st *store.Store, opts *GrantOptions) (*model.ACLRecord, error) {
	role, err := st.GetRoleByName(ctx, opts.Role)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "unknown role", err)
	}
	records, err := st.ListACL(ctx, model.EntityType(opts.EntityType), opts.Entity)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to list grants", err)
	}
	for _, rec := range records {
		if rec.RoleID == role.ID && rec.Permission == model.Permission(opts.Permission) {
			return &rec, nil
		}
	}
	return nil, NewExitError(ExitFailure, "no matching grant found")
}

// Package acl gates every entity operation by role and permission.
//
// Check order is fixed: admin pass, first-guest bootstrap pass, anonymous
// flag short-circuit, partitioned-bag overrides, then role/ACL row match.
// An entity with no ACL rows at all denies ordinary authenticated users;
// only admins (or the first guest) reach it.
package acl

import (
	"context"
	"strings"

	"github.com/satchelwiki/satchel/internal/model"
)

// PolicyReader is the slice of the store the guard needs.
type PolicyReader interface {
	CountUsers(ctx context.Context) (int, error)
	GetBag(ctx context.Context, name string) (*model.Bag, error)
	HasACL(ctx context.Context, entityType model.EntityType, entityName string, roleIDs []int64, perm model.Permission) (bool, error)
}

// Guard authorizes entity operations. The anonymous-access flags are
// global deployment policy, fixed at construction.
type Guard struct {
	policies        PolicyReader
	allowAnonReads  bool
	allowAnonWrites bool
}

// NewGuard creates a guard over the given policy source.
func NewGuard(policies PolicyReader, allowAnonReads, allowAnonWrites bool) *Guard {
	return &Guard{
		policies:        policies,
		allowAnonReads:  allowAnonReads,
		allowAnonWrites: allowAnonWrites,
	}
}

// Check authorizes a permission on an entity for a requester (nil means
// anonymous). Returns nil on pass, model.PermissionError on denial, and
// a wrapped store error on lookup failure.
func (g *Guard) Check(ctx context.Context, entityType model.EntityType, entityName string, perm model.Permission, req *model.Requester) error {
	return g.check(ctx, entityType, entityName, "", perm, req)
}

// CheckWrite authorizes a WRITE of a specific title to a bag. Identical
// to Check except that a partitioned bag's title-prefix override applies:
// any authenticated user may write titles of the form prefix+username.
func (g *Guard) CheckWrite(ctx context.Context, bagName, title string, req *model.Requester) error {
	return g.check(ctx, model.EntityTypeBag, bagName, title, model.PermissionWrite, req)
}

func (g *Guard) check(ctx context.Context, entityType model.EntityType, entityName, title string, perm model.Permission, req *model.Requester) error {
	// Admins always pass.
	if req != nil && req.IsAdmin {
		return nil
	}

	// First-guest bootstrap: an empty store must let the first
	// administrator be created.
	count, err := g.policies.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	// Anonymous access is gated by the global flags before any
	// role-based check.
	if req == nil {
		if perm == model.PermissionRead && g.allowAnonReads {
			return nil
		}
		if perm == model.PermissionWrite && g.allowAnonWrites {
			return nil
		}
		return model.NewPermissionError(entityType, entityName, perm, "authentication required")
	}

	// Partitioned-bag overrides for authenticated users.
	if entityType == model.EntityTypeBag {
		ok, err := g.bagOverride(ctx, entityName, title, perm, req)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	ok, err := g.policies.HasACL(ctx, entityType, entityName, req.RoleIDs, perm)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return model.NewPermissionError(entityType, entityName, perm, "no role grants")
}

// bagOverride evaluates a bag's partition policy for an authenticated
// requester. Unknown bags fall through to the ACL check, which will deny;
// existence errors surface through the operation itself with a proper
// 404 when the caller reads the bag.
func (g *Guard) bagOverride(ctx context.Context, bagName, title string, perm model.Permission, req *model.Requester) (bool, error) {
	bag, err := g.policies.GetBag(ctx, bagName)
	if err != nil {
		if model.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if bag.Partition == nil {
		return false, nil
	}

	if perm == model.PermissionRead && bag.Partition.EveryoneReadable {
		return true, nil
	}
	if perm == model.PermissionWrite && bag.Partition.NormallyWritable {
		return true, nil
	}

	// Self-partition write: prefix+username, regardless of ACL rows.
	if perm == model.PermissionWrite && title != "" && bag.Partition.TitlePrefix != "" {
		if strings.TrimPrefix(title, bag.Partition.TitlePrefix) == req.Username &&
			strings.HasPrefix(title, bag.Partition.TitlePrefix) {
			return true, nil
		}
	}
	return false, nil
}

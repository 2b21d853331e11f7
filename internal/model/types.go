package model

import "time"

// Permission is an access level grantable on a bag or recipe.
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
)

// EntityType identifies the kind of entity an ACL record protects.
type EntityType string

const (
	EntityTypeBag    EntityType = "bag"
	EntityTypeRecipe EntityType = "recipe"
)

// PartitionPolicy declares per-user partitioning for a bag.
//
// When TitlePrefix is non-empty, any authenticated user may write titles of
// the form prefix+username regardless of explicit ACL rows. The two flags
// grant blanket READ/WRITE on the bag to all authenticated users.
type PartitionPolicy struct {
	TitlePrefix      string `json:"title_prefix,omitempty"`
	EveryoneReadable bool   `json:"everyone_readable,omitempty"`
	NormallyWritable bool   `json:"normally_writable,omitempty"`
}

// Bag is a named append-only container of tiddler revisions.
// Bag names are immutable once created.
type Bag struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Partition   *PartitionPolicy `json:"partition,omitempty"`
}

// RecipeBag is one layer of a recipe. Position is a total order;
// position 0 is the lowest-precedence (base) layer.
type RecipeBag struct {
	Bag      string `json:"bag"`
	Position int    `json:"position"`
}

// Recipe composes an ordered list of bags into one merged view.
// A recipe always references at least one bag. Bags are held in
// ascending position order.
type Recipe struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Bags        []RecipeBag `json:"bags"`
}

// BagNames returns the recipe's bag names in ascending position order.
func (r *Recipe) BagNames() []string {
	names := make([]string, len(r.Bags))
	for i, rb := range r.Bags {
		names[i] = rb.Bag
	}
	return names
}

// PositionOf returns the position of the named bag in the recipe,
// or -1 if the recipe does not contain it.
func (r *Recipe) PositionOf(bag string) int {
	for _, rb := range r.Bags {
		if rb.Bag == bag {
			return rb.Position
		}
	}
	return -1
}

// Fields is a tiddler's field map. It always includes "title"; the body
// of a text tiddler lives under "text".
type Fields map[string]string

// Clone returns a deep copy of the field map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Revision is one immutable version of a tiddler, tagged with a
// store-wide monotonic id. A revision with IsDeleted set is a tombstone:
// it marks the title deleted in its bag as of that id.
type Revision struct {
	ID           int64  `json:"revision_id"`
	Bag          string `json:"bag"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Fields       Fields `json:"fields"`
	IsDeleted    bool   `json:"is_deleted"`
	AttachmentID string `json:"attachment_id,omitempty"`
}

// Role is a named grant target. Users hold roles; ACL records reference
// roles by id.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ACLRecord grants a permission on an entity to a role.
// The (entity_type, entity_name, role_id, permission) tuple is unique.
type ACLRecord struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityName string     `json:"entity_name"`
	RoleID     int64      `json:"role_id"`
	Permission Permission `json:"permission"`
}

// User is an account. Verifier is the opaque password-verifier blob;
// its layout belongs to the auth package.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Verifier []byte `json:"-"`
	IsAdmin  bool   `json:"is_admin"`
}

// Session ties an opaque session id to a user until expiry.
type Session struct {
	ID     string    `json:"session_id"`
	UserID int64     `json:"user_id"`
	Expiry time.Time `json:"expiry"`
}

// Requester is the authenticated identity behind a request.
// A nil *Requester means the request is anonymous.
type Requester struct {
	UserID   int64
	Username string
	IsAdmin  bool
	RoleIDs  []int64
}

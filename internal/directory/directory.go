// Package directory is the in-memory identity directory: organizations, roles,
// groups and users, indexed by id, with a reverse index from credential digest to user.
package directory

import (
	"fmt"
	"strings"
	"sync"

	"g10.app/identity/internal/credential"
	"g10.app/identity/internal/index"
)

// Kind names one collection of the directory.
type Kind string

const (
	KindOrganizations Kind = "organizations"
	KindRoles         Kind = "roles"
	KindGroups        Kind = "groups"
	KindUsers         Kind = "users"
)

// Kinds lists every collection in population order.
var Kinds = []Kind{KindOrganizations, KindRoles, KindGroups, KindUsers}

// ParseKind resolves a collection name, accepting the singular form too.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organizations", "organization", "orgs", "org":
		return KindOrganizations, nil
	case "roles", "role":
		return KindRoles, nil
	case "groups", "group":
		return KindGroups, nil
	case "users", "user":
		return KindUsers, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Directory is safe for concurrent use. It is append-only: entities are never
// updated or removed once added.
type Directory struct {
	orgs   *index.Index[uint64, Organization]
	roles  *index.Index[uint64, Role]
	groups *index.Index[uint64, Group]

	// usersMu serializes AddUser against lookups so that users and byCredential
	// always agree on which users exist.
	usersMu      sync.RWMutex
	users        *index.Index[uint64, User]
	byCredential *index.Index[credential.Digest, User]
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{
		orgs:         index.New(func(o Organization) uint64 { return o.ID }, index.CompareID),
		roles:        index.New(func(r Role) uint64 { return r.ID }, index.CompareID),
		groups:       index.New(func(g Group) uint64 { return g.ID }, index.CompareID),
		users:        index.New(func(u User) uint64 { return u.ID }, index.CompareID),
		byCredential: index.New(func(u User) credential.Digest { return u.Credential }, index.CompareBytes[credential.Digest]),
	}
}

func (d *Directory) AddOrganization(o Organization) error {
	if err := d.orgs.Insert(o); err != nil {
		return fmt.Errorf("%w: organization %d", duplicateID(err), o.ID)
	}
	return nil
}

func (d *Directory) AddRole(r Role) error {
	if err := d.roles.Insert(r.clone()); err != nil {
		return fmt.Errorf("%w: role %d", duplicateID(err), r.ID)
	}
	return nil
}

func (d *Directory) AddGroup(g Group) error {
	if err := d.groups.Insert(g.clone()); err != nil {
		return fmt.Errorf("%w: group %d", duplicateID(err), g.ID)
	}
	return nil
}

// AddUser inserts u into the id index and the credential index, or into neither.
// A digest already held by another user is rejected with ErrDuplicateCredential.
func (d *Directory) AddUser(u User) error {
	u = u.clone()

	d.usersMu.Lock()
	defer d.usersMu.Unlock()

	if d.users.Contains(u.ID) {
		return fmt.Errorf("%w: user %d", ErrDuplicateID, u.ID)
	}
	if d.byCredential.Contains(u.Credential) {
		return fmt.Errorf("%w: user %d", ErrDuplicateCredential, u.ID)
	}
	// Both inserts succeed: writers are serialized by usersMu and keys were checked above.
	if err := d.users.Insert(u); err != nil {
		return fmt.Errorf("%w: user %d", duplicateID(err), u.ID)
	}
	if err := d.byCredential.Insert(u); err != nil {
		panic(fmt.Sprintf("directory: credential index diverged from users index: %v", err))
	}
	return nil
}

func (d *Directory) Organization(id uint64) (Organization, bool) {
	return d.orgs.Search(id)
}

func (d *Directory) Role(id uint64) (Role, bool) {
	r, ok := d.roles.Search(id)
	return r.clone(), ok
}

func (d *Directory) Group(id uint64) (Group, bool) {
	g, ok := d.groups.Search(id)
	return g.clone(), ok
}

// User looks a user up by id.
func (d *Directory) User(id uint64) (User, bool) {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	u, ok := d.users.Search(id)
	return u.clone(), ok
}

// UserByCredential looks a user up by the digest of their secret.
func (d *Directory) UserByCredential(digest credential.Digest) (User, bool) {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	u, ok := d.byCredential.Search(digest)
	return u.clone(), ok
}

// Organizations returns all organizations in ascending id order.
func (d *Directory) Organizations() []Organization {
	out := make([]Organization, 0, d.orgs.Len())
	for o := range d.orgs.All() {
		out = append(out, o)
	}
	return out
}

// Roles returns all roles in ascending id order.
func (d *Directory) Roles() []Role {
	out := make([]Role, 0, d.roles.Len())
	for r := range d.roles.All() {
		out = append(out, r.clone())
	}
	return out
}

// Groups returns all groups in ascending id order.
func (d *Directory) Groups() []Group {
	out := make([]Group, 0, d.groups.Len())
	for g := range d.groups.All() {
		out = append(out, g.clone())
	}
	return out
}

// Users returns all users in ascending id order.
func (d *Directory) Users() []User {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	out := make([]User, 0, d.users.Len())
	for u := range d.users.All() {
		out = append(out, u.clone())
	}
	return out
}

// List returns the entities of one collection in ascending id order.
func (d *Directory) List(kind Kind) ([]any, error) {
	var out []any
	switch kind {
	case KindOrganizations:
		for _, v := range d.Organizations() {
			out = append(out, v)
		}
	case KindRoles:
		for _, v := range d.Roles() {
			out = append(out, v)
		}
	case KindGroups:
		for _, v := range d.Groups() {
			out = append(out, v)
		}
	case KindUsers:
		for _, v := range d.Users() {
			out = append(out, v)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// Counts returns the size of each collection.
func (d *Directory) Counts() map[Kind]int {
	d.usersMu.RLock()
	users := d.users.Len()
	d.usersMu.RUnlock()
	return map[Kind]int{
		KindOrganizations: d.orgs.Len(),
		KindRoles:         d.roles.Len(),
		KindGroups:        d.groups.Len(),
		KindUsers:         users,
	}
}

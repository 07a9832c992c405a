package directory

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"g10.app/identity/internal/credential"
)

// MaxNameLength is the longest stored display name in bytes. Longer names are truncated.
const MaxNameLength = 64

// Organization is a top-level tenant.
type Organization struct {
	ID   uint64 `json:"id" cbor:"id"`
	Name string `json:"name" cbor:"name"`
}

// Role carries opaque permission patterns of the form verb:resource-pattern.
type Role struct {
	ID          uint64   `json:"id" cbor:"id"`
	Name        string   `json:"name" cbor:"name"`
	OrgID       uint64   `json:"org_id" cbor:"org_id"`
	Permissions []string `json:"permissions" cbor:"permissions"`
}

// Group grants its roles to every member.
type Group struct {
	ID      uint64   `json:"id" cbor:"id"`
	Name    string   `json:"name" cbor:"name"`
	OrgID   uint64   `json:"org_id" cbor:"org_id"`
	RoleIDs []uint64 `json:"role_ids" cbor:"role_ids"`
}

// User is a principal. Credential is never serialized.
type User struct {
	ID         uint64            `json:"id" cbor:"id"`
	Name       string            `json:"name" cbor:"name"`
	OrgID      uint64            `json:"org_id" cbor:"org_id"`
	GroupIDs   []uint64          `json:"group_ids" cbor:"group_ids"`
	RoleIDs    []uint64          `json:"role_ids" cbor:"role_ids"`
	Credential credential.Digest `json:"-" cbor:"-"`
}

// NewOrganization validates and builds an Organization.
func NewOrganization(id uint64, name string) (Organization, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Organization{}, err
	}
	return Organization{ID: id, Name: name}, nil
}

// NewRole validates and builds a Role. Permissions are kept verbatim and in order.
func NewRole(id uint64, name string, orgID uint64, permissions []string) (Role, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Role{}, err
	}
	perms := slices.Clone(permissions)
	if perms == nil {
		perms = []string{}
	}
	return Role{
		ID:          id,
		Name:        name,
		OrgID:       orgID,
		Permissions: perms,
	}, nil
}

// NewGroup validates and builds a Group.
func NewGroup(id uint64, name string, orgID uint64, roleIDs []uint64) (Group, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Group{}, err
	}
	return Group{
		ID:      id,
		Name:    name,
		OrgID:   orgID,
		RoleIDs: idSet(roleIDs),
	}, nil
}

// NewUser validates and builds a User holding the digest of the user's secret.
func NewUser(id uint64, name string, orgID uint64, groupIDs, roleIDs []uint64, digest credential.Digest) (User, error) {
	name, err := normalizeName(name)
	if err != nil {
		return User{}, err
	}
	return User{
		ID:         id,
		Name:       name,
		OrgID:      orgID,
		GroupIDs:   idSet(groupIDs),
		RoleIDs:    idSet(roleIDs),
		Credential: digest,
	}, nil
}

func normalizeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	return truncateName(name), nil
}

// truncateName cuts name to MaxNameLength bytes without splitting a rune.
func truncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	cut := MaxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// idSet returns ids sorted with duplicates removed. A nil or empty input yields an empty set.
func idSet(ids []uint64) []uint64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []uint64{}
	}
	return out
}

func (r Role) clone() Role {
	r.Permissions = slices.Clone(r.Permissions)
	return r
}

func (g Group) clone() Group {
	g.RoleIDs = slices.Clone(g.RoleIDs)
	return g
}

func (u User) clone() User {
	u.GroupIDs = slices.Clone(u.GroupIDs)
	u.RoleIDs = slices.Clone(u.RoleIDs)
	return u
}

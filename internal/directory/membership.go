package directory

import "slices"

// Memberships is everything a user belongs to. Roles holds the user's direct roles
// plus the roles granted by its groups. References that do not resolve are listed
// in Missing instead of failing the lookup.
type Memberships struct {
	User         User          `json:"user" cbor:"user"`
	Organization *Organization `json:"organization,omitempty" cbor:"organization,omitempty"`
	Groups       []Group       `json:"groups" cbor:"groups"`
	Roles        []Role        `json:"roles" cbor:"roles"`
	Missing      []Reference   `json:"missing,omitempty" cbor:"missing,omitempty"`
}

// Reference names an entity by kind and id.
type Reference struct {
	Kind Kind   `json:"kind" cbor:"kind"`
	ID   uint64 `json:"id" cbor:"id"`
}

// Memberships resolves the organization, groups and roles of the user with the given id.
func (d *Directory) Memberships(userID uint64) (Memberships, bool) {
	u, ok := d.User(userID)
	if !ok {
		return Memberships{}, false
	}
	m := Memberships{User: u, Groups: []Group{}, Roles: []Role{}}

	if org, ok := d.Organization(u.OrgID); ok {
		m.Organization = &org
	} else {
		m.Missing = append(m.Missing, Reference{Kind: KindOrganizations, ID: u.OrgID})
	}

	roleIDs := slices.Clone(u.RoleIDs)
	for _, gid := range u.GroupIDs {
		g, ok := d.Group(gid)
		if !ok {
			m.Missing = append(m.Missing, Reference{Kind: KindGroups, ID: gid})
			continue
		}
		m.Groups = append(m.Groups, g)
		roleIDs = append(roleIDs, g.RoleIDs...)
	}

	for _, rid := range idSet(roleIDs) {
		r, ok := d.Role(rid)
		if !ok {
			m.Missing = append(m.Missing, Reference{Kind: KindRoles, ID: rid})
			continue
		}
		m.Roles = append(m.Roles, r)
	}
	return m, true
}

package directory

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"g10.app/identity/internal/credential"
)

// Object is a decoded JSON or YAML object.
type Object = map[string]any

// OrganizationFromObject builds an Organization from {"org_id", "name"}.
func OrganizationFromObject(obj Object) (Organization, error) {
	id, name, err := idAndName(obj, "org_id")
	if err != nil {
		return Organization{}, err
	}
	return NewOrganization(id, name)
}

// RoleFromObject builds a Role from {"role_id", "name", "org_id"?, "permissions"?}.
func RoleFromObject(obj Object) (Role, error) {
	id, name, err := idAndName(obj, "role_id")
	if err != nil {
		return Role{}, err
	}
	orgID, err := optionalUint(obj, "org_id")
	if err != nil {
		return Role{}, err
	}
	perms, err := optionalStrings(obj, "permissions")
	if err != nil {
		return Role{}, err
	}
	return NewRole(id, name, orgID, perms)
}

// GroupFromObject builds a Group from {"group_id", "name", "org_id"?, "role_ids"?}.
func GroupFromObject(obj Object) (Group, error) {
	id, name, err := idAndName(obj, "group_id")
	if err != nil {
		return Group{}, err
	}
	orgID, err := optionalUint(obj, "org_id")
	if err != nil {
		return Group{}, err
	}
	roles, err := optionalUints(obj, "role_ids")
	if err != nil {
		return Group{}, err
	}
	return NewGroup(id, name, orgID, roles)
}

// UserFromObject builds a User from {"user_id", "name", "org_id"?, "group_ids"?, "role_ids"?}
// plus exactly one of "password" (hashed here) or "password_hash" (hex digest).
func UserFromObject(obj Object) (User, error) {
	id, name, err := idAndName(obj, "user_id")
	if err != nil {
		return User{}, err
	}
	orgID, err := optionalUint(obj, "org_id")
	if err != nil {
		return User{}, err
	}
	groups, err := optionalUints(obj, "group_ids")
	if err != nil {
		return User{}, err
	}
	roles, err := optionalUints(obj, "role_ids")
	if err != nil {
		return User{}, err
	}
	digest, err := userDigest(obj)
	if err != nil {
		return User{}, err
	}
	return NewUser(id, name, orgID, groups, roles, digest)
}

func userDigest(obj Object) (credential.Digest, error) {
	secret, hasSecret := obj["password"]
	hash, hasHash := obj["password_hash"]
	switch {
	case hasSecret && hasHash:
		return credential.Digest{}, fmt.Errorf("%w: only one of \"password\" and \"password_hash\" may be set", ErrSchema)
	case hasSecret:
		s, ok := secret.(string)
		if !ok {
			return credential.Digest{}, wrongType("password", "string")
		}
		return credential.Hash(s), nil
	case hasHash:
		s, ok := hash.(string)
		if !ok {
			return credential.Digest{}, wrongType("password_hash", "string")
		}
		d, err := credential.ParseDigest(s)
		if err != nil {
			return credential.Digest{}, fmt.Errorf("%w: property \"password_hash\": %v", ErrSchema, err)
		}
		return d, nil
	default:
		return credential.Digest{}, missing("password")
	}
}

func idAndName(obj Object, idKey string) (uint64, string, error) {
	if obj == nil {
		return 0, "", fmt.Errorf("%w: value must be an object", ErrSchema)
	}
	rawName, ok := obj["name"]
	if !ok {
		return 0, "", missing("name")
	}
	rawID, ok := obj[idKey]
	if !ok {
		return 0, "", missing(idKey)
	}
	name, ok := rawName.(string)
	if !ok {
		return 0, "", wrongType("name", "string")
	}
	id, ok := toUint(rawID)
	if !ok {
		return 0, "", wrongType(idKey, "integer")
	}
	return id, name, nil
}

func optionalUint(obj Object, key string) (uint64, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return 0, nil
	}
	v, ok := toUint(raw)
	if !ok {
		return 0, wrongType(key, "integer")
	}
	return v, nil
}

func optionalUints(obj Object, key string) ([]uint64, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, wrongType(key, "array")
	}
	out := make([]uint64, 0, len(list))
	for _, item := range list {
		v, ok := toUint(item)
		if !ok {
			return nil, wrongType(key, "array of integers")
		}
		out = append(out, v)
	}
	return out, nil
}

func optionalStrings(obj Object, key string) ([]string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, wrongType(key, "array")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, wrongType(key, "array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// toUint accepts the integer representations produced by encoding/json (with or
// without UseNumber) and yaml.v3.
func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= 1<<64 {
			return 0, false
		}
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case int32:
		return uint64(n), n >= 0
	case uint32:
		return uint64(n), true
	default:
		return 0, false
	}
}

func missing(key string) error {
	return fmt.Errorf("%w: missing property %q", ErrSchema, key)
}

func wrongType(key, want string) error {
	return fmt.Errorf("%w: property %q must be of type %s", ErrSchema, key, want)
}

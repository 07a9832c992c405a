// Package seed populates a directory from a declarative JSON, JSONC, YAML or CBOR document.
package seed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"g10.app/identity/internal/codec"
	"g10.app/identity/internal/directory"
)

var ErrUnsupportedFormat = errors.New("seed: unsupported file format")

// Document lists entities in insertion order. Each entry is an object in the
// shape accepted by the directory *FromObject constructors.
type Document struct {
	Organizations []directory.Object `json:"organizations" yaml:"organizations"`
	Roles         []directory.Object `json:"roles" yaml:"roles"`
	Groups        []directory.Object `json:"groups" yaml:"groups"`
	Users         []directory.Object `json:"users" yaml:"users"`
}

// Stats counts the entities inserted by Apply or loaded from another source.
type Stats struct {
	Organizations int `json:"organizations"`
	Roles         int `json:"roles"`
	Groups        int `json:"groups"`
	Users         int `json:"users"`
}

func (s Stats) Total() int { return s.Organizations + s.Roles + s.Groups + s.Users }

// LoadFile reads a document, choosing the decoder by extension.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("seed: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonc":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cbor":
		return ParseCBOR(data)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ParseJSON decodes JSON, tolerating comments and trailing commas.
func ParseJSON(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("seed: decode json: %w", err)
	}
	return doc, nil
}

func ParseYAML(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("seed: decode yaml: %w", err)
	}
	return doc, nil
}

// ParseCBOR decodes a document in the form produced by codec.Marshal.
func ParseCBOR(data []byte) (Document, error) {
	var doc Document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("seed: decode cbor: %w", err)
	}
	return doc, nil
}

// Apply inserts organizations, roles, groups and users in that order. The first
// failure aborts and leaves the entities inserted before it in dir; apply into a
// fresh directory and drop it on error.
func Apply(dir *directory.Directory, doc Document) (Stats, error) {
	var st Stats
	for i, obj := range doc.Organizations {
		o, err := directory.OrganizationFromObject(obj)
		if err == nil {
			err = dir.AddOrganization(o)
		}
		if err != nil {
			return st, entityErr(directory.KindOrganizations, i, err)
		}
		st.Organizations++
	}
	for i, obj := range doc.Roles {
		r, err := directory.RoleFromObject(obj)
		if err == nil {
			err = dir.AddRole(r)
		}
		if err != nil {
			return st, entityErr(directory.KindRoles, i, err)
		}
		st.Roles++
	}
	for i, obj := range doc.Groups {
		g, err := directory.GroupFromObject(obj)
		if err == nil {
			err = dir.AddGroup(g)
		}
		if err != nil {
			return st, entityErr(directory.KindGroups, i, err)
		}
		st.Groups++
	}
	for i, obj := range doc.Users {
		u, err := directory.UserFromObject(obj)
		if err == nil {
			err = dir.AddUser(u)
		}
		if err != nil {
			return st, entityErr(directory.KindUsers, i, err)
		}
		st.Users++
	}
	return st, nil
}

func entityErr(kind directory.Kind, i int, err error) error {
	return fmt.Errorf("seed: %s[%d]: %w", kind, i, err)
}

package sim

import "fmt"

// Role is a slot persons occupy in a group entity. A role with subroles
// expands to an ordered list of distinct single-person roles.
type Role struct {
	Key      string
	Plural   string
	Label    string
	Doc      string
	Max      int // 0 means unbounded
	Subroles []*Role
	Parent   *Role // set on subroles
}

// Is reports whether r is key or a subrole of key.
func (r *Role) Is(key string) bool {
	if r == nil {
		return false
	}
	return r.Key == key || (r.Parent != nil && r.Parent.Key == key)
}

// Entity declares a kind of entity. Exactly one entity of a system is the
// person entity; the others group persons in roles.
type Entity struct {
	Key      string
	Plural   string
	Label    string
	Doc      string
	IsPerson bool
	Roles    []*Role
}

// NewPersonEntity declares the person entity.
func NewPersonEntity(key, plural, label, doc string) *Entity {
	return &Entity{Key: key, Plural: plural, Label: label, Doc: doc, IsPerson: true}
}

// NewGroupEntity declares a group entity. Subroles are linked to their
// parent and capped at one person each.
func NewGroupEntity(key, plural, label, doc string, roles ...*Role) *Entity {
	for _, r := range roles {
		for _, sub := range r.Subroles {
			sub.Parent = r
			sub.Max = 1
		}
		if len(r.Subroles) > 0 && r.Max == 0 {
			r.Max = len(r.Subroles)
		}
	}
	return &Entity{Key: key, Plural: plural, Label: label, Doc: doc, Roles: roles}
}

// Role finds a role by key, plural or subrole key.
func (e *Entity) Role(key string) (*Role, error) {
	for _, r := range e.Roles {
		if r.Key == key || (r.Plural != "" && r.Plural == key) {
			return r, nil
		}
		for _, sub := range r.Subroles {
			if sub.Key == key {
				return sub, nil
			}
		}
	}
	return nil, &InvalidRoleError{Key: key, Entity: e.Key}
}

// FlattenedRoles lists the roles persons actually bear: subroles replace
// the roles that declare them.
func (e *Entity) FlattenedRoles() []*Role {
	var out []*Role
	for _, r := range e.Roles {
		if len(r.Subroles) > 0 {
			out = append(out, r.Subroles...)
		} else {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the entity declaration.
func (e *Entity) Validate() error {
	if e.Key == "" || e.Plural == "" {
		return fmt.Errorf("entity must declare a key and a plural, got %q/%q", e.Key, e.Plural)
	}
	if e.IsPerson && len(e.Roles) > 0 {
		return fmt.Errorf("person entity %q cannot declare roles", e.Key)
	}
	if !e.IsPerson && len(e.Roles) == 0 {
		return fmt.Errorf("group entity %q declares no role", e.Key)
	}
	seen := make(map[string]bool)
	for _, r := range e.FlattenedRoles() {
		if seen[r.Key] {
			return fmt.Errorf("entity %q declares role %q twice", e.Key, r.Key)
		}
		seen[r.Key] = true
	}
	return nil
}

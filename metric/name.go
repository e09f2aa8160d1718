package metric

import (
	"cmp"
	"strings"
)

// Name identifies a metric in a Registry. It is a comparable value and is
// used directly as a map key.
//
// The group and type (and optional scope) make up the group key under which
// reporters list the metric; the name is the metric's own label within that
// group.
type Name struct {
	Group string
	Type  string
	Name  string
	Scope string
}

// NewName returns a Name without scope.
func NewName(group, typ, name string) Name {
	return Name{Group: group, Type: typ, Name: name}
}

// WithScope returns a copy of n with the scope set.
func (n Name) WithScope(scope string) Name {
	n.Scope = scope
	return n
}

// GroupKey joins the non-empty parts of group, type and scope with dots.
func (n Name) GroupKey() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.Group, n.Type, n.Scope} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Path is the dotted display path: the group key followed by the name.
func (n Name) Path() string {
	key := n.GroupKey()
	if key == "" {
		return n.Name
	}
	return key + "." + n.Name
}

func (n Name) String() string {
	return n.Path()
}

// Compare orders names by group key and name, falling back to the
// individual parts so that distinct names never compare equal.
func (n Name) Compare(o Name) int {
	if c := cmp.Compare(n.GroupKey(), o.GroupKey()); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Name, o.Name); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Group, o.Group); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Type, o.Type); c != 0 {
		return c
	}
	return cmp.Compare(n.Scope, o.Scope)
}

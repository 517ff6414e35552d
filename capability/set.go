package capability

import (
	"sort"
	"strings"
)

// Set maps capability names to their optional values. A capability without a
// value maps to "".
type Set map[string]string

// ParseSet parses a space-separated capability list such as
// "multi-prefix sasl=PLAIN,EXTERNAL server-time".
func ParseSet(list string) Set {
	set := make(Set)
	set.add(list)
	return set
}

func (s Set) add(list string) {
	for _, token := range strings.Fields(list) {
		name, value, _ := strings.Cut(token, "=")
		s[name] = value
	}
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Value returns the value advertised for name.
func (s Set) Value(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// Names returns the capability names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Intersect returns the names from wanted that are present in s, in the
// order given.
func (s Set) Intersect(wanted ...string) []string {
	var out []string
	for _, name := range wanted {
		if s.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Clone returns a copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// String renders the set in capability-list form, sorted by name.
func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, name := range s.Names() {
		if v := s[name]; v != "" {
			parts = append(parts, name+"="+v)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}

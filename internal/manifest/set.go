package manifest

import "sort"

// Set is a set of slash-separated root-relative paths.
type Set map[string]struct{}

func NewSet(paths ...string) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func (s Set) Add(p string) { s[p] = struct{}{} }

func (s Set) Has(p string) bool {
	_, ok := s[p]
	return ok
}

func (s Set) Len() int { return len(s) }

// Union returns a new set holding the members of s and o.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for p := range s {
		out.Add(p)
	}
	for p := range o {
		out.Add(p)
	}
	return out
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

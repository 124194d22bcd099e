package metadata

import (
	"fmt"
	"sort"
	"sync"
)

// Category identifies the kind of annotation recorded against a site.
type Category int

const (
	CategoryMethod Category = iota + 1
	CategoryPath
	CategoryQuery
	CategoryHeader
	CategoryBody
	CategoryResponseType
	CategoryBaseURL
	CategoryCache
	CategoryCacheInvalidation
	CategoryErrorHandler
)

var categoryNames = map[Category]string{
	CategoryMethod:            "method",
	CategoryPath:              "path",
	CategoryQuery:             "query",
	CategoryHeader:            "header",
	CategoryBody:              "body",
	CategoryResponseType:      "response-type",
	CategoryBaseURL:           "base-url",
	CategoryCache:             "cache",
	CategoryCacheInvalidation: "cache-invalidation",
	CategoryErrorHandler:      "error-handler",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Scope tells whether a site addresses a whole type, the property-bound
// entries of a type, or a single member.
type Scope int

const (
	ScopeClass Scope = iota
	ScopeProperty
	ScopeMember
)

// Site is the declaration site an annotation is attached to.
type Site struct {
	Type   string
	Member string
	Scope  Scope
}

// ClassSite addresses class-wide annotations of typ.
func ClassSite(typ string) Site {
	return Site{Type: typ, Scope: ScopeClass}
}

// PropertySite addresses property-bound annotations of typ.
func PropertySite(typ string) Site {
	return Site{Type: typ, Scope: ScopeProperty}
}

// MemberSite addresses annotations scoped to a single member of typ.
func MemberSite(typ, member string) Site {
	return Site{Type: typ, Member: member, Scope: ScopeMember}
}

func (s Site) String() string {
	switch s.Scope {
	case ScopeProperty:
		return s.Type + "#properties"
	case ScopeMember:
		return s.Type + "." + s.Member
	default:
		return s.Type
	}
}

type entryKey struct {
	site     Site
	category Category
}

// Store holds declarative annotations keyed by (site, category).
// Writes normally happen once at startup while client types are declared;
// reads happen on every invocation. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[entryKey][]any
	flags   map[Site]bool

	// type name -> member names in declaration order
	members map[string][]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[entryKey][]any),
		flags:   make(map[Site]bool),
		members: make(map[string][]string),
	}
}

var defaultStore = NewStore()

// Default returns the process-wide store used when a client type does not
// name its own.
func Default() *Store {
	return defaultStore
}

// Define appends value to the entry addressed by (category, site).
func (s *Store) Define(category Category, site Site, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{site: site, category: category}
	s.entries[key] = append(s.entries[key], value)
	s.track(site)
}

// Replace overwrites the entry addressed by (category, site) with a single value.
func (s *Store) Replace(category Category, site Site, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entryKey{site: site, category: category}] = []any{value}
	s.track(site)
}

// Read returns the values recorded for (category, site) in definition order.
// The returned slice is a copy; nil means nothing was recorded.
func (s *Store) Read(category Category, site Site) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.entries[entryKey{site: site, category: category}]
	if !ok {
		return nil
	}
	out := make([]any, len(values))
	copy(out, values)
	return out
}

// Last returns the most recent value recorded for (category, site).
func (s *Store) Last(category Category, site Site) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := s.entries[entryKey{site: site, category: category}]
	if len(values) == 0 {
		return nil, false
	}
	return values[len(values)-1], true
}

// SetFlag overwrites the invalidation flag of site.
func (s *Store) SetFlag(site Site, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if on {
		s.flags[site] = true
		return
	}
	delete(s.flags, site)
}

// Flag reports the invalidation flag of site without clearing it.
func (s *Store) Flag(site Site) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[site]
}

// TakeFlag reports the invalidation flag of site and clears it.
func (s *Store) TakeFlag(site Site) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	on := s.flags[site]
	delete(s.flags, site)
	return on
}

// Has reports whether anything was recorded for typ.
func (s *Store) Has(typ string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[typ]
	return ok
}

// Types returns the registered type names, sorted.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.members))
	for typ := range s.members {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// Members returns the member names of typ in the order they were first annotated.
func (s *Store) Members(typ string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.members[typ]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// Reset clears the store (used for testing).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[entryKey][]any)
	s.flags = make(map[Site]bool)
	s.members = make(map[string][]string)
}

// track must be called with s.mu held for writing.
func (s *Store) track(site Site) {
	members, ok := s.members[site.Type]
	if !ok {
		s.members[site.Type] = []string{}
	}
	if site.Scope != ScopeMember {
		return
	}
	for _, m := range members {
		if m == site.Member {
			return
		}
	}
	s.members[site.Type] = append(members, site.Member)
}

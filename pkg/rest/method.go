package rest

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/conduit-lang/restdecl/pkg/cache"
	"github.com/conduit-lang/restdecl/runtime/metadata"
)

// MethodJSONP is the pseudo verb of JSONP members.
const MethodJSONP = "JSONP"

// Method is one declared member of a client type.
type Method[I Instance] struct {
	def  *Definition[I]
	name string
	site metadata.Site
}

// Name returns the member name.
func (m *Method[I]) Name() string { return m.name }

// Definition returns the owning definition.
func (m *Method[I]) Definition() *Definition[I] { return m.def }

// Verb returns the HTTP method.
func (m *Method[I]) Verb() string { return m.spec().Verb }

// Template returns the path template.
func (m *Method[I]) Template() string { return m.spec().Path }

func (m *Method[I]) op() string { return m.def.name + "." + m.name }

func (m *Method[I]) spec() methodSpec {
	v, _ := m.def.store.Last(metadata.CategoryMethod, m.site)
	s, _ := v.(methodSpec)
	return s
}

// Path substitutes {name} in the template with argument index.
func (m *Method[I]) Path(index int, name string) *Method[I] {
	m.mustName("Path", index, name)
	m.def.store.Define(metadata.CategoryPath, m.site, argBinding{Index: index, Name: name})
	return m
}

// Query sends argument index as query parameter name.
func (m *Method[I]) Query(index int, name string, opts ...BindOption) *Method[I] {
	m.mustName("Query", index, name)
	m.def.store.Define(metadata.CategoryQuery, m.site, argBinding{Index: index, Name: name, Opts: bindFlags(opts)})
	return m
}

// Header sends argument index as header name.
func (m *Method[I]) Header(index int, name string) *Method[I] {
	m.mustName("Header", index, name)
	m.def.store.Define(metadata.CategoryHeader, m.site, argBinding{Index: index, Name: name})
	return m
}

// Body adds argument index to the request body. An empty name marks the
// binding unnamed: a lone unnamed binding is sent as is.
func (m *Method[I]) Body(index int, name string) *Method[I] {
	if index < 0 {
		panic(fmt.Sprintf("rest: %s.Body: negative argument index %d", m.op(), index))
	}
	m.def.store.Define(metadata.CategoryBody, m.site, argBinding{Index: index, Name: name})
	return m
}

// Headers adds method-wide headers.
func (m *Method[I]) Headers(p Params[I]) *Method[I] {
	m.def.store.Define(metadata.CategoryHeader, m.site, paramsBinding[I]{Params: p})
	return m
}

// HeadersFrom adds method-wide headers computed as a whole map.
func (m *Method[I]) HeadersFrom(src Source[I, map[string][]string]) *Method[I] {
	m.def.store.Define(metadata.CategoryHeader, m.site, sourceBinding[I]{Source: src})
	return m
}

// QueryParams adds method-wide query parameters.
func (m *Method[I]) QueryParams(p Params[I], opts ...BindOption) *Method[I] {
	m.def.store.Define(metadata.CategoryQuery, m.site, paramsBinding[I]{Params: p, Opts: bindFlags(opts)})
	return m
}

// QueryFrom adds method-wide query parameters computed as a whole map.
func (m *Method[I]) QueryFrom(src Source[I, map[string][]string], opts ...BindOption) *Method[I] {
	m.def.store.Define(metadata.CategoryQuery, m.site, sourceBinding[I]{Source: src, Opts: bindFlags(opts)})
	return m
}

// ResponseType overrides the default JSON response type.
func (m *Method[I]) ResponseType(t ResponseType) *Method[I] {
	if !t.Valid() {
		panic(fmt.Sprintf("rest: %s: unknown response type %q", m.op(), t))
	}
	m.def.store.Replace(metadata.CategoryResponseType, m.site, t)
	return m
}

func (m *Method[I]) responseType() ResponseType {
	if v, ok := m.def.store.Last(metadata.CategoryResponseType, m.site); ok {
		if t, ok := v.(ResponseType); ok {
			return t
		}
	}
	return JSON
}

// CacheOption adjusts a cache declaration.
type CacheOption func(*cacheSettings)

type cacheSettings struct {
	prefix string
}

// ClearPrefix changes the prefix of the generated invalidation companion.
func ClearPrefix(prefix string) CacheOption {
	return func(s *cacheSettings) {
		s.prefix = prefix
	}
}

// CacheFor reuses responses for d.
func CacheFor(d time.Duration) cache.Policy { return cache.For(d) }

// CacheTimes lets n calls share one response.
func CacheTimes(n int) cache.Policy { return cache.Times(n) }

// Cache enables response caching. spec is a cache.Policy (see CacheFor and
// CacheTimes), a func(I) bool predicate, or any shape cache.ParsePolicy
// accepts. Shapes that do not parse leave the method uncached.
//
// Cache also registers an invalidation companion named prefix plus the
// capitalized member name, clearCacheListPosts for ListPosts by default,
// runnable with Definition.ClearCache.
func (m *Method[I]) Cache(spec any, opts ...CacheOption) *Method[I] {
	var (
		cs     cacheSpec[I]
		prefix string
		ok     bool
	)
	if fn, isPred := spec.(func(I) bool); isPred {
		cs = cacheSpec[I]{Policy: cache.Policy{Kind: cache.KindPredicate}, While: fn}
		prefix, ok = cache.DefaultClearPrefix, fn != nil
	} else {
		cs.Policy, prefix, ok = cache.ParsePolicy(spec)
	}

	settings := cacheSettings{prefix: prefix}
	for _, opt := range opts {
		opt(&settings)
	}

	if ok {
		m.def.store.Replace(metadata.CategoryCache, m.site, cs)
	}
	m.def.store.Define(metadata.CategoryCacheInvalidation, m.def.site(), companion{
		Name:   settings.prefix + capitalize(m.name),
		Member: m.name,
	})
	return m
}

// CacheWhile reuses responses while fn reports true for the calling instance.
func (m *Method[I]) CacheWhile(fn func(I) bool, opts ...CacheOption) *Method[I] {
	return m.Cache(fn, opts...)
}

// ClearCache makes the next call of m bypass its cache entry.
func (m *Method[I]) ClearCache() *Method[I] {
	m.def.store.SetFlag(m.site, true)
	return m
}

// cacheLookup builds the engine lookup for req. The invalidation flag is
// consumed only when the method is cached.
func (m *Method[I]) cacheLookup(inst I, req *Request) cache.Lookup {
	v, ok := m.def.store.Last(metadata.CategoryCache, m.site)
	if !ok {
		return cache.Lookup{}
	}
	cs, ok := v.(cacheSpec[I])
	if !ok {
		return cache.Lookup{}
	}
	return cache.Lookup{
		Fingerprint: req.Fingerprint(),
		Policy:      cs.policyFor(inst),
		Invalidate:  m.def.store.TakeFlag(m.site),
	}
}

func (m *Method[I]) mustName(builder string, index int, name string) {
	if index < 0 {
		panic(fmt.Sprintf("rest: %s.%s: negative argument index %d", m.op(), builder, index))
	}
	if strings.TrimSpace(name) == "" {
		panic(fmt.Sprintf("rest: %s.%s: argument %d needs a name", m.op(), builder, index))
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

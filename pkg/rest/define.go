package rest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/conduit-lang/restdecl/runtime/metadata"
)

// Instance is implemented by declared client types. Embedding *Client
// satisfies it.
type Instance interface {
	RESTClient() *Client
}

// DefineOption configures Define.
type DefineOption func(*defineSettings)

type defineSettings struct {
	store *metadata.Store
}

// InStore records the definition in s instead of metadata.Default().
func InStore(s *metadata.Store) DefineOption {
	return func(ds *defineSettings) {
		ds.store = s
	}
}

// Definition is the declared REST surface of a client type.
// Builders are meant to run once at startup; invocations may run concurrently.
type Definition[I Instance] struct {
	name  string
	store *metadata.Store

	mu      sync.RWMutex
	methods map[string]*Method[I]
	order   []string

	configFetch singleflight.Group
	configMu    sync.Mutex
	configURLs  map[string]string
}

// Define registers a client type under name. Defining the same name twice in
// one store panics.
func Define[I Instance](name string, opts ...DefineOption) *Definition[I] {
	s := defineSettings{store: metadata.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	if name == "" {
		panic("rest: Define called with empty name")
	}
	if s.store.Has(name) {
		panic(fmt.Sprintf("rest: %s is already defined", name))
	}

	d := &Definition[I]{
		name:       name,
		store:      s.store,
		methods:    make(map[string]*Method[I]),
		configURLs: make(map[string]string),
	}
	s.store.Replace(metadata.CategoryBaseURL, d.site(), baseURLStrategy[I]{})
	return d
}

// Name returns the type identifier.
func (d *Definition[I]) Name() string { return d.name }

// Store returns the metadata store the definition is recorded in.
func (d *Definition[I]) Store() *metadata.Store { return d.store }

func (d *Definition[I]) site() metadata.Site { return metadata.ClassSite(d.name) }

func (d *Definition[I]) propertySite() metadata.Site { return metadata.PropertySite(d.name) }

// BaseURL sets a fixed base URL.
func (d *Definition[I]) BaseURL(url string) *Definition[I] {
	d.store.Replace(metadata.CategoryBaseURL, d.site(), baseURLStrategy[I]{URL: url})
	return d
}

// BaseURLFromConfig fetches the JSON document at url once and uses the value
// at key (a gjson path) as the base URL. Dots in key separate path segments;
// a top-level name containing a dot must escape it, as in `api\.url`.
func (d *Definition[I]) BaseURLFromConfig(url, key string) *Definition[I] {
	d.store.Replace(metadata.CategoryBaseURL, d.site(), baseURLStrategy[I]{URL: url, ConfigKey: key})
	return d
}

// BaseURLFrom resolves the base URL from the instance on every call.
func (d *Definition[I]) BaseURLFrom(src Source[I, string]) *Definition[I] {
	d.store.Replace(metadata.CategoryBaseURL, d.site(), baseURLStrategy[I]{Source: src})
	return d
}

// Headers adds class-wide headers.
func (d *Definition[I]) Headers(p Params[I]) *Definition[I] {
	d.store.Define(metadata.CategoryHeader, d.site(), paramsBinding[I]{Params: p})
	return d
}

// HeadersFrom adds class-wide headers computed as a whole map.
func (d *Definition[I]) HeadersFrom(src Source[I, map[string][]string]) *Definition[I] {
	d.store.Define(metadata.CategoryHeader, d.site(), sourceBinding[I]{Source: src})
	return d
}

// HeaderField sends the value held by the instance as header name.
func (d *Definition[I]) HeaderField(name string, src Source[I, []string]) *Definition[I] {
	d.store.Define(metadata.CategoryHeader, d.propertySite(), fieldBinding[I]{Name: name, Source: src})
	return d
}

// Query adds class-wide query parameters.
func (d *Definition[I]) Query(p Params[I], opts ...BindOption) *Definition[I] {
	d.store.Define(metadata.CategoryQuery, d.site(), paramsBinding[I]{Params: p, Opts: bindFlags(opts)})
	return d
}

// QueryFrom adds class-wide query parameters computed as a whole map.
func (d *Definition[I]) QueryFrom(src Source[I, map[string][]string], opts ...BindOption) *Definition[I] {
	d.store.Define(metadata.CategoryQuery, d.site(), sourceBinding[I]{Source: src, Opts: bindFlags(opts)})
	return d
}

// QueryField sends the value held by the instance as query parameter name.
func (d *Definition[I]) QueryField(name string, src Source[I, []string], opts ...BindOption) *Definition[I] {
	d.store.Define(metadata.CategoryQuery, d.propertySite(), fieldBinding[I]{Name: name, Source: src, Opts: bindFlags(opts)})
	return d
}

// PathField substitutes {name} in every path template with the value held by the instance.
func (d *Definition[I]) PathField(name string, src Source[I, string]) *Definition[I] {
	d.store.Define(metadata.CategoryPath, d.propertySite(), pathField[I]{Name: name, Source: src})
	return d
}

// OnError installs the class-wide error handler, replacing any previous one.
func (d *Definition[I]) OnError(h ErrorHandler[I]) *Definition[I] {
	d.store.Replace(metadata.CategoryErrorHandler, d.site(), handlerEntry[I]{Handler: h})
	return d
}

// ClearCache runs the invalidation companion registered by a cached method,
// for example "clearCacheListPosts". The next call of that method bypasses
// its cache entry.
func (d *Definition[I]) ClearCache(name string) error {
	for _, v := range d.store.Read(metadata.CategoryCacheInvalidation, d.site()) {
		if c, ok := v.(companion); ok && c.Name == name {
			d.store.SetFlag(metadata.MemberSite(d.name, c.Member), true)
			return nil
		}
	}
	return fmt.Errorf("%w: cache companion %s.%s", ErrNotDefined, d.name, name)
}

// Companions returns the names of the registered invalidation companions.
func (d *Definition[I]) Companions() []string {
	var names []string
	for _, v := range d.store.Read(metadata.CategoryCacheInvalidation, d.site()) {
		if c, ok := v.(companion); ok {
			names = append(names, c.Name)
		}
	}
	return names
}

// Method returns the declared member.
func (d *Definition[I]) Method(member string) (*Method[I], bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.methods[member]
	return m, ok
}

// Methods returns the declared members in declaration order.
func (d *Definition[I]) Methods() []*Method[I] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Method[I], 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.methods[name])
	}
	return out
}

// GET declares member as a GET request to path.
func (d *Definition[I]) GET(member, path string) *Method[I] {
	return d.declare(http.MethodGet, member, path)
}

// POST declares member as a POST request to path.
func (d *Definition[I]) POST(member, path string) *Method[I] {
	return d.declare(http.MethodPost, member, path)
}

// PUT declares member as a PUT request to path.
func (d *Definition[I]) PUT(member, path string) *Method[I] {
	return d.declare(http.MethodPut, member, path)
}

// PATCH declares member as a PATCH request to path.
func (d *Definition[I]) PATCH(member, path string) *Method[I] {
	return d.declare(http.MethodPatch, member, path)
}

// DELETE declares member as a DELETE request to path.
func (d *Definition[I]) DELETE(member, path string) *Method[I] {
	return d.declare(http.MethodDelete, member, path)
}

// HEAD declares member as a HEAD request to path.
func (d *Definition[I]) HEAD(member, path string) *Method[I] {
	return d.declare(http.MethodHead, member, path)
}

// OPTIONS declares member as an OPTIONS request to path.
func (d *Definition[I]) OPTIONS(member, path string) *Method[I] {
	return d.declare(http.MethodOptions, member, path)
}

// JSONP declares a JSONP call; HTTPTransport sends it as a GET with a callback parameter.
func (d *Definition[I]) JSONP(member, path string) *Method[I] {
	return d.declare(MethodJSONP, member, path)
}

// TRACE declares member as a TRACE request to path.
func (d *Definition[I]) TRACE(member, path string) *Method[I] {
	return d.declare(http.MethodTrace, member, path)
}

// CONNECT declares member as a CONNECT request to path.
func (d *Definition[I]) CONNECT(member, path string) *Method[I] {
	return d.declare(http.MethodConnect, member, path)
}

func (d *Definition[I]) declare(verb, member, path string) *Method[I] {
	if member == "" {
		panic(fmt.Sprintf("rest: %s %s declared without a member name", d.name, verb))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.methods[member]; ok {
		panic(fmt.Sprintf("rest: %s.%s is already declared", d.name, member))
	}

	m := &Method[I]{
		def:  d,
		name: member,
		site: metadata.MemberSite(d.name, member),
	}
	d.store.Replace(metadata.CategoryMethod, m.site, methodSpec{Verb: verb, Path: path})
	d.methods[member] = m
	d.order = append(d.order, member)
	return m
}

func (d *Definition[I]) errorHandler() ErrorHandler[I] {
	v, ok := d.store.Last(metadata.CategoryErrorHandler, d.site())
	if !ok {
		return nil
	}
	h, _ := v.(handlerEntry[I])
	return h.Handler
}

func (d *Definition[I]) baseURLStrategy() baseURLStrategy[I] {
	v, _ := d.store.Last(metadata.CategoryBaseURL, d.site())
	s, _ := v.(baseURLStrategy[I])
	return s
}

// resolveBaseURL yields the base URL for one invocation. A client override
// wins over the declared strategy.
func (d *Definition[I]) resolveBaseURL(ctx context.Context, c *Client, inst I) (string, error) {
	if u, ok := c.baseURLs[d.name]; ok {
		return u, nil
	}

	s := d.baseURLStrategy()
	switch {
	case !s.Source.IsZero():
		return s.Source.Resolve(ctx, inst)
	case s.ConfigKey != "":
		return d.fetchConfigURL(ctx, c, s.URL, s.ConfigKey)
	}
	return s.URL, nil
}

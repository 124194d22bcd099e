package rest

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/conduit-lang/restdecl/pkg/cache"
)

// ResponseType tells the transport how to treat the response body.
type ResponseType string

const (
	JSON        ResponseType = "json"
	Text        ResponseType = "text"
	Blob        ResponseType = "blob"
	ArrayBuffer ResponseType = "arraybuffer"
)

// Valid reports whether t is one of the known response types.
func (t ResponseType) Valid() bool {
	switch t {
	case JSON, Text, Blob, ArrayBuffer:
		return true
	}
	return false
}

// Request is a fully assembled request, ready for a Transport.
type Request struct {
	Method       string
	URL          string
	Header       *Values
	Query        *QueryValues
	Body         Body
	ResponseType ResponseType
}

// FullURL returns URL with the encoded query appended.
func (r *Request) FullURL() string {
	q := r.Query.Encode()
	if q == "" {
		return r.URL
	}
	if strings.Contains(r.URL, "?") {
		return r.URL + "&" + q
	}
	return r.URL + "?" + q
}

// Fingerprint identifies the request's cache bucket.
func (r *Request) Fingerprint() string {
	return cache.Fingerprint(r.URL, r.Header.cacheHeaders(), r.Query.Encode(), string(r.ResponseType))
}

// Values is an ordered header multimap. Adding to an existing name appends.
// Names are canonicalized like net/http does.
type Values struct {
	names []string
	m     map[string][]string
}

// NewValues returns an empty multimap.
func NewValues() *Values {
	return &Values{m: make(map[string][]string)}
}

// Add appends values under name.
func (v *Values) Add(name string, values ...string) {
	if len(values) == 0 {
		return
	}
	name = http.CanonicalHeaderKey(name)
	if _, ok := v.m[name]; !ok {
		v.names = append(v.names, name)
	}
	v.m[name] = append(v.m[name], values...)
}

// Get returns the first value for name.
func (v *Values) Get(name string) string {
	if v == nil {
		return ""
	}
	values := v.m[http.CanonicalHeaderKey(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns every value for name in insertion order.
func (v *Values) Values(name string) []string {
	if v == nil {
		return nil
	}
	return v.m[http.CanonicalHeaderKey(name)]
}

// Names returns the names in first-insertion order.
func (v *Values) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Len returns the number of distinct names.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.names)
}

// Header converts the multimap to an http.Header.
func (v *Values) Header() http.Header {
	if v == nil {
		return http.Header{}
	}
	h := make(http.Header, len(v.names))
	for _, name := range v.names {
		h[name] = append([]string(nil), v.m[name]...)
	}
	return h
}

func (v *Values) cacheHeaders() []cache.Header {
	if v == nil {
		return nil
	}
	out := make([]cache.Header, 0, len(v.names))
	for _, name := range v.names {
		out = append(out, cache.Header{Name: name, Values: v.m[name]})
	}
	return out
}

// QueryEntry is a single query parameter.
type QueryEntry struct {
	Name     string
	Value    string
	NoEncode bool
}

// QueryValues is an ordered query multimap.
type QueryValues struct {
	entries []QueryEntry
}

// NewQueryValues returns an empty query multimap.
func NewQueryValues() *QueryValues {
	return &QueryValues{}
}

// Add appends an entry.
func (q *QueryValues) Add(name, value string, noEncode bool) {
	q.entries = append(q.entries, QueryEntry{Name: name, Value: value, NoEncode: noEncode})
}

// Get returns every value for name in insertion order.
func (q *QueryValues) Get(name string) []string {
	var out []string
	for _, e := range q.entries {
		if e.Name == name {
			out = append(out, e.Value)
		}
	}
	return out
}

// Entries returns a copy of the entries.
func (q *QueryValues) Entries() []QueryEntry {
	out := make([]QueryEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of entries.
func (q *QueryValues) Len() int {
	if q == nil {
		return 0
	}
	return len(q.entries)
}

// Encode renders the query string. Values of one name are grouped at the
// position where the name first appeared. Entries flagged NoEncode are
// written byte for byte; the rest go through StandardEncoding.
func (q *QueryValues) Encode() string {
	if q.Len() == 0 {
		return ""
	}

	var order []string
	groups := make(map[string][]QueryEntry)
	for _, e := range q.entries {
		if _, ok := groups[e.Name]; !ok {
			order = append(order, e.Name)
		}
		groups[e.Name] = append(groups[e.Name], e)
	}

	var b strings.Builder
	for _, name := range order {
		for _, e := range groups[name] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			if e.NoEncode {
				b.WriteString(e.Name)
				b.WriteByte('=')
				b.WriteString(e.Value)
				continue
			}
			b.WriteString(StandardEncoding(e.Name))
			b.WriteByte('=')
			b.WriteString(StandardEncoding(e.Value))
		}
	}
	return b.String()
}

var standardEncodingRestore = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
	"%40", "@",
	"%3A", ":",
	"%24", "$",
	"%2C", ",",
	"%3B", ";",
	"%2B", "+",
	"%3D", "=",
	"%3F", "?",
	"%2F", "/",
)

// StandardEncoding percent-encodes a URI component, leaving @:$,;+=?/ and
// the unreserved marks literal and writing spaces as %20.
func StandardEncoding(s string) string {
	return standardEncodingRestore.Replace(url.QueryEscape(s))
}

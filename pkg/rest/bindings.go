package rest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/restdecl/pkg/cache"
)

// BindOption adjusts how a query binding is rendered.
type BindOption uint8

const (
	// NoEncode writes the entry into the query string without percent-encoding.
	NoEncode BindOption = 1 << iota
)

func bindFlags(opts []BindOption) BindOption {
	var out BindOption
	for _, o := range opts {
		out |= o
	}
	return out
}

func (o BindOption) noEncode() bool { return o&NoEncode != 0 }

// Params maps names to value sources. Keys are applied in sorted order.
type Params[I any] map[string]Source[I, []string]

func (p Params[I]) keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// The types below are the values recorded in the metadata store. Each one
// renders itself for introspection.

type methodSpec struct {
	Verb string
	Path string
}

func (s methodSpec) String() string { return s.Verb + " " + s.Path }

// argBinding binds a call argument by position.
type argBinding struct {
	Index int
	Name  string
	Opts  BindOption
}

func (b argBinding) String() string {
	name := b.Name
	if name == "" {
		name = "<unnamed>"
	}
	s := fmt.Sprintf("arg%d -> %s", b.Index, name)
	if b.Opts.noEncode() {
		s += " (no-encode)"
	}
	return s
}

type paramsBinding[I any] struct {
	Params Params[I]
	Opts   BindOption
}

func (b paramsBinding[I]) String() string {
	return "{" + strings.Join(b.Params.keys(), ", ") + "}"
}

type sourceBinding[I any] struct {
	Source Source[I, map[string][]string]
	Opts   BindOption
}

func (b sourceBinding[I]) String() string { return "computed map" }

// fieldBinding binds a value held by the instance under a name.
type fieldBinding[I any] struct {
	Name   string
	Source Source[I, []string]
	Opts   BindOption
}

func (b fieldBinding[I]) String() string { return "field " + b.Name }

type pathField[I any] struct {
	Name   string
	Source Source[I, string]
}

func (b pathField[I]) String() string { return "field {" + b.Name + "}" }

type baseURLStrategy[I any] struct {
	URL       string
	ConfigKey string
	Source    Source[I, string]
}

func (s baseURLStrategy[I]) String() string {
	switch {
	case !s.Source.IsZero():
		return "computed"
	case s.ConfigKey != "":
		return s.URL + " [" + s.ConfigKey + "]"
	}
	return s.URL
}

type cacheSpec[I any] struct {
	Policy cache.Policy
	While  func(I) bool
}

func (s cacheSpec[I]) String() string {
	if s.While != nil {
		return "while predicate"
	}
	return s.Policy.String()
}

func (s cacheSpec[I]) policyFor(inst I) cache.Policy {
	if s.While == nil {
		return s.Policy
	}
	while := s.While
	return cache.While(func() bool { return while(inst) })
}

type companion struct {
	Name   string
	Member string
}

func (c companion) String() string { return c.Name + " -> " + c.Member }

type handlerEntry[I any] struct {
	Handler ErrorHandler[I]
}

func (handlerEntry[I]) String() string { return "error handler" }

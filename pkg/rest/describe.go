package rest

import (
	"fmt"

	"github.com/conduit-lang/restdecl/runtime/metadata"
)

// Description is a printable summary of a definition.
type Description struct {
	Name         string              `yaml:"name" json:"name"`
	BaseURL      string              `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Headers      []string            `yaml:"headers,omitempty" json:"headers,omitempty"`
	Query        []string            `yaml:"query,omitempty" json:"query,omitempty"`
	Fields       []string            `yaml:"fields,omitempty" json:"fields,omitempty"`
	ErrorHandler bool                `yaml:"error_handler" json:"error_handler"`
	Companions   []string            `yaml:"cache_companions,omitempty" json:"cache_companions,omitempty"`
	Methods      []MethodDescription `yaml:"methods" json:"methods"`
}

// MethodDescription summarizes one member.
type MethodDescription struct {
	Name         string   `yaml:"name" json:"name"`
	Verb         string   `yaml:"verb" json:"verb"`
	Path         string   `yaml:"path" json:"path"`
	ResponseType string   `yaml:"response_type" json:"response_type"`
	Cache        string   `yaml:"cache,omitempty" json:"cache,omitempty"`
	PathBindings []string `yaml:"path_bindings,omitempty" json:"path_bindings,omitempty"`
	Query        []string `yaml:"query,omitempty" json:"query,omitempty"`
	Headers      []string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body         []string `yaml:"body,omitempty" json:"body,omitempty"`
}

// Describe summarizes the definition recorded under name in store.
func Describe(store *metadata.Store, name string) (Description, error) {
	if !store.Has(name) {
		return Description{}, fmt.Errorf("%w: %s", ErrNotDefined, name)
	}

	class := metadata.ClassSite(name)
	props := metadata.PropertySite(name)

	d := Description{
		Name:    name,
		Headers: render(store.Read(metadata.CategoryHeader, class)),
		Query:   render(store.Read(metadata.CategoryQuery, class)),
		Fields: append(append(append([]string(nil),
			render(store.Read(metadata.CategoryHeader, props))...),
			render(store.Read(metadata.CategoryQuery, props))...),
			render(store.Read(metadata.CategoryPath, props))...),
		Companions: render(store.Read(metadata.CategoryCacheInvalidation, class)),
	}
	if v, ok := store.Last(metadata.CategoryBaseURL, class); ok {
		d.BaseURL = fmt.Sprint(v)
	}
	_, d.ErrorHandler = store.Last(metadata.CategoryErrorHandler, class)

	for _, member := range store.Members(name) {
		site := metadata.MemberSite(name, member)
		md := MethodDescription{
			Name:         member,
			ResponseType: string(JSON),
			PathBindings: render(store.Read(metadata.CategoryPath, site)),
			Query:        render(store.Read(metadata.CategoryQuery, site)),
			Headers:      render(store.Read(metadata.CategoryHeader, site)),
			Body:         render(store.Read(metadata.CategoryBody, site)),
		}
		if v, ok := store.Last(metadata.CategoryMethod, site); ok {
			if spec, ok := v.(methodSpec); ok {
				md.Verb, md.Path = spec.Verb, spec.Path
			}
		}
		if v, ok := store.Last(metadata.CategoryResponseType, site); ok {
			md.ResponseType = fmt.Sprint(v)
		}
		if v, ok := store.Last(metadata.CategoryCache, site); ok {
			md.Cache = fmt.Sprint(v)
		}
		d.Methods = append(d.Methods, md)
	}
	return d, nil
}

func render(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

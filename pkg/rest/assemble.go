package rest

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/restdecl/runtime/metadata"
)

// assemble builds the request for one invocation. The path is substituted
// first; the base URL, headers and query then resolve concurrently and the
// request exists only once all three succeeded.
func (m *Method[I]) assemble(ctx context.Context, c *Client, inst I, args []any) (*Request, error) {
	spec := m.spec()

	path, err := m.substitutePath(ctx, inst, spec.Path, args)
	if err != nil {
		return nil, err
	}

	var (
		baseURL string
		header  = NewValues()
		query   = NewQueryValues()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := m.def.resolveBaseURL(gctx, c, inst)
		if err != nil {
			return fmt.Errorf("base url: %w", err)
		}
		baseURL = u
		return nil
	})
	g.Go(func() error {
		if err := m.resolveHeaders(gctx, inst, args, header); err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := m.resolveQuery(gctx, inst, args, query); err != nil {
			return fmt.Errorf("query: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	body, err := buildBody(m.bodyArgs(args))
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}

	return &Request{
		Method:       spec.Verb,
		URL:          baseURL + path,
		Header:       header,
		Query:        query,
		Body:         body,
		ResponseType: m.responseType(),
	}, nil
}

// substitutePath replaces the first {name} token per binding. Arguments that
// are missing or nil are skipped and unmatched tokens stay literal. Values
// are inserted as given.
func (m *Method[I]) substitutePath(ctx context.Context, inst I, template string, args []any) (string, error) {
	path := template

	for _, v := range m.def.store.Read(metadata.CategoryPath, m.site) {
		b, ok := v.(argBinding)
		if !ok {
			continue
		}
		arg, ok := argAt(args, b.Index)
		if !ok {
			continue
		}
		path = strings.Replace(path, "{"+b.Name+"}", formatScalar(arg), 1)
	}

	for _, v := range m.def.store.Read(metadata.CategoryPath, m.def.propertySite()) {
		f, ok := v.(pathField[I])
		if !ok || !strings.Contains(path, "{"+f.Name+"}") {
			continue
		}
		value, err := f.Source.Resolve(ctx, inst)
		if err != nil {
			return "", fmt.Errorf("path field %s: %w", f.Name, err)
		}
		path = strings.Replace(path, "{"+f.Name+"}", value, 1)
	}

	return path, nil
}

// mergeSites lists the sites contributing headers or query parameters, in
// merge order.
func (m *Method[I]) mergeSites() []metadata.Site {
	return []metadata.Site{m.def.propertySite(), m.def.site(), m.site}
}

// resolveHeaders merges property, class and method headers. Values under the
// same name accumulate.
func (m *Method[I]) resolveHeaders(ctx context.Context, inst I, args []any, out *Values) error {
	for _, site := range m.mergeSites() {
		for _, v := range m.def.store.Read(metadata.CategoryHeader, site) {
			err := m.collect(ctx, inst, args, v, func(name string, values []string, _ BindOption) {
				out.Add(name, values...)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveQuery merges property, class and method query parameters with the
// same rules as headers. Parameters without a value are dropped.
func (m *Method[I]) resolveQuery(ctx context.Context, inst I, args []any, out *QueryValues) error {
	for _, site := range m.mergeSites() {
		for _, v := range m.def.store.Read(metadata.CategoryQuery, site) {
			err := m.collect(ctx, inst, args, v, func(name string, values []string, opts BindOption) {
				for _, value := range values {
					out.Add(name, value, opts.noEncode())
				}
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// collect resolves one recorded binding and hands its entries to add.
func (m *Method[I]) collect(ctx context.Context, inst I, args []any, binding any, add func(string, []string, BindOption)) error {
	switch b := binding.(type) {
	case argBinding:
		arg, ok := argAt(args, b.Index)
		if !ok {
			return nil
		}
		if values := stringValues(arg); len(values) > 0 {
			add(b.Name, values, b.Opts)
		}

	case paramsBinding[I]:
		for _, name := range b.Params.keys() {
			values, err := b.Params[name].Resolve(ctx, inst)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if len(values) > 0 {
				add(name, values, b.Opts)
			}
		}

	case sourceBinding[I]:
		values, err := b.Source.Resolve(ctx, inst)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if len(values[name]) > 0 {
				add(name, values[name], b.Opts)
			}
		}

	case fieldBinding[I]:
		values, err := b.Source.Resolve(ctx, inst)
		if err != nil {
			return fmt.Errorf("field %s: %w", b.Name, err)
		}
		if len(values) > 0 {
			add(b.Name, values, b.Opts)
		}
	}
	return nil
}

func (m *Method[I]) bodyArgs(args []any) []boundArg {
	var out []boundArg
	for _, v := range m.def.store.Read(metadata.CategoryBody, m.site) {
		b, ok := v.(argBinding)
		if !ok {
			continue
		}
		arg, ok := argAt(args, b.Index)
		if !ok {
			continue
		}
		out = append(out, boundArg{index: b.Index, name: b.Name, value: arg})
	}
	return out
}

// bufferBody replaces io.Reader arguments bound to the body with their
// contents, so the same arguments can be sent again. args is not modified.
func (m *Method[I]) bufferBody(args []any) ([]any, error) {
	out, copied := args, false
	for _, a := range m.bodyArgs(args) {
		r, ok := a.value.(io.Reader)
		if !ok {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("body: read argument %d: %w", a.index, err)
		}
		if !copied {
			out, copied = slices.Clone(args), true
		}
		out[a.index] = data
	}
	return out, nil
}

// argAt returns argument i unless it is missing or nil.
func argAt(args []any, i int) (any, bool) {
	if i < 0 || i >= len(args) || isNil(args[i]) {
		return nil, false
	}
	return args[i], true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// stringValues flattens a header or query argument into its values.
func stringValues(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if !isNil(item) {
				out = append(out, formatScalar(item))
			}
		}
		return out
	}
	return []string{formatScalar(v)}
}

func formatScalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

package rest

import "context"

type sourceKind int

const (
	sourceUnset sourceKind = iota
	sourceLiteral
	sourceComputed
	sourceAsync
)

// Source is a value that is either fixed, computed from the instance, or
// resolved asynchronously. Resolve turns every form into a plain value.
//
// The base URL, header and query sources of one invocation resolve
// concurrently, so Computed and Async functions reading shared state of the
// instance must be safe for concurrent use.
type Source[I any, T any] struct {
	kind     sourceKind
	literal  T
	computed func(I) T
	async    func(context.Context, I) (T, error)
}

// Literal returns a Source that always yields v.
func Literal[I any, T any](v T) Source[I, T] {
	return Source[I, T]{kind: sourceLiteral, literal: v}
}

// Computed returns a Source that calls fn with the instance.
func Computed[I any, T any](fn func(I) T) Source[I, T] {
	return Source[I, T]{kind: sourceComputed, computed: fn}
}

// Async returns a Source that may block or fail, such as a remote lookup.
func Async[I any, T any](fn func(context.Context, I) (T, error)) Source[I, T] {
	return Source[I, T]{kind: sourceAsync, async: fn}
}

// Strings is shorthand for a literal list of values.
func Strings[I any](values ...string) Source[I, []string] {
	return Literal[I](values)
}

// Single lifts a single-valued source into a list source.
func Single[I any](s Source[I, string]) Source[I, []string] {
	return Async(func(ctx context.Context, inst I) ([]string, error) {
		v, err := s.Resolve(ctx, inst)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	})
}

// IsZero reports whether s was never set.
func (s Source[I, T]) IsZero() bool {
	return s.kind == sourceUnset
}

// Resolve produces the value of s for inst.
func (s Source[I, T]) Resolve(ctx context.Context, inst I) (T, error) {
	switch s.kind {
	case sourceLiteral:
		return s.literal, nil
	case sourceComputed:
		return s.computed(inst), nil
	case sourceAsync:
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		return s.async(ctx, inst)
	}
	var zero T
	return zero, nil
}

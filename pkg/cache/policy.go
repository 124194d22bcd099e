package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultClearPrefix is prepended to the capitalized member name to form the
// name of a cached method's invalidation companion.
const DefaultClearPrefix = "clearCache"

// Kind identifies a cache policy.
type Kind int

const (
	// KindNone disables caching.
	KindNone Kind = iota
	// KindTime reuses a response until a fixed deadline.
	KindTime
	// KindCount reuses a response for a fixed number of calls.
	KindCount
	// KindPredicate reuses a response while a predicate holds.
	KindPredicate
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindCount:
		return "count"
	case KindPredicate:
		return "predicate"
	default:
		return "none"
	}
}

// Policy decides whether a stored entry may be reused.
// The zero value disables caching.
type Policy struct {
	Kind     Kind
	Duration time.Duration
	Times    int
	While    func() bool
}

// For reuses responses for d after they were first requested.
func For(d time.Duration) Policy {
	return Policy{Kind: KindTime, Duration: d}
}

// Times lets n calls share one response: the first call fetches, the next
// n-1 reuse it.
func Times(n int) Policy {
	return Policy{Kind: KindCount, Times: n}
}

// While reuses responses as long as fn reports true.
func While(fn func() bool) Policy {
	return Policy{Kind: KindPredicate, While: fn}
}

// Enabled reports whether p is a usable policy.
func (p Policy) Enabled() bool {
	switch p.Kind {
	case KindTime:
		return p.Duration > 0
	case KindCount:
		return p.Times > 0
	case KindPredicate:
		return p.While != nil
	default:
		return false
	}
}

func (p Policy) String() string {
	switch p.Kind {
	case KindTime:
		return "for " + p.Duration.String()
	case KindCount:
		return fmt.Sprintf("%d times", p.Times)
	case KindPredicate:
		return "while predicate"
	default:
		return "none"
	}
}

// Options is the object form of a cache declaration.
// Until takes precedence over Times when both are set.
type Options struct {
	Until       time.Duration
	Times       int
	ClearPrefix string
}

// ParsePolicy interprets the loose declaration shapes accepted by cached
// methods:
//
//   - a time.Duration, or an integer or float number of milliseconds
//   - "Ntimes" or "Nx" for a call count
//   - a numeric string of milliseconds
//   - an Options value or pointer
//   - a func() bool predicate
//   - a Policy
//
// It returns the policy, the companion prefix to use and whether the shape
// was recognized. Unrecognized or non-positive declarations yield ok=false.
func ParsePolicy(spec any) (p Policy, prefix string, ok bool) {
	prefix = DefaultClearPrefix

	switch v := spec.(type) {
	case Policy:
		p = v
	case time.Duration:
		p = For(v)
	case int:
		p = For(millis(int64(v)))
	case int64:
		p = For(millis(v))
	case int32:
		p = For(millis(int64(v)))
	case uint:
		p = For(millis(int64(v)))
	case float64:
		p = For(time.Duration(v * float64(time.Millisecond)))
	case string:
		p = parsePolicyString(v)
	case Options:
		p, prefix = parseOptions(v)
	case *Options:
		if v != nil {
			p, prefix = parseOptions(*v)
		}
	case func() bool:
		p = While(v)
	}

	return p, prefix, p.Enabled()
}

func parseOptions(o Options) (Policy, string) {
	prefix := DefaultClearPrefix
	if o.ClearPrefix != "" {
		prefix = o.ClearPrefix
	}
	switch {
	case o.Until > 0:
		return For(o.Until), prefix
	case o.Times > 0:
		return Times(o.Times), prefix
	}
	return Policy{}, prefix
}

func parsePolicyString(s string) Policy {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"times", "x"} {
		if n, found := strings.CutSuffix(s, suffix); found {
			count, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return Policy{}
			}
			return Times(count)
		}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Policy{}
	}
	return For(millis(ms))
}

func millis(n int64) time.Duration {
	return time.Duration(n) * time.Millisecond
}

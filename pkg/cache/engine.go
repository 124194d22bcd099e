package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Outcome reports how a lookup was served.
type Outcome int

const (
	// OutcomeBypass means the policy disabled caching and the producer ran directly.
	OutcomeBypass Outcome = iota
	// OutcomeMiss means no reusable entry existed and the producer ran.
	OutcomeMiss
	// OutcomeHit means an existing in-process entry was reused.
	OutcomeHit
	// OutcomeBackendHit means the entry was restored from the persistent backend.
	OutcomeBackendHit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMiss:
		return "miss"
	case OutcomeHit:
		return "hit"
	case OutcomeBackendHit:
		return "backend_hit"
	default:
		return "bypass"
	}
}

// Lookup describes a single cache consultation.
type Lookup struct {
	Fingerprint string
	Policy      Policy
	// Invalidate drops any stored entry for Fingerprint before the policy is evaluated.
	Invalidate bool
}

// Producer computes a fresh value on a miss.
type Producer[V any] func(ctx context.Context) (V, error)

// entry is an in-flight or completed value plus its policy snapshot.
type entry[V any] struct {
	kind      Kind
	until     time.Time
	remaining int

	done        chan struct{}
	val         V
	err         error
	fromBackend bool
}

// persisted is the backend encoding of a completed time-bound entry.
type persisted[V any] struct {
	Value V         `json:"value"`
	Until time.Time `json:"until"`
}

// Engine maps request fingerprints to shared responses.
//
// At most one producer runs per fingerprint at a time: the entry is stored
// before its producer starts, so concurrent callers attach to it instead of
// starting their own. Engine is safe for concurrent use.
type Engine[V any] struct {
	mu      sync.Mutex
	entries entryStore[V]

	now     func() time.Time
	backend Cache
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*settings)

type settings struct {
	now        func() time.Time
	maxEntries int
	backend    Cache
	logger     *zap.Logger
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithMaxEntries bounds the engine to n entries, evicting the least recently
// used one first. Zero or less means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *settings) {
		s.maxEntries = n
	}
}

// WithBackend writes completed time-bound entries through to c and consults
// it when the in-process store misses. Values are stored as JSON.
func WithBackend(c Cache) Option {
	return func(s *settings) {
		s.backend = c
	}
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// New creates an Engine.
func New[V any](opts ...Option) (*Engine[V], error) {
	s := settings{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	var store entryStore[V] = &mapStore[V]{m: make(map[string]*entry[V])}
	if s.maxEntries > 0 {
		c, err := lru.New(s.maxEntries)
		if err != nil {
			return nil, fmt.Errorf("create lru store: %w", err)
		}
		store = &lruStore[V]{c: c}
	}

	return &Engine[V]{
		entries: store,
		now:     s.now,
		backend: s.backend,
		logger:  s.logger,
	}, nil
}

// Do returns the value stored for l.Fingerprint when l.Policy allows reuse,
// and otherwise runs produce once and shares its result with every caller
// that arrives while it is in flight.
//
// The producer runs detached from ctx so that one caller giving up does not
// fail the others; ctx only bounds how long this caller waits. A failed
// producer's entry is dropped so later calls start over.
func (e *Engine[V]) Do(ctx context.Context, l Lookup, produce Producer[V]) (V, Outcome, error) {
	if !l.Policy.Enabled() {
		v, err := produce(ctx)
		return v, OutcomeBypass, err
	}

	// the predicate is user code; keep it outside the lock
	predicate := l.Policy.Kind == KindPredicate && l.Policy.While()

	now := e.now()

	e.mu.Lock()
	if l.Invalidate {
		e.entries.remove(l.Fingerprint)
	}
	if ent, ok := e.entries.get(l.Fingerprint); ok && e.reuse(ent, l.Policy, predicate, now) {
		e.mu.Unlock()
		e.logger.Debug("cache hit",
			zap.String("fingerprint", l.Fingerprint),
			zap.Stringer("policy", l.Policy),
		)
		return e.wait(ctx, ent, OutcomeHit)
	}

	ent := &entry[V]{
		kind: l.Policy.Kind,
		done: make(chan struct{}),
	}
	switch l.Policy.Kind {
	case KindTime:
		ent.until = now.Add(l.Policy.Duration)
	case KindCount:
		ent.remaining = l.Policy.Times - 1
	}
	e.entries.add(l.Fingerprint, ent)
	e.mu.Unlock()

	e.logger.Debug("cache miss",
		zap.String("fingerprint", l.Fingerprint),
		zap.Stringer("policy", l.Policy),
		zap.Bool("invalidated", l.Invalidate),
	)

	go e.fill(context.WithoutCancel(ctx), l, ent, produce)

	return e.wait(ctx, ent, OutcomeMiss)
}

// reuse must be called with e.mu held.
func (e *Engine[V]) reuse(ent *entry[V], p Policy, predicate bool, now time.Time) bool {
	if ent.kind != p.Kind {
		return false
	}
	switch p.Kind {
	case KindTime:
		return now.Before(ent.until)
	case KindCount:
		if ent.remaining <= 0 {
			return false
		}
		ent.remaining--
		return true
	case KindPredicate:
		return predicate
	}
	return false
}

func (e *Engine[V]) wait(ctx context.Context, ent *entry[V], outcome Outcome) (V, Outcome, error) {
	select {
	case <-ent.done:
	case <-ctx.Done():
		var zero V
		return zero, outcome, ctx.Err()
	}
	if outcome == OutcomeMiss && ent.fromBackend {
		outcome = OutcomeBackendHit
	}
	return ent.val, outcome, ent.err
}

func (e *Engine[V]) fill(ctx context.Context, l Lookup, ent *entry[V], produce Producer[V]) {
	defer close(ent.done)

	if e.backend != nil && l.Invalidate {
		if err := e.backend.Delete(ctx, l.Fingerprint); err != nil {
			e.logger.Warn("cache backend delete failed",
				zap.String("fingerprint", l.Fingerprint),
				zap.Error(err),
			)
		}
	}

	if e.restore(ctx, l, ent) {
		return
	}

	ent.val, ent.err = produce(ctx)
	if ent.err != nil {
		e.mu.Lock()
		if cur, ok := e.entries.get(l.Fingerprint); ok && cur == ent {
			e.entries.remove(l.Fingerprint)
		}
		e.mu.Unlock()
		return
	}

	e.persist(ctx, l, ent)
}

// restore fills ent from the backend when a live copy is stored there.
func (e *Engine[V]) restore(ctx context.Context, l Lookup, ent *entry[V]) bool {
	if e.backend == nil || l.Policy.Kind != KindTime || l.Invalidate {
		return false
	}

	data, err := e.backend.Get(ctx, l.Fingerprint)
	if err != nil {
		if !IsCacheMiss(err) {
			e.logger.Warn("cache backend get failed",
				zap.String("fingerprint", l.Fingerprint),
				zap.Error(err),
			)
		}
		return false
	}

	var p persisted[V]
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("cache backend entry unreadable",
			zap.String("fingerprint", l.Fingerprint),
			zap.Error(err),
		)
		return false
	}
	if !e.now().Before(p.Until) {
		return false
	}

	e.mu.Lock()
	ent.val = p.Value
	ent.until = p.Until
	ent.fromBackend = true
	e.mu.Unlock()
	return true
}

func (e *Engine[V]) persist(ctx context.Context, l Lookup, ent *entry[V]) {
	if e.backend == nil || l.Policy.Kind != KindTime {
		return
	}

	ttl := ent.until.Sub(e.now())
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(persisted[V]{Value: ent.val, Until: ent.until})
	if err != nil {
		e.logger.Warn("cache entry not encodable",
			zap.String("fingerprint", l.Fingerprint),
			zap.Error(err),
		)
		return
	}
	if err := e.backend.Set(ctx, l.Fingerprint, data, ttl); err != nil {
		e.logger.Warn("cache backend set failed",
			zap.String("fingerprint", l.Fingerprint),
			zap.Error(err),
		)
	}
}

// Invalidate drops the entry stored for fingerprint, including its backend copy.
func (e *Engine[V]) Invalidate(ctx context.Context, fingerprint string) error {
	e.mu.Lock()
	e.entries.remove(fingerprint)
	e.mu.Unlock()

	if e.backend == nil {
		return nil
	}
	return e.backend.Delete(ctx, fingerprint)
}

// Clear drops every entry, including the backend contents.
func (e *Engine[V]) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.entries.purge()
	e.mu.Unlock()

	if e.backend == nil {
		return nil
	}
	return e.backend.Clear(ctx)
}

// Len returns the number of in-process entries, in flight ones included.
func (e *Engine[V]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entries.len()
}

// entryStore is the in-process index. Implementations are not synchronized;
// Engine.mu guards them.
type entryStore[V any] interface {
	get(key string) (*entry[V], bool)
	add(key string, ent *entry[V])
	remove(key string)
	len() int
	purge()
}

type mapStore[V any] struct {
	m map[string]*entry[V]
}

func (s *mapStore[V]) get(key string) (*entry[V], bool) {
	ent, ok := s.m[key]
	return ent, ok
}

func (s *mapStore[V]) add(key string, ent *entry[V]) { s.m[key] = ent }

func (s *mapStore[V]) remove(key string) { delete(s.m, key) }

func (s *mapStore[V]) len() int { return len(s.m) }

func (s *mapStore[V]) purge() { s.m = make(map[string]*entry[V]) }

type lruStore[V any] struct {
	c *lru.Cache
}

func (s *lruStore[V]) get(key string) (*entry[V], bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*entry[V]), true
}

func (s *lruStore[V]) add(key string, ent *entry[V]) { s.c.Add(key, ent) }

func (s *lruStore[V]) remove(key string) { s.c.Remove(key) }

func (s *lruStore[V]) len() int { return s.c.Len() }

func (s *lruStore[V]) purge() { s.c.Purge() }

package pull

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/cypher"
)

var tracer = otel.Tracer("vgraph/pull")

// Option configures a pull.
type Option func(*options)

type options struct {
	filter   Filter
	cache    vgraph.Cache
	cacheTTL time.Duration
}

// WithKey looks the root node up by identifier or slug.
func WithKey(key string) Option {
	return func(o *options) { o.filter.Key = key }
}

// WithWhere filters the root nodes with an extra predicate clause; @this
// stands for the root variable.
func WithWhere(where *cypher.Clause) Option {
	return func(o *options) { o.filter.Where = where }
}

// WithOrderBy overrides the root type's default ordering.
func WithOrderBy(order string) Option {
	return func(o *options) { o.filter.OrderBy = order }
}

// WithFlags activates conditionally included fields.
func WithFlags(flags ...string) Option {
	return func(o *options) { o.filter.Flags = append(o.filter.Flags, flags...) }
}

// WithCache serves the pull from the given cache when possible, storing
// fresh results with the given TTL.
func WithCache(c vgraph.Cache, ttl time.Duration) Option {
	return func(o *options) { o.cache = c; o.cacheTTL = ttl }
}

// Pull compiles the request, executes it as one query in the given
// transaction, and applies the post-query steps: derived-property evaluation
// (recursively, flag-gated) and stripping of dependency-only fields.
func Pull(ctx context.Context, q cypher.Querier, r *Request, opts ...Option) ([]cypher.Record, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ctx, span := tracer.Start(ctx, "pull")
	defer span.End()
	span.SetAttributes(attribute.String("vgraph.type", r.Type.Label))

	query, params, err := Compile(r, o.filter)
	if err != nil {
		return nil, err
	}

	var key string
	if o.cache != nil {
		key = vgraph.CacheKey{
			Label:  r.Type.Label,
			Query:  query,
			Shape:  r.cacheShape(o.filter.Flags),
			Params: params,
		}.String()
		if data, err := o.cache.Get(ctx, key); err == nil && data != nil {
			var cached []cypher.Record
			if err := msgpack.Unmarshal(data, &cached); err == nil {
				span.SetAttributes(attribute.Bool("vgraph.cache_hit", true))
				return cached, nil
			}
		}
	}

	records, err := q.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	flags := make(map[string]bool, len(o.filter.Flags))
	for _, f := range o.filter.Flags {
		flags[f] = true
	}
	for _, rec := range records {
		if err := postProcess(r, rec, flags); err != nil {
			return nil, err
		}
	}

	if o.cache != nil {
		if data, err := msgpack.Marshal(records); err == nil {
			_ = o.cache.Set(ctx, key, data, o.cacheTTL)
		}
	}
	return records, nil
}

// PullOne is Pull for exactly one root node. Zero results yield a
// NotFoundError.
func PullOne(ctx context.Context, q cypher.Querier, r *Request, opts ...Option) (cypher.Record, error) {
	records, err := Pull(ctx, q, r, opts...)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		var o options
		for _, opt := range opts {
			opt(&o)
		}
		if o.filter.Key != "" {
			return nil, vgraph.NewNotFoundErrorWithKey(r.Type.Label, o.filter.Key)
		}
		return nil, vgraph.NewNotFoundError(r.Type.Label)
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("vgraph: expected a single %s, got %d", r.Type.Label, len(records))
	}
}

// ReadRunner opens read transactions. *cypher.Driver satisfies it.
type ReadRunner interface {
	ReadTx(ctx context.Context, fn func(tx cypher.Querier) error) error
}

// PullMany executes independent pulls concurrently, each in its own read
// transaction, and returns the results in request order. The shared options
// apply to every request.
func PullMany(ctx context.Context, d ReadRunner, reqs []*Request, opts ...Option) ([][]cypher.Record, error) {
	results := make([][]cypher.Record, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		g.Go(func() error {
			return d.ReadTx(ctx, func(tx cypher.Querier) error {
				records, err := Pull(ctx, tx, r, opts...)
				if err != nil {
					return err
				}
				results[i] = records
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// recordView is the read-only view handed to derived-property compute
// functions.
type recordView map[string]any

// Get implements vnode.Record.
func (v recordView) Get(name string) any { return v[name] }

// Has implements vnode.Record.
func (v recordView) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// postProcess evaluates the requested derived properties of one record,
// recursing into nested relationship results first so a derived property can
// read fully evaluated sub-records, then strips dependency-only fields.
func postProcess(r *Request, rec map[string]any, flags map[string]bool) error {
	for _, e := range r.virtual {
		if e.sub == nil {
			continue
		}
		if e.flag != "" && !flags[e.flag] {
			continue
		}
		switch val := rec[e.name].(type) {
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					if err := postProcess(e.sub, m, flags); err != nil {
						return err
					}
				}
			}
		case map[string]any:
			if err := postProcess(e.sub, val, flags); err != nil {
				return err
			}
		}
	}
	for _, e := range r.derived {
		if e.flag != "" && !flags[e.flag] {
			continue // not even computed
		}
		d, ok := r.Type.DerivedByName(e.name)
		if !ok {
			return vgraph.NewInternalError("derived property %s vanished from type %s", e.name, r.Type.Label)
		}
		val, err := d.Compute(recordView(rec))
		if err != nil {
			return err
		}
		rec[e.name] = val
	}
	for name := range r.hidden {
		delete(rec, name)
	}
	return nil
}

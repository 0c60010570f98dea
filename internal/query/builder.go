package query

import (
	"github.com/roach88/entq/internal/dispatch"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

// Builder accumulates the parts of one query.
//
// Builder is not safe for concurrent use. Once Build (or a batch delete)
// has run, every mutation fails with BUILDER_FROZEN.
type Builder struct {
	store  store.Store
	schema *entity.Schema

	pred *queryir.Predicate
	proj *queryir.Projection
	take int

	frozen   bool
	planOpts []dispatch.Option
	ids      IDGenerator
}

// Option configures a Builder.
type Option func(*Builder)

// WithStrategy forces the execution strategy. The strategy must be able to
// answer the accumulated predicate exactly.
func WithStrategy(s dispatch.Strategy) Option {
	return func(b *Builder) {
		b.planOpts = append(b.planOpts, dispatch.WithStrategy(s))
	}
}

// WithCompileHook is called when the query's residual predicate compiles.
func WithCompileHook(fn func(*queryir.Predicate)) Option {
	return func(b *Builder) {
		b.planOpts = append(b.planOpts, dispatch.WithCompileHook(fn))
	}
}

// WithIDGenerator sets the batch ID generator used by
// BatchDeleteTransaction. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Builder) {
		b.ids = g
	}
}

// NewBuilder creates a builder over entities of schema stored in s.
func NewBuilder(s store.Store, schema *entity.Schema, opts ...Option) *Builder {
	b := &Builder{store: s, schema: schema, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Where adds a predicate. The first predicate's parameter becomes the
// canonical one; later predicates are rebound to it and conjoined, so
// Where(A); Where(B) filters like Where(A && B).
//
// Invalid predicates fail here with UNSUPPORTED_EXPRESSION.
func (b *Builder) Where(pred *queryir.Predicate) error {
	if err := b.mutable("Where"); err != nil {
		return err
	}
	if pred == nil || pred.Body == nil {
		return queryerr.New(queryerr.CodeInvalidArgument, "Where requires a predicate")
	}
	if err := queryir.Validate(pred); err != nil {
		return err
	}
	b.pred = queryir.Conjoin(b.pred, pred)
	return nil
}

// SelectOption configures Select.
type SelectOption func(*selectOptions)

type selectOptions struct {
	allowEmpty bool
}

// AllowEmptyProjection accepts a projection that references no fields,
// such as the bare parameter or a constant.
func AllowEmptyProjection() SelectOption {
	return func(o *selectOptions) {
		o.allowEmpty = true
	}
}

// Select sets the projection. It may be set once; a second call fails
// with MULTIPLE_TRANSFORMATIONS. A projection that references no fields
// fails with UNSUPPORTED_PROJECTION unless AllowEmptyProjection is given.
func (b *Builder) Select(proj *queryir.Projection, opts ...SelectOption) error {
	if err := b.mutable("Select"); err != nil {
		return err
	}
	if b.proj != nil {
		return queryerr.New(queryerr.CodeMultipleTransformations, "multiple transformations not allowed")
	}
	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := queryir.ValidateProjection(proj); err != nil {
		return err
	}
	if len(proj.FieldNames()) == 0 && !o.allowEmpty {
		return queryerr.New(queryerr.CodeUnsupportedProjection,
			"projection references no fields").WithExpr(renderProjection(proj))
	}
	b.proj = proj
	return nil
}

// Take bounds the number of results. n must be at least 1.
func (b *Builder) Take(n int) error {
	if err := b.mutable("Take"); err != nil {
		return err
	}
	if n < 1 {
		return queryerr.New(queryerr.CodeInvalidArgument, "Take requires n >= 1, got %d", n)
	}
	b.take = n
	return nil
}

// Predicate returns the accumulated predicate (nil when none was added).
func (b *Builder) Predicate() *queryir.Predicate {
	return b.pred
}

// Build plans the query and freezes the builder.
func (b *Builder) Build() (*Query, error) {
	return b.build(false)
}

// Plan chooses the execution plan for the predicate as it stands. Unlike
// Build it does not freeze the builder.
func (b *Builder) Plan() (*dispatch.Plan, error) {
	return dispatch.NewPlan(b.pred, b.schema, b.store.Capabilities(), b.planOpts...)
}

func (b *Builder) build(keysOnly bool) (*Query, error) {
	if err := b.mutable("Build"); err != nil {
		return nil, err
	}
	plan, err := dispatch.NewPlan(b.pred, b.schema, b.store.Capabilities(), b.planOpts...)
	if err != nil {
		return nil, err
	}
	b.frozen = true

	q := &Query{
		store:    b.store,
		plan:     plan,
		take:     b.take,
		keysOnly: keysOnly,
	}
	if !keysOnly {
		q.proj = b.proj
	}
	return q, nil
}

func (b *Builder) mutable(op string) error {
	if b.frozen {
		return queryerr.New(queryerr.CodeBuilderFrozen, "%s after the query was built", op)
	}
	return nil
}

func renderProjection(proj *queryir.Projection) string {
	if proj == nil {
		return ""
	}
	s := proj.Param + " => "
	for i, e := range proj.Exprs {
		if i > 0 {
			s += ", "
		}
		s += queryir.Render(e)
	}
	return s
}

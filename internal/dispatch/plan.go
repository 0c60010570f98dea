package dispatch

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/entq/internal/classify"
	"github.com/roach88/entq/internal/compiled"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/rewrite"
	"github.com/roach88/entq/internal/store"
)

// Plan is a selected strategy for one predicate. A Plan may be executed
// more than once; its compiled predicate is shared across executions.
type Plan struct {
	Strategy Strategy
	Verdict  classify.Verdict

	// Predicate is the original predicate (nil for FullListing).
	Predicate *queryir.Predicate

	// TagPredicate is the tag-rewritten predicate used by TagMetadataScan.
	TagPredicate *queryir.Predicate

	// PureTag is set when TagPredicate is decided by tags alone.
	PureTag bool

	schema   *entity.Schema
	caps     store.Capabilities
	residual *compiled.Predicate
}

type options struct {
	force       *Strategy
	compileHook func(*queryir.Predicate)
}

// Option configures planning.
type Option func(*options)

// WithStrategy overrides strategy selection. The forced strategy must be
// sound for the predicate and supported by the capabilities.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.force = &s
	}
}

// WithCompileHook is passed through to the plan's compiled predicate.
func WithCompileHook(fn func(*queryir.Predicate)) Option {
	return func(o *options) {
		o.compileHook = fn
	}
}

// NewPlan classifies pred and selects the first applicable strategy:
//
//	predicate absent                               FullListing
//	tags enabled, TagTranslatable                  TagQuery
//	tags enabled, PartiallyTagTranslatable         TagQueryResidual
//	tags enabled, operand error, tag refs derivable TagMetadataScan
//	tags enabled, otherwise                        FullScanCompiled
//	tags disabled, native filter                   NativeQuery
//	tags disabled, otherwise                       FullScanCompiled
//
// Native filters are only used when tag indexing is disabled. Invalid
// predicates fail with UNSUPPORTED_EXPRESSION; a strategy that needs tag
// indexing while caps report it disabled fails with CONFIG_MISUSE.
func NewPlan(pred *queryir.Predicate, schema *entity.Schema, caps store.Capabilities, opts ...Option) (*Plan, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Plan{Predicate: pred, schema: schema, caps: caps}
	if pred != nil && pred.Body == nil {
		p.Predicate = nil
	}
	if p.Predicate != nil {
		if err := queryir.Validate(p.Predicate); err != nil {
			return nil, err
		}
	}
	p.Verdict = classify.Classify(p.Predicate, schema)

	if caps.TagIndexing && p.Predicate != nil {
		rewritten, err := rewrite.ForTags(p.Predicate, schema, caps.TagIndexing)
		if err != nil {
			return nil, err
		}
		p.TagPredicate = rewritten
		p.PureTag = rewrite.IsPureTag(rewritten)
	}

	if o.force != nil {
		if err := p.applicable(*o.force); err != nil {
			return nil, err
		}
		p.Strategy = *o.force
	} else {
		p.Strategy = p.choose()
	}
	if p.Strategy.RequiresTagIndexing() && !caps.TagIndexing {
		return nil, queryerr.New(queryerr.CodeConfigMisuse,
			"strategy %s requires tag indexing, which is disabled for %s", p.Strategy, schema.Name)
	}

	if p.Strategy.Materializes() {
		var copts []compiled.Option
		if o.compileHook != nil {
			copts = append(copts, compiled.WithCompileHook(o.compileHook))
		}
		p.residual = compiled.New(p.Predicate, copts...)
	}

	slog.Debug("query plan",
		"strategy", p.Strategy.String(),
		"verdict", p.Verdict.Kind.String(),
		"native_filter", filterText(p.Verdict.Native),
		"tag_filter", filterText(p.Verdict.Tag))
	return p, nil
}

func (p *Plan) choose() Strategy {
	v := p.Verdict
	switch {
	case p.Predicate == nil:
		return FullListing
	case p.caps.TagIndexing && v.Kind == classify.TagTranslatable:
		return TagQuery
	case p.caps.TagIndexing && v.Kind == classify.PartiallyTagTranslatable:
		return TagQueryResidual
	case p.caps.TagIndexing && v.OperandError && hasTagRef(p.TagPredicate):
		return TagMetadataScan
	case p.caps.TagIndexing:
		return FullScanCompiled
	case v.Native != nil:
		return NativeQuery
	default:
		return FullScanCompiled
	}
}

// applicable reports why s cannot answer the predicate exactly.
func (p *Plan) applicable(s Strategy) error {
	if s.RequiresTagIndexing() && !p.caps.TagIndexing {
		return queryerr.New(queryerr.CodeConfigMisuse,
			"strategy %s requires tag indexing, which is disabled for %s", s, p.schema.Name)
	}
	ok := true
	switch s {
	case FullListing:
		ok = p.Predicate == nil
	case NativeQuery:
		ok = p.Verdict.Native != nil
	case TagQuery:
		ok = p.Verdict.Kind == classify.TagTranslatable
	case TagQueryResidual:
		ok = p.Verdict.Tag != nil
	case TagMetadataScan, FullScanCompiled:
		ok = p.Predicate != nil
	default:
		ok = false
	}
	if !ok {
		return queryerr.New(queryerr.CodeConfigMisuse,
			"strategy %s cannot answer a %s predicate", s, p.Verdict.Kind)
	}
	return nil
}

func hasTagRef(pred *queryir.Predicate) bool {
	if pred == nil {
		return false
	}
	found := false
	queryir.Walk(pred.Body, func(n queryir.Expr) bool {
		if _, ok := n.(queryir.TagRef); ok {
			found = true
		}
		return !found
	})
	return found
}

// Compiled returns the plan's compiled predicate, nil for strategies that
// do not materialize candidates.
func (p *Plan) Compiled() *compiled.Predicate {
	return p.residual
}

// Explain renders the plan as stable, line-oriented text.
func (p *Plan) Explain() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "strategy: %s\n", p.Strategy)
	if p.Predicate != nil {
		fmt.Fprintf(&sb, "predicate: %s\n", queryir.Render(p.Predicate.Body))
	} else {
		sb.WriteString("predicate: <none>\n")
	}
	sb.WriteString(classify.Explain(p.Verdict))
	if p.Strategy == TagMetadataScan {
		fmt.Fprintf(&sb, "tag_predicate: %s\n", queryir.Render(p.TagPredicate.Body))
		fmt.Fprintf(&sb, "pure_tag: %t\n", p.PureTag)
	}
	fmt.Fprintf(&sb, "materializes: %t\n", p.Strategy.Materializes())
	return sb.String()
}

func filterText(f *queryir.Filter) string {
	if f == nil {
		return ""
	}
	return f.Text
}

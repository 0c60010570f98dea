package compiled

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/entq/internal/metrics"
	"github.com/roach88/entq/internal/queryir"
)

// Predicate is a predicate that is compiled on first invocation and reuses
// the compiled closure for the rest of its lifetime. It is safe for
// concurrent use; compilation runs exactly once.
type Predicate struct {
	pred      *queryir.Predicate
	onCompile func(*queryir.Predicate)

	once     sync.Once
	compiled atomic.Bool
	fn       Func
	err      error
}

// Option configures a Predicate.
type Option func(*Predicate)

// WithCompileHook registers fn to be called when the predicate is compiled.
func WithCompileHook(fn func(*queryir.Predicate)) Option {
	return func(p *Predicate) {
		p.onCompile = fn
	}
}

// New wraps pred. Nothing is compiled until the first Invoke.
func New(pred *queryir.Predicate, opts ...Option) *Predicate {
	p := &Predicate{pred: pred}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Source returns the wrapped predicate.
func (p *Predicate) Source() *queryir.Predicate {
	return p.pred
}

// Compiled reports whether compilation has happened.
func (p *Predicate) Compiled() bool {
	return p.compiled.Load()
}

// Invoke tests src against the predicate, compiling on first use. A
// compile failure is returned on this and every later invocation.
func (p *Predicate) Invoke(src queryir.FieldSource) (bool, error) {
	p.once.Do(p.compile)
	if p.err != nil {
		return false, p.err
	}
	return p.fn(src)
}

func (p *Predicate) compile() {
	if p.onCompile != nil {
		p.onCompile(p.pred)
	}
	metrics.CompilationsTotal.Inc()
	p.fn, p.err = Compile(p.pred)
	p.compiled.Store(true)
}

package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError is an entity or query definition error. Field is the dotted
// path of the offending value; Pos is its position in the CUE source when
// known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos

	// Err is the underlying CUE error, if any.
	Err error
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&sb, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	fmt.Fprintf(&sb, "%s: %s", e.Field, e.Message)
	return sb.String()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// formatCUEError turns a CUE evaluation error into a CompileError for its
// first reported problem, keeping the CUE path and position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "cue", Message: err.Error(), Err: err}
	}

	first := errs[0]
	format, args := first.Msg()
	ce := &CompileError{Field: "cue", Message: fmt.Sprintf(format, args...), Err: err}
	if path := first.Path(); len(path) > 0 {
		ce.Field = strings.Join(path, ".")
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

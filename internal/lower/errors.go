package lower

import "fmt"

// SemanticError reports an AST that is syntactically valid but violates a structural invariant
// (undeclared name, wrong arity, break/continue outside a loop, ...), per spec §7.
type SemanticError struct {
	Msg string
}

func (e *SemanticError) Error() string { return "semantic error: " + e.Msg }

func semErrf(format string, args ...interface{}) error {
	return &SemanticError{Msg: fmt.Sprintf(format, args...)}
}

// IRError reports a failure from the underlying build.Builder (e.g. duplicate function name,
// module verification failure).
type IRError struct {
	Msg string
	Err error
}

func (e *IRError) Error() string { return "ir error: " + e.Msg + ": " + e.Err.Error() }
func (e *IRError) Unwrap() error { return e.Err }

func irErrf(err error, format string, args ...interface{}) error {
	return &IRError{Msg: fmt.Sprintf(format, args...), Err: err}
}

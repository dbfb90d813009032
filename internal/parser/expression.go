package parser

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ombra-web/ombra/internal/renderctx"
)

// Expression is one compiled template expression. Compilation happens at
// parse time; evaluation is deferred until a render context exists.
type Expression struct {
	Src  string
	prog *vm.Program
}

// CompileExpr compiles an expression source fragment. Undefined variables
// are legal and evaluate to nil, which is how isolated-context renders
// turn unknown names into empty output.
func CompileExpr(src string, line int) (*Expression, error) {
	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, &TagError{Line: line, Msg: fmt.Sprintf("invalid expression %q: %v", src, err)}
	}
	return &Expression{Src: src, prog: prog}, nil
}

// Resolve evaluates the expression against the visible context mapping.
// Context names shadow the built-in helper functions.
func (e *Expression) Resolve(ctx *renderctx.Context) (any, error) {
	env := ctx.Flatten()
	for name, fn := range builtinFuncs {
		if _, ok := env[name]; !ok {
			env[name] = fn
		}
	}
	out, err := expr.Run(e.prog, env)
	if err != nil {
		return nil, fmt.Errorf("ombra: evaluating %q: %w", e.Src, err)
	}
	return out, nil
}

// builtinFuncs supplement the expression language's own builtins. They sit
// below the context, so template data can shadow them.
var builtinFuncs = map[string]any{
	"default": func(v, fallback any) any {
		if IsTruthy(v) {
			return v
		}
		return fallback
	},
	"safe": func(v any) any {
		if v == nil {
			return Safe("")
		}
		return Safe(fmt.Sprint(v))
	},
}

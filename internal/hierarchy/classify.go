// Package hierarchy sorts the functions of a compilation unit into upper- and
// lower-level tasks, flattens the task graph of upper-level tasks into
// metadata, and drives the lowering of a whole unit.
package hierarchy

import (
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"

	"tlpc/internal/config"
	"tlpc/internal/syntax"
)

// Level tells how a function takes part in the task graph.
type Level int

const (
	// Plain functions are left untouched.
	Plain Level = iota
	// LowerLevel tasks perform stream operations and are lowered.
	LowerLevel
	// UpperLevel tasks only wire child tasks together.
	UpperLevel
)

func (l Level) String() string {
	switch l {
	case LowerLevel:
		return "lower"
	case UpperLevel:
		return "upper"
	default:
		return "plain"
	}
}

// Classify decides the level of fn. A function that builds a task graph with
// <pkg>.Task() is upper-level; one with a stream parameter or a stream
// variable is lower-level. Methods are always plain.
func Classify(fn *ast.FuncDecl, d config.Dialect) Level {
	if fn == nil || fn.Recv != nil {
		return Plain
	}
	if fn.Body != nil && buildsGraph(fn.Body, d) {
		return UpperLevel
	}
	sd := SyntaxDialect(d)
	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			if iface, _ := sd.MatchType(field.Type); iface != syntax.NotStream {
				return LowerLevel
			}
		}
	}
	if fn.Body == nil {
		return Plain
	}
	level := Plain
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if level != Plain {
			return false
		}
		decl, ok := n.(*ast.GenDecl)
		if !ok || decl.Tok != token.VAR {
			return true
		}
		for _, spec := range decl.Specs {
			if vs, ok := spec.(*ast.ValueSpec); ok && vs.Type != nil {
				if iface, _ := sd.MatchType(vs.Type); iface != syntax.NotStream {
					level = LowerLevel
				}
			}
		}
		return true
	})
	return level
}

// SyntaxDialect narrows the configured dialect to the names the syntax
// arena matches on.
func SyntaxDialect(d config.Dialect) syntax.Dialect {
	return syntax.Dialect{
		Package:      d.Package,
		InputStream:  d.InputStream,
		OutputStream: d.OutputStream,
	}
}

func buildsGraph(body *ast.BlockStmt, d config.Dialect) bool {
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		if found {
			return false
		}
		if call, ok := n.(*ast.CallExpr); ok && isTaskRoot(call, d) {
			found = true
		}
		return true
	})
	return found
}

// isTaskRoot matches <pkg>.Task().
func isTaskRoot(call *ast.CallExpr, d config.Dialect) bool {
	if len(call.Args) != 0 {
		return false
	}
	sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != d.Task {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == d.Package
}

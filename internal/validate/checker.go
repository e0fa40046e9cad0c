package validate

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"tlpc/internal/diag"
)

// CheckTasks validates that every task function only uses the supported
// subset of Go: sequential code, counting loops, and stream operations for
// all communication. info is optional; without it constant steps must be
// spelled as literals.
func CheckTasks(tasks []*ast.FuncDecl, info *types.Info, reporter *diag.Reporter) error {
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}
	c := &checker{
		reporter: reporter,
		info:     info,
	}
	for _, fn := range tasks {
		if fn == nil || fn.Body == nil {
			continue
		}
		c.checkFunction(fn)
	}
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	info     *types.Info
	errCount int
}

func (c *checker) checkFunction(fn *ast.FuncDecl) {
	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			c.checkType(field.Type)
		}
	}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.GoStmt:
			c.error(node.Go, "goroutines are not supported inside tasks; tasks are sequential and connected by streams")
		case *ast.SelectStmt:
			c.error(node.Select, "select statements are not supported; use the non-blocking stream operations")
		case *ast.SendStmt:
			c.error(node.Arrow, "native channel sends are not supported; use a stream Write")
		case *ast.UnaryExpr:
			if node.Op == token.ARROW {
				c.error(node.OpPos, "native channel receives are not supported; use a stream Read")
			}
		case *ast.ChanType, *ast.MapType:
			c.checkType(node.(ast.Expr))
			return false
		case *ast.CallExpr:
			c.checkCall(fn, node)
		case *ast.ForStmt:
			if (node.Init != nil || node.Post != nil) && !isCountingFor(node, c.info) {
				c.error(node.For, "for loops must be simple counting loops with one iterator, a comparison against it, and a constant step")
			}
		}
		return true
	})
}

func (c *checker) checkType(expr ast.Expr) {
	ast.Inspect(expr, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.ChanType:
			c.error(node.Begin, "native channels are not supported; declare a stream instead")
			return false
		case *ast.MapType:
			c.error(node.Map, "maps are not supported in hardware pipelines")
			return false
		}
		return true
	})
}

func (c *checker) checkCall(current *ast.FuncDecl, call *ast.CallExpr) {
	ident, ok := astutil.Unparen(call.Fun).(*ast.Ident)
	if !ok || ident.Name != current.Name.Name {
		return
	}
	if c.info != nil {
		if obj := c.info.Uses[ident]; obj != nil && obj != c.info.Defs[current.Name] {
			return
		}
	}
	c.error(call.Pos(), "recursion is not supported; refactor %s to an iterative form", current.Name.Name)
}

func (c *checker) error(pos token.Pos, format string, args ...any) {
	c.errCount++
	if c.reporter != nil {
		c.reporter.Error(pos, fmt.Sprintf(format, args...))
	}
}

func isCountingFor(stmt *ast.ForStmt, info *types.Info) bool {
	if stmt == nil || stmt.Init == nil || stmt.Cond == nil || stmt.Post == nil {
		return false
	}
	iterName, ok := loopInitInfo(stmt.Init)
	if !ok {
		return false
	}
	direction, ok := loopConditionInfo(stmt.Cond, iterName)
	if !ok {
		return false
	}
	step, ok := loopStepInfo(stmt.Post, iterName, info)
	if !ok {
		return false
	}
	if direction == increasing && step <= 0 {
		return false
	}
	if direction == decreasing && step >= 0 {
		return false
	}
	return true
}

func loopInitInfo(stmt ast.Stmt) (string, bool) {
	assign, ok := stmt.(*ast.AssignStmt)
	if !ok || len(assign.Lhs) != 1 || len(assign.Rhs) != 1 {
		return "", false
	}
	ident, ok := assign.Lhs[0].(*ast.Ident)
	if !ok || ident.Name == "_" {
		return "", false
	}
	return ident.Name, true
}

type loopDirection int

const (
	increasing loopDirection = 1
	decreasing loopDirection = -1
)

// loopConditionInfo accepts "iter < bound" and friends with any bound
// expression; the bound may be a task parameter.
func loopConditionInfo(expr ast.Expr, iter string) (loopDirection, bool) {
	bin, ok := astutil.Unparen(expr).(*ast.BinaryExpr)
	if !ok {
		return 0, false
	}
	left, ok := bin.X.(*ast.Ident)
	if !ok || left.Name != iter {
		return 0, false
	}
	switch bin.Op {
	case token.LSS, token.LEQ:
		return increasing, true
	case token.GTR, token.GEQ:
		return decreasing, true
	default:
		return 0, false
	}
}

func loopStepInfo(stmt ast.Stmt, iter string, info *types.Info) (int64, bool) {
	switch s := stmt.(type) {
	case *ast.IncDecStmt:
		ident, ok := s.X.(*ast.Ident)
		if !ok || ident.Name != iter {
			return 0, false
		}
		if s.Tok == token.INC {
			return 1, true
		}
		if s.Tok == token.DEC {
			return -1, true
		}
	case *ast.AssignStmt:
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			return 0, false
		}
		ident, ok := s.Lhs[0].(*ast.Ident)
		if !ok || ident.Name != iter {
			return 0, false
		}
		switch s.Tok {
		case token.ADD_ASSIGN:
			return constantIntValue(info, s.Rhs[0])
		case token.SUB_ASSIGN:
			if step, ok := constantIntValue(info, s.Rhs[0]); ok {
				return -step, true
			}
		case token.ASSIGN:
			bin, ok := s.Rhs[0].(*ast.BinaryExpr)
			if !ok {
				return 0, false
			}
			left, ok := bin.X.(*ast.Ident)
			if !ok || left.Name != iter {
				return 0, false
			}
			step, ok := constantIntValue(info, bin.Y)
			if !ok {
				return 0, false
			}
			switch bin.Op {
			case token.ADD:
				return step, true
			case token.SUB:
				return -step, true
			}
		}
	}
	return 0, false
}

func constantIntValue(info *types.Info, expr ast.Expr) (int64, bool) {
	expr = astutil.Unparen(expr)
	if lit, ok := expr.(*ast.BasicLit); ok && lit.Kind == token.INT {
		return constant.Int64Val(constant.MakeFromLiteral(lit.Value, lit.Kind, 0))
	}
	if info == nil {
		return 0, false
	}
	if ident, ok := expr.(*ast.Ident); ok {
		if obj, ok := info.ObjectOf(ident).(*types.Const); ok && obj.Val() != nil {
			return constant.Int64Val(obj.Val())
		}
	}
	tv, ok := info.Types[expr]
	if !ok || tv.Value == nil {
		if call, ok := expr.(*ast.CallExpr); ok && len(call.Args) == 1 {
			return constantIntValue(info, call.Args[0])
		}
		return 0, false
	}
	return constant.Int64Val(constant.ToInt(tv.Value))
}

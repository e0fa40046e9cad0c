package hierarchy

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"sort"

	"golang.org/x/tools/go/ast/astutil"

	"tlpc/internal/config"
	"tlpc/internal/edit"
	"tlpc/internal/frontend"
	"tlpc/internal/lower"
	"tlpc/internal/syntax"
)

// flattener records the task graph of one upper-level task.
type flattener struct {
	unit    *frontend.Unit
	fn      *ast.FuncDecl
	dialect config.Dialect
	funcs   map[string]*ast.FuncDecl
	meta    *Metadata
	// local maps the streams declared in this task to their metadata.
	local map[string]*Fifo
}

// flatten adds the graph built by fn to meta and returns the edits that
// replace fn's body with an empty shell.
func flatten(unit *frontend.Unit, fn *ast.FuncDecl, d config.Dialect, funcs map[string]*ast.FuncDecl, meta *Metadata) ([]edit.Edit, error) {
	f := &flattener{
		unit:    unit,
		fn:      fn,
		dialect: d,
		funcs:   funcs,
		meta:    meta,
		local:   make(map[string]*Fifo),
	}
	if err := f.declareFifos(); err != nil {
		return nil, err
	}
	invokes, err := f.invocations()
	if err != nil {
		return nil, err
	}
	for _, call := range invokes {
		if err := f.instantiate(call); err != nil {
			return nil, err
		}
	}

	var set edit.Set
	sd := SyntaxDialect(d)
	seen := make(map[ast.Expr]bool)
	for _, field := range fn.Type.Params.List {
		iface, elem := sd.MatchType(field.Type)
		if iface == syntax.NotStream || seen[field.Type] {
			continue
		}
		seen[field.Type] = true
		set.Replace(f.offset(field.Type.Pos()), f.offset(field.Type.End()), lower.ChannelType(iface, f.text(elem)))
	}
	set.Replace(f.offset(fn.Body.Lbrace), f.offset(fn.Body.Rbrace)+1, "{\n}")
	return set.Edits(), nil
}

func (f *flattener) declareFifos() error {
	var err error
	ast.Inspect(f.fn.Body, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch node := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.AssignStmt:
			if len(node.Lhs) != len(node.Rhs) {
				return true
			}
			for i, rhs := range node.Rhs {
				if err == nil {
					err = f.declareFifo(node.Lhs[i], rhs)
				}
			}
		case *ast.ValueSpec:
			if len(node.Names) != len(node.Values) {
				return true
			}
			for i, value := range node.Values {
				if err == nil {
					err = f.declareFifo(node.Names[i], value)
				}
			}
		}
		return true
	})
	return err
}

func (f *flattener) declareFifo(lhs ast.Expr, rhs ast.Expr) error {
	elem, depthExpr, ok := f.matchNewStream(rhs)
	if !ok {
		return nil
	}
	ident, ok := lhs.(*ast.Ident)
	if !ok || ident.Name == "_" {
		return f.structural(lhs.Pos(), "a new stream must be assigned to a named variable")
	}
	depth, ok := f.constantInt(depthExpr)
	if !ok {
		return f.structural(depthExpr.Pos(), fmt.Sprintf("depth of stream %s must be an integer constant", ident.Name))
	}
	if depth <= 0 {
		return f.structural(depthExpr.Pos(), fmt.Sprintf("depth of stream %s must be positive, got %d", ident.Name, depth))
	}
	if prev, exists := f.meta.Fifos[ident.Name]; exists {
		return f.structural(ident.Pos(), fmt.Sprintf("stream %s is already declared by task %s", ident.Name, prev.owner))
	}
	fifo := &Fifo{Depth: int(depth), Type: f.text(elem), owner: f.fn.Name.Name}
	f.meta.Fifos[ident.Name] = fifo
	f.local[ident.Name] = fifo
	return nil
}

// matchNewStream matches <pkg>.NewStream[T](depth).
func (f *flattener) matchNewStream(expr ast.Expr) (ast.Expr, ast.Expr, bool) {
	call, ok := astutil.Unparen(expr).(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return nil, nil, false
	}
	idx, ok := call.Fun.(*ast.IndexExpr)
	if !ok {
		return nil, nil, false
	}
	sel, ok := idx.X.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != f.dialect.NewStream {
		return nil, nil, false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Name != f.dialect.Package {
		return nil, nil, false
	}
	return idx.Index, call.Args[0], true
}

// invocations returns the Invoke calls of the task in source order.
func (f *flattener) invocations() ([]*ast.CallExpr, error) {
	var calls []*ast.CallExpr
	var err error
	ast.Inspect(f.fn.Body, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != f.dialect.Invoke {
			return true
		}
		if !f.chainedFromTask(sel.X) {
			err = f.structural(call.Pos(), fmt.Sprintf("unexpected invocation: %s must be chained from %s.%s()", f.dialect.Invoke, f.dialect.Package, f.dialect.Task))
			return false
		}
		calls = append(calls, call)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(calls, func(i, j int) bool {
		return invokeName(calls[i]).Pos() < invokeName(calls[j]).Pos()
	})
	return calls, nil
}

func invokeName(call *ast.CallExpr) *ast.Ident {
	return astutil.Unparen(call.Fun).(*ast.SelectorExpr).Sel
}

func (f *flattener) chainedFromTask(expr ast.Expr) bool {
	call, ok := astutil.Unparen(expr).(*ast.CallExpr)
	if !ok {
		return false
	}
	if isTaskRoot(call, f.dialect) {
		return true
	}
	sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr)
	return ok && sel.Sel.Name == f.dialect.Invoke && f.chainedFromTask(sel.X)
}

func (f *flattener) instantiate(call *ast.CallExpr) error {
	if len(call.Args) == 0 {
		return f.structural(call.Pos(), fmt.Sprintf("%s needs a task to invoke", f.dialect.Invoke))
	}
	childIdent, ok := call.Args[0].(*ast.Ident)
	if !ok {
		return f.structural(call.Args[0].Pos(), fmt.Sprintf("unexpected argument: the invoked task must be a function name, got %s", f.text(call.Args[0])))
	}
	child, ok := f.funcs[childIdent.Name]
	if !ok {
		return f.structural(childIdent.Pos(), fmt.Sprintf("invoked task %s is not a function of this file", childIdent.Name))
	}
	params := flattenParams(child)
	args := call.Args[1:]
	if len(args) != len(params) {
		return f.structural(call.Pos(), fmt.Sprintf("invoke of %s passes %d argument(s), the task takes %d", childIdent.Name, len(args), len(params)))
	}

	instance := len(f.meta.Tasks[childIdent.Name])
	inst := Instance{Args: make(map[string]Arg)}
	sd := SyntaxDialect(f.dialect)
	for i, arg := range args {
		ident, ok := arg.(*ast.Ident)
		if !ok {
			return f.structural(arg.Pos(), fmt.Sprintf("unexpected argument %d of invoke of %s: %s is not a variable", i+1, childIdent.Name, f.text(arg)))
		}
		param := params[i]
		iface, _ := sd.MatchType(param.typ)
		inst.Args[ident.Name] = Arg{Cat: iface.String(), Port: param.name}

		fifo := f.local[ident.Name]
		if iface == syntax.NotStream {
			if fifo != nil {
				return f.structural(arg.Pos(), fmt.Sprintf("stream %s is passed to scalar parameter %s of %s", ident.Name, param.name, childIdent.Name))
			}
			continue
		}
		if fifo == nil {
			continue
		}
		at := &Endpoint{Task: childIdent.Name, Instance: instance}
		switch iface {
		case syntax.InputStream:
			if fifo.ConsumedBy != nil {
				return f.structural(arg.Pos(), fmt.Sprintf("stream %s consumed more than once", ident.Name))
			}
			fifo.ConsumedBy = at
		case syntax.OutputStream:
			if fifo.ProducedBy != nil {
				return f.structural(arg.Pos(), fmt.Sprintf("stream %s produced more than once", ident.Name))
			}
			fifo.ProducedBy = at
		}
	}
	f.meta.Tasks[childIdent.Name] = append(f.meta.Tasks[childIdent.Name], inst)
	return nil
}

type param struct {
	name string
	typ  ast.Expr
}

func flattenParams(fn *ast.FuncDecl) []param {
	var out []param
	if fn.Type.Params == nil {
		return out
	}
	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			out = append(out, param{name: "_", typ: field.Type})
			continue
		}
		for _, name := range field.Names {
			out = append(out, param{name: name.Name, typ: field.Type})
		}
	}
	return out
}

func (f *flattener) constantInt(expr ast.Expr) (int64, bool) {
	expr = astutil.Unparen(expr)
	if lit, ok := expr.(*ast.BasicLit); ok && lit.Kind == token.INT {
		return constant.Int64Val(constant.MakeFromLiteral(lit.Value, lit.Kind, 0))
	}
	if f.unit.Info == nil {
		return 0, false
	}
	if ident, ok := expr.(*ast.Ident); ok {
		if obj, ok := f.unit.Info.ObjectOf(ident).(*types.Const); ok && obj.Val() != nil {
			return constant.Int64Val(constant.ToInt(obj.Val()))
		}
	}
	if tv, ok := f.unit.Info.Types[expr]; ok && tv.Value != nil {
		return constant.Int64Val(constant.ToInt(tv.Value))
	}
	return 0, false
}

func (f *flattener) offset(pos token.Pos) int {
	return f.unit.Fset.File(pos).Offset(pos)
}

func (f *flattener) text(n ast.Node) string {
	return string(f.unit.Src[f.offset(n.Pos()):f.offset(n.End())])
}

func (f *flattener) structural(pos token.Pos, reason string) error {
	return &lower.StructuralError{
		Pos:       f.unit.Fset.Position(pos),
		Construct: "task " + f.fn.Name.Name,
		Reason:    reason,
	}
}

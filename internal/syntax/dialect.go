package syntax

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"
)

// Iface is the stream view a value is declared with.
type Iface uint8

const (
	NotStream Iface = iota
	InputStream
	OutputStream
)

func (i Iface) String() string {
	switch i {
	case InputStream:
		return "istream"
	case OutputStream:
		return "ostream"
	default:
		return "scalar"
	}
}

// Dialect names the stream interface types, e.g. tlp.IStream and tlp.OStream.
type Dialect struct {
	Package      string
	InputStream  string
	OutputStream string
}

// DefaultDialect matches tlp.IStream[T] and tlp.OStream[T].
var DefaultDialect = Dialect{Package: "tlp", InputStream: "IStream", OutputStream: "OStream"}

// StreamDecl is a parameter or local variable declared with a dialect stream
// type.
type StreamDecl struct {
	Name     string
	Iface    Iface
	ElemType string
	Param    bool
	Pos      token.Pos
	// TypeStart and TypeEnd delimit the dialect type expression. Both are
	// zero for streams discovered only through type information.
	TypeStart int
	TypeEnd   int
}

// MatchType reports whether expr spells <Package>.<InputStream|OutputStream>[T]
// and returns the element type expression.
func (d Dialect) MatchType(expr ast.Expr) (Iface, ast.Expr) {
	idx, ok := astutil.Unparen(expr).(*ast.IndexExpr)
	if !ok {
		return NotStream, nil
	}
	sel, ok := idx.X.(*ast.SelectorExpr)
	if !ok {
		return NotStream, nil
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Name != d.Package {
		return NotStream, nil
	}
	switch sel.Sel.Name {
	case d.InputStream:
		return InputStream, idx.Index
	case d.OutputStream:
		return OutputStream, idx.Index
	}
	return NotStream, nil
}

// MatchNamed is the go/types counterpart of MatchType.
func (d Dialect) MatchNamed(t types.Type) (Iface, types.Type) {
	if t == nil {
		return NotStream, nil
	}
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return NotStream, nil
	}
	obj := named.Obj()
	if obj.Pkg() == nil || obj.Pkg().Name() != d.Package {
		return NotStream, nil
	}
	args := named.TypeArgs()
	if args == nil || args.Len() != 1 {
		return NotStream, nil
	}
	switch obj.Name() {
	case d.InputStream:
		return InputStream, args.At(0)
	case d.OutputStream:
		return OutputStream, args.At(0)
	}
	return NotStream, nil
}

func (t *Tree) collectStreamDecls() {
	if t.fn.Type.Params != nil {
		for _, field := range t.fn.Type.Params.List {
			t.declare(field.Names, field.Type, true)
		}
	}
	if t.fn.Body == nil {
		return
	}
	ast.Inspect(t.fn.Body, func(n ast.Node) bool {
		if _, ok := n.(*ast.FuncLit); ok {
			return false
		}
		decl, ok := n.(*ast.GenDecl)
		if !ok || decl.Tok != token.VAR {
			return true
		}
		for _, spec := range decl.Specs {
			if vs, ok := spec.(*ast.ValueSpec); ok && vs.Type != nil {
				t.declare(vs.Names, vs.Type, false)
			}
		}
		return true
	})
}

func (t *Tree) declare(names []*ast.Ident, typ ast.Expr, param bool) {
	iface, elem := t.dialect.MatchType(typ)
	if iface == NotStream {
		return
	}
	for _, name := range names {
		if name.Name == "_" {
			continue
		}
		d := &StreamDecl{
			Name:      name.Name,
			Iface:     iface,
			ElemType:  string(t.src[t.offset(elem.Pos()):t.offset(elem.End())]),
			Param:     param,
			Pos:       name.Pos(),
			TypeStart: t.offset(typ.Pos()),
			TypeEnd:   t.offset(typ.End()),
		}
		t.streams = append(t.streams, d)
		t.byName[d.Name] = d
	}
}

// ifaceOf decides the stream view of a receiver expression. Type information
// wins when available; otherwise an identifier is matched against the
// declared stream parameters and variables.
func (t *Tree) ifaceOf(expr ast.Expr) Iface {
	expr = astutil.Unparen(expr)
	if t.info != nil {
		if iface, elem := t.dialect.MatchNamed(t.info.TypeOf(expr)); iface != NotStream {
			if id, ok := expr.(*ast.Ident); ok && t.byName[id.Name] == nil {
				d := &StreamDecl{
					Name:     id.Name,
					Iface:    iface,
					ElemType: types.TypeString(elem, t.qualifier()),
					Pos:      id.Pos(),
				}
				t.streams = append(t.streams, d)
				t.byName[d.Name] = d
			}
			return iface
		}
	}
	id, ok := expr.(*ast.Ident)
	if !ok {
		return NotStream
	}
	if d := t.byName[id.Name]; d != nil {
		return d.Iface
	}
	return NotStream
}

func (t *Tree) qualifier() types.Qualifier {
	return func(p *types.Package) string {
		if obj, ok := t.info.Defs[t.fn.Name]; ok && obj != nil && obj.Pkg() == p {
			return ""
		}
		return p.Name()
	}
}

// Streams returns the stream declarations in declaration order.
func (t *Tree) Streams() []*StreamDecl {
	return t.streams
}

// Stream returns the declaration of name.
func (t *Tree) Stream(name string) (*StreamDecl, bool) {
	d, ok := t.byName[name]
	return d, ok
}

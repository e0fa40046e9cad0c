// Package syntax flattens one task function into an arena of nodes with
// stable integer ids, byte ranges into the original source, and the stream
// facts the analysis needs (call receivers, method names, declared stream
// types).
package syntax

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"
)

// NodeID identifies a node inside one Tree. Ids are assigned in pre-order, so
// the root is always 0 and a parent always has a smaller id than its children.
type NodeID int32

// NoNode is returned when a lookup fails.
const NoNode NodeID = -1

// Kind is the closed set of node categories the analysis distinguishes.
type Kind uint8

const (
	KindOther Kind = iota
	KindBlock
	KindFor
	KindRange
	KindCall
	KindIdent
	KindSelector
	KindBranch
	KindFuncLit
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindFor:
		return "for"
	case KindRange:
		return "range"
	case KindCall:
		return "call"
	case KindIdent:
		return "ident"
	case KindSelector:
		return "selector"
	case KindBranch:
		return "branch"
	case KindFuncLit:
		return "funclit"
	default:
		return "other"
	}
}

// IsLoop reports whether k is a loop statement.
func (k Kind) IsLoop() bool {
	return k == KindFor || k == KindRange
}

// Node is one arena entry.
type Node struct {
	ID       NodeID
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	// Start and End are byte offsets into the original file.
	Start int
	End   int
	AST   ast.Node
}

// Call describes a method call expression recv.Method(args...).
type Call struct {
	Receiver NodeID
	Method   string
	Args     []NodeID
	// Iface is the stream view of the receiver, NotStream for ordinary values.
	Iface Iface
}

// Tree is the arena for one function declaration.
type Tree struct {
	fset    *token.FileSet
	file    *token.File
	src     []byte
	fn      *ast.FuncDecl
	dialect Dialect
	info    *types.Info

	nodes   []Node
	index   map[ast.Node]NodeID
	calls   map[NodeID]*Call
	body    NodeID
	streams []*StreamDecl
	byName  map[string]*StreamDecl
}

// Build indexes fn. src must be the full content of the file fn was parsed
// from; info is optional and, when present, is consulted before the declared
// parameter and variable types to decide whether a receiver is a stream.
func Build(fset *token.FileSet, src []byte, fn *ast.FuncDecl, dialect Dialect, info *types.Info) *Tree {
	t := &Tree{
		fset:    fset,
		file:    fset.File(fn.Pos()),
		src:     src,
		fn:      fn,
		dialect: dialect,
		info:    info,
		index:   make(map[ast.Node]NodeID),
		calls:   make(map[NodeID]*Call),
		body:    NoNode,
		byName:  make(map[string]*StreamDecl),
	}

	stack := []NodeID{NoNode}
	ast.Inspect(fn, func(n ast.Node) bool {
		if n == nil {
			stack = stack[:len(stack)-1]
			return false
		}
		id := t.add(n, stack[len(stack)-1])
		stack = append(stack, id)
		return true
	})
	if fn.Body != nil {
		t.body = t.index[fn.Body]
	}

	t.collectStreamDecls()
	for id := range t.nodes {
		call, ok := t.nodes[id].AST.(*ast.CallExpr)
		if !ok {
			continue
		}
		sel, ok := astutil.Unparen(call.Fun).(*ast.SelectorExpr)
		if !ok {
			continue
		}
		rec := &Call{
			Receiver: t.index[sel.X],
			Method:   sel.Sel.Name,
			Iface:    t.ifaceOf(sel.X),
		}
		for _, arg := range call.Args {
			rec.Args = append(rec.Args, t.index[arg])
		}
		t.calls[NodeID(id)] = rec
	}
	return t
}

func (t *Tree) add(n ast.Node, parent NodeID) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node{
		ID:     id,
		Kind:   kindOf(n),
		Parent: parent,
		Start:  t.offset(n.Pos()),
		End:    t.offset(n.End()),
		AST:    n,
	})
	t.index[n] = id
	if parent != NoNode {
		t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	}
	return id
}

func kindOf(n ast.Node) Kind {
	switch n.(type) {
	case *ast.BlockStmt:
		return KindBlock
	case *ast.ForStmt:
		return KindFor
	case *ast.RangeStmt:
		return KindRange
	case *ast.CallExpr:
		return KindCall
	case *ast.Ident:
		return KindIdent
	case *ast.SelectorExpr:
		return KindSelector
	case *ast.BranchStmt:
		return KindBranch
	case *ast.FuncLit:
		return KindFuncLit
	default:
		return KindOther
	}
}

func (t *Tree) offset(pos token.Pos) int {
	if t.file == nil || !pos.IsValid() {
		return 0
	}
	return t.file.Offset(pos)
}

// Name returns the function name.
func (t *Tree) Name() string {
	return t.fn.Name.Name
}

// Func returns the indexed declaration.
func (t *Tree) Func() *ast.FuncDecl {
	return t.fn
}

// FileSet returns the file set positions resolve against.
func (t *Tree) FileSet() *token.FileSet {
	return t.fset
}

// Root returns the id of the function declaration itself.
func (t *Tree) Root() NodeID {
	return 0
}

// Body returns the id of the function body, or NoNode for declarations
// without one.
func (t *Tree) Body() NodeID {
	return t.body
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Kind returns the kind of id.
func (t *Tree) Kind(id NodeID) Kind {
	return t.nodes[id].Kind
}

// Children returns the direct children of id in source order.
func (t *Tree) Children(id NodeID) []NodeID {
	return t.nodes[id].Children
}

// Call returns the method-call record for id.
func (t *Tree) Call(id NodeID) (*Call, bool) {
	c, ok := t.calls[id]
	return c, ok
}

// Lookup returns the id assigned to n.
func (t *Tree) Lookup(n ast.Node) (NodeID, bool) {
	id, ok := t.index[n]
	return id, ok
}

// Pos returns the source position of id.
func (t *Tree) Pos(id NodeID) token.Pos {
	return t.nodes[id].AST.Pos()
}

// Text returns the original source text of id.
func (t *Tree) Text(id NodeID) string {
	n := t.nodes[id]
	return string(t.src[n.Start:n.End])
}

// Offset converts a position inside the function's file into a byte offset.
func (t *Tree) Offset(pos token.Pos) int {
	return t.offset(pos)
}

// Source returns the original file content the offsets refer to.
func (t *Tree) Source() []byte {
	return t.src
}

// Package lower rewrites one task body from the stream dialect into plain Go
// channels: stream parameters become token channels, every consumer gets a
// one-entry lookahead cache, each stream call is replaced by a helper call or
// a cache projection, and the pipelined loop is gated on cache validity.
package lower

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"
	"strings"

	"tlpc/internal/diag"
	"tlpc/internal/edit"
	"tlpc/internal/stream"
	"tlpc/internal/syntax"
)

// Result is the outcome of lowering one task.
type Result struct {
	Task   string
	Edits  []edit.Edit
	Usages *stream.Usages
	// Pipelined is the gated loop, NoNode when no gating was needed.
	Pipelined syntax.NodeID
	// Unsupported counts the call sites replaced by NotImplemented.
	Unsupported int
}

// Task collects the stream usage of tree and produces the edits that lower
// it. Edits refer to offsets of tree.Source() and never overlap. Call sites
// without a lowering rule are reported as warnings through reporter, which
// may be nil.
func Task(tree *syntax.Tree, reporter *diag.Reporter) (*Result, error) {
	usages, err := stream.Collect(tree)
	if err != nil {
		return nil, err
	}
	r := &rewriter{
		tree:      tree,
		usages:    usages,
		reporter:  reporter,
		pipelined: syntax.NoNode,
	}
	if err := r.run(); err != nil {
		return nil, err
	}
	return &Result{
		Task:        tree.Name(),
		Edits:       r.set.Edits(),
		Usages:      usages,
		Pipelined:   r.pipelined,
		Unsupported: r.unsupported,
	}, nil
}

type rewriter struct {
	tree     *syntax.Tree
	usages   *stream.Usages
	reporter *diag.Reporter

	set edit.Set
	// calls holds call-site edits separately so that a whole-call
	// replacement can drop the edits nested inside it.
	calls       []edit.Edit
	pipelined   syntax.NodeID
	unsupported int
}

func (r *rewriter) run() error {
	body, ok := r.tree.Node(r.tree.Body()).AST.(*ast.BlockStmt)
	if !ok {
		return fmt.Errorf("task %s has no body", r.tree.Name())
	}
	for _, u := range r.usages.All() {
		if u.ElemType == "" {
			return r.structural(u.Ops[0].Call, fmt.Sprintf("cannot determine the element type of stream %s", u.Name))
		}
		if d, ok := r.tree.Stream(u.Name); ok && !d.Param {
			return r.structuralAt(d.Pos, fmt.Sprintf("stream %s is a local variable; a lowered task can only use streams passed as parameters", u.Name))
		}
	}
	r.retypeParams()
	r.declareShadowState(body)
	r.rewriteCallSites()
	if err := r.gate(); err != nil {
		return err
	}
	r.set.Merge(r.calls)
	return r.set.Validate(len(r.tree.Source()))
}

func (r *rewriter) retypeParams() {
	seen := make(map[int]bool)
	for _, d := range r.tree.Streams() {
		if !d.Param || d.TypeEnd <= d.TypeStart || seen[d.TypeStart] {
			continue
		}
		seen[d.TypeStart] = true
		r.set.Replace(d.TypeStart, d.TypeEnd, ChannelType(d.Iface, d.ElemType))
	}
}

// ChannelType is the lowered Go type of a stream endpoint.
func ChannelType(iface syntax.Iface, elem string) string {
	if iface == syntax.OutputStream {
		return "chan<- tlpToken[" + elem + "]"
	}
	return "<-chan tlpToken[" + elem + "]"
}

func (r *rewriter) declareShadowState(body *ast.BlockStmt) {
	consumers := r.usages.Consumers()
	if len(consumers) == 0 {
		return
	}
	var b strings.Builder
	for _, u := range consumers {
		fmt.Fprintf(&b, "\n\t%s, %s := tlpToken[%s]{Eos: false}, false", u.ValueVar(), u.ValidVar(), u.ElemType)
		fmt.Fprintf(&b, "\n\t_, _ = %s, %s", u.ValueVar(), u.ValidVar())
	}
	b.WriteString("\n")
	r.set.Insert(r.tree.Offset(body.Lbrace)+1, b.String())
}

type callSite struct {
	usage *stream.Usage
	op    stream.Occurrence
	node  *syntax.Node
}

func (r *rewriter) rewriteCallSites() {
	var sites []callSite
	for _, u := range r.usages.All() {
		for _, op := range u.Ops {
			sites = append(sites, callSite{usage: u, op: op, node: r.tree.Node(op.Call)})
		}
	}
	// Inner calls end first, so nested edits exist before the call that
	// encloses them is rewritten.
	sort.SliceStable(sites, func(i, j int) bool {
		if sites[i].node.End != sites[j].node.End {
			return sites[i].node.End < sites[j].node.End
		}
		return sites[i].node.Start > sites[j].node.Start
	})
	for _, s := range sites {
		r.rewriteCall(s)
	}
}

func (r *rewriter) rewriteCall(s callSite) {
	u, node := s.usage, s.node
	call, _ := r.tree.Call(s.op.Call)
	recv := r.tree.Text(call.Receiver)
	switch s.op.Kind {
	case stream.TestEndOfStream:
		r.replaceCall(node, fmt.Sprintf("(%s && %s.Eos)", u.ValidVar(), u.ValueVar()))
	case stream.PeekBlocking, stream.PeekNonBlocking:
		r.replaceCall(node, u.ValueVar()+".Val")
	case stream.ReadBlocking:
		r.replaceCall(node, fmt.Sprintf("tlpRead(%s, &%s, &%s)", recv, u.ValueVar(), u.ValidVar()))
	case stream.Write:
		arg := r.tree.Node(call.Args[0])
		r.calls = append(r.calls,
			edit.Edit{Start: node.Start, End: arg.Start, Text: fmt.Sprintf("tlpWrite(%s, tlpToken[%s]{Eos: false, Val: ", recv, u.ElemType)},
			edit.Edit{Start: arg.End, End: node.End, Text: "})"},
		)
	case stream.Close:
		r.replaceCall(node, fmt.Sprintf("tlpClose(%s)", recv))
	default:
		r.replaceCall(node, NotImplemented)
		r.unsupported++
		r.reporter.Warning(r.tree.Pos(s.op.Call), fmt.Sprintf("'%s.%s' has not yet been implemented", recv, call.Method))
	}
}

// replaceCall replaces the whole call node, discarding edits already made
// inside it.
func (r *rewriter) replaceCall(node *syntax.Node, text string) {
	kept := r.calls[:0]
	for _, e := range r.calls {
		if e.Start >= node.Start && e.End <= node.End {
			continue
		}
		kept = append(kept, e)
	}
	r.calls = append(kept, edit.Edit{Start: node.Start, End: node.End, Text: text})
}

func (r *rewriter) gate() error {
	var blocking []*stream.Usage
	for _, u := range r.usages.Consumers() {
		if u.IsBlocking {
			blocking = append(blocking, u)
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	loopID, err := PipelinedLoop(r.tree)
	if err != nil {
		return err
	}
	loop := r.tree.Node(loopID)
	var gated []*stream.Usage
	for _, u := range blocking {
		for _, op := range u.Ops {
			if n := r.tree.Node(op.Call); n.Start >= loop.Start && n.End <= loop.End {
				gated = append(gated, u)
				break
			}
		}
	}
	if len(gated) == 0 {
		return nil
	}
	stmt, ok := loop.AST.(*ast.ForStmt)
	if !ok {
		return r.structural(loopID, "a range loop cannot be gated on stream availability, use a counting loop")
	}
	r.pipelined = loopID

	var post string
	if stmt.Post != nil {
		if err := r.checkRelocatable(loopID, stmt); err != nil {
			return err
		}
		start, end := r.tree.Offset(stmt.Post.Pos()), r.tree.Offset(stmt.Post.End())
		post = string(r.tree.Source()[start:end])
		r.set.Delete(start, end)
	}

	valids := make([]string, 0, len(gated))
	for _, u := range gated {
		valids = append(valids, u.ValidVar())
	}
	r.set.Insert(r.tree.Offset(stmt.Body.Lbrace)+1,
		fmt.Sprintf("\n%s := %s\nif %s {", stream.ProceedVar, strings.Join(valids, " && "), stream.ProceedVar))

	var b strings.Builder
	if post != "" {
		b.WriteString(post)
		b.WriteString("\n")
	}
	b.WriteString("} else {\n")
	for _, u := range gated {
		fmt.Fprintf(&b, "if !%s {\ntlpTryRefill(%s, &%s, &%s)\n}\n", u.ValidVar(), u.Name, u.ValueVar(), u.ValidVar())
	}
	b.WriteString("}\n")
	r.set.Insert(r.tree.Offset(stmt.Body.Rbrace), b.String())
	return nil
}

// checkRelocatable rejects loops whose post statement cannot be moved to the
// end of the gated branch.
func (r *rewriter) checkRelocatable(loopID syntax.NodeID, stmt *ast.ForStmt) error {
	var label string
	if parent := r.tree.Node(loopID).Parent; parent != syntax.NoNode {
		if ls, ok := r.tree.Node(parent).AST.(*ast.LabeledStmt); ok {
			label = ls.Label.Name
		}
	}
	var bad ast.Node
	ast.Inspect(stmt.Body, func(n ast.Node) bool {
		if bad != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.BranchStmt:
			if n.Tok == token.CONTINUE && (n.Label == nil || n.Label.Name == label) {
				bad = n
			}
		}
		return true
	})
	if bad != nil {
		id, _ := r.tree.Lookup(bad)
		return r.structural(id, "continue in a pipelined counting loop would skip the relocated increment")
	}
	ast.Inspect(stmt.Post, func(n ast.Node) bool {
		if bad != nil {
			return false
		}
		if call, ok := n.(*ast.CallExpr); ok {
			if id, ok := r.tree.Lookup(call); ok {
				if c, ok := r.tree.Call(id); ok && c.Iface != syntax.NotStream {
					bad = call
				}
			}
		}
		return true
	})
	if bad != nil {
		id, _ := r.tree.Lookup(bad)
		return r.structural(id, "the increment of a pipelined loop must not access streams")
	}
	return nil
}

func (r *rewriter) structural(id syntax.NodeID, reason string) error {
	return r.structuralAt(r.tree.Pos(id), reason)
}

func (r *rewriter) structuralAt(pos token.Pos, reason string) error {
	return &StructuralError{
		Pos:       r.tree.FileSet().Position(pos),
		Construct: "task " + r.tree.Name(),
		Reason:    reason,
	}
}

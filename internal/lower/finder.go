package lower

import (
	"fmt"
	"strings"

	"tlpc/internal/syntax"
)

// IsInnermostStreamLoop reports whether the loop id performs at least one
// stream operation and contains no other loop.
func IsInnermostStreamLoop(tree *syntax.Tree, id syntax.NodeID) bool {
	if !tree.Kind(id).IsLoop() {
		return false
	}
	var hasNestedLoop, hasFifoUse bool
	var visit func(syntax.NodeID)
	visit = func(n syntax.NodeID) {
		for _, child := range tree.Children(n) {
			switch tree.Kind(child) {
			case syntax.KindFor, syntax.KindRange:
				hasNestedLoop = true
			case syntax.KindCall:
				if call, ok := tree.Call(child); ok && call.Iface != syntax.NotStream {
					hasFifoUse = true
				}
			}
			visit(child)
		}
	}
	visit(id)
	return hasFifoUse && !hasNestedLoop
}

// InnermostStreamLoops returns every loop of the task body for which
// IsInnermostStreamLoop holds, in source order.
func InnermostStreamLoops(tree *syntax.Tree) []syntax.NodeID {
	body := tree.Body()
	if body == syntax.NoNode {
		return nil
	}
	var loops []syntax.NodeID
	var visit func(syntax.NodeID)
	visit = func(n syntax.NodeID) {
		for _, child := range tree.Children(n) {
			if tree.Kind(child) == syntax.KindFuncLit {
				continue
			}
			if IsInnermostStreamLoop(tree, child) {
				loops = append(loops, child)
				continue
			}
			visit(child)
		}
	}
	visit(body)
	return loops
}

// PipelinedLoop returns the single loop eligible for pipelining.
func PipelinedLoop(tree *syntax.Tree) (syntax.NodeID, error) {
	loops := InnermostStreamLoops(tree)
	construct := "task " + tree.Name()
	switch len(loops) {
	case 1:
		return loops[0], nil
	case 0:
		return syntax.NoNode, &StructuralError{
			Pos:       tree.FileSet().Position(tree.Func().Pos()),
			Construct: construct,
			Reason:    "no innermost loop performs stream operations",
		}
	}
	positions := make([]string, 0, len(loops))
	for _, id := range loops {
		p := tree.FileSet().Position(tree.Pos(id))
		positions = append(positions, fmt.Sprintf("%d:%d", p.Line, p.Column))
	}
	return syntax.NoNode, &StructuralError{
		Pos:       tree.FileSet().Position(tree.Func().Pos()),
		Construct: construct,
		Reason:    fmt.Sprintf("found %d innermost stream loops (at %s), only one can be pipelined", len(loops), strings.Join(positions, ", ")),
	}
}

package stream

import (
	"fmt"

	"tlpc/internal/syntax"
)

// Collect walks the body of tree and builds one Usage per stream variable.
// The walk is post-order, so the operations of a stream appear in the order
// they are evaluated: arguments before the call that consumes them. The first
// contradiction aborts collection and no partial result is returned.
func Collect(tree *syntax.Tree) (*Usages, error) {
	if tree == nil || tree.Body() == syntax.NoNode {
		return nil, fmt.Errorf("no task body to collect")
	}
	c := &collector{
		tree:    tree,
		visited: make([]bool, tree.Len()),
		names:   make(map[syntax.NodeID]string),
		usages: &Usages{
			byName: make(map[string]*Usage),
			byCall: make(map[syntax.NodeID]site),
		},
	}
	if err := c.walk(tree.Body()); err != nil {
		return nil, err
	}
	return c.usages, nil
}

type collector struct {
	tree    *syntax.Tree
	visited []bool
	names   map[syntax.NodeID]string
	usages  *Usages
}

func (c *collector) walk(id syntax.NodeID) error {
	if c.visited[id] {
		return nil
	}
	c.visited[id] = true
	for _, child := range c.tree.Children(id) {
		if err := c.walk(child); err != nil {
			return err
		}
	}
	if c.tree.Kind(id) != syntax.KindCall {
		return nil
	}
	call, ok := c.tree.Call(id)
	if !ok {
		return nil
	}
	kind := Classify(call.Iface, call.Method, len(call.Args))
	if kind == NotAStreamOperation {
		return nil
	}
	name := c.receiverName(call.Receiver)
	if name == "" {
		return nil
	}
	var elemType string
	if decl, ok := c.tree.Stream(name); ok {
		elemType = decl.ElemType
	}
	u := c.usages.lookupOrCreate(name, elemType)
	if err := u.apply(kind, id); err != nil {
		return err
	}
	c.usages.byCall[id] = site{usage: u, kind: kind}
	return nil
}

// receiverName returns the first identifier below id in pre-order, which for
// in.Read() is "in" and for s.in.Read() is "s".
func (c *collector) receiverName(id syntax.NodeID) string {
	if name, ok := c.names[id]; ok {
		return name
	}
	var name string
	if c.tree.Kind(id) == syntax.KindIdent {
		name = c.tree.Text(id)
	} else {
		for _, child := range c.tree.Children(id) {
			if name = c.receiverName(child); name != "" {
				break
			}
		}
	}
	c.names[id] = name
	return name
}

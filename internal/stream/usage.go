package stream

import (
	"fmt"

	"tlpc/internal/syntax"
)

// Occurrence is one classified call site.
type Occurrence struct {
	Kind OpKind
	Call syntax.NodeID
}

// Usage summarizes how one stream variable is used in a task body.
type Usage struct {
	Name     string
	ElemType string
	Ops      []Occurrence

	IsProducer       bool
	IsConsumer       bool
	IsBlocking       bool
	IsNonBlocking    bool
	NeedsPeeking     bool
	NeedsEndOfStream bool
}

// ValueVar is the cached-value shadow variable of the stream.
func (u *Usage) ValueVar() string { return "tlp_" + u.Name + "_value" }

// ValidVar is the cache-valid shadow variable of the stream.
func (u *Usage) ValidVar() string { return "tlp_" + u.Name + "_valid" }

// ProceedVar is the per-iteration gate of a pipelined loop.
const ProceedVar = "tlp_proceed"

// ConsistencyError reports a stream whose operations contradict each other.
type ConsistencyError struct {
	Stream     string
	Constraint string
	// Call is the call site that introduced the contradiction.
	Call syntax.NodeID
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("stream %s cannot be both %s", e.Stream, e.Constraint)
}

const (
	producerAndConsumer    = "producer and consumer"
	blockingAndNonBlocking = "blocking and non-blocking"
)

// apply folds one operation into u, failing on the first contradiction.
func (u *Usage) apply(kind OpKind, call syntax.NodeID) error {
	if kind.IsConsumerSide() {
		if u.IsProducer {
			return &ConsistencyError{Stream: u.Name, Constraint: producerAndConsumer, Call: call}
		}
		u.IsConsumer = true
	}
	if kind.IsProducerSide() {
		if u.IsConsumer {
			return &ConsistencyError{Stream: u.Name, Constraint: producerAndConsumer, Call: call}
		}
		u.IsProducer = true
	}
	if kind.IsBlocking() {
		if u.IsNonBlocking {
			return &ConsistencyError{Stream: u.Name, Constraint: blockingAndNonBlocking, Call: call}
		}
		u.IsBlocking = true
	}
	if kind.IsNonBlocking() {
		if u.IsBlocking {
			return &ConsistencyError{Stream: u.Name, Constraint: blockingAndNonBlocking, Call: call}
		}
		u.IsNonBlocking = true
	}
	u.NeedsPeeking = u.NeedsPeeking || kind.NeedsPeekBuffer()
	u.NeedsEndOfStream = u.NeedsEndOfStream || kind.NeedsEndOfStreamTracking()
	u.Ops = append(u.Ops, Occurrence{Kind: kind, Call: call})
	return nil
}

// Usages is the result of collecting one task body.
type Usages struct {
	byName map[string]*Usage
	order  []string
	byCall map[syntax.NodeID]site
}

type site struct {
	usage *Usage
	kind  OpKind
}

// Get returns the usage of name.
func (us *Usages) Get(name string) (*Usage, bool) {
	u, ok := us.byName[name]
	return u, ok
}

// All returns every usage in order of first appearance.
func (us *Usages) All() []*Usage {
	out := make([]*Usage, 0, len(us.order))
	for _, name := range us.order {
		out = append(out, us.byName[name])
	}
	return out
}

// Len returns the number of distinct streams.
func (us *Usages) Len() int {
	return len(us.order)
}

// At returns the usage and kind recorded for a call site.
func (us *Usages) At(call syntax.NodeID) (*Usage, OpKind, bool) {
	s, ok := us.byCall[call]
	if !ok {
		return nil, NotAStreamOperation, false
	}
	return s.usage, s.kind, true
}

// Consumers returns the consumer usages in order of first appearance.
func (us *Usages) Consumers() []*Usage {
	var out []*Usage
	for _, u := range us.All() {
		if u.IsConsumer {
			out = append(out, u)
		}
	}
	return out
}

func (us *Usages) lookupOrCreate(name, elemType string) *Usage {
	if u, ok := us.byName[name]; ok {
		return u
	}
	u := &Usage{Name: name, ElemType: elemType}
	us.byName[name] = u
	us.order = append(us.order, name)
	return u
}

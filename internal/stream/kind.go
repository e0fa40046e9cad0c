package stream

import "tlpc/internal/syntax"

// Flag is a capability bit of an operation kind.
type Flag uint16

const (
	ConsumerSide Flag = 1 << iota
	ProducerSide
	Blocking
	NonBlocking
	Destructive
	Defaulted
	NeedsPeekBuffer
	NeedsEndOfStreamTracking
)

// OpKind is the classification of one stream method call.
type OpKind uint8

const (
	NotAStreamOperation OpKind = iota
	TestEmpty
	TestEndOfStream
	TryPeek
	PeekBlocking
	PeekNonBlocking
	TryRead
	ReadBlocking
	ReadNonBlocking
	ReadNonBlockingDefaulted
	TryOpen
	Open
	TestFull
	Write
	TryWrite
	Close
	TryClose
)

var kindInfo = [...]struct {
	name  string
	flags Flag
}{
	NotAStreamOperation:      {"NotAStreamOperation", 0},
	TestEmpty:                {"TestEmpty", ConsumerSide},
	TestEndOfStream:          {"TestEndOfStream", ConsumerSide | NeedsEndOfStreamTracking},
	TryPeek:                  {"TryPeek", ConsumerSide | NeedsPeekBuffer},
	PeekBlocking:             {"PeekBlocking", ConsumerSide | Blocking | NeedsPeekBuffer},
	PeekNonBlocking:          {"PeekNonBlocking", ConsumerSide | NonBlocking | NeedsPeekBuffer},
	TryRead:                  {"TryRead", ConsumerSide | NonBlocking | Destructive},
	ReadBlocking:             {"ReadBlocking", ConsumerSide | Blocking | Destructive},
	ReadNonBlocking:          {"ReadNonBlocking", ConsumerSide | NonBlocking | Destructive},
	ReadNonBlockingDefaulted: {"ReadNonBlockingDefaulted", ConsumerSide | NonBlocking | Destructive | Defaulted},
	TryOpen:                  {"TryOpen", ConsumerSide | NonBlocking | Destructive | NeedsEndOfStreamTracking},
	Open:                     {"Open", ConsumerSide | Blocking | Destructive | NeedsEndOfStreamTracking},
	TestFull:                 {"TestFull", ProducerSide},
	Write:                    {"Write", ProducerSide | Blocking | Destructive},
	TryWrite:                 {"TryWrite", ProducerSide | NonBlocking | Destructive},
	Close:                    {"Close", ProducerSide | Blocking | Destructive},
	TryClose:                 {"TryClose", ProducerSide | NonBlocking | Destructive},
}

func (k OpKind) String() string {
	if int(k) < len(kindInfo) {
		return kindInfo[k].name
	}
	return "OpKind(?)"
}

// Flags returns the capability bits of k.
func (k OpKind) Flags() Flag {
	if int(k) < len(kindInfo) {
		return kindInfo[k].flags
	}
	return 0
}

// Has reports whether every bit of f is set for k.
func (k OpKind) Has(f Flag) bool {
	return f != 0 && k.Flags()&f == f
}

func (k OpKind) IsConsumerSide() bool { return k.Has(ConsumerSide) }
func (k OpKind) IsProducerSide() bool { return k.Has(ProducerSide) }
func (k OpKind) IsBlocking() bool { return k.Has(Blocking) }
func (k OpKind) IsNonBlocking() bool { return k.Has(NonBlocking) }
func (k OpKind) IsDestructive() bool { return k.Has(Destructive) }
func (k OpKind) IsDefaulted() bool { return k.Has(Defaulted) }
func (k OpKind) NeedsPeekBuffer() bool { return k.Has(NeedsPeekBuffer) }
func (k OpKind) NeedsEndOfStreamTracking() bool { return k.Has(NeedsEndOfStreamTracking) }

type signature struct {
	method string
	arity  int
}

var operations = map[signature]OpKind{
	{"Empty", 0}:    TestEmpty,
	{"Eos", 0}:      TestEndOfStream,
	{"TryPeek", 1}:  TryPeek,
	{"Peek", 0}:     PeekBlocking,
	{"Peek", 1}:     PeekNonBlocking,
	{"TryRead", 0}:  TryRead,
	{"Read", 0}:     ReadBlocking,
	{"Read", 1}:     ReadNonBlocking,
	{"Read", 2}:     ReadNonBlockingDefaulted,
	{"TryOpen", 0}:  TryOpen,
	{"Open", 0}:     Open,
	{"Full", 0}:     TestFull,
	{"Write", 1}:    Write,
	{"TryWrite", 1}: TryWrite,
	{"Close", 0}:    Close,
	{"TryClose", 0}: TryClose,
}

// Classify maps a method call on a value with the given stream view to its
// operation kind. Receivers that are not stream interfaces, and unknown
// (method, arity) pairs, yield NotAStreamOperation.
func Classify(recv syntax.Iface, method string, arity int) OpKind {
	if recv != syntax.InputStream && recv != syntax.OutputStream {
		return NotAStreamOperation
	}
	return operations[signature{method, arity}]
}

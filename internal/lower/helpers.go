package lower

// HelperBlock is appended once to every compilation unit that contains a
// lowered task. The rewritten call sites refer to these declarations.
const HelperBlock = `
// tlpToken is one element of a lowered stream.
type tlpToken[T any] struct {
	Eos bool
	Val T
}

func tlpTryRefill[T any](ch <-chan tlpToken[T], value *tlpToken[T], valid *bool) {
	select {
	case tok := <-ch:
		*value, *valid = tok, true
	default:
	}
}

func tlpRead[T any](ch <-chan tlpToken[T], value *tlpToken[T], valid *bool) T {
	if !*valid {
		*value, *valid = <-ch, true
	}
	v := value.Val
	*valid = false
	tlpTryRefill(ch, value, valid)
	return v
}

func tlpWrite[T any](ch chan<- tlpToken[T], tok tlpToken[T]) {
	ch <- tok
}

func tlpClose[T any](ch chan<- tlpToken[T]) {
	ch <- tlpToken[T]{Eos: true}
}
`

// NotImplemented marks a call site that has no lowering rule yet.
const NotImplemented = "NOT_IMPLEMENTED"

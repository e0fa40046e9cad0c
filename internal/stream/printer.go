package stream

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a human-readable summary of the usages of one task.
func Dump(task string, usages *Usages, w io.Writer) {
	if usages == nil {
		fmt.Fprintf(w, "task %s\n  <no usages>\n", task)
		return
	}
	fmt.Fprintf(w, "task %s\n", task)
	for _, u := range usages.All() {
		elem := u.ElemType
		if elem == "" {
			elem = "?"
		}
		fmt.Fprintf(w, "  stream %-8s %-8s %s\n", u.Name, role(u), elem)
		if attrs := attributes(u); len(attrs) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(attrs, " "))
		}
		for _, op := range u.Ops {
			fmt.Fprintf(w, "    op %s #%d\n", op.Kind, op.Call)
		}
	}
}

func role(u *Usage) string {
	switch {
	case u.IsConsumer:
		return "consumer"
	case u.IsProducer:
		return "producer"
	default:
		return "?"
	}
}

func attributes(u *Usage) []string {
	var attrs []string
	if u.IsBlocking {
		attrs = append(attrs, "blocking")
	}
	if u.IsNonBlocking {
		attrs = append(attrs, "non-blocking")
	}
	if u.NeedsPeeking {
		attrs = append(attrs, "peek")
	}
	if u.NeedsEndOfStream {
		attrs = append(attrs, "eos")
	}
	return attrs
}

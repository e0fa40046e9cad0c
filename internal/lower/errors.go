package lower

import (
	"fmt"
	"go/token"
)

// StructuralError reports a task whose shape cannot be lowered, such as a
// missing or ambiguous pipelined loop.
type StructuralError struct {
	Pos       token.Position
	Construct string
	Reason    string
}

func (e *StructuralError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Construct, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Construct, e.Reason)
}

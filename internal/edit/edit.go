// Package edit collects text edits against an unmodified source buffer and
// applies them in a single pass.
package edit

import (
	"bytes"
	"fmt"
	"sort"
)

// Edit replaces the bytes in [Start, End) of the original buffer with Text.
// Start == End is an insertion.
type Edit struct {
	Start int
	End   int
	Text  string
}

func (e Edit) String() string {
	return fmt.Sprintf("[%d,%d)=%q", e.Start, e.End, e.Text)
}

// OverlapError reports two edits that touch the same original bytes.
type OverlapError struct {
	First  Edit
	Second Edit
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping edits %s and %s", e.First, e.Second)
}

// Set is an ordered collection of edits. Offsets always refer to the original
// buffer; nothing is applied until Apply.
type Set struct {
	edits []Edit
}

// Insert adds text at off.
func (s *Set) Insert(off int, text string) {
	s.Add(Edit{Start: off, End: off, Text: text})
}

// Replace replaces [start, end) with text.
func (s *Set) Replace(start, end int, text string) {
	s.Add(Edit{Start: start, End: end, Text: text})
}

// Delete removes [start, end).
func (s *Set) Delete(start, end int) {
	s.Add(Edit{Start: start, End: end})
}

// Add appends e to the set.
func (s *Set) Add(e Edit) {
	s.edits = append(s.edits, e)
}

// Merge appends every edit of other.
func (s *Set) Merge(other []Edit) {
	s.edits = append(s.edits, other...)
}

// Len returns the number of edits.
func (s *Set) Len() int {
	return len(s.edits)
}

// Edits returns the edits sorted by position. Insertions at the same offset
// keep the order in which they were added and come before a replacement
// starting there.
func (s *Set) Edits() []Edit {
	out := make([]Edit, len(s.edits))
	copy(out, s.edits)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End-out[i].Start == 0 && out[j].End-out[j].Start != 0
	})
	return out
}

// Validate checks bounds and pairwise disjointness against a buffer of size n.
func (s *Set) Validate(n int) error {
	cursor := 0
	var owner Edit
	for _, e := range s.Edits() {
		if e.Start < 0 || e.End < e.Start || e.End > n {
			return fmt.Errorf("edit %s out of range for buffer of %d bytes", e, n)
		}
		if e.Start < cursor {
			return &OverlapError{First: owner, Second: e}
		}
		if e.End > cursor {
			cursor = e.End
			owner = e
		}
	}
	return nil
}

// Apply returns src with every edit applied. src itself is never modified.
func (s *Set) Apply(src []byte) ([]byte, error) {
	if err := s.Validate(len(src)); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(src))
	last := 0
	for _, e := range s.Edits() {
		buf.Write(src[last:e.Start])
		buf.WriteString(e.Text)
		last = e.End
	}
	buf.Write(src[last:])
	return buf.Bytes(), nil
}

package lower

import (
	"bytes"
	"errors"
	"go/ast"
	"go/format"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"tlpc/internal/diag"
	"tlpc/internal/edit"
	"tlpc/internal/frontend"
	"tlpc/internal/stream"
	"tlpc/internal/syntax"
)

func TestLowerScaleTask(t *testing.T) {
	got, res := lowerTask(t, `
func Scale(in tlp.IStream[int32], out tlp.OStream[int32], n int) {
	for i := 0; i < n; i++ {
		out.Write(in.Read() * 2)
	}
	out.Close()
}`, nil)
	want := `package kernels

func Scale(in <-chan tlpToken[int32], out chan<- tlpToken[int32], n int) {
	tlp_in_value, tlp_in_valid := tlpToken[int32]{Eos: false}, false
	_, _ = tlp_in_value, tlp_in_valid

	for i := 0; i < n; {
		tlp_proceed := tlp_in_valid
		if tlp_proceed {
			tlpWrite(out, tlpToken[int32]{Eos: false, Val: tlpRead(in, &tlp_in_value, &tlp_in_valid) * 2})
			i++
		} else {
			if !tlp_in_valid {
				tlpTryRefill(in, &tlp_in_value, &tlp_in_valid)
			}
		}
	}
	tlpClose(out)
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lowered source mismatch (-want +got):\n%s", diff)
	}
	if res.Pipelined == syntax.NoNode {
		t.Fatalf("expected a pipelined loop")
	}
	if res.Unsupported != 0 {
		t.Fatalf("unexpected unsupported call sites: %d", res.Unsupported)
	}
}

func TestLowerEndOfStreamTest(t *testing.T) {
	got, _ := lowerTask(t, `
func Drain(in tlp.IStream[float64], out tlp.OStream[float64]) {
	for !in.Eos() {
		out.Write(in.Peek() + in.Read())
	}
}`, nil)
	for _, want := range []string{
		"for !(tlp_in_valid && tlp_in_value.Eos) {",
		"Val: tlp_in_value.Val + tlpRead(in, &tlp_in_value, &tlp_in_valid)})",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("lowered source missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "in.Eos()") || strings.Contains(got, "in.Peek()") {
		t.Fatalf("stream methods survived lowering:\n%s", got)
	}
}

func TestLowerEndOfStreamProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	names := gen.Identifier().Map(func(s string) string {
		if len(s) > 12 {
			return s[:12]
		}
		return s
	}).SuchThat(func(s string) bool {
		return !token.IsKeyword(s) && s != "tlp"
	})
	properties.Property("eos lowers to valid bit and cached end-of-stream flag", prop.ForAll(
		func(name string) bool {
			src := "func T(" + name + " tlp.IStream[int]) {\n\tfor !" + name + ".Eos() {\n\t\t_ = " + name + ".Read()\n\t}\n}"
			got, err := lowerSource(src, nil)
			if err != nil {
				return false
			}
			return strings.Contains(got, "(tlp_"+name+"_valid && tlp_"+name+"_value.Eos)") &&
				!strings.Contains(got, name+".Eos()")
		},
		names,
	))

	properties.TestingRun(t)
}

func TestLowerProducerOnlyTask(t *testing.T) {
	got, res := lowerTask(t, `
func Produce(out tlp.OStream[uint8]) {
	out.Write(1)
	out.Write(2)
	out.Close()
}`, nil)
	for _, want := range []string{
		"func Produce(out chan<- tlpToken[uint8]) {",
		"tlpWrite(out, tlpToken[uint8]{Eos: false, Val: 1})",
		"tlpClose(out)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("lowered source missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "tlp_proceed") || strings.Contains(got, "tlp_out_") {
		t.Fatalf("producer-only task must not get shadow state or gating:\n%s", got)
	}
	if res.Pipelined != syntax.NoNode {
		t.Fatalf("producer-only task must not be gated")
	}
}

func TestLowerUnsupportedOperation(t *testing.T) {
	var diags bytes.Buffer
	reporter := diag.NewReporter(&diags, "text")
	got, res := lowerTask(t, `
func Poll(in tlp.IStream[int], out tlp.OStream[int]) {
	var ok bool
	v := in.Read(&ok)
	out.Write(v)
}`, reporter)
	if !strings.Contains(got, "v := NOT_IMPLEMENTED") {
		t.Fatalf("expected NOT_IMPLEMENTED marker:\n%s", got)
	}
	if !strings.Contains(got, "tlpWrite(out, tlpToken[int]{Eos: false, Val: v})") {
		t.Fatalf("sibling call site was not lowered:\n%s", got)
	}
	if res.Unsupported != 1 {
		t.Fatalf("unsupported = %d, want 1", res.Unsupported)
	}
	if reporter.HasErrors() || reporter.WarningCount() != 1 {
		t.Fatalf("expected exactly one warning, got:\n%s", diags.String())
	}
	if !strings.Contains(diags.String(), "'in.Read' has not yet been implemented") {
		t.Fatalf("unexpected diagnostics:\n%s", diags.String())
	}
}

func TestLowerUnsupportedCallSwallowsNestedEdits(t *testing.T) {
	got, res := lowerTask(t, `
func Forward(in tlp.IStream[int], out tlp.OStream[int], n int) {
	for i := 0; i < n; i++ {
		out.TryWrite(in.Read())
	}
}`, nil)
	if !strings.Contains(got, "\t\t\tNOT_IMPLEMENTED\n") || strings.Contains(got, "tlpRead(") {
		t.Fatalf("outer marker should replace the nested read:\n%s", got)
	}
	if res.Unsupported != 1 {
		t.Fatalf("unsupported = %d, want 1", res.Unsupported)
	}
}

func TestLowerGatesOnlyLoopConsumers(t *testing.T) {
	got, _ := lowerTask(t, `
func Offset(a tlp.IStream[int], b tlp.IStream[int], out tlp.OStream[int], n int) {
	base := a.Read()
	for i := 0; i < n; i++ {
		out.Write(b.Read() + base)
	}
}`, nil)
	if !strings.Contains(got, "tlp_proceed := tlp_b_valid\n") {
		t.Fatalf("proceed must only test b:\n%s", got)
	}
	if strings.Contains(got, "tlpTryRefill(a,") {
		t.Fatalf("a is not accessed in the loop and must not be refilled there:\n%s", got)
	}
	if !strings.Contains(got, "base := tlpRead(a, &tlp_a_value, &tlp_a_valid)") {
		t.Fatalf("read outside the loop was not lowered:\n%s", got)
	}
}

func TestLowerGatesAllLoopConsumers(t *testing.T) {
	got, _ := lowerTask(t, `
func Add(a, b tlp.IStream[int], out tlp.OStream[int], n int) {
	for i := 0; i < n; i++ {
		out.Write(a.Read() + b.Read())
	}
	out.Close()
}`, nil)
	for _, want := range []string{
		"func Add(a, b <-chan tlpToken[int], out chan<- tlpToken[int], n int) {",
		"tlp_proceed := tlp_a_valid && tlp_b_valid\n",
		"tlpTryRefill(a, &tlp_a_value, &tlp_a_valid)",
		"tlpTryRefill(b, &tlp_b_value, &tlp_b_valid)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("lowered source missing %q:\n%s", want, got)
		}
	}
}

func TestLowerLoopWithoutPost(t *testing.T) {
	got, _ := lowerTask(t, `
func Copy(in tlp.IStream[int], out tlp.OStream[int]) {
	for !in.Eos() {
		out.Write(in.Read())
	}
	out.Close()
}`, nil)
	if !strings.Contains(got, "if tlp_proceed {\n\t\t\ttlpWrite(out, tlpToken[int]{Eos: false, Val: tlpRead(in, &tlp_in_value, &tlp_in_valid)})\n\t\t} else {") {
		t.Fatalf("unexpected gated body:\n%s", got)
	}
}

func TestLowerLabeledContinueToOuterLoop(t *testing.T) {
	_, res := lowerTask(t, `
func Rows(in tlp.IStream[int], out tlp.OStream[int], rows, cols int) {
outer:
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := in.Read()
			if v < 0 {
				continue outer
			}
			out.Write(v)
		}
	}
}`, nil)
	if res.Pipelined == syntax.NoNode {
		t.Fatalf("inner loop should be pipelined")
	}
}

func TestLowerStructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "no loop",
			src: `
func Once(in tlp.IStream[int]) {
	_ = in.Read()
}`,
			want: "no innermost loop performs stream operations",
		},
		{
			name: "two loops",
			src: `
func Twice(in tlp.IStream[int], n int) {
	for i := 0; i < n; i++ {
		_ = in.Read()
	}
	for i := 0; i < n; i++ {
		_ = in.Read()
	}
}`,
			want: "found 2 innermost stream loops",
		},
		{
			name: "continue",
			src: `
func Skip(in tlp.IStream[int], out tlp.OStream[int], n int) {
	for i := 0; i < n; i++ {
		v := in.Read()
		if v == 0 {
			continue
		}
		out.Write(v)
	}
}`,
			want: "continue in a pipelined counting loop",
		},
		{
			name: "range",
			src: `
func Ranged(in tlp.IStream[int], out tlp.OStream[int], n int) {
	for range n {
		out.Write(in.Read())
	}
}`,
			want: "range loop cannot be gated",
		},
		{
			name: "local stream",
			src: `
func Spare(n int) {
	var s tlp.IStream[int]
	for i := 0; i < n; i++ {
		_ = s.Read()
	}
}`,
			want: "stream s is a local variable",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lowerSource(tc.src, nil)
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("expected StructuralError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
			if !strings.HasPrefix(se.Construct, "task ") {
				t.Fatalf("construct %q should name the task", se.Construct)
			}
		})
	}
}

func TestLowerPropagatesConsistencyError(t *testing.T) {
	tree := buildTree(t, `
func Bad(a tlp.IStream[int], x int) {
	for i := 0; i < x; i++ {
		_ = a.Read()
		a.Write(x)
	}
}`)
	res, err := Task(tree, nil)
	var ce *stream.ConsistencyError
	if !errors.As(err, &ce) || ce.Stream != "a" {
		t.Fatalf("expected consistency error on a, got %v", err)
	}
	if res != nil {
		t.Fatalf("no result may be returned with an error")
	}
}

func TestLowerEditsNeverOverlap(t *testing.T) {
	tree := buildTree(t, `
func Mix(in tlp.IStream[int], out tlp.OStream[int], n int) {
	for i := 0; i < n; i++ {
		out.Write(in.Read() + in.Peek() * in.Read())
	}
	out.Close()
}`)
	res, err := Task(tree, nil)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	var set edit.Set
	set.Merge(res.Edits)
	if err := set.Validate(len(tree.Source())); err != nil {
		t.Fatalf("edits overlap: %v", err)
	}
}

func TestInnermostLoopFinderNested(t *testing.T) {
	tree := buildTree(t, `
func Matrix(in tlp.IStream[int], out tlp.OStream[int], n, m int) {
	for i := 0; i < n; i++ {
		out.Write(in.Read())
		for j := 0; j < m; j++ {
			out.Write(in.Read())
		}
	}
}`)
	var loops []syntax.NodeID
	for id := 0; id < tree.Len(); id++ {
		if tree.Kind(syntax.NodeID(id)) == syntax.KindFor {
			loops = append(loops, syntax.NodeID(id))
		}
	}
	if len(loops) != 2 {
		t.Fatalf("expected two loops, got %d", len(loops))
	}
	outer, inner := loops[0], loops[1]
	if IsInnermostStreamLoop(tree, outer) {
		t.Fatalf("outer loop contains a nested loop")
	}
	if !IsInnermostStreamLoop(tree, inner) {
		t.Fatalf("inner loop should be the innermost stream loop")
	}
	got, err := PipelinedLoop(tree)
	if err != nil || got != inner {
		t.Fatalf("PipelinedLoop = %d, %v; want %d", got, err, inner)
	}
}

func TestInnermostLoopFinderIgnoresScalarLoops(t *testing.T) {
	tree := buildTree(t, `
func Sum(in tlp.IStream[int], xs []int) {
	total := 0
	for _, x := range xs {
		total += x
	}
	for i := 0; i < total; i++ {
		_ = in.Read()
	}
}`)
	loops := InnermostStreamLoops(tree)
	if len(loops) != 1 || tree.Kind(loops[0]) != syntax.KindFor {
		t.Fatalf("expected only the counting loop, got %v", loops)
	}
	if IsInnermostStreamLoop(tree, tree.Body()) {
		t.Fatalf("a block is never a loop")
	}
}

func buildTree(t *testing.T, fn string) *syntax.Tree {
	t.Helper()
	tree, err := parseTask(fn)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree
}

func parseTask(fn string) (*syntax.Tree, error) {
	unit, err := frontend.ParseSource("task.go", []byte("package kernels\n"+fn+"\n"))
	if err != nil {
		return nil, err
	}
	var decl *ast.FuncDecl
	for _, d := range unit.File.Decls {
		if f, ok := d.(*ast.FuncDecl); ok {
			decl = f
		}
	}
	return syntax.Build(unit.Fset, unit.Src, decl, syntax.DefaultDialect, nil), nil
}

func lowerSource(fn string, reporter *diag.Reporter) (string, error) {
	out, _, err := lowerWithResult(fn, reporter)
	return out, err
}

func lowerWithResult(fn string, reporter *diag.Reporter) (string, *Result, error) {
	tree, err := parseTask(fn)
	if err != nil {
		return "", nil, err
	}
	reporter.SetFileSet(tree.FileSet())
	res, err := Task(tree, reporter)
	if err != nil {
		return "", nil, err
	}
	var set edit.Set
	set.Merge(res.Edits)
	out, err := set.Apply(tree.Source())
	if err != nil {
		return "", nil, err
	}
	formatted, err := format.Source(out)
	if err != nil {
		return "", nil, err
	}
	return string(formatted), res, nil
}

func lowerTask(t *testing.T, fn string, reporter *diag.Reporter) (string, *Result) {
	t.Helper()
	out, res, err := lowerWithResult(fn, reporter)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return out, res
}

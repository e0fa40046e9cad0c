package hierarchy

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/types"
	"io"

	"golang.org/x/tools/imports"

	"tlpc/internal/config"
	"tlpc/internal/diag"
	"tlpc/internal/edit"
	"tlpc/internal/frontend"
	"tlpc/internal/lower"
	"tlpc/internal/stream"
	"tlpc/internal/syntax"
	"tlpc/internal/validate"
)

// Options configures LowerUnit.
type Options struct {
	Dialect config.Dialect
	// Format removes unused imports and gofmts the result.
	Format bool
	// Top names the upper-level task whose parameters become the ports of
	// the metadata. Empty selects the only upper-level task, if there is
	// exactly one.
	Top      string
	Reporter *diag.Reporter
}

// TaskSummary describes what happened to one task.
type TaskSummary struct {
	Name        string
	Level       Level
	Usages      *stream.Usages
	Pipelined   bool
	Unsupported int
}

// Output is the lowered form of one compilation unit.
type Output struct {
	Source   []byte
	Metadata *Metadata
	Tasks    []TaskSummary
}

// LowerUnit validates and lowers every task of unit. Lower-level tasks are
// rewritten in place, upper-level tasks are replaced by empty shells whose
// topology is returned as metadata, and the helper block is appended once
// when anything was lowered.
func LowerUnit(unit *frontend.Unit, opts Options) (*Output, error) {
	if unit == nil || unit.File == nil {
		return nil, fmt.Errorf("no unit to lower")
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = diag.NewReporter(io.Discard, "text")
	}

	funcs := make(map[string]*ast.FuncDecl)
	var tasks []*ast.FuncDecl
	levels := make(map[*ast.FuncDecl]Level)
	for _, decl := range unit.File.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		if fn.Recv == nil {
			funcs[fn.Name.Name] = fn
		}
		level := Classify(fn, opts.Dialect)
		levels[fn] = level
		if level != Plain {
			tasks = append(tasks, fn)
		}
	}
	if err := validate.CheckTasks(tasks, unit.Info, reporter); err != nil {
		return nil, err
	}

	out := &Output{Metadata: newMetadata()}
	var set edit.Set
	lowered := 0
	var uppers []*ast.FuncDecl
	for _, fn := range tasks {
		summary := TaskSummary{Name: fn.Name.Name, Level: levels[fn]}
		switch levels[fn] {
		case LowerLevel:
			tree := syntax.Build(unit.Fset, unit.Src, fn, SyntaxDialect(opts.Dialect), unit.Info)
			res, err := lower.Task(tree, reporter)
			if err != nil {
				return nil, fmt.Errorf("lower task %s: %w", fn.Name.Name, err)
			}
			set.Merge(res.Edits)
			summary.Usages = res.Usages
			summary.Pipelined = res.Pipelined != syntax.NoNode
			summary.Unsupported = res.Unsupported
			lowered++
		case UpperLevel:
			edits, err := flatten(unit, fn, opts.Dialect, funcs, out.Metadata)
			if err != nil {
				return nil, fmt.Errorf("flatten task %s: %w", fn.Name.Name, err)
			}
			set.Merge(edits)
			uppers = append(uppers, fn)
		}
		out.Tasks = append(out.Tasks, summary)
	}

	if err := out.Metadata.setTop(opts, uppers, funcs); err != nil {
		return nil, err
	}

	src, err := set.Apply(unit.Src)
	if err != nil {
		return nil, fmt.Errorf("apply edits to %s: %w", unit.Filename, err)
	}
	if lowered > 0 {
		src = appendHelpers(src)
	}
	if opts.Format {
		formatted, err := imports.Process(unit.Filename, src, &imports.Options{Comments: true, TabIndent: true, TabWidth: 8})
		if err != nil {
			return nil, fmt.Errorf("format lowered %s: %w", unit.Filename, err)
		}
		src = formatted
	}
	out.Source = src
	return out, nil
}

func appendHelpers(src []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(src) + len(lower.HelperBlock) + 1)
	buf.Write(src)
	if !bytes.HasSuffix(src, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(lower.HelperBlock)
	return buf.Bytes()
}

func (m *Metadata) setTop(opts Options, uppers []*ast.FuncDecl, funcs map[string]*ast.FuncDecl) error {
	var top *ast.FuncDecl
	switch {
	case opts.Top != "":
		fn, ok := funcs[opts.Top]
		if !ok {
			return fmt.Errorf("top-level task %s not found", opts.Top)
		}
		if Classify(fn, opts.Dialect) != UpperLevel {
			return fmt.Errorf("top-level task %s does not build a task graph", opts.Top)
		}
		top = fn
	case len(uppers) == 1:
		top = uppers[0]
	default:
		return nil
	}
	m.Top = top.Name.Name
	sd := SyntaxDialect(opts.Dialect)
	for _, p := range flattenParams(top) {
		iface, elem := sd.MatchType(p.typ)
		typ := p.typ
		if elem != nil {
			typ = elem
		}
		m.Ports = append(m.Ports, Port{Name: p.name, Cat: iface.String(), Type: types.ExprString(typ)})
	}
	return nil
}

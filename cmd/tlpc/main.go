package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"tlpc/internal/config"
	"tlpc/internal/diag"
	"tlpc/internal/frontend"
	"tlpc/internal/hierarchy"
	"tlpc/internal/stream"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "lower":
		return runLower(args[1:])
	case "check":
		return runCheck(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "tlpc lowers stream tasks to plain Go\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  tlpc <command> [options] file.go...\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  lower      Rewrite stream tasks and emit the lowered source\n")
	fmt.Fprintf(os.Stderr, "  check      Validate tasks and collect stream usage without emitting code\n")
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath *string
	diagFormat *string
	syntaxOnly *bool
	tags       *string
	top        *string
	verbose    *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "path to a YAML configuration file (optional)"),
		diagFormat: fs.String("diag-format", "", "diagnostic output format (text|json), overrides the configuration"),
		syntaxOnly: fs.Bool("syntax-only", false, "parse sources without loading their package or type checking"),
		tags:       fs.String("tags", "", "comma-separated build tags used when loading packages"),
		top:        fs.String("top", "", "upper-level task whose parameters become the metadata ports"),
		verbose:    fs.Bool("v", false, "report progress on stderr"),
	}
}

// session is the state shared by one invocation of a subcommand.
type session struct {
	cfg      config.Config
	reporter *diag.Reporter
	units    []*frontend.Unit
	top      string
	verbose  bool
}

func prepareSession(fs *flag.FlagSet, common *commonFlags, apply func(*config.Config)) (*session, error) {
	cfg, err := config.Load(*common.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if *common.diagFormat != "" {
		cfg.DiagFormat = *common.diagFormat
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reporter := diag.NewReporter(os.Stderr, cfg.DiagFormat)
	loadCfg := frontend.LoadConfig{
		Sources:    fs.Args(),
		BuildTags:  splitTags(*common.tags),
		SyntaxOnly: *common.syntaxOnly,
	}
	units, err := frontend.Load(loadCfg, reporter)
	if err != nil {
		return nil, err
	}
	if reporter.HasErrors() {
		return nil, fmt.Errorf("errors reported while loading sources")
	}
	return &session{
		cfg:      cfg,
		reporter: reporter,
		units:    units,
		top:      *common.top,
		verbose:  *common.verbose,
	}, nil
}

// lowerAll lowers every unit of the session in order and stops at the first
// failure.
func (s *session) lowerAll(format bool) ([]*hierarchy.Output, error) {
	outputs := make([]*hierarchy.Output, 0, len(s.units))
	for _, unit := range s.units {
		s.reporter.SetFileSet(unit.Fset)
		out, err := hierarchy.LowerUnit(unit, hierarchy.Options{
			Dialect:  s.cfg.Dialect,
			Format:   format,
			Top:      s.top,
			Reporter: s.reporter,
		})
		if err != nil {
			return nil, s.fatal(unit, err)
		}
		if s.verbose {
			s.reporter.Infof("%s: %s", unit.Filename, summarize(out))
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// fatal routes err through the reporter unless validation already reported
// the individual issues.
func (s *session) fatal(unit *frontend.Unit, err error) error {
	if !s.reporter.HasErrors() {
		s.reporter.Errorf("%v", err)
	}
	return fmt.Errorf("lowering %s failed with %d error(s)", unit.Filename, s.reporter.ErrorCount())
}

func summarize(out *hierarchy.Output) string {
	var lowered, flattened, pipelined, unsupported int
	for _, task := range out.Tasks {
		switch task.Level {
		case hierarchy.LowerLevel:
			lowered++
		case hierarchy.UpperLevel:
			flattened++
		}
		if task.Pipelined {
			pipelined++
		}
		unsupported += task.Unsupported
	}
	return fmt.Sprintf("%d task(s) lowered, %d pipelined, %d flattened, %d unsupported operation(s)",
		lowered, pipelined, flattened, unsupported)
}

func runLower(args []string) error {
	fs := flag.NewFlagSet("lower", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs)
	emit := fs.String("emit", "go", "output format (go|usage)")
	output := fs.String("o", "", "output file path (stdout when omitted)")
	metadata := fs.String("metadata", "", "path to write the task graph metadata as YAML, overrides the configuration")
	noFormat := fs.Bool("no-format", false, "skip import cleanup and gofmt of the lowered source")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("lower requires at least one Go source file")
	}
	if *emit != "go" && *emit != "usage" {
		return fmt.Errorf("unsupported emit format %q (want go or usage)", *emit)
	}

	sess, err := prepareSession(fs, common, func(cfg *config.Config) {
		if *metadata != "" {
			cfg.Metadata = *metadata
		}
		if *noFormat {
			cfg.Format = false
		}
	})
	if err != nil {
		return err
	}
	outputs, err := sess.lowerAll(sess.cfg.Format)
	if err != nil {
		return err
	}

	err = withOutputWriter(*output, func(w io.Writer) error {
		for i, out := range outputs {
			var werr error
			switch *emit {
			case "usage":
				werr = writeUsage(w, out)
			default:
				if len(outputs) > 1 {
					fmt.Fprintf(w, "// %s\n", sess.units[i].Filename)
				}
				_, werr = w.Write(out.Source)
			}
			if werr != nil {
				return werr
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if sess.cfg.Metadata == "" {
		return nil
	}
	return withOutputWriter(sess.cfg.Metadata, func(w io.Writer) error {
		return writeMetadata(w, outputs)
	})
}

func writeUsage(w io.Writer, out *hierarchy.Output) error {
	var buf bytes.Buffer
	for _, task := range out.Tasks {
		if task.Usages == nil {
			continue
		}
		stream.Dump(task.Name, task.Usages, &buf)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// writeMetadata writes one YAML document per unit that built a task graph.
func writeMetadata(w io.Writer, outputs []*hierarchy.Output) error {
	first := true
	for _, out := range outputs {
		if out.Metadata.Empty() {
			continue
		}
		data, err := out.Metadata.Marshal()
		if err != nil {
			return err
		}
		if !first {
			if _, err := io.WriteString(w, "---\n"); err != nil {
				return err
			}
		}
		first = false
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("check requires at least one Go source file")
	}

	sess, err := prepareSession(fs, common, nil)
	if err != nil {
		return err
	}
	if _, err := sess.lowerAll(false); err != nil {
		return err
	}
	if sess.verbose {
		sess.reporter.Infof("%d file(s) checked, %d warning(s)", len(sess.units), sess.reporter.WarningCount())
	}
	return nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	w, cleanup, err := outputWriter(path)
	if err != nil {
		return err
	}
	if cleanup == nil {
		return fn(w)
	}
	err = fn(w)
	if closeErr := cleanup(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

package frontend

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gopackages "golang.org/x/tools/go/packages"

	"tlpc/internal/diag"
)

// LoadConfig configures how task sources are loaded before lowering.
type LoadConfig struct {
	Sources   []string
	BuildTags []string
	// SyntaxOnly skips go/packages and type checking; every source is parsed
	// on its own.
	SyntaxOnly bool
}

// Unit is one compilation unit: a parsed file together with its original
// bytes. Info is nil when the file was parsed without type checking.
type Unit struct {
	Filename string
	Src      []byte
	File     *ast.File
	Fset     *token.FileSet
	Info     *types.Info
}

// Load returns one Unit per requested source file.
func Load(cfg LoadConfig, reporter *diag.Reporter) ([]*Unit, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no source files were provided")
	}
	if cfg.SyntaxOnly {
		fset := token.NewFileSet()
		reporter.SetFileSet(fset)
		units := make([]*Unit, 0, len(cfg.Sources))
		for _, path := range cfg.Sources {
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			unit, err := parseInto(fset, path, src)
			if err != nil {
				reporter.Errorf("%v", err)
				return nil, fmt.Errorf("parsing failed")
			}
			units = append(units, unit)
		}
		return units, nil
	}

	pkgs, fset, err := LoadPackages(cfg, reporter)
	if err != nil {
		return nil, err
	}
	return selectUnits(pkgs, fset, cfg.Sources)
}

// ParseSource parses a single file without type information.
func ParseSource(filename string, src []byte) (*Unit, error) {
	return parseInto(token.NewFileSet(), filename, src)
}

func parseInto(fset *token.FileSet, filename string, src []byte) (*Unit, error) {
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	return &Unit{Filename: filename, Src: src, File: file, Fset: fset}, nil
}

// LoadPackages loads the package containing the requested sources with full
// syntax and type information. Type errors are reported as warnings because
// lowering only needs the syntax; listing and parse errors are fatal.
func LoadPackages(cfg LoadConfig, reporter *diag.Reporter) ([]*gopackages.Package, *token.FileSet, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, fmt.Errorf("no source files were provided")
	}

	fset := token.NewFileSet()
	buildFlags := buildTagFlag(cfg.BuildTags)

	dir := workingDir(cfg.Sources[0])
	if dir != "" {
		if absDir, err := filepath.Abs(dir); err == nil {
			dir = absDir
		}
	}

	loadCfg := &gopackages.Config{
		Mode:  gopackages.NeedName | gopackages.NeedSyntax | gopackages.NeedFiles | gopackages.NeedCompiledGoFiles | gopackages.NeedTypes | gopackages.NeedTypesInfo | gopackages.NeedImports | gopackages.NeedModule,
		Fset:  fset,
		Env:   os.Environ(),
		Tests: false,
	}
	if dir != "" {
		loadCfg.Dir = dir
	}
	if len(buildFlags) > 0 {
		loadCfg.BuildFlags = buildFlags
	}

	pkgs, err := gopackages.Load(loadCfg, ".")
	if err != nil {
		return nil, nil, err
	}

	reporter.SetFileSet(fset)

	var hadErrors bool
	for _, pkg := range pkgs {
		for _, loadErr := range pkg.Errors {
			if loadErr.Kind == gopackages.TypeError {
				reporter.Warningf("%s: %s", loadErr.Pos, loadErr.Msg)
				continue
			}
			reporter.Errorf("%s: %s", loadErr.Pos, loadErr.Msg)
			hadErrors = true
		}
	}

	if hadErrors {
		return nil, nil, fmt.Errorf("package loading failed")
	}

	return pkgs, fset, nil
}

func selectUnits(pkgs []*gopackages.Package, fset *token.FileSet, sources []string) ([]*Unit, error) {
	wanted := make(map[string]bool, len(sources))
	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, err
		}
		wanted[abs] = true
	}

	var units []*Unit
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			name := fset.Position(file.Package).Filename
			abs, err := filepath.Abs(name)
			if err != nil || !wanted[abs] {
				continue
			}
			src, err := os.ReadFile(name)
			if err != nil {
				return nil, err
			}
			units = append(units, &Unit{
				Filename: name,
				Src:      src,
				File:     file,
				Fset:     fset,
				Info:     pkg.TypesInfo,
			})
			delete(wanted, abs)
		}
	}
	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for path := range wanted {
			missing = append(missing, path)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("sources not part of the loaded package: %s", strings.Join(missing, ", "))
	}
	return units, nil
}

func buildTagFlag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	if joined == "" {
		return nil
	}
	return []string{"-tags=" + joined}
}

func workingDir(sample string) string {
	if sample == "" {
		return ""
	}
	dir := filepath.Dir(sample)
	if dir == "." {
		return ""
	}
	return dir
}

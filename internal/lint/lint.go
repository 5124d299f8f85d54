// Package lint extracts static-analysis findings and complexity metrics from
// the Go sources of an installed application release.
package lint

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultThreshold is the cyclomatic complexity above which a function is reported.
const DefaultThreshold = 10

// Finding is one static-analysis message.
type Finding struct {
	Message      string `json:"message"`
	IsComplexity bool   `json:"is_complexity"`
	Complexity   int    `json:"complexity,omitempty"`
}

// Summary aggregates findings into the counts reported per version.
type Summary struct {
	Messages      int `json:"messages"`
	Functions     int `json:"functions"`
	MaxComplexity int `json:"max_complexity"`
}

// Analyze inspects a Go file or every Go file below a directory. Test files
// and vendored code are skipped.
func Analyze(path string) ([]Finding, error) {
	return AnalyzeWithThreshold(path, DefaultThreshold)
}

// AnalyzeWithThreshold is Analyze with a custom complexity threshold.
func AnalyzeWithThreshold(path string, threshold int) ([]Finding, error) {
	files, err := goFiles(path)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	fset := token.NewFileSet()
	for _, file := range files {
		f, err := parser.ParseFile(fset, file, nil, parser.ParseComments)
		if err != nil {
			findings = append(findings, Finding{Message: fmt.Sprintf("%s: parse error: %v", file, err)})
			continue
		}
		findings = append(findings, analyzeFile(fset, f, threshold)...)
	}
	return findings, nil
}

// Summarize counts messages and complexity metrics.
func Summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		if f.IsComplexity {
			s.Functions++
			if f.Complexity > s.MaxComplexity {
				s.MaxComplexity = f.Complexity
			}
			continue
		}
		s.Messages++
	}
	return s
}

func analyzeFile(fset *token.FileSet, f *ast.File, threshold int) []Finding {
	var findings []Finding
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}

		name := funcName(fn)
		pos := fset.Position(fn.Pos())
		c := Complexity(fn)

		findings = append(findings, Finding{
			Message:      fmt.Sprintf("%s:%d: %s complexity %d", pos.Filename, pos.Line, name, c),
			IsComplexity: true,
			Complexity:   c,
		})
		if c > threshold {
			findings = append(findings, Finding{
				Message: fmt.Sprintf("%s:%d: %s is too complex (%d > %d)", pos.Filename, pos.Line, name, c, threshold),
			})
		}
		if fn.Name.IsExported() && fn.Doc == nil {
			findings = append(findings, Finding{
				Message: fmt.Sprintf("%s:%d: exported %s should have a comment", pos.Filename, pos.Line, name),
			})
		}
	}
	return findings
}

// Complexity returns the cyclomatic complexity of a function.
func Complexity(fn *ast.FuncDecl) int {
	c := 1
	ast.Inspect(fn, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if x.List != nil {
				c++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				c++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				c++
			}
		}
		return true
	})
	return c
}

func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	recv := fn.Recv.List[0].Type
	if star, ok := recv.(*ast.StarExpr); ok {
		recv = star.X
	}
	if idx, ok := recv.(*ast.IndexExpr); ok {
		recv = idx.X
	}
	if id, ok := recv.(*ast.Ident); ok {
		return id.Name + "." + fn.Name.Name
	}
	return fn.Name.Name
}

func goFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && (d.Name() == "vendor" || d.Name() == "testdata" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, ".go") && !strings.HasSuffix(p, "_test.go") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

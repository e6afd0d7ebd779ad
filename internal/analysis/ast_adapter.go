package analysis

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// GoASTAnalyzer extracts functions and struct types from Go source using
// the standard library parser. It is the one CodeAnalyzer in this repo
// that never calls the LLM Dispatcher: Go is the one language the module
// itself is written in, so a real parser is available for free. Every
// other language falls through to LLMCodeAnalyzer.
type GoASTAnalyzer struct{}

func NewGoASTAnalyzer() *GoASTAnalyzer { return &GoASTAnalyzer{} }

func (a *GoASTAnalyzer) Name() string { return "go-ast" }

func (a *GoASTAnalyzer) SupportsLanguage(language string) bool {
	return strings.EqualFold(language, "go") || strings.EqualFold(language, "golang")
}

func (a *GoASTAnalyzer) AnalyzeFile(ctx context.Context, file voe.InputFile, content []byte) (voe.Representation, error) {
	fset := token.NewFileSet()
	tree, err := parser.ParseFile(fset, file.Path, content, parser.ParseComments)
	if err != nil {
		return voe.Representation{}, fmt.Errorf("parse %s: %w", file.Path, err)
	}

	var rep voe.Representation
	for _, decl := range tree.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			rep.Functions = append(rep.Functions, funcFromDecl(d, file.Path))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					continue
				}
				rep.DataStructures = append(rep.DataStructures, structFromSpec(ts.Name.Name, st))
			}
		}
	}
	return rep, nil
}

func funcFromDecl(d *ast.FuncDecl, sourceFile string) voe.BackendFunction {
	name := d.Name.Name
	if d.Recv != nil && len(d.Recv.List) > 0 {
		name = fmt.Sprintf("%s.%s", exprString(d.Recv.List[0].Type), name)
	}

	var params []voe.Parameter
	if d.Type.Params != nil {
		for _, field := range d.Type.Params.List {
			typ := exprString(field.Type)
			if len(field.Names) == 0 {
				params = append(params, voe.Parameter{Type: typ})
				continue
			}
			for _, n := range field.Names {
				params = append(params, voe.Parameter{Name: n.Name, Type: typ})
			}
		}
	}

	var returnType string
	if d.Type.Results != nil && len(d.Type.Results.List) > 0 {
		parts := make([]string, 0, len(d.Type.Results.List))
		for _, field := range d.Type.Results.List {
			parts = append(parts, exprString(field.Type))
		}
		returnType = strings.Join(parts, ", ")
	}

	return voe.BackendFunction{
		ID:             fmt.Sprintf("%s#%s", sourceFile, name),
		Name:           name,
		Parameters:     params,
		ReturnType:     returnType,
		Complexity:     complexityOf(d.Body),
		SourceFile:     sourceFile,
		AnalysisMethod: "ast",
	}
}

func structFromSpec(name string, st *ast.StructType) voe.DataStructure {
	var fields []voe.Field
	for _, f := range st.Fields.List {
		typ := exprString(f.Type)
		required := !strings.HasPrefix(typ, "*") && !strings.HasPrefix(typ, "[]")
		if len(f.Names) == 0 {
			fields = append(fields, voe.Field{Name: exprString(f.Type), Type: typ, Required: required})
			continue
		}
		for _, n := range f.Names {
			fields = append(fields, voe.Field{Name: n.Name, Type: typ, Required: required})
		}
	}
	return voe.DataStructure{
		ID:             name,
		Name:           name,
		Kind:           voe.DataStructureKindStruct,
		Fields:         fields,
		AnalysisMethod: "ast",
	}
}

// complexityOf buckets a function body by its count of branching
// statements (if/for/switch/select/case), a crude stand-in for cyclomatic
// complexity that needs no extra dependency.
func complexityOf(body *ast.BlockStmt) voe.ComplexityBand {
	if body == nil {
		return voe.ComplexityLow
	}
	branches := 0
	ast.Inspect(body, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt, *ast.CaseClause:
			branches++
		}
		return true
	})
	switch {
	case branches <= 2:
		return voe.ComplexityLow
	case branches <= 6:
		return voe.ComplexityMedium
	default:
		return voe.ComplexityHigh
	}
}

func exprString(expr ast.Expr) string {
	var b strings.Builder
	_ = printExpr(&b, expr)
	return b.String()
}

// printExpr renders a small, closed set of type-expression shapes
// (identifiers, pointers, slices, selectors, maps) without pulling in
// go/printer, which needs a token.FileSet we don't have at this call site.
func printExpr(b *strings.Builder, expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.Ident:
		b.WriteString(e.Name)
	case *ast.StarExpr:
		b.WriteByte('*')
		return printExpr(b, e.X)
	case *ast.ArrayType:
		b.WriteString("[]")
		return printExpr(b, e.Elt)
	case *ast.SelectorExpr:
		if err := printExpr(b, e.X); err != nil {
			return err
		}
		b.WriteByte('.')
		b.WriteString(e.Sel.Name)
	case *ast.MapType:
		b.WriteString("map[")
		_ = printExpr(b, e.Key)
		b.WriteByte(']')
		return printExpr(b, e.Value)
	case *ast.InterfaceType:
		b.WriteString("interface{}")
	case *ast.Ellipsis:
		b.WriteString("...")
		return printExpr(b, e.Elt)
	default:
		b.WriteString("any")
	}
	return nil
}


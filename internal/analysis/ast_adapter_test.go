package analysis

import (
	"context"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

const sampleGoSource = `package sample

type User struct {
	ID   string
	Name string
	Age  int
}

func Greet(name string) string {
	if name == "" {
		return "hello"
	}
	return "hello " + name
}
`

func TestGoASTAnalyzerExtractsFunctionsAndStructs(t *testing.T) {
	a := NewGoASTAnalyzer()
	rep, err := a.AnalyzeFile(context.Background(), voe.InputFile{Path: "sample.go", Language: "go"}, []byte(sampleGoSource))
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if len(rep.Functions) != 1 || rep.Functions[0].Name != "Greet" {
		t.Fatalf("expected one function named Greet, got %+v", rep.Functions)
	}
	if rep.Functions[0].AnalysisMethod != "ast" {
		t.Fatalf("expected analysis_method ast, got %q", rep.Functions[0].AnalysisMethod)
	}
	if len(rep.DataStructures) != 1 || rep.DataStructures[0].Name != "User" {
		t.Fatalf("expected one struct named User, got %+v", rep.DataStructures)
	}
	if len(rep.DataStructures[0].Fields) != 3 {
		t.Fatalf("expected 3 fields on User, got %d", len(rep.DataStructures[0].Fields))
	}
}

func TestGoASTAnalyzerSupportsLanguage(t *testing.T) {
	a := NewGoASTAnalyzer()
	if !a.SupportsLanguage("go") || !a.SupportsLanguage("Go") {
		t.Fatalf("expected go/Go to be supported")
	}
	if a.SupportsLanguage("python") {
		t.Fatalf("expected python to be unsupported")
	}
}

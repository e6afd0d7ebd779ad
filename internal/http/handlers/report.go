package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// No third-party templating or markdown library appears anywhere in the
// example pack; html/template is the idiomatic stdlib choice for escaping
// discrepancy text into a report a browser renders directly.
var htmlReportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Migration Validation Report {{.RequestID}}</title></head>
<body>
<h1>Validation Report</h1>
<p><strong>Request:</strong> {{.RequestID}}</p>
<p><strong>Overall status:</strong> {{.OverallStatus}}</p>
<p><strong>Fidelity score:</strong> {{printf "%.3f" .FidelityScore}}</p>
<p>{{.Summary}}</p>
<h2>Discrepancies ({{len .Discrepancies}})</h2>
<table border="1" cellpadding="4">
<tr><th>Severity</th><th>Kind</th><th>Component</th><th>Description</th><th>Confidence</th></tr>
{{range .Discrepancies}}<tr><td>{{.Severity}}</td><td>{{.Kind}}</td><td>{{.Component}}</td><td>{{.Description}}</td><td>{{printf "%.2f" .Confidence}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type reportView struct {
	RequestID     string
	OverallStatus string
	FidelityScore float64
	Summary       string
	Discrepancies []voe.ValidationDiscrepancy
}

func renderReportHTML(session *voe.ValidationSession, unified *voe.ValidationResult, discrepancies []voe.ValidationDiscrepancy) []byte {
	var buf bytes.Buffer
	view := reportView{
		RequestID:     session.RequestID,
		OverallStatus: unified.OverallStatus,
		FidelityScore: unified.FidelityScore,
		Summary:       unified.Summary,
		Discrepancies: discrepancies,
	}
	if err := htmlReportTemplate.Execute(&buf, view); err != nil {
		return []byte(fmt.Sprintf("report render failed: %v", err))
	}
	return buf.Bytes()
}

func renderReportMarkdown(session *voe.ValidationSession, unified *voe.ValidationResult, discrepancies []voe.ValidationDiscrepancy) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Validation Report %s\n\n", session.RequestID)
	fmt.Fprintf(&b, "- **Overall status:** %s\n", unified.OverallStatus)
	fmt.Fprintf(&b, "- **Fidelity score:** %.3f\n\n", unified.FidelityScore)
	if unified.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", unified.Summary)
	}
	fmt.Fprintf(&b, "## Discrepancies (%d)\n\n", len(discrepancies))
	if len(discrepancies) == 0 {
		b.WriteString("None found.\n")
		return []byte(b.String())
	}
	b.WriteString("| Severity | Kind | Component | Description | Confidence |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, d := range discrepancies {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %.2f |\n", d.Severity, d.Kind, d.Component, d.Description, d.Confidence)
	}
	return []byte(b.String())
}

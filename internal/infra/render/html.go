package render

import (
	"bytes"
	"html/template"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Compliance report {{.Report.Hostname}}</title>
<style>
body{font-family:sans-serif;margin:2rem;color:#1f2933}
table{border-collapse:collapse;width:100%}
th,td{border:1px solid #d3d8de;padding:.4rem;text-align:left;vertical-align:top}
.passed{color:#1e7d32}.failed{color:#b3261e}
pre{white-space:pre-wrap;margin:0}
</style>
</head>
<body>
<h1>{{.Report.Hostname}}: {{printf "%.2f" .Report.Score}}%</h1>
<p>Benchmark <strong>{{.Report.BenchmarkID}}</strong>, status <strong>{{.Report.Status}}</strong>, severity {{.Report.Severity}}.</p>
<p>{{.Report.Summary}}</p>
{{with .Scan.AISummary.Advice}}<h2>Advice</h2><p>{{.}}</p>{{end}}
<h2>Remediations</h2>
<ul>{{range .Report.Remediations}}<li>{{.}}</li>{{end}}</ul>
<h2>Results</h2>
<table>
<tr><th>Rule</th><th>Severity</th><th>Status</th><th>Output</th></tr>
{{range .Results}}<tr>
<td>{{.RuleID}}<br>{{.RuleTitle}}</td>
<td>{{.Severity}}</td>
<td class="{{.StatusLabel}}">{{.StatusLabel}}</td>
<td><pre>{{.Stdout}}{{.Stderr}}</pre></td>
</tr>{{end}}
</table>
</body>
</html>
`))

// HTML renders a standalone report page.
type HTML struct{}

func (HTML) Format() string      { return "html" }
func (HTML) ContentType() string { return "text/html; charset=utf-8" }

func (HTML) Render(doc scans.ReportDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

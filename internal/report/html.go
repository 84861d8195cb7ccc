package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/FranksOps/seoforge/internal/audit"
)

const auditHTML = `<!DOCTYPE html>
<html>
<head>
<title>Performance Audit: {{.URL}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Performance Audit</h1>
  <p><strong>URL:</strong> {{.URL}} &middot; <strong>Time:</strong> {{.Timestamp.Format "2006-01-02 15:04:05"}}</p>

  <div class="stat-card">
    <div>Overall</div>
    <div class="stat-val" style="color: {{if lt .OverallScore 50}}red{{else if lt .OverallScore 90}}orange{{else}}green{{end}};">{{.OverallScore}}</div>
  </div>
  <div class="stat-card">
    <div>Mobile</div>
    <div class="stat-val">{{.Mobile.PerformanceScore}}</div>
  </div>
  <div class="stat-card">
    <div>Desktop</div>
    <div class="stat-val">{{.Desktop.PerformanceScore}}</div>
  </div>

  <h3>Core Web Vitals</h3>
  <table>
    <tr><th>Device</th><th>FCP (s)</th><th>LCP (s)</th><th>CLS</th><th>FID (ms)</th><th>TTFB (ms)</th></tr>
    <tr><td>Mobile</td><td>{{.Mobile.FCP}}</td><td>{{.Mobile.LCP}}</td><td>{{.Mobile.CLS}}</td><td>{{.Mobile.FID}}</td><td>{{.Mobile.TTFB}}</td></tr>
    <tr><td>Desktop</td><td>{{.Desktop.FCP}}</td><td>{{.Desktop.LCP}}</td><td>{{.Desktop.CLS}}</td><td>{{.Desktop.FID}}</td><td>{{.Desktop.TTFB}}</td></tr>
  </table>

  <h3>Recommendations</h3>
  <ul>
    {{- range .Recommendations}}
    <li>{{.}}</li>
    {{- else}}
    <li>None</li>
    {{- end}}
  </ul>

  <h3>Mobile Opportunities</h3>
  <table>
    <tr><th>Audit</th><th>Savings (ms)</th></tr>
    {{- range .Mobile.Opportunities}}
    <tr><td>{{.Title}}</td><td>{{printf "%.0f" .SavingsMS}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

var auditHTMLTemplate = template.Must(template.New("auditHTML").Parse(auditHTML))

// WriteAuditHTML writes a standalone HTML page for an audit result.
func WriteAuditHTML(w io.Writer, r *audit.Result) error {
	if err := auditHTMLTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render audit html: %w", err)
	}
	return nil
}

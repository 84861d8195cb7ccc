// Package report renders keyword, content-gap, audit and job results as
// JSON, text, CSV or HTML.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/seoforge/internal/audit"
	"github.com/FranksOps/seoforge/internal/competitor"
	"github.com/FranksOps/seoforge/internal/pipeline"
	"github.com/FranksOps/seoforge/internal/storage"
)

// Format selects an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText, FormatCSV, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, text, csv or html)", s)
}

// JobSummary aggregates a list of job records.
type JobSummary struct {
	Total     int
	ByState   map[storage.State]int
	ByKind    map[string]int
	Failures  int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// SummarizeJobs processes job records to generate summary metrics.
func SummarizeJobs(jobs []*storage.Job) JobSummary {
	s := JobSummary{
		ByState: make(map[storage.State]int),
		ByKind:  make(map[string]int),
	}
	if len(jobs) == 0 {
		return s
	}

	s.StartTime = jobs[0].CreatedAt
	s.EndTime = jobs[0].UpdatedAt

	for _, j := range jobs {
		s.Total++
		s.ByState[j.State]++
		s.ByKind[j.Kind]++
		if j.State == storage.StateFailure {
			s.Failures++
		}
		if j.CreatedAt.Before(s.StartTime) {
			s.StartTime = j.CreatedAt
		}
		if j.UpdatedAt.After(s.EndTime) {
			s.EndTime = j.UpdatedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"ts":   func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}

const keywordsTmpl = `Keyword Report: {{.Metadata.Query}}
----------------------------------------
Language: {{.Metadata.Language}}  Country: {{.Metadata.Country}}  Generated: {{ts .Metadata.Timestamp}}
Results:  {{.Metadata.TotalResults}}
{{- if .Fallbacks}}
Fallbacks: {{join .Fallbacks ", "}}
{{- end}}

{{printf "%-45s %9s %5s %7s %7s  %s" "KEYWORD" "VOLUME" "KD" "CPC" "DENSITY" "INTENT"}}
{{- range .Keywords}}
{{printf "%-45s %9d %5d %7.2f %7.2f  %s" .Keyword .SearchVolume .KeywordDifficulty .CPCUSD .CompetitiveDensity .Intent}}
{{- else}}
  None
{{- end}}

Ranking:
{{- range $i, $r := .Ranking}}
  {{printf "%2d. %-45s %10.2f" (inc $i) $r.Keyword $r.Score}}
{{- end}}
`

const gapTmpl = `Content Gap Report
------------------
Gaps:
{{- range .ContentGaps}}
  - {{.}}
{{- else}}
  None
{{- end}}

Recommendations:
{{- range .Recommendations}}
  - {{.}}
{{- else}}
  None
{{- end}}
{{- if .MissingOnUserPage}}

Competitor keywords missing from your page:
{{- range .MissingOnUserPage}}
  - {{.}}
{{- end}}
{{- end}}
{{- if .Evidence}}

Evidence:
{{- range .Evidence}}
  {{.Term}} @ {{.URL}} ({{.Count}}x)
{{- end}}
{{- end}}
`

const auditTmpl = `Performance Audit: {{.URL}}
------------------
Time:          {{ts .Timestamp}}
Overall Score: {{.OverallScore}}

{{printf "%-8s %5s %6s %6s %6s %8s %8s" "DEVICE" "SCORE" "FCP" "LCP" "CLS" "FID" "TTFB"}}
{{template "device" (device "mobile" .Mobile)}}
{{template "device" (device "desktop" .Desktop)}}

Recommendations:
{{- range .Recommendations}}
  - {{.}}
{{- else}}
  None
{{- end}}
`

const deviceTmpl = `{{with .S}}{{printf "%-8s %5d %6.2f %6.2f %6.3f %8.1f %8.1f" $.Name .PerformanceScore .FCP .LCP .CLS .FID .TTFB}}{{end}}`

const jobsTmpl = `Job Summary
-----------
{{- if .Summary.Total}}
Window:   {{ts .Summary.StartTime}} - {{ts .Summary.EndTime}} ({{.Summary.Duration}})
{{- end}}
Total:    {{.Summary.Total}}
Failures: {{.Summary.Failures}}

By state:
{{- range $state, $count := .Summary.ByState}}
  {{$state}}: {{$count}}
{{- else}}
  None
{{- end}}

By kind:
{{- range $kind, $count := .Summary.ByKind}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}

{{printf "%-36s %-20s %-9s %s" "ID" "KIND" "STATE" "PROGRESS"}}
{{- range .Jobs}}
{{printf "%-36s %-20s %-9s %d/%d %s" .ID .Kind .State .Progress.Current .Progress.Total .Progress.Status}}
{{- end}}
`

const listTmpl = `{{range .}}{{.}}
{{else}}None
{{end}}`

const groupsTmpl = `{{range $key, $items := .}}{{$key}}
{{- range $items}}
  - {{.}}
{{- else}}
  None
{{- end}}
{{end}}`

type deviceRow struct {
	Name string
	S    audit.Summary
}

var textTemplates = template.Must(template.New("report").Funcs(funcs).Funcs(template.FuncMap{
	"inc":    func(i int) int { return i + 1 },
	"device": func(name string, s audit.Summary) deviceRow { return deviceRow{Name: name, S: s} },
}).Parse(`{{define "keywords"}}` + keywordsTmpl + `{{end}}` +
	`{{define "gap"}}` + gapTmpl + `{{end}}` +
	`{{define "audit"}}` + auditTmpl + `{{end}}` +
	`{{define "device"}}` + deviceTmpl + `{{end}}` +
	`{{define "jobs"}}` + jobsTmpl + `{{end}}`))

// WriteText writes a human-readable rendering of v. Supported values are
// keyword responses, gap results, audit results, job lists, string lists
// and string lists grouped by key.
func WriteText(w io.Writer, v any) error {
	name, data, err := textView(v)
	if err != nil {
		return err
	}
	if err := textTemplates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s report: %w", name, err)
	}
	return nil
}

func textView(v any) (string, any, error) {
	switch x := v.(type) {
	case *pipeline.Response:
		return "keywords", x, nil
	case *competitor.GapResult:
		return "gap", x, nil
	case *audit.Result:
		return "audit", x, nil
	case []*storage.Job:
		return "jobs", struct {
			Summary JobSummary
			Jobs    []*storage.Job
		}{SummarizeJobs(x), x}, nil
	case []string:
		return "list", x, nil
	case map[string][]string:
		return "groups", x, nil
	}
	return "", nil, fmt.Errorf("no text rendering for %T", v)
}

// WriteCSV writes keyword rows with a header. Features are joined with "|".
func WriteCSV(w io.Writer, keywords []pipeline.Keyword) error {
	cw := csv.NewWriter(w)
	header := []string{"keyword", "search_volume", "keyword_difficulty", "cpc_usd", "competitive_density", "intent", "features", "source"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, k := range keywords {
		row := []string{
			k.Keyword,
			strconv.Itoa(k.SearchVolume),
			strconv.Itoa(k.KeywordDifficulty),
			strconv.FormatFloat(k.CPCUSD, 'f', 2, 64),
			strconv.FormatFloat(k.CompetitiveDensity, 'f', 2, 64),
			string(k.Intent),
			strings.Join(k.Features, "|"),
			k.Source,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Write renders v in format. CSV accepts keyword responses and plain
// keyword lists.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case FormatText:
		return WriteText(w, v)
	case FormatCSV:
		switch x := v.(type) {
		case *pipeline.Response:
			return WriteCSV(w, x.Keywords)
		case []pipeline.Keyword:
			return WriteCSV(w, x)
		}
		return fmt.Errorf("no csv rendering for %T", v)
	case FormatHTML:
		if r, ok := v.(*audit.Result); ok {
			return WriteAuditHTML(w, r)
		}
		return fmt.Errorf("no html rendering for %T", v)
	default:
		return WriteJSON(w, v)
	}
}

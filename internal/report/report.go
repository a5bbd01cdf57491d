package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"net/url"
	"text/template"
	"time"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
)

// Format selects a summary writer.
type Format string

const (
	FormatNone Format = "none"
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates s. An empty string selects FormatNone.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatNone, nil
	case FormatNone, FormatText, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Summary contains aggregated figures about one search run.
type Summary struct {
	RunID       string
	Query       string
	Found       bool
	Stop        serp.StopReason
	Pages       int
	Results     int
	Skipped     int
	WithCaption int
	// Hosts counts results per url host.
	Hosts     map[string]int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// GenerateSummary computes the summary of run.
func GenerateSummary(run *storage.Run) Summary {
	s := Summary{Hosts: make(map[string]int)}
	if run == nil {
		return s
	}

	s.RunID = run.ID
	s.Query = run.Query
	s.Found = run.Found
	s.Stop = run.Stop
	s.Pages = run.Pages
	s.Skipped = run.Skipped
	s.StartTime = run.StartedAt
	s.EndTime = run.FinishedAt
	if !s.StartTime.IsZero() && !s.EndTime.IsZero() {
		s.Duration = s.EndTime.Sub(s.StartTime)
	}

	for _, r := range run.Results {
		s.Results++
		if r.HasCaption() {
			s.WithCaption++
		}
		if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
			s.Hosts[u.Host]++
		}
	}
	return s
}

// Write renders summary in format. FormatNone writes nothing.
func Write(w io.Writer, format Format, summary Summary) error {
	switch format {
	case FormatNone, "":
		return nil
	case FormatText:
		return WriteText(w, summary)
	case FormatJSON:
		return WriteJSON(w, summary)
	case FormatHTML:
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Search Run Summary
------------------
Run:           {{.RunID}}
Query:         {{.Query}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Found:         {{.Found}}
Stopped:       {{.Stop}}
Pages:         {{.Pages}}
Results:       {{.Results}} ({{.WithCaption}} with caption)
Skipped:       {{.Skipped}}

Hosts:
{{- range $host, $count := .Hosts}}
  {{$host}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. The query is
// user input and is escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Search Run Report</title>
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
  <h1>Search Run Report</h1>
  <p><strong>Query:</strong> <code>{{.Query}}</code> (run {{.RunID}})</p>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Pages</div>
    <div class="stat-val">{{.Pages}}</div>
  </div>
  <div class="stat-card">
    <div>Results</div>
    <div class="stat-val" style="color: {{if .Found}}green{{else}}red{{end}};">{{.Results}}</div>
  </div>
  <div class="stat-card">
    <div>Skipped</div>
    <div class="stat-val">{{.Skipped}}</div>
  </div>
  <div class="stat-card">
    <div>Stopped</div>
    <div class="stat-val">{{.Stop}}</div>
  </div>

  <h3>Results By Host</h3>
  <table>
    <tr><th>Host</th><th>Count</th></tr>
    {{- range $host, $count := .Hosts}}
    <tr><td>{{$host}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}

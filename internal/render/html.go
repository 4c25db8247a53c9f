package render

import (
	"encoding/base64"
	"html/template"
	"io"
	"time"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

var page = template.Must(template.New("query").Funcs(template.FuncMap{
	"png": func(b []byte) template.URL {
		return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(b))
	},
	"ts": func(ms int64) string {
		if ms == 0 {
			return "N/A"
		}
		return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.FilePath}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
.section { margin-bottom: 1.5em; }
.metadata { display: grid; grid-template-columns: max-content auto; gap: .3em 1em; }
.label { font-weight: bold; }
.prompt-part { white-space: pre-wrap; background: #f6f6f6; padding: .8em; margin: .5em 0; font-family: monospace; }
.attachment img { max-width: 100%; border: 1px solid #ccc; }
.error { color: #a00; }
</style>
</head>
<body>
<div class="section">
<h2>Basic Information</h2>
<div class="metadata">
<div class="label">File Type:</div><div class="value">{{.FileType}}</div>
<div class="label">File Path:</div><div class="value">{{.FilePath}}</div>
<div class="label">Strategy:</div><div class="value">{{.Strategy}}</div>
<div class="label">System Prompt:</div><div class="value">{{.System}}</div>
</div>
</div>
<hr>
{{- if .PromptParts}}
<div class="section">
<h2>Extracted Content</h2>
{{- range .PromptParts}}
<div class="prompt-part">{{.}}</div>
{{- end}}
</div>
<hr>
{{- end}}
{{- if .Attachments}}
<div class="section">
<h2>Attachments</h2>
{{- range .Attachments}}
<div class="attachment">
<h3>Page {{.Page}}</h3>
<img src="{{png .Data}}" alt="Page {{.Page}}">
</div>
{{- end}}
</div>
<hr>
{{- end}}
{{- with .Metadata}}
<div class="section">
<h2>Processing Metadata</h2>
<div class="metadata">
<div class="label">Started At:</div><div class="value">{{ts .StartedAt}}</div>
<div class="label">Completed At:</div><div class="value">{{ts .CompletedAt}}</div>
<div class="label">Duration:</div><div class="value">{{.TotalDurationMs}} ms</div>
<div class="label">File Size:</div><div class="value">{{.OriginalFileSize}} bytes</div>
{{- if .Errors}}
<div class="label">Errors:</div><div class="value">
{{- range .Errors}}
<div class="error">{{.}}</div>
{{- end}}
</div>
{{- end}}
{{- if .Steps}}
<div class="label">Processing Steps:</div><div class="value">
<table>
<tr><th>Step</th><th>Status</th><th>Duration</th><th>Memory</th></tr>
{{- range .Steps}}
<tr><td>{{.Name}}</td><td>{{.Status}}</td><td>{{.DurationMs}} ms</td><td>{{.MemoryMb}} MB</td></tr>
{{- end}}
</table>
</div>
{{- end}}
</div>
</div>
{{- end}}
</body>
</html>
`))

func writeHTML(w io.Writer, q *entity.Query) error {
	return page.Execute(w, q)
}

package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/FranksOps/jobdigest/internal/record"
)

const (
	DefaultHTMLLimit    = 50
	DefaultSnippetLimit = 300
)

type htmlRow struct {
	record.JobRecord
	Display string
	Excerpt string
}

type htmlView struct {
	Date       string
	Roles      string
	Locations  string
	MaxResults int
	Total      int
	Official   int
	Experience int
	Rows       []htmlRow
	Truncated  bool
}

var htmlTmpl = template.Must(template.New("digest").Parse(`<div style="font-family: Arial, sans-serif; color: #222;">
  <h2 style="margin-bottom: 4px;">Daily Job Search Results - {{.Date}}</h2>
  <p style="color: #555; margin-top: 0;">Roles: {{.Roles}}. Locations: {{.Locations}}. Up to {{.MaxResults}} results per query.</p>
{{- if not .Rows}}
  <p>No matching jobs were found today.</p>
{{- else}}
  <p>{{.Total}} unique listings, {{.Official}} on official career sites, {{.Experience}} mentioning entry-level experience.</p>
  {{- if .Truncated}}
  <p class="truncated" style="color: #a15c00;">Showing {{len .Rows}} of {{.Total}} listings. The attached CSV has all of them.</p>
  {{- end}}
  <table style="border-collapse: collapse; width: 100%;">
    <tr>
      <th style="text-align: left; border-bottom: 2px solid #ccc; padding: 6px;">Job</th>
      <th style="text-align: left; border-bottom: 2px solid #ccc; padding: 6px;">Role</th>
      <th style="text-align: left; border-bottom: 2px solid #ccc; padding: 6px;">Location</th>
      <th style="text-align: left; border-bottom: 2px solid #ccc; padding: 6px;">Source</th>
      <th style="text-align: left; border-bottom: 2px solid #ccc; padding: 6px;">Type</th>
    </tr>
    {{- range .Rows}}
    <tr class="job">
      <td style="border-bottom: 1px solid #eee; padding: 6px;">
        <a href="{{.Link}}">{{.Display}}</a>
        {{- if .ExperienceMatch}} <span class="entry" style="color: #1a7f37; font-size: 12px;">entry level</span>{{end}}
        {{- if .Excerpt}}<div class="snippet" style="color: #666; font-size: 12px;">{{.Excerpt}}</div>{{end}}
      </td>
      <td style="border-bottom: 1px solid #eee; padding: 6px;">{{.Role}}</td>
      <td style="border-bottom: 1px solid #eee; padding: 6px;">{{.Location}}</td>
      <td style="border-bottom: 1px solid #eee; padding: 6px;">{{.Source}}</td>
      <td style="border-bottom: 1px solid #eee; padding: 6px;">
        {{- if .OfficialSite}}<span class="badge official" style="background: #1a7f37; color: #fff; padding: 2px 6px; border-radius: 3px;">Official site</span>
        {{- else}}<span class="badge" style="background: #ddd; padding: 2px 6px; border-radius: 3px;">Job link</span>{{end -}}
      </td>
    </tr>
    {{- end}}
  </table>
{{- end}}
</div>
`))

// WriteHTML renders the email body fragment. At most opts.HTMLLimit records
// are listed; the rest are only counted.
func WriteHTML(w io.Writer, records []record.JobRecord, opts Options) error {
	opts = opts.withDefaults()
	official, experience := record.Counts(records)

	view := htmlView{
		Date:       opts.Now.Format("2006-01-02"),
		Roles:      strings.Join(opts.Roles, ", "),
		Locations:  strings.Join(opts.Locations, ", "),
		MaxResults: opts.MaxResults,
		Total:      len(records),
		Official:   official,
		Experience: experience,
	}

	shown := records
	if len(shown) > opts.HTMLLimit {
		shown = shown[:opts.HTMLLimit]
		view.Truncated = true
	}
	for _, r := range shown {
		display := r.Title
		if display == "" {
			display = r.Link
		}
		view.Rows = append(view.Rows, htmlRow{
			JobRecord: r,
			Display:   display,
			Excerpt:   truncate(r.Snippet, opts.SnippetLimit),
		})
	}

	if err := htmlTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}

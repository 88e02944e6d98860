package export

import (
	"bytes"
	"html/template"
	"time"

	"thoughtful/api/internal/store"
)

var notebookTemplate = template.Must(template.New("notebook").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(notebookHTML))

// TemplateData holds data for notebook template rendering
type TemplateData struct {
	Username   string
	ExportedAt time.Time
	Ideas      []TemplateIdea
}

// TemplateIdea holds idea data for template
type TemplateIdea struct {
	Title       string
	Description string
	Icon        string
	Status      string
	Tags        []string
	Todos       []store.TodoList
	Resources   []store.Resource
	UpdatedAt   time.Time
}

// RenderNotebookHTML renders every idea of snapshot as a printable page.
func RenderNotebookHTML(snapshot Snapshot) (string, error) {
	data := TemplateData{
		Username:   snapshot.User.Username,
		ExportedAt: snapshot.ExportedAt,
		Ideas:      make([]TemplateIdea, 0, len(snapshot.Ideas)),
	}
	for _, idea := range snapshot.Ideas {
		status := ""
		if idea.StatusID != nil {
			status = store.StatusName(*idea.StatusID, snapshot.User.StatusDefinitions)
		}
		data.Ideas = append(data.Ideas, TemplateIdea{
			Title:       idea.Title,
			Description: idea.Description,
			Icon:        idea.Icon,
			Status:      status,
			Tags:        idea.Tags,
			Todos:       idea.Todos,
			Resources:   idea.Resources,
			UpdatedAt:   idea.UpdatedAt,
		})
	}

	var buf bytes.Buffer
	if err := notebookTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const notebookHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Thoughtful - {{.Username}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .idea { page-break-inside: avoid; margin: 2rem 0; }
    .tag { background: #eee; border-radius: 4px; padding: 0 0.4rem; margin-right: 0.3rem; font-size: 0.85em; }
    .status { color: #3b82f6; font-size: 0.9em; }
    .done { text-decoration: line-through; color: #888; }
  </style>
</head>
<body>
  <h1>{{.Username}}'s ideas</h1>
  <div class="meta">Exported {{formatDate .ExportedAt "Jan 2, 2006 15:04 MST"}} | {{len .Ideas}} idea(s)</div>
  {{range .Ideas}}
  <div class="idea">
    <h2>{{.Title}}</h2>
    <div class="meta">{{.Icon}}{{if .Status}} | <span class="status">{{.Status}}</span>{{end}} | updated {{formatDate .UpdatedAt "Jan 2, 2006"}}</div>
    {{if .Tags}}<p>{{range .Tags}}<span class="tag">{{.}}</span>{{end}}</p>{{end}}
    <p>{{.Description}}</p>
    {{range .Todos}}
    <h3>{{.Title}}</h3>
    <ul>{{range .Items}}<li{{if .Completed}} class="done"{{end}}>{{.Text}}</li>{{end}}</ul>
    {{end}}
    {{if .Resources}}
    <h3>Resources</h3>
    <ul>{{range .Resources}}<li><a href="{{.Link}}">{{.Name}}</a></li>{{end}}</ul>
    {{end}}
  </div>
  {{end}}
</body>
</html>`

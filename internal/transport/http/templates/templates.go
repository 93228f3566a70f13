package templates

import (
	"embed"
	"html/template"
	"time"
)

//go:embed *.html
var files embed.FS

// Load parses every page template. Names are the file names.
func Load() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"datetime": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}).ParseFS(files, "*.html"))
}

package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// Output mime types in the order they are preferred.
var mimeOrder = []string{
	"text/html",
	"image/png",
	"image/jpeg",
	"image/svg+xml",
	"text/markdown",
	"text/plain",
}

// Renderer turns notebooks and markdown files into standalone HTML pages.
// Input and output prompts are never rendered.
type Renderer struct {
	md        goldmark.Markdown
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
		style:     styles.Get("friendly"),
		formatter: chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4)),
	}
}

type pageData struct {
	Title string
	Cells []cellView
}

type cellView struct {
	Kind    string
	Input   template.HTML
	Outputs []template.HTML
}

// Markdown renders GitHub flavoured markdown. Raw HTML is kept.
func (r *Renderer) Markdown(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("render markdown failed: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Highlight renders code with inline styles.
func (r *Renderer) Highlight(code, language string) (template.HTML, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", fmt.Errorf("tokenise %s code failed: %w", language, err)
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, it); err != nil {
		return "", fmt.Errorf("highlight code failed: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Notebook renders an nbformat v4 document as a full HTML page.
func (r *Renderer) Notebook(data []byte, title string) ([]byte, error) {
	nb, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if nb.Metadata.Title != "" {
		title = nb.Metadata.Title
	}

	lang := nb.Language()
	page := pageData{Title: title}
	for i, cell := range nb.Cells {
		view, err := r.cell(cell, lang)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		if view != nil {
			page.Cells = append(page.Cells, *view)
		}
	}
	return executePage(page)
}

// MarkdownPage renders a markdown document as a full HTML page.
func (r *Renderer) MarkdownPage(src []byte, title string) ([]byte, error) {
	body, err := r.Markdown(src)
	if err != nil {
		return nil, err
	}
	return executePage(pageData{
		Title: title,
		Cells: []cellView{{Kind: "markdown", Input: body}},
	})
}

func (r *Renderer) cell(cell Cell, lang string) (*cellView, error) {
	src := cell.Source.String()
	switch cell.CellType {
	case "markdown":
		body, err := r.Markdown([]byte(src))
		if err != nil {
			return nil, err
		}
		return &cellView{Kind: "markdown", Input: body}, nil
	case "code":
		view := &cellView{Kind: "code"}
		if strings.TrimSpace(src) != "" {
			input, err := r.Highlight(src, lang)
			if err != nil {
				return nil, err
			}
			view.Input = input
		}
		for _, out := range cell.Outputs {
			rendered, err := r.output(out)
			if err != nil {
				return nil, err
			}
			if rendered != "" {
				view.Outputs = append(view.Outputs, rendered)
			}
		}
		return view, nil
	case "raw":
		return &cellView{Kind: "raw", Input: preformatted("raw", src)}, nil
	}
	return nil, nil
}

func (r *Renderer) output(out Output) (template.HTML, error) {
	switch out.OutputType {
	case "stream":
		class := "stream"
		if out.Name == "stderr" {
			class = "stream stderr"
		}
		return preformatted(class, out.Text.String()), nil
	case "execute_result", "display_data":
		return r.richOutput(out.Data)
	case "error":
		trace := strings.Join(out.Traceback, "\n")
		if trace == "" {
			trace = out.EName + ": " + out.EValue
		}
		return preformatted("error", ansiEscape.ReplaceAllString(trace, "")), nil
	}
	return "", nil
}

func (r *Renderer) richOutput(data map[string]json.RawMessage) (template.HTML, error) {
	for _, mime := range mimeOrder {
		raw, ok := data[mime]
		if !ok {
			continue
		}
		value, err := decodeMultiline(raw)
		if err != nil {
			return "", fmt.Errorf("decode %s output failed: %w", mime, err)
		}
		switch mime {
		case "text/html", "image/svg+xml":
			return template.HTML(value), nil
		case "image/png", "image/jpeg":
			encoded := strings.Join(strings.Fields(value), "")
			return template.HTML(fmt.Sprintf(`<img src="data:%s;base64,%s" alt="output">`, mime, html.EscapeString(encoded))), nil
		case "text/markdown":
			return r.Markdown([]byte(value))
		default:
			return preformatted("text", value), nil
		}
	}
	return "", nil
}

func preformatted(class, text string) template.HTML {
	return template.HTML(fmt.Sprintf(`<pre class="%s">%s</pre>`, class, html.EscapeString(text)))
}

func executePage(page pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("execute page template failed: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrorPage is shown in place of a document that could not be converted.
func ErrorPage(err error) []byte {
	return []byte("<html><body><h2>轉換錯誤</h2><p>" + html.EscapeString(err.Error()) + "</p></body></html>")
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="zh-TW">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { font-family: "Noto Sans TC", Arial, sans-serif; margin: 0; background: #fff; color: #222; }
  main { max-width: 960px; margin: 0 auto; padding: 24px; line-height: 1.6; }
  .cell { margin: 0 0 16px 0; }
  .cell.code > pre, .output pre { margin: 0; padding: 8px 12px; border-radius: 4px; overflow-x: auto; }
  .cell.code > pre { background: #f7f7f7; border: 1px solid #e0e0e0; }
  .output { margin-top: 4px; }
  .output pre { background: #fff; }
  .output pre.stderr { background: #fff5f5; }
  .output pre.error { background: #fdecea; color: #8a1f11; }
  .output img { max-width: 100%; }
  table { border-collapse: collapse; }
  th, td { border: 1px solid #ccc; padding: 4px 8px; }
</style>
<script>
  window.MathJax = { tex: { inlineMath: [['$', '$'], ['\\(', '\\)']] } };
</script>
<script async src="https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-mml-chtml.js"></script>
</head>
<body>
<main>
{{range .Cells}}<div class="cell {{.Kind}}">
{{.Input}}
{{range .Outputs}}<div class="output">{{.}}</div>
{{end}}</div>
{{end}}</main>
</body>
</html>
`))

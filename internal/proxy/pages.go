package proxy

import (
	"html/template"
	"net/http"

	"jupyter-proxy-apps/internal/transport/http/response"
)

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8" /><title>{{.Status}} {{.Title}}</title>
<style>body{font-family:Arial,sans-serif;margin:40px auto;max-width:700px;line-height:1.6;}
.error-box{border:1px solid #ddd;background-color:#f9f9f9;padding:20px;border-radius:5px;}
h1{color:#d32f2f;} code{background-color:#eee;padding:2px 5px;border-radius:3px;}</style></head>
<body><div class="error-box">
<h1>{{.Status}} - {{.Title}}</h1>
<p>{{.Message}} <code>{{.Upstream}}</code></p>
{{if .Detail}}<p><code>{{.Detail}}</code></p>{{end}}
</div></body></html>
`))

type errorPageData struct {
	Status   int
	Title    string
	Message  string
	Upstream string
	Detail   string
}

func (p *Proxy) writeError(w http.ResponseWriter, status int, err error) {
	data := errorPageData{
		Status:   status,
		Title:    http.StatusText(status),
		Upstream: p.baseURL,
	}
	switch status {
	case http.StatusBadGateway:
		data.Message = "無法連接到目標伺服器，請確認您的本地端網站服務已經在運作中。"
	case http.StatusGatewayTimeout:
		data.Message = "目標伺服器回應逾時。"
	default:
		data.Message = "代理時發生錯誤。"
		if err != nil {
			data.Detail = err.Error()
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorPage.Execute(w, data); err != nil && !response.IsClientGone(err) {
		p.log.WithError(err).Warn("render error page failed")
	}
}

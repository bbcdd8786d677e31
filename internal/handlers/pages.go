package handlers

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | PayForm</title>
<style>
body{font-family:system-ui,sans-serif;background:#f5f7fb;margin:0;padding:2rem;color:#1f2937}
.card{max-width:480px;margin:0 auto;background:#fff;border-radius:12px;padding:2rem;box-shadow:0 2px 12px rgba(0,0,0,.08)}
h1{font-size:1.4rem;margin-top:0}
.ok h1{color:#15803d}.wait h1{color:#b45309}.fail h1{color:#b91c1c}
table{width:100%;border-collapse:collapse;margin-top:1rem}
td{padding:.4rem 0;border-bottom:1px solid #eee}td.v{text-align:right;font-weight:600}
</style>
</head>
<body>
<div class="card {{.Tone}}">
<h1>{{.Heading}}</h1>
<p>{{.Message}}</p>
{{if .Rows}}<table>
{{range .Rows}}<tr><td>{{.Label}}</td><td class="v">{{.Value}}</td></tr>
{{end}}</table>{{end}}
</div>
</body>
</html>
`))

type pageRow struct {
	Label string
	Value string
}

type page struct {
	Title   string
	Heading string
	Message string
	Tone    string
	Rows    []pageRow
}

func renderPage(c *fiber.Ctx, status int, p page) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

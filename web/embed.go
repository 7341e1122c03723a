package web

import "embed"

// TemplatesFS embeds the HTML templates used to render emailed reports.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

package common

import (
	"bytes"
	"html/template"
	"log"
	"time"

	"github.com/yuin/goldmark"

	"tinyclassified/slug"
)

var markdown = goldmark.New()

// RenderMarkdown converts listing text to HTML. Raw HTML in the source is
// not passed through.
func RenderMarkdown(source string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		log.Printf("Error rendering markdown: %v", err)
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}

func TemplateFuncs(baseURL string) template.FuncMap {
	return template.FuncMap{
		"now": func() time.Time {
			return time.Now()
		},
		"baseURL": func() string {
			return baseURL
		},
		"segment":  slug.MakeSegmentSafe,
		"markdown": RenderMarkdown,
		"categoryURL": func(category string) string {
			return "/listings/" + slug.MakeSegmentSafe(category)
		},
		"subcategoryURL": func(category, subcategory string) string {
			return "/listings/" + slug.MakeSegmentSafe(category) + "/" + slug.MakeSegmentSafe(subcategory)
		},
	}
}

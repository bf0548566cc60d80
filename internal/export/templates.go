package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var dossierTemplate = template.Must(template.New("dossier.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/dossier.html"))

// RenderDossierHTML renders the dossier template. All text is escaped.
func RenderDossierHTML(d Dossier) (string, error) {
	var buf bytes.Buffer
	if err := dossierTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TextBlocks splits plain text into paragraphs on blank lines. A paragraph
// whose single line starts with '#' becomes a heading.
func TextBlocks(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	blocks := make([]Block, 0)
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		if len(current) == 1 && strings.HasPrefix(current[0], "#") {
			blocks = append(blocks, Block{Heading: true, Lines: []string{strings.TrimSpace(strings.TrimLeft(current[0], "#"))}})
		} else {
			blocks = append(blocks, Block{Lines: current})
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}

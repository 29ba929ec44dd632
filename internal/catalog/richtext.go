package catalog

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	breakTagRE = regexp.MustCompile(`(?i)<br\s*/?>|<p[^>]*>`)
	anyTagRE   = regexp.MustCompile(`<[^>]*>`)
)

// cellHTML renders a cell as inline HTML, preserving per-run bold, italic,
// and color formatting from rich text. Cells without rich text are returned
// as escaped plain text. Default black text is not styled.
func cellHTML(f *excelize.File, sheet, cellRef, plainValue string) string {
	runs, err := f.GetCellRichText(sheet, cellRef)
	if err != nil || len(runs) == 0 {
		return escapeCellText(plainValue)
	}

	var b strings.Builder
	for _, run := range runs {
		text := escapeCellText(run.Text)
		if run.Font == nil {
			b.WriteString(text)
			continue
		}
		var styles []string
		if run.Font.Bold {
			styles = append(styles, "font-weight: bold;")
		}
		if run.Font.Italic {
			styles = append(styles, "font-style: italic;")
		}
		// Font colors come back as RGB or ARGB hex.
		if c := run.Font.Color; len(c) >= 6 {
			hex := c[len(c)-6:]
			if !strings.EqualFold(hex, "000000") {
				styles = append(styles, fmt.Sprintf("color: #%s;", hex))
			}
		}
		if len(styles) > 0 {
			fmt.Fprintf(&b, `<span style="%s">%s</span>`, strings.Join(styles, " "), text)
		} else {
			b.WriteString(text)
		}
	}
	return b.String()
}

func escapeCellText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

// HTMLToPlainText strips HTML markup for plain-text representations.
// Break and paragraph tags become newlines; all other tags are removed.
func HTMLToPlainText(s string) string {
	if s == "" {
		return ""
	}
	text := breakTagRE.ReplaceAllString(s, "\n")
	text = anyTagRE.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(text)
}

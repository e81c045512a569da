package diag

import (
	"fmt"
	"strings"
)

// Renderer turns a diagnostic into human-readable text.
type Renderer interface {
	Render(d *Diagnostic) string
}

// DefaultRenderer produces a plain-text report with LOCATION, CODE and
// HELP sections plus a caret under the offending fragment.
type DefaultRenderer struct{}

// Render renders the diagnostic; nested causes are indented.
func (DefaultRenderer) Render(d *Diagnostic) string {
	var b strings.Builder
	if d.Cause == nil {
		renderFlat(&b, d, 0)
	} else {
		renderNested(&b, d, 0)
	}
	return b.String()
}

func renderNested(b *strings.Builder, d *Diagnostic, depth int) {
	renderFlat(b, d, depth)
	if d.Cause != nil {
		indent := strings.Repeat("  ", depth+1)
		fmt.Fprintf(b, "%sCaused by:\n", indent)
		renderNested(b, d.Cause, depth+1)
	}
}

func renderFlat(b *strings.Builder, d *Diagnostic, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sError %s\n", indent, d.Code)
	fmt.Fprintf(b, "%s  %s\n\n", indent, d.Message)

	if f := d.Fragment; f != nil && f.Line > 0 {
		fmt.Fprintf(b, "%sLOCATION\n", indent)
		fmt.Fprintf(b, "%s  line %d, column %d\n\n", indent, f.Line, f.Column)

		lineContent := statementLine(d.Statement, f.Line)
		if lineContent != "" {
			start := strings.Index(lineContent, f.Text)
			if start < 0 {
				start = f.Column - 1
			}
			if start < 0 {
				start = 0
			}
			width := len(f.Text)
			if width == 0 {
				width = 1
			}
			fmt.Fprintf(b, "%sCODE\n", indent)
			fmt.Fprintf(b, "%s  %d | %s\n", indent, f.Line, lineContent)
			fmt.Fprintf(b, "%s    | %s%s\n", indent, strings.Repeat(" ", start), strings.Repeat("~", width))
			if d.Label != "" {
				center := start + width/2
				off := center - len(d.Label)/2
				if off < 0 {
					off = 0
				}
				fmt.Fprintf(b, "%s    | %s%s\n", indent, strings.Repeat(" ", off), d.Label)
			}
			b.WriteString("\n")
		}
	}

	if d.Help != "" {
		fmt.Fprintf(b, "%sHELP\n%s  %s\n\n", indent, indent, d.Help)
	}
	for _, note := range d.Notes {
		fmt.Fprintf(b, "%sNOTE: %s\n", indent, note)
	}
}

// statementLine returns the 1-based line of source, or "" when absent.
func statementLine(source string, line int) string {
	if source == "" || line < 1 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}
	return lines[line-1]
}

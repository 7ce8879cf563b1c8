package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"oncostats/internal/dispatch"
	"oncostats/pkg/models"
)

const (
	wordWrap       = 80
	defaultPreview = 10
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#7D56F4")).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C6C6C")).
			Italic(true)
)

// Terminal renders dispatch results and the overview as styled text.
type Terminal struct {
	renderer *glamour.TermRenderer
	// Preview is the number of table rows shown; zero means the default.
	Preview int
}

// NewTerminal builds a renderer. style is a glamour style name ("dark",
// "light", "notty") or "" to detect it from the terminal.
func NewTerminal(style string) (*Terminal, error) {
	opt := glamour.WithAutoStyle()
	if style != "" {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(wordWrap))
	if err != nil {
		return nil, fmt.Errorf("terminal renderer: %w", err)
	}
	return &Terminal{renderer: r}, nil
}

// Overview renders the application header.
func (t *Terminal) Overview(o models.Overview) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "## About Cancer\n\n%s\n\n## Purpose\n\n%s\n", o.About, o.Purpose)
	body, err := t.renderer.Render(md.String())
	if err != nil {
		return "", err
	}
	return headerStyle.Render(o.Title) + "\n" + body, nil
}

// Category renders one dispatch result: description, chart list, a table
// preview and the four text sections in display order.
func (t *Terminal) Category(res *dispatch.Result) (string, error) {
	body, err := t.renderer.Render(Markdown(res, t.preview()))
	if err != nil {
		return "", err
	}
	footer := mutedStyle.Render(fmt.Sprintf("source %s, %d rows, request %s", res.Source, len(res.Table.Rows), res.RequestID))
	return headerStyle.Render(res.Category) + "\n" + body + footer + "\n", nil
}

func (t *Terminal) preview() int {
	if t.Preview > 0 {
		return t.Preview
	}
	return defaultPreview
}

// Markdown lays out a dispatch result as markdown, showing at most preview
// table rows.
func Markdown(res *dispatch.Result, preview int) string {
	var md strings.Builder
	if res.Description != "" {
		fmt.Fprintf(&md, "%s\n\n", res.Description)
	}

	md.WriteString("## Charts\n\n")
	for i, c := range res.Charts {
		fmt.Fprintf(&md, "%d. **%s** (%s): %s\n", i+1, c.Title, c.Kind, fieldSummary(c))
	}
	md.WriteString("\n")

	if res.Table != nil && len(res.Table.Columns) > 0 {
		md.WriteString("## Data\n\n")
		writeTable(&md, res.Table, preview)
		md.WriteString("\n")
	}

	for _, s := range models.Sections {
		fmt.Fprintf(&md, "## %s\n\n%s\n\n", s, bulletList(res.Text[s]))
	}
	return md.String()
}

func fieldSummary(c models.ChartSpec) string {
	var parts []string
	for _, role := range models.RoleOrder {
		if cols := c.Fields[role]; len(cols) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", role, strings.Join(cols, ">")))
		}
	}
	if c.Melt != nil {
		parts = append(parts, fmt.Sprintf("melt(%s)", strings.Join(c.Melt.ValueVars, ",")))
	}
	return strings.Join(parts, ", ")
}

func writeTable(md *strings.Builder, t *models.Table, limit int) {
	cell := func(s string) string { return strings.ReplaceAll(s, "|", `\|`) }

	md.WriteString("|")
	for _, c := range t.Columns {
		md.WriteString(" " + cell(c) + " |")
	}
	md.WriteString("\n|")
	for range t.Columns {
		md.WriteString(" --- |")
	}
	md.WriteString("\n")

	n := min(limit, len(t.Rows))
	for row := 0; row < n; row++ {
		md.WriteString("|")
		for _, c := range t.Columns {
			md.WriteString(" " + cell(t.Value(row, c)) + " |")
		}
		md.WriteString("\n")
	}
	if rest := len(t.Rows) - n; rest > 0 {
		fmt.Fprintf(md, "\n_%d more rows_\n", rest)
	}
}

// bulletList turns "• item" lines into a markdown list; other lines pass
// through unchanged.
func bulletList(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if rest, ok := strings.CutPrefix(l, "•"); ok {
			l = "- " + strings.TrimSpace(rest)
		}
		lines[i] = l
	}
	return strings.Join(lines, "\n")
}

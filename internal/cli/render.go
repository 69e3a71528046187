package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
)

// renderMarkdown pretty-prints a report when stdout is a terminal and
// returns the raw markdown when output is piped.
func renderMarkdown(md string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func extractReport(name string, resp *ai.ExtractResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Extraction: %s\n\n", name)
	fmt.Fprintf(&b, "- **Provider:** %s\n", resp.ProviderID)
	fmt.Fprintf(&b, "- **Confidence:** %.2f\n", resp.OCR.Confidence)
	fmt.Fprintf(&b, "- **Latency:** %dms\n", resp.LatencyMs)
	if resp.Cached {
		b.WriteString("- **Cached:** yes\n")
	}
	b.WriteString("\n## Text\n\n```\n")
	b.WriteString(strings.TrimRight(resp.OCR.Text, "\n"))
	b.WriteString("\n```\n")
	return b.String()
}

func analysisReport(resp *ai.AnalyzeResponse) string {
	var b strings.Builder
	b.WriteString("# Document Analysis\n\n")
	fmt.Fprintf(&b, "- **Type:** %s\n", resp.Analysis.DocumentType)
	fmt.Fprintf(&b, "- **Confidence:** %.2f\n", resp.Analysis.Confidence)
	if resp.Analysis.SuggestedForm != "" {
		fmt.Fprintf(&b, "- **Suggested form:** %s\n", resp.Analysis.SuggestedForm)
	}
	fmt.Fprintf(&b, "- **Provider:** %s\n", resp.ProviderID)
	b.WriteString(fieldsTable(resp.Analysis.ExtractedFields))
	return b.String()
}

func processReport(name string, resp *ai.ProcessResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Processed: %s\n\n", name)
	fmt.Fprintf(&b, "- **Type:** %s (%.2f)\n", resp.Analyze.Analysis.DocumentType, resp.Analyze.Analysis.Confidence)
	if resp.Analyze.Analysis.SuggestedForm != "" {
		fmt.Fprintf(&b, "- **Suggested form:** %s\n", resp.Analyze.Analysis.SuggestedForm)
	}
	fmt.Fprintf(&b, "- **OCR provider:** %s (%.2f)\n", resp.Extract.ProviderID, resp.Extract.OCR.Confidence)
	fmt.Fprintf(&b, "- **Analysis provider:** %s\n", resp.Analyze.ProviderID)
	b.WriteString(fieldsTable(resp.Analyze.Analysis.ExtractedFields))
	b.WriteString("\n## Text\n\n```\n")
	b.WriteString(strings.TrimRight(resp.Extract.OCR.Text, "\n"))
	b.WriteString("\n```\n")
	return b.String()
}

// fieldsTable renders extracted fields as a markdown table, keys sorted so
// output is stable.
func fieldsTable(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\n## Fields\n\n")
	b.WriteString("| Field | Value |\n|-------|-------|\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "| %s | %s |\n", k, fields[k])
	}
	return b.String()
}

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func providersTable(statuses []ai.ProviderStatus) string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		mark := "❌ down"
		if st.Available {
			mark = "✅ up"
		}
		caps := make([]string, 0, len(st.Capabilities))
		for _, c := range st.Capabilities {
			caps = append(caps, string(c))
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", st.Priority),
			st.ID,
			strings.Join(caps, ", "),
			mark,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("PRIORITY", "PROVIDER", "CAPABILITIES", "STATUS").
		Rows(rows...)

	return t.Render()
}

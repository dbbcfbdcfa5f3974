package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// Palette shared by every command.
var (
	primary   = lipgloss.Color("#7C3AED")
	secondary = lipgloss.Color("#06B6D4")
	muted     = lipgloss.Color("#6C7086")
	success   = lipgloss.Color("#A6E3A1")
	warning   = lipgloss.Color("#F9E2AF")
	border    = lipgloss.Color("#45475A")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(secondary)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	scoreStyle   = lipgloss.NewStyle().Foreground(success)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	answerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1)
)

// renderResult formats a search result for the terminal.
func renderResult(r *domain.SearchResult) string {
	var b strings.Builder

	if r.Answer != nil {
		b.WriteString(titleStyle.Render("Answer"))
		b.WriteString(" ")
		b.WriteString(scoreStyle.Render(fmt.Sprintf("(confidence %.2f)", r.Answer.Confidence)))
		b.WriteString("\n")
		b.WriteString(answerStyle.Render(r.Answer.Text))
		b.WriteString("\n")
		for i, c := range r.Answer.Sources {
			fmt.Fprintf(&b, "  [%d] %s %s\n", i+1, mutedStyle.Render(string(c.Kind)+":"), citationLabel(c))
			if c.Excerpt != "" {
				fmt.Fprintf(&b, "      %s\n", mutedStyle.Render(c.Excerpt))
			}
		}
		b.WriteString("\n")
	} else if len(r.MemoryHits) > 0 || len(r.Documents) > 0 {
		b.WriteString(warnStyle.Render("No confident answer; closest matches below."))
		b.WriteString("\n\n")
	}

	if len(r.MemoryHits) > 0 {
		b.WriteString(headingStyle.Render("Memory"))
		b.WriteString("\n")
		for i := range r.MemoryHits {
			h := &r.MemoryHits[i]
			fmt.Fprintf(&b, "  %s %s/%s: %s\n",
				scoreStyle.Render(fmt.Sprintf("%.2f", h.Relevance)),
				h.Fact.Bucket, h.Fact.Key, h.Fact.Value)
		}
		b.WriteString("\n")
	}

	if len(r.Documents) > 0 {
		b.WriteString(headingStyle.Render("Documents"))
		b.WriteString("\n")
		for i := range r.Documents {
			h := &r.Documents[i]
			fmt.Fprintf(&b, "  %s %s %s\n",
				scoreStyle.Render(fmt.Sprintf("%.2f", h.Relevance)),
				h.Record.ID,
				mutedStyle.Render("("+string(h.MatchType)+")"))
			if h.MatchReason != "" {
				fmt.Fprintf(&b, "      %s\n", mutedStyle.Render(h.MatchReason))
			}
		}
		b.WriteString("\n")
	}

	if r.Answer == nil && len(r.MemoryHits) == 0 && len(r.Documents) == 0 {
		b.WriteString("No results found.\n")
	}

	b.WriteString(mutedStyle.Render(fmt.Sprintf("path %s, relevance %.2f, %.1fms",
		r.SearchPath, r.Relevance, r.Performance.TotalTimeMs)))
	b.WriteString("\n")
	return b.String()
}

func citationLabel(c domain.Citation) string {
	if c.Kind == domain.CitationMemory {
		return c.Ref + "/" + c.ID
	}
	return c.ID + " (" + c.Ref + ")"
}

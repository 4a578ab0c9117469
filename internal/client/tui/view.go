package tui

import (
	"fmt"
	"strings"

	"github.com/atinyakov/imagedash/internal/guard"
	"github.com/atinyakov/imagedash/internal/models"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	faint  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	spinnerStyle  = lipgloss.NewStyle().Foreground(accent)
	dimStyle      = lipgloss.NewStyle().Foreground(faint)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0556B"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4FB37F"))
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(faint).
			Padding(1, 2)
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.view == guard.Login {
		return m.loginView()
	}
	return m.galleryView()
}

func (m *Model) loginView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Image Dashboard"))
	b.WriteString("\n\n")

	if m.state.Status == models.SessionAuthenticating {
		fmt.Fprintf(&b, "%s Signing in...", m.spinner.View())
		return boxStyle.Render(b.String())
	}

	b.WriteString(m.username.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("tab next field • enter sign in • esc quit"))
	if line := m.footer(); line != "" {
		b.WriteString("\n\n")
		b.WriteString(line)
	}
	return boxStyle.Render(b.String())
}

func (m *Model) galleryView() string {
	var sections []string

	header := titleStyle.Render("Image Dashboard")
	if u := m.state.User; u != nil {
		header += dimStyle.Render("  signed in as " + u.Username)
	}
	sections = append(sections, header, m.search.View())
	if m.focus == focusUpload {
		sections = append(sections, m.upload.View())
	}
	sections = append(sections, "", m.imageList())

	footer := m.footer()
	if m.loading || m.snap.Loading {
		footer = m.spinner.View() + " working..."
	}
	if footer != "" {
		sections = append(sections, "", footer)
	}
	sections = append(sections, "", m.help.View(galleryHelp(m.keys)))
	return strings.Join(sections, "\n")
}

func (m *Model) imageList() string {
	if len(m.snap.Images) == 0 {
		if m.snap.Loading {
			return dimStyle.Render("Loading images...")
		}
		return dimStyle.Render("No images found.")
	}
	lines := make([]string, 0, len(m.snap.Images))
	for i, img := range m.snap.Images {
		desc := img.Description
		if desc == "" {
			desc = "(no description)"
		}
		line := fmt.Sprintf("%s  %s", shortHash(img.Hash), desc)
		if len(img.Tags) > 0 {
			line += dimStyle.Render("  [" + strings.Join(img.Tags, ", ") + "]")
		}
		if i == m.cursor {
			lines = append(lines, selectedStyle.Render("> ")+line)
		} else {
			lines = append(lines, "  "+line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) footer() string {
	switch {
	case m.err != "":
		return errorStyle.Render(m.err)
	case m.status != "":
		return statusStyle.Render(m.status)
	}
	return ""
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

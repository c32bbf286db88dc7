package compose

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/tui/common"
)

// View renders the compose view based on the active mode.
func (m Model) View() string {
	if m.mode == editorMode {
		if m.busy {
			return m.spinner.View() + " " + m.status + "\n"
		}
		return m.status + "\n"
	}

	var b strings.Builder
	b.WriteString(common.AppTitleStyle.Render("nwitter"))
	if m.isEdit {
		b.WriteString("  Edit post\n\n")
	} else {
		b.WriteString("  New post\n\n")
	}
	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	if !m.isEdit {
		b.WriteString("\n" + common.LabelStyle.Render("Photo") + " " + m.photo.View() + "\n")
	}

	switch {
	case m.busy:
		b.WriteString("\n" + m.spinner.View() + " " + m.status)
	case m.err != "":
		b.WriteString("\n" + common.ErrorStyle.Render(m.err))
	}

	count := utf8.RuneCountInString(m.textarea.Value())
	hints := fmt.Sprintf("  ctrl+d: %s • esc: cancel • %d/%d chars", m.action(), count, domain.MaxBodyRunes)
	if !m.isEdit {
		hints += " • tab: photo"
	}
	b.WriteString("\n" + common.StatusBarStyle.Render(hints))
	return b.String()
}

func (m Model) action() string {
	if m.isEdit {
		return "save"
	}
	return "post"
}

package feed

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/tui/common"
)

const (
	// reservedLines covers the header, status bar and bottom padding.
	reservedLines = 9
	// itemLines is a typical rendered post: 4 content lines + 2 border.
	itemLines   = 6
	contentWrap = 70
)

func (m Model) visibleCount() int {
	if m.height <= 0 {
		return 5
	}
	n := (m.height - reservedLines) / itemLines
	if n < 1 {
		n = 1
	}
	return n
}

func (m *Model) ensureCursorVisible() {
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	n := m.visibleCount()
	if m.cursor < m.start {
		m.start = m.cursor
	}
	if m.cursor >= m.start+n {
		m.start = m.cursor - n + 1
	}
	if m.start > len(m.items)-n {
		m.start = len(m.items) - n
	}
	if m.start < 0 {
		m.start = 0
	}
}

func (m Model) contentWidth() int {
	w := contentWrap
	if m.width > 0 && m.width-6 < w {
		w = m.width - 6
	}
	if w < 12 {
		w = 12
	}
	return w
}

// View renders the feed as a string.
func (m Model) View() string {
	var b strings.Builder

	title := common.AppTitleStyle.Padding(1, 0, 0, 1).Render("nwitter")
	tagline := common.TaglineStyle.Render("<what is happening?!>")
	b.WriteString(title + tagline + "\n")
	b.WriteString(common.ScopeStyle.Margin(0, 0, 1, 2).Render(m.title) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(common.ErrorStyle.Render("  Error: " + common.ErrorText(m.err)))
		b.WriteString("\n")
		if len(m.items) > 0 {
			b.WriteString(m.renderList())
		}
	case m.loading && len(m.items) == 0:
		b.WriteString(fmt.Sprintf("  %s Loading posts...\n", m.spinner.View()))
	case len(m.items) == 0:
		b.WriteString("  No posts yet. Be the first!\n")
	default:
		b.WriteString(m.renderList())
	}

	if m.photoPrompt {
		b.WriteString("\n  " + common.LabelStyle.Render("Photo") + " " + m.photoInput.View())
		b.WriteString("\n  " + common.TimestampStyle.Render("enter: upload • esc: cancel"))
	}

	if m.status != "" {
		style := common.SuccessStyle
		if m.statusErr {
			style = common.ErrorStyle
		}
		prefix := ""
		if m.busy {
			prefix = m.spinner.View() + " "
		}
		b.WriteString("\n  " + prefix + style.Render(m.status))
	}

	b.WriteString("\n" + common.StatusBarStyle.Render("  "+m.hints()))
	return b.String()
}

func (m Model) renderList() string {
	var b strings.Builder
	end := m.start + m.visibleCount()
	if end > len(m.items) {
		end = len(m.items)
	}
	for i := m.start; i < end; i++ {
		item := m.renderPost(m.items[i])
		if i == m.cursor {
			item = common.SelectedStyle.Render(item)
			if m.confirmDelete {
				item += "\n" + common.ConfirmStyle.Render("  Delete this post? (y/n)")
			}
		} else {
			item = common.UnselectedStyle.Render(item)
		}
		b.WriteString(item + "\n")
	}
	if len(m.items) > end {
		b.WriteString(common.TimestampStyle.Render(fmt.Sprintf("  ↓ %d more", len(m.items)-end)) + "\n")
	}
	return b.String()
}

func (m Model) renderPost(p domain.Post) string {
	width := m.contentWidth()
	author := common.AuthorStyle.Render(common.Truncate(p.AuthorName, 24))
	if m.isOwn(p) {
		author += common.OwnBadgeStyle.Render("(you)")
	}
	header := author + "  " + common.TimestampStyle.Render(common.RelativeTime(p.CreatedAt, m.now()))

	indicator := lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")).Render("┃ ")
	wrapped := lipgloss.NewStyle().Width(width).Render(p.Body)
	var body strings.Builder
	for _, line := range strings.Split(wrapped, "\n") {
		body.WriteString(indicator + common.ContentStyle.Render(line) + "\n")
	}

	out := header + "\n" + strings.TrimSuffix(body.String(), "\n")
	if p.HasPhoto() {
		out += "\n" + common.PhotoStyle.Render("▣ "+common.Truncate(p.PhotoURL, width-2))
	}
	return out
}

func (m Model) hints() string {
	if !m.showHints {
		return "p: post • e: edit • d: delete • a: photo • u: profile • ?: more • q: quit"
	}
	k := m.keys
	parts := []string{}
	for _, b := range []struct{ keys, desc string }{
		{k.Up.Help().Key + "/" + k.Down.Help().Key, "move"},
		{k.NewEditor.Help().Key, k.NewEditor.Help().Desc},
		{k.NewInline.Help().Key, k.NewInline.Help().Desc},
		{k.Edit.Help().Key, k.Edit.Help().Desc},
		{k.EditInline.Help().Key, k.EditInline.Help().Desc},
		{k.Delete.Help().Key, k.Delete.Help().Desc},
		{k.AttachPhoto.Help().Key, "attach/replace photo"},
		{k.RemovePhoto.Help().Key, k.RemovePhoto.Help().Desc},
		{k.Open.Help().Key, k.Open.Help().Desc},
		{k.Profile.Help().Key, k.Profile.Help().Desc},
		{k.Home.Help().Key, k.Home.Help().Desc},
		{k.SignOut.Help().Key, k.SignOut.Help().Desc},
		{k.Quit.Help().Key, k.Quit.Help().Desc},
	} {
		parts = append(parts, b.keys+": "+b.desc)
	}
	return strings.Join(parts, " • ")
}

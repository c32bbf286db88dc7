package profile

import (
	"strings"

	"github.com/CrestNiraj12/nwitter/tui/common"
)

// View renders the account header above the account's posts.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString("\n  " + common.AuthorStyle.Render(m.account.Name()))
	b.WriteString("  " + common.TimestampStyle.Render(m.account.Email) + "\n")
	if m.account.AvatarURL != "" {
		b.WriteString("  " + common.PhotoStyle.Render("avatar: "+common.Truncate(m.account.AvatarURL, 60)) + "\n")
	}

	switch m.editing {
	case nameField:
		b.WriteString("  " + common.LabelStyle.Render("Name") + " " + m.input.View() + "\n")
	case avatarField:
		b.WriteString("  " + common.LabelStyle.Render("Avatar") + " " + m.input.View() + "\n")
	}

	switch {
	case m.busy:
		b.WriteString("  Saving...\n")
	case m.err != "":
		b.WriteString("  " + common.ErrorStyle.Render(m.err) + "\n")
	case m.notice != "":
		b.WriteString("  " + common.SuccessStyle.Render(m.notice) + "\n")
	}

	if m.editing != noField {
		b.WriteString(common.TimestampStyle.Render("  enter: save • esc: cancel") + "\n")
	} else {
		b.WriteString(common.TimestampStyle.Render("  n: rename • v: avatar • H: timeline") + "\n")
	}
	b.WriteString(m.feed.View())
	return b.String()
}

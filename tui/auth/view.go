package auth

import (
	"strings"

	"github.com/CrestNiraj12/nwitter/tui/common"
)

var labels = map[screen][]string{
	loginScreen:    {"E-mail", "Password"},
	registerScreen: {"Name", "E-mail", "Password", "Confirm password"},
	resetScreen:    {"E-mail"},
}

var titles = map[screen]string{
	loginScreen:    "Log into nwitter",
	registerScreen: "Join nwitter",
	resetScreen:    "Reset your password",
}

// View renders the active form.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(common.AppTitleStyle.Render("nwitter"))
	b.WriteString("  " + titles[m.screen] + "\n\n")

	for i, in := range m.inputs {
		label := common.LabelStyle
		if i == m.focus {
			label = common.FocusedLabelStyle
		}
		b.WriteString(" " + label.Render(labels[m.screen][i]) + "\n")
		b.WriteString(" " + in.View() + "\n\n")
	}

	switch {
	case m.busy:
		b.WriteString(" " + m.spinner.View() + " Loading...\n")
	case m.err != "":
		b.WriteString(" " + common.ErrorStyle.Render(m.err) + "\n")
	case m.notice != "":
		b.WriteString(" " + common.SuccessStyle.Render(m.notice) + "\n")
	}

	b.WriteString(common.StatusBarStyle.Render(" " + m.hints()))
	return b.String()
}

func (m Model) hints() string {
	switch m.screen {
	case registerScreen:
		return "enter: create account • ctrl+g: continue with Google • ctrl+l: have an account? sign in"
	case resetScreen:
		return "enter: send reset link • esc: back"
	}
	return "enter: sign in • ctrl+g: continue with Google • ctrl+n: create account • ctrl+f: forgot password"
}

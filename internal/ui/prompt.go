package ui

import (
	"errors"
	"strings"

	"charm.land/bubbles/v2/help"
	huh "charm.land/huh/v2"
	"charm.land/lipgloss/v2"

	"github.com/zhubert/weft/internal/messages"
)

// FormTheme returns a huh theme built from the current palette.
func FormTheme() huh.Theme {
	return huh.ThemeFunc(func(isDark bool) *huh.Styles {
		t := huh.ThemeBase(isDark)
		c := currentTheme

		t.Focused.Base = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(lipgloss.Color(c.Primary))
		t.Focused.Card = t.Focused.Base
		t.Focused.Title = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Text)).Bold(true)
		t.Focused.Description = lipgloss.NewStyle().Foreground(lipgloss.Color(c.TextMuted)).Italic(true)
		t.Focused.ErrorMessage = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Conflict))
		t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Primary)).SetString("> ")
		t.Focused.Option = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Text))
		t.Focused.TextInput.Cursor = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Primary))
		t.Focused.TextInput.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Primary))
		t.Focused.TextInput.Text = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Text))

		t.Blurred = t.Focused
		t.Blurred.Base = lipgloss.NewStyle().PaddingLeft(2)
		t.Blurred.Card = t.Blurred.Base

		t.Group.Title = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Secondary)).Bold(true)
		t.Group.Description = lipgloss.NewStyle().Foreground(lipgloss.Color(c.TextMuted))
		t.FieldSeparator = lipgloss.NewStyle().SetString("\n")
		t.Help = help.New().Styles
		return t
	})
}

// isSecret reports whether a field should not echo what is typed.
func isSecret(label string) bool {
	label = strings.ToLower(label)
	for _, word := range []string{"password", "passphrase", "token", "pin"} {
		if strings.Contains(label, word) {
			return true
		}
	}
	return false
}

// credentialForm builds a form for req; values receives one answer per field.
func credentialForm(req messages.InputRequest, values []string) *huh.Form {
	fields := make([]huh.Field, 0, len(req.Fields))
	for i, f := range req.Fields {
		if len(f.Choices) > 0 {
			fields = append(fields, huh.NewSelect[string]().
				Title(f.Label).
				Options(huh.NewOptions(f.Choices...)...).
				Value(&values[i]))
			continue
		}
		input := huh.NewInput().Title(f.Label).Value(&values[i])
		if isSecret(f.Label) {
			input = input.EchoMode(huh.EchoModePassword)
		}
		fields = append(fields, input)
	}
	group := huh.NewGroup(fields...).Title(req.Title).Description(req.Detail)
	return huh.NewForm(group).WithTheme(FormTheme()).WithShowHelp(false)
}

// runForm is replaced in tests.
var runForm = func(f *huh.Form) error { return f.Run() }

// PromptInput asks the user for the fields of req in the terminal.
// Aborting the form cancels the request.
func PromptInput(req messages.InputRequest) (messages.InputResponse, error) {
	values := make([]string, len(req.Fields))
	if err := runForm(credentialForm(req, values)); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return messages.InputResponse{Cancel: true}, nil
		}
		return messages.InputResponse{}, err
	}
	resp := messages.InputResponse{Fields: make(map[string]string, len(values))}
	for i, f := range req.Fields {
		resp.Fields[f.Label] = values[i]
	}
	return resp, nil
}

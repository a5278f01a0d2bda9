// Package setup asks for missing credentials on an interactive terminal.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/songlink/linkreader/internal/config"
)

var (
	// ErrNotInteractive is returned when credentials are missing and stdin is not a terminal
	ErrNotInteractive = errors.New("credentials missing and stdin is not a terminal; pass them as flags, environment variables or in the config file")

	// ErrCancelled is returned when the user leaves the prompt
	ErrCancelled = errors.New("setup cancelled")
)

// Field is one value to ask for
type Field struct {
	Key    string // config key, e.g. discord.token
	Title  string
	Hint   string
	Secret bool
	Value  string
}

// fieldsFor describes how to ask for each credential key
var fieldsFor = map[string]Field{
	"discord.token": {
		Key:    "discord.token",
		Title:  "Discord bot token",
		Hint:   "Bot tab of your application at discord.com/developers",
		Secret: true,
	},
	"spotify.client_id": {
		Key:   "spotify.client_id",
		Title: "Spotify client ID",
		Hint:  "Dashboard of your app at developer.spotify.com",
	},
	"spotify.client_secret": {
		Key:    "spotify.client_secret",
		Title:  "Spotify client secret",
		Hint:   "Shown under the client ID after clicking \"View client secret\"",
		Secret: true,
	},
}

// Model is the bubbletea model that walks through the fields one at a time
type Model struct {
	fields    []Field
	index     int
	input     textinput.Model
	err       string
	done      bool
	cancelled bool
}

// NewModel creates a prompt for fields
func NewModel(fields []Field) Model {
	m := Model{fields: append([]Field(nil), fields...)}
	m.input = textinput.New()
	m.input.CharLimit = 200
	m.input.Width = 50
	m.input.Prompt = "> "
	m.input.TextStyle = lipgloss.NewStyle().Foreground(white)
	m.input.PlaceholderStyle = dimStyle
	m.resetInput()
	return m
}

func (m *Model) resetInput() {
	m.input.SetValue("")
	m.input.EchoMode = textinput.EchoNormal
	if m.index < len(m.fields) && m.fields[m.index].Secret {
		m.input.EchoMode = textinput.EchoPassword
		m.input.EchoCharacter = '•'
	}
	m.input.Focus()
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				m.err = "a value is required"
				return m, nil
			}
			m.err = ""
			m.fields[m.index].Value = value
			m.index++
			if m.index == len(m.fields) {
				m.done = true
				m.input.Blur()
				return m, tea.Quit
			}
			m.resetInput()
			return m, nil

		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.done || m.cancelled || m.index >= len(m.fields) {
		return ""
	}
	f := m.fields[m.index]

	lines := []string{
		titleStyle.Render(f.Title),
		dimStyle.Render(fmt.Sprintf("%d of %d", m.index+1, len(m.fields))),
	}
	if f.Hint != "" {
		lines = append(lines, hintStyle.Render(f.Hint))
	}
	lines = append(lines, "", m.input.View())
	if m.err != "" {
		lines = append(lines, errorStyle.Render(m.err))
	}
	lines = append(lines, "", dimStyle.Render("enter to confirm • esc to cancel"))

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

// Done reports whether every field was answered
func (m Model) Done() bool {
	return m.done
}

// Cancelled reports whether the user left the prompt
func (m Model) Cancelled() bool {
	return m.cancelled
}

// Values returns the answers keyed by config key
func (m Model) Values() map[string]string {
	out := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		if f.Value != "" {
			out[f.Key] = f.Value
		}
	}
	return out
}

// Prompter asks for values on a terminal
type Prompter struct {
	In  *os.File
	Out io.Writer
}

// NewPrompter returns a prompter on the process's stdin and stdout
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stdout}
}

// Interactive reports whether In is a terminal
func (p *Prompter) Interactive() bool {
	return p.In != nil && term.IsTerminal(int(p.In.Fd()))
}

// Ask runs the prompt and returns the answers keyed by config key
func (p *Prompter) Ask(ctx context.Context, fields []Field) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	if !p.Interactive() {
		return nil, ErrNotInteractive
	}

	program := tea.NewProgram(NewModel(fields),
		tea.WithContext(ctx),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
	)
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	m := final.(Model)
	if m.Cancelled() || !m.Done() {
		return nil, ErrCancelled
	}
	return m.Values(), nil
}

// FillMissing prompts for every empty credential in cfg and stores the
// answers in it. Returns true if anything was filled in.
func FillMissing(ctx context.Context, p *Prompter, cfg *config.Config) (bool, error) {
	missing := cfg.MissingCredentials()
	if len(missing) == 0 {
		return false, nil
	}

	fields := make([]Field, 0, len(missing))
	for _, key := range missing {
		fields = append(fields, fieldsFor[key])
	}

	values, err := p.Ask(ctx, fields)
	if err != nil {
		return false, err
	}
	apply(cfg, values)
	return true, nil
}

func apply(cfg *config.Config, values map[string]string) {
	for key, value := range values {
		switch key {
		case "discord.token":
			cfg.Discord.Token = value
		case "spotify.client_id":
			cfg.Spotify.ClientID = value
		case "spotify.client_secret":
			cfg.Spotify.ClientSecret = value
		}
	}
}

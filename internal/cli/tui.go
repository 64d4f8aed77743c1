package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

var (
	tuiTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	tuiDetailStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	tuiHelpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newTUICmd(opts *registryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse aliases and preview rendered requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runTUI(reg.q, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runTUI(q *quarry.Quarry, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(newAliasBrowser(q), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui run failed: %w", err)
	}
	return nil
}

type aliasItem struct {
	alias  string
	method string
	uri    string
}

func (i aliasItem) Title() string       { return i.alias }
func (i aliasItem) Description() string { return i.method + " " + i.uri }
func (i aliasItem) FilterValue() string { return i.alias }

// aliasBrowser lists aliases; enter previews the request rendered with defaults.
type aliasBrowser struct {
	q      *quarry.Quarry
	list   list.Model
	detail string
	width  int
	height int
}

func newAliasBrowser(q *quarry.Quarry) aliasBrowser {
	aliases := q.Aliases()
	items := make([]list.Item, 0, len(aliases))
	for _, alias := range aliases {
		m, ok := q.Miner(alias)
		if !ok {
			continue
		}
		items = append(items, aliasItem{alias: alias, method: m.Method().String(), uri: m.URI()})
	}
	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = "quarry aliases"
	l.Styles.Title = tuiTitleStyle
	return aliasBrowser{q: q, list: l, width: 80, height: 20}
}

func (m aliasBrowser) Init() tea.Cmd { return nil }

func (m aliasBrowser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-1)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if m.detail != "" {
				m.detail = ""
				return m, nil
			}
		case "enter":
			if it, ok := m.list.SelectedItem().(aliasItem); ok {
				m.detail = m.preview(it.alias)
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m aliasBrowser) preview(alias string) string {
	req, ok := m.q.Render(alias, quarry.Placeholders{})
	if !ok {
		return fmt.Sprintf("alias %q is no longer registered", alias)
	}
	var b strings.Builder
	_ = writeRequest(&b, req)
	if tokens := quarry.Tokens(req.URI + "\n" + req.Body); len(tokens) > 0 {
		b.WriteString("\nunresolved: ")
		b.WriteString(strings.Join(tokens, " "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m aliasBrowser) View() string {
	if m.detail == "" {
		return m.list.View()
	}
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		tuiTitleStyle.Render(m.list.Title),
		tuiDetailStyle.Width(w).Render(m.detail),
		tuiHelpStyle.Render("esc back • q quit"),
	)
}

// Package tui is a terminal browser over the domain dataset. Screens are addressed by the same
// route paths as the web views: "/" lists the domains and "/details/<domain>" shows one record.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/domainwatch/domainwatch"
	"github.com/domainwatch/domainwatch/dataset"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/router"
)

// Deps is what the browser reads from. Latest, Check and Logs are optional.
type Deps struct {
	Views   *router.Table
	Dataset *dataset.Dataset
	Latest  func(name string) (*domain.Report, error)
	Check   func(ctx context.Context, name string) (*domain.Report, bool, error)
	Logs    <-chan *domain.Log
}

type domainItem struct {
	domainwatch.ListItem
}

func (i domainItem) Title() string { return i.Record.Domain }
func (i domainItem) Description() string {
	attributes := i.Record.Attributes()
	parts := make([]string, 0, len(attributes))
	for _, a := range attributes {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Name, a.Value))
	}
	return strings.Join(parts, ", ")
}
func (i domainItem) FilterValue() string { return i.Record.Domain }

type checkedMsg struct {
	name   string
	report *domain.Report
	cached bool
	err    error
}

type logMsg struct {
	log *domain.Log
}

// Model is the bubbletea model of the browser.
type Model struct {
	deps  Deps
	theme Theme

	list    list.Model
	path    string
	history []string
	match   router.Match
	matched bool
	details domainwatch.DetailsProps

	checking bool
	status   string
	err      error
}

func Run(deps Deps) error {
	p := tea.NewProgram(New(deps), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// New builds the browser positioned on the domain list.
func New(deps Deps) Model {
	if deps.Views == nil {
		deps.Views = router.ViewTable()
	}
	if deps.Dataset == nil {
		deps.Dataset = dataset.New("", nil)
	}

	props := domainwatch.NewListProps(deps.Views, deps.Dataset)
	items := make([]list.Item, 0, len(props.Items))
	for _, it := range props.Items {
		items = append(items, domainItem{it})
	}

	theme := DefaultTheme()
	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Domains"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("domain", "domains")

	m := Model{deps: deps, theme: theme, list: l}
	return m.visit("/")
}

// Path returns the route path of the current screen.
func (m Model) Path() string { return m.path }

// Details returns what the details screen shows.
func (m Model) Details() domainwatch.DetailsProps { return m.details }

// Navigate moves to path, remembering the current screen for Back.
func (m Model) Navigate(path string) Model {
	if m.path != "" && path != m.path {
		m.history = append(m.history, m.path)
	}
	return m.visit(path)
}

// Back returns to the previous screen, or the list when there is none.
func (m Model) Back() Model {
	if len(m.history) == 0 {
		if m.path == "/" {
			return m
		}
		return m.visit("/")
	}
	previous := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	return m.visit(previous)
}

func (m Model) visit(path string) Model {
	m.path = path
	m.err = nil
	m.checking = false
	m.details = domainwatch.DetailsProps{}
	m.match, m.matched = m.deps.Views.Match(path)
	if !m.matched || m.match.Route.View != router.ViewDetails {
		return m
	}

	m.details = domainwatch.NewDetailsProps(m.match.Params, m.deps.Dataset)
	if m.details.Found && m.deps.Latest != nil {
		if report, err := m.deps.Latest(m.details.Record.Domain); err == nil {
			m.details.Report = report
		}
	}
	return m
}

func (m Model) onList() bool {
	return m.matched && m.match.Route.View == router.ViewList
}

func (m Model) check() tea.Cmd {
	name := m.details.Record.Domain
	check := m.deps.Check
	return func() tea.Msg {
		report, cached, err := check(context.Background(), name)
		return checkedMsg{name: name, report: report, cached: cached, err: err}
	}
}

func waitForLog(logs <-chan *domain.Log) tea.Cmd {
	return func() tea.Msg {
		log, ok := <-logs
		if !ok {
			return nil
		}
		return logMsg{log: log}
	}
}

func (m Model) Init() tea.Cmd {
	if m.deps.Logs != nil {
		return waitForLog(m.deps.Logs)
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-2, msg.Height-2)
		return m, nil

	case logMsg:
		m.status = fmt.Sprintf("%s %s", msg.log.Level, msg.log.Message)
		return m, waitForLog(m.deps.Logs)

	case checkedMsg:
		if !m.details.Found || m.details.Record.Domain != msg.name {
			return m, nil
		}
		m.checking = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.details.Report = msg.report
		if msg.cached {
			m.status = "served from cache"
		} else {
			m.status = "checked " + msg.name
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.onList() && m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "q":
			if m.onList() {
				return m, tea.Quit
			}
			return m.Back(), nil
		case "esc", "backspace", "b":
			if !m.onList() {
				return m.Back(), nil
			}
		case "enter":
			if m.onList() {
				it, ok := m.list.SelectedItem().(domainItem)
				if !ok || it.Path == "" {
					return m, nil
				}
				return m.Navigate(it.Path), nil
			}
		case "c":
			if !m.onList() && m.details.Found && m.deps.Check != nil && !m.checking {
				m.checking = true
				m.err = nil
				return m, m.check()
			}
		}
	}

	if m.onList() {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var body string
	switch {
	case m.onList():
		body = m.list.View()
	case m.matched && m.match.Route.View == router.ViewDetails:
		body = m.detailsView()
	default:
		body = m.theme.Bad.Render("No route matches "+m.path) + "\n\n" + m.theme.Help.Render("esc back • q quit")
	}

	if m.status != "" {
		body += "\n" + m.theme.Subtitle.Render(m.status)
	}
	return lipgloss.NewStyle().Padding(1, 1).Render(body)
}

func (m Model) detailsView() string {
	var b strings.Builder
	if !m.details.Found {
		b.WriteString(m.theme.Bad.Render("Domain not found") + "\n")
		fmt.Fprintf(&b, "No record for %s\n\n", m.details.Key)
		b.WriteString(m.theme.Help.Render("esc back • q quit"))
		return b.String()
	}

	b.WriteString(m.theme.Title.Render(m.details.Record.Domain) + "\n")
	b.WriteString(m.theme.Subtitle.Render(m.path) + "\n\n")
	for _, a := range m.details.Record.Attributes() {
		fmt.Fprintf(&b, "%s %v\n", m.theme.Key.Render(a.Name+":"), a.Value)
	}

	b.WriteString("\n")
	switch report := m.details.Report; {
	case m.checking:
		b.WriteString(m.theme.Subtitle.Render("checking...") + "\n")
	case report != nil:
		b.WriteString(m.theme.Card.Render(m.reportView(report)) + "\n")
	default:
		b.WriteString(m.theme.Subtitle.Render("not checked yet") + "\n")
	}
	if m.err != nil {
		b.WriteString(m.theme.Bad.Render(m.err.Error()) + "\n")
	}

	help := "esc back • q quit"
	if m.deps.Check != nil {
		help = "c check • " + help
	}
	b.WriteString("\n" + m.theme.Help.Render(help))
	return b.String()
}

func (m Model) reportView(report *domain.Report) string {
	lines := []string{
		m.theme.Title.Render("Latest check") + " " + m.theme.Subtitle.Render(report.CheckedAt.Format("2006-01-02 15:04:05")+" UTC"),
		"DNSSEC:            " + m.theme.yesNo(report.DNSSEC.DNSSECValid),
		"Certificate valid: " + m.theme.yesNo(report.SSL.CertificateValid),
		"Expires:           " + report.SSL.CertificateExpiration,
		"TLS versions:      " + strings.Join(report.SSL.TLSVersions, ", "),
		fmt.Sprintf("Headers score:     %d", report.HTTPHeaders.SecurityScore),
		"STARTTLS:          " + m.theme.yesNo(report.Email.STARTTLSSupported),
		"Technologies:      " + strings.Join(report.Technologies, ", "),
	}
	if len(report.Recommendations.All) > 0 {
		lines = append(lines, "", m.theme.Title.Render("Recommendations"))
		for _, r := range report.Recommendations.All {
			lines = append(lines, "• "+r)
		}
	}
	return strings.Join(lines, "\n")
}

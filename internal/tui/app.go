// Package tui is the interactive inbox: the conversation list and the account switcher.
package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tOgg1/convo/internal/account"
	"github.com/tOgg1/convo/internal/feed"
)

type ViewID string

const (
	ViewInbox    ViewID = "inbox"
	ViewAccounts ViewID = "accounts"
)

// SwitchFunc activates an account and returns the feed bound to it.
type SwitchFunc func(ctx context.Context, accountID string) (*feed.Feed, error)

type Config struct {
	Feed     *feed.Feed
	Selector *account.Selector
	// Switch is called when an account is picked in the switcher. Optional.
	Switch SwitchFunc
	Theme  string
	// ActiveHandle labels the header.
	ActiveHandle string
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	selector     *account.Selector
	switchFn     SwitchFunc
	theme        Theme
	styles       styles
	activeHandle string

	inbox    *inboxView
	accounts *accountsView

	selectorCh     chan []account.AccountViewModel
	selectorCancel func()

	width     int
	height    int
	viewStack []ViewID
	status    string
	// selectorErr is the last selector refresh failure, cleared by the next success.
	selectorErr error
}

type viewModel interface {
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View(width, height int, st styles) string
}

type pushViewMsg struct{ id ViewID }

type popViewMsg struct{}

type selectorUpdatedMsg struct {
	rows []account.AccountViewModel
}

type accountSwitchedMsg struct {
	handle string
	feed   *feed.Feed
	err    error
	// refreshErr is a failed selector refresh after a successful switch.
	refreshErr error
}

func pushViewCmd(id ViewID) tea.Cmd {
	return func() tea.Msg { return pushViewMsg{id: id} }
}

func popViewCmd() tea.Cmd {
	return func() tea.Msg { return popViewMsg{} }
}

func NewModel(cfg Config) (*Model, error) {
	if cfg.Feed == nil {
		return nil, errors.New("feed required")
	}
	theme, err := parseTheme(strings.TrimSpace(cfg.Theme))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		ctx:          ctx,
		cancel:       cancel,
		selector:     cfg.Selector,
		switchFn:     cfg.Switch,
		theme:        theme,
		styles:       newStyles(theme),
		activeHandle: cfg.ActiveHandle,
		viewStack:    []ViewID{ViewInbox},
	}
	m.inbox = newInboxView(ctx, cfg.Feed)
	if cfg.Selector != nil {
		m.accounts = newAccountsView(ctx, cfg.Selector)
		m.selectorCh = make(chan []account.AccountViewModel, 1)
		m.selectorCancel = cfg.Selector.Subscribe(func(rows []account.AccountViewModel) {
			offerLatest(m.selectorCh, rows)
		})
	}
	return m, nil
}

func Run(cfg Config) error {
	model, err := NewModel(cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	if m.selectorCancel != nil {
		m.selectorCancel()
		m.selectorCancel = nil
	}
	m.inbox.Close()
	m.cancel()
	return nil
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.inbox.Init()}
	if m.selector != nil {
		cmds = append(cmds, m.refreshSelectorCmd(), m.waitForSelectorCmd())
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case pushViewMsg:
		m.pushView(typed.id)
		if view := m.activeView(); view != nil {
			return m, view.Init()
		}
		return m, nil
	case popViewMsg:
		m.popView()
		return m, nil
	case selectorUpdatedMsg:
		m.selectorErr = nil
		if m.accounts != nil {
			m.accounts.setRows(typed.rows)
		}
		return m, m.waitForSelectorCmd()
	case selectorErrMsg:
		m.setSelectorErr(typed.err)
		return m, nil
	case selectAccountMsg:
		return m, m.switchAccountCmd(typed.row)
	case accountSwitchedMsg:
		if typed.err != nil {
			m.status = "switch failed: " + typed.err.Error()
			return m, nil
		}
		m.status = ""
		m.popView()
		m.setSelectorErr(typed.refreshErr)
		if typed.feed == nil {
			return m, nil
		}
		m.activeHandle = typed.handle
		m.inbox.Close()
		m.inbox = newInboxView(m.ctx, typed.feed)
		return m, m.inbox.Init()
	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(typed); handled {
			return m, cmd
		}
	}

	if active := m.activeView(); active != nil {
		return m, active.Update(msg)
	}
	return m, nil
}

func (m *Model) View() string {
	active := m.activeView()
	if active == nil {
		return "no active view"
	}
	header := m.renderHeader()
	footer := m.renderFooter()
	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 1 {
		contentHeight = 1
	}
	body := active.View(m.width, contentHeight, m.styles)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader() string {
	title := "convo"
	if m.activeHandle != "" {
		title += " · @" + m.activeHandle
	}
	if m.selector != nil && m.selector.ShowBadge() {
		title += " " + m.styles.badge.Render("●")
	}
	return m.styles.header.Render(fitWidth(title, m.width))
}

func (m *Model) renderFooter() string {
	hints := "j/k move · r refresh · m mark read · d delete · a accounts · q quit"
	if m.activeViewID() == ViewAccounts {
		hints = "j/k move · enter switch · r refresh · esc back · q quit"
	}
	line := m.styles.footer.Render(fitWidth(hints, m.width))
	status := m.status
	if status == "" && m.selectorErr != nil {
		status = "accounts unavailable: " + m.selectorErr.Error()
	}
	if status != "" {
		line = lipgloss.JoinVertical(lipgloss.Left, m.styles.errText.Render(fitWidth(status, m.width)), line)
	}
	return line
}

func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit, true
	case "a":
		if m.accounts == nil || m.activeViewID() == ViewAccounts {
			return nil, false
		}
		return pushViewCmd(ViewAccounts), true
	case "esc":
		if m.activeViewID() != ViewInbox {
			if m.selector != nil {
				m.selector.Close()
			}
			return popViewCmd(), true
		}
	}
	return nil, false
}

func (m *Model) activeView() viewModel {
	switch m.activeViewID() {
	case ViewAccounts:
		if m.accounts != nil {
			return m.accounts
		}
	}
	return m.inbox
}

func (m *Model) activeViewID() ViewID {
	if len(m.viewStack) == 0 {
		return ViewInbox
	}
	return m.viewStack[len(m.viewStack)-1]
}

func (m *Model) pushView(id ViewID) {
	if id == "" || m.activeViewID() == id {
		return
	}
	if id == ViewAccounts && m.accounts == nil {
		return
	}
	m.viewStack = append(m.viewStack, id)
}

func (m *Model) popView() {
	if len(m.viewStack) <= 1 {
		return
	}
	m.viewStack = m.viewStack[:len(m.viewStack)-1]
}

func (m *Model) setSelectorErr(err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}
	m.selectorErr = err
	if m.accounts != nil {
		m.accounts.err = err
	}
}

func (m *Model) refreshSelectorCmd() tea.Cmd {
	selector := m.selector
	ctx := m.ctx
	return func() tea.Msg {
		if err := selector.Refresh(ctx); err != nil {
			return selectorErrMsg{err: err}
		}
		return nil
	}
}

func (m *Model) waitForSelectorCmd() tea.Cmd {
	if m.selectorCh == nil {
		return nil
	}
	ch := m.selectorCh
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case rows := <-ch:
			return selectorUpdatedMsg{rows: rows}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) switchAccountCmd(row account.AccountViewModel) tea.Cmd {
	selector := m.selector
	switchFn := m.switchFn
	ctx := m.ctx
	return func() tea.Msg {
		if switchFn == nil {
			if err := selector.Select(ctx, row.Account.ID); err != nil {
				return accountSwitchedMsg{err: err}
			}
			return accountSwitchedMsg{handle: row.Account.Handle}
		}
		next, err := switchFn(ctx, row.Account.ID)
		if err != nil {
			return accountSwitchedMsg{err: err}
		}
		return accountSwitchedMsg{
			handle:     row.Account.Handle,
			feed:       next,
			refreshErr: selector.Refresh(ctx),
		}
	}
}

// offerLatest replaces any unread value in a one-slot channel.
func offerLatest[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func fitWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

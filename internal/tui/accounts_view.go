package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/convo/internal/account"
)

type selectAccountMsg struct {
	row account.AccountViewModel
}

// selectorErrMsg reports a failed selector refresh.
type selectorErrMsg struct {
	err error
}

type accountsView struct {
	ctx      context.Context
	selector *account.Selector
	rows     []account.AccountViewModel
	cursor   int
	err      error
}

func newAccountsView(ctx context.Context, selector *account.Selector) *accountsView {
	return &accountsView{
		ctx:      ctx,
		selector: selector,
		rows:     selector.Snapshot(),
	}
}

// Init opens the selector, which refreshes it.
func (v *accountsView) Init() tea.Cmd {
	selector, ctx := v.selector, v.ctx
	return func() tea.Msg {
		if err := selector.Open(ctx); err != nil {
			return selectorErrMsg{err: err}
		}
		return nil
	}
}

func (v *accountsView) setRows(rows []account.AccountViewModel) {
	v.err = nil
	v.rows = rows
	if v.cursor >= len(rows) {
		v.cursor = max(len(rows)-1, 0)
	}
}

func (v *accountsView) Update(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "r":
		return v.Init()
	case "j", "down":
		if v.cursor < len(v.rows)-1 {
			v.cursor++
		}
	case "k", "up":
		if v.cursor > 0 {
			v.cursor--
		}
	case "enter":
		if v.cursor >= len(v.rows) {
			return nil
		}
		row := v.rows[v.cursor]
		if row.IsActive {
			return popViewCmd()
		}
		return func() tea.Msg { return selectAccountMsg{row: row} }
	}
	return nil
}

func (v *accountsView) View(width, height int, st styles) string {
	if v.err != nil && len(v.rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			st.errText.Render("Couldn't load accounts"),
			st.muted.Render(fitWidth(v.err.Error(), width)),
			st.muted.Render("press r to retry"),
		)
	}
	if len(v.rows) == 0 {
		return st.muted.Render("No accounts registered. Add one with `convo accounts add`.")
	}
	lines := make([]string, 0, len(v.rows))
	for i, row := range v.rows {
		if i >= height {
			break
		}
		active := "  "
		if row.IsActive {
			active = st.accent.Render("✓") + " "
		}
		label := "@" + row.Account.Handle
		if name := strings.TrimSpace(row.Account.DisplayName); name != "" {
			label = name + " (" + label + ")"
		}
		label = fitWidth(label, max(width-4, 1))
		style := st.base
		if i == v.cursor {
			style = st.selected
		}
		line := active + style.Render(label)
		if row.ShowBadge {
			line += " " + st.badge.Render("●")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

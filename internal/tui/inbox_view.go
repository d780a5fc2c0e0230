package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/convo/internal/feed"
	"github.com/tOgg1/convo/internal/models"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

type feedUpdatedMsg struct {
	snap feed.Snapshot
}

type fetchDoneMsg struct {
	op  string
	err error
}

type inboxView struct {
	ctx       context.Context
	feed      *feed.Feed
	ch        chan feed.Snapshot
	subCancel func()

	snap    feed.Snapshot
	cursor  int
	lastErr error
	now     func() time.Time
}

func newInboxView(ctx context.Context, f *feed.Feed) *inboxView {
	v := &inboxView{
		ctx:  ctx,
		feed: f,
		ch:   make(chan feed.Snapshot, 1),
		snap: f.Snapshot(),
		now:  time.Now,
	}
	v.subCancel = f.Subscribe(func(s feed.Snapshot) {
		offerLatest(v.ch, s)
	})
	return v
}

func (v *inboxView) Close() {
	if v.subCancel != nil {
		v.subCancel()
		v.subCancel = nil
	}
}

func (v *inboxView) Init() tea.Cmd {
	cmds := []tea.Cmd{v.waitForSnapshotCmd()}
	if v.snap.State == feed.StateIdle {
		cmds = append(cmds, v.fetchFirstCmd())
	}
	return tea.Batch(cmds...)
}

func (v *inboxView) Update(msg tea.Msg) tea.Cmd {
	switch typed := msg.(type) {
	case feedUpdatedMsg:
		v.snap = typed.snap
		v.clampCursor()
		return v.waitForSnapshotCmd()
	case fetchDoneMsg:
		if errors.Is(typed.err, feed.ErrSuperseded) {
			return nil
		}
		v.lastErr = typed.err
		v.snap = v.feed.Snapshot()
		v.clampCursor()
		return nil
	case tea.KeyMsg:
		return v.handleKey(typed)
	}
	return nil
}

func (v *inboxView) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "j", "down":
		v.move(1)
		return v.maybeFetchNext()
	case "k", "up":
		v.move(-1)
		return nil
	case "g", "home":
		v.cursor = 0
		return nil
	case "G", "end":
		v.cursor = max(len(v.snap.Conversations)-1, 0)
		return v.maybeFetchNext()
	case "r", "ctrl+r":
		v.lastErr = nil
		return v.fetchFirstCmd()
	case "m", "enter":
		if c, ok := v.selected(); ok && c.Unread {
			return v.markReadCmd(c.ID)
		}
	case "d":
		if c, ok := v.selected(); ok {
			return v.deleteCmd(c.ID)
		}
	}
	return nil
}

func (v *inboxView) move(delta int) {
	if v.snap.State == feed.StateLoadingFirst {
		return
	}
	v.cursor += delta
	v.clampCursor()
}

func (v *inboxView) clampCursor() {
	n := len(v.snap.Conversations)
	if v.cursor >= n {
		v.cursor = n - 1
	}
	if v.cursor < 0 {
		v.cursor = 0
	}
}

func (v *inboxView) selected() (models.Conversation, bool) {
	if v.snap.State != feed.StateLoaded || v.cursor >= len(v.snap.Conversations) {
		return models.Conversation{}, false
	}
	return v.snap.Conversations[v.cursor], true
}

// maybeFetchNext loads the next page once the cursor reaches the last row.
func (v *inboxView) maybeFetchNext() tea.Cmd {
	if !v.snap.HasMore || v.snap.LoadingNext {
		return nil
	}
	if v.cursor < len(v.snap.Conversations)-1 {
		return nil
	}
	return v.fetchNextCmd()
}

func (v *inboxView) waitForSnapshotCmd() tea.Cmd {
	ch := v.ch
	ctx := v.ctx
	return func() tea.Msg {
		select {
		case snap := <-ch:
			return feedUpdatedMsg{snap: snap}
		case <-ctx.Done():
			return nil
		}
	}
}

func (v *inboxView) fetchFirstCmd() tea.Cmd {
	f, ctx := v.feed, v.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "first", err: f.FetchFirstPage(ctx)}
	}
}

func (v *inboxView) fetchNextCmd() tea.Cmd {
	f, ctx := v.feed, v.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "next", err: f.FetchNextPage(ctx)}
	}
}

func (v *inboxView) markReadCmd(id string) tea.Cmd {
	f, ctx := v.feed, v.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "read", err: f.MarkRead(ctx, id)}
	}
}

func (v *inboxView) deleteCmd(id string) tea.Cmd {
	f, ctx := v.feed, v.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "delete", err: f.Delete(ctx, id)}
	}
}

func (v *inboxView) View(width, height int, st styles) string {
	switch {
	case v.snap.State == feed.StateError:
		return v.renderError(width, st)
	case v.snap.State == feed.StateIdle:
		return st.muted.Render("Connecting…")
	case v.snap.IsEmpty():
		return lipgloss.JoinVertical(lipgloss.Left,
			st.accent.Render("No conversations yet"),
			st.muted.Render("Direct messages you send or receive show up here."),
		)
	}

	rows := v.snap.Rows()
	loading := v.snap.State == feed.StateLoadingFirst
	visible := max(height-1, 1)
	start := 0
	if !loading && v.cursor >= visible {
		start = v.cursor - visible + 1
	}
	end := min(start+visible, len(rows))

	lines := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		lines = append(lines, v.renderRow(rows[i], !loading && i == v.cursor, loading, width, st))
	}
	switch {
	case loading:
	case v.snap.LoadingNext:
		lines = append(lines, st.muted.Render("loading more…"))
	case v.snap.HasMore:
		lines = append(lines, st.muted.Render("↓ more"))
	}
	if v.lastErr != nil && v.snap.State == feed.StateLoaded {
		lines = append(lines, st.errText.Render(fitWidth("error: "+v.lastErr.Error(), width)))
	}
	return strings.Join(lines, "\n")
}

func (v *inboxView) renderError(width int, st styles) string {
	msg := "unknown error"
	if v.snap.Err != nil {
		msg = v.snap.Err.Error()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		st.errText.Render("Couldn't load conversations"),
		st.muted.Render(fitWidth(msg, width)),
		st.accent.Render("press r to retry"),
	)
}

func (v *inboxView) renderRow(c models.Conversation, selected, placeholder bool, width int, st styles) string {
	marker := "  "
	if c.Unread && !placeholder {
		marker = st.unread.Render("●") + " "
	}
	names := participants(c)
	when := ""
	if ts := c.LastActivity(); !ts.IsZero() {
		when = relativeTime(v.now().Sub(ts))
	}
	preview := ""
	if c.LastStatus != nil {
		preview = plainText(c.LastStatus.Content)
	}

	line := fmt.Sprintf("%s%s  %s", names, suffix(when), preview)
	line = fitWidth(line, max(width-2, 1))

	style := st.base
	switch {
	case placeholder:
		style = st.muted
	case selected:
		style = st.selected
	}
	return marker + style.Render(line)
}

func participants(c models.Conversation) string {
	if len(c.Accounts) == 0 {
		return "(no participants)"
	}
	names := make([]string, 0, len(c.Accounts))
	for _, acct := range c.Accounts {
		name := acct.DisplayName
		if name == "" {
			name = "@" + acct.Acct
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func suffix(when string) string {
	if when == "" {
		return ""
	}
	return " · " + when
}

func plainText(content string) string {
	text := htmlTag.ReplaceAllString(content, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

package ui

import (
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/zhubert/weft/internal/clipboard"
	"github.com/zhubert/weft/internal/keys"
	"github.com/zhubert/weft/internal/logger"
	"github.com/zhubert/weft/internal/messages"
)

// LogSource feeds the browser. Its methods run outside the update loop.
type LogSource interface {
	NextPage() (messages.LogPage, error)
	Show(rev messages.RevID) (*messages.RevsResult, error)
}

// prefetch is how close to the last loaded row the selection gets before
// the next page is requested.
const prefetch = 5

type pageLoadedMsg struct {
	page messages.LogPage
	err  error
}

type detailLoadedMsg struct {
	res *messages.RevsResult
	err error
}

// copyText is replaced in tests.
var copyText = clipboard.WriteText

// Browser is an interactive log: a scrolling graph with a detail view of
// the selected revision.
type Browser struct {
	source LogSource
	graph  GraphView
	lines  []string

	selected int
	top      int
	width    int
	height   int
	loading  bool

	showing bool
	detail  viewport.Model

	status string
	err    error
}

// NewBrowser returns a browser showing first and loading later pages from
// source.
func NewBrowser(first messages.LogPage, source LogSource, markUnpushed bool) *Browser {
	b := &Browser{
		source: source,
		detail: viewport.New(),
		width:  80,
		height: 24,
	}
	b.graph.MarkUnpushed = markUnpushed
	b.graph.Append(first)
	b.lines = b.graph.Render(b.width)
	return b
}

func (b *Browser) Init() tea.Cmd {
	return b.maybeLoad()
}

// Selected returns the index of the selected row.
func (b *Browser) Selected() int { return b.selected }

// Rows returns the number of rows loaded.
func (b *Browser) Rows() int { return b.graph.Len() }

// listHeight is the rows available to the graph, less the footer.
func (b *Browser) listHeight() int {
	return max(1, b.height-1)
}

func (b *Browser) maybeLoad() tea.Cmd {
	if b.loading || !b.graph.HasMore() || b.selected < b.graph.Len()-prefetch {
		return nil
	}
	b.loading = true
	source := b.source
	return func() tea.Msg {
		page, err := source.NextPage()
		return pageLoadedMsg{page: page, err: err}
	}
}

func (b *Browser) show() tea.Cmd {
	if b.graph.Len() == 0 {
		return nil
	}
	rev := b.graph.Row(b.selected).Revision.ID
	source := b.source
	return func() tea.Msg {
		res, err := source.Show(rev)
		return detailLoadedMsg{res: res, err: err}
	}
}

func (b *Browser) move(delta int) tea.Cmd {
	if b.graph.Len() == 0 {
		return nil
	}
	b.selected = min(max(b.selected+delta, 0), b.graph.Len()-1)
	h := b.listHeight()
	if b.selected < b.top {
		b.top = b.selected
	} else if b.selected >= b.top+h {
		b.top = b.selected - h + 1
	}
	return b.maybeLoad()
}

func (b *Browser) copyID(commit bool) {
	if b.graph.Len() == 0 {
		return
	}
	id := b.graph.Row(b.selected).Revision.ID
	hex := id.Change.Hex
	if commit {
		hex = id.Commit.Hex
	}
	if err := copyText(hex); err != nil {
		logger.ComponentLogger("ui").Warn("copy failed", "error", err)
		b.err = err
		return
	}
	b.err = nil
	b.status = "copied " + hex
}

func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.detail.SetWidth(msg.Width)
		b.detail.SetHeight(b.listHeight())
		b.lines = b.graph.Render(b.width)
		b.move(0)
		return b, nil

	case pageLoadedMsg:
		b.loading = false
		if msg.err != nil {
			b.err = msg.err
			return b, nil
		}
		b.graph.Append(msg.page)
		b.lines = b.graph.Render(b.width)
		return b, b.maybeLoad()

	case detailLoadedMsg:
		if msg.err != nil {
			b.err = msg.err
			return b, nil
		}
		b.showing = true
		b.detail.SetWidth(b.width)
		b.detail.SetHeight(b.listHeight())
		b.detail.SetContent(RenderRevisions(msg.res, b.width))
		b.detail.GotoTop()
		return b, nil

	case tea.KeyPressMsg:
		key := msg.String()
		if keys.Quit.Matches(key) {
			return b, tea.Quit
		}
		if b.showing {
			if keys.Back.Matches(key) {
				b.showing = false
				return b, nil
			}
			var cmd tea.Cmd
			b.detail, cmd = b.detail.Update(msg)
			return b, cmd
		}
		switch {
		case keys.SelectUp.Matches(key):
			return b, b.move(-1)
		case keys.SelectDown.Matches(key):
			return b, b.move(1)
		case keys.PageUp.Matches(key):
			return b, b.move(-b.listHeight())
		case keys.PageDown.Matches(key):
			return b, b.move(b.listHeight())
		case keys.First.Matches(key):
			return b, b.move(-b.selected)
		case keys.Last.Matches(key):
			return b, b.move(b.graph.Len())
		case keys.Show.Matches(key):
			return b, b.show()
		case keys.CopyChange.Matches(key):
			b.copyID(false)
		case keys.CopyCommit.Matches(key):
			b.copyID(true)
		}
	}
	return b, nil
}

func (b *Browser) footer() string {
	if b.err != nil {
		return ErrorStyle.Render(b.err.Error())
	}
	if b.status != "" {
		return StatusStyle.Render(b.status)
	}
	bindings := keys.Footer
	if b.showing {
		bindings = []keys.Binding{keys.Back, keys.Quit}
	}
	parts := make([]string, 0, len(bindings))
	for _, k := range bindings {
		parts = append(parts, FooterKeyStyle.Render(k.Keys[0])+" "+FooterDescStyle.Render(k.Help))
	}
	return strings.Join(parts, "  ")
}

// Content renders the browser without terminal setup.
func (b *Browser) Content() string {
	var body string
	if b.showing {
		body = b.detail.View()
	} else {
		end := min(b.top+b.listHeight(), len(b.lines))
		rows := make([]string, 0, end-b.top)
		for i := b.top; i < end; i++ {
			line := b.lines[i]
			if i == b.selected {
				line = SelectedStyle.Render(ansi.Strip(line))
			}
			rows = append(rows, line)
		}
		body = strings.Join(rows, "\n")
	}
	return body + "\n" + TruncateStyled(b.footer(), b.width)
}

func (b *Browser) View() tea.View {
	var v tea.View
	v.AltScreen = true
	v.SetContent(b.Content())
	return v
}

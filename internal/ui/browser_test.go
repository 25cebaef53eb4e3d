package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/zhubert/weft/internal/keys"
	"github.com/zhubert/weft/internal/messages"
)

type fakeSource struct {
	pages []messages.LogPage
	shown []messages.RevID
	err   error
}

func (f *fakeSource) NextPage() (messages.LogPage, error) {
	if f.err != nil {
		return messages.LogPage{}, f.err
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeSource) Show(rev messages.RevID) (*messages.RevsResult, error) {
	f.shown = append(f.shown, rev)
	return &messages.RevsResult{
		Kind:    messages.RevsDetail,
		Headers: []messages.RevHeader{{ID: rev, Description: "detail body"}},
	}, nil
}

// linearPage returns n rows starting at row start.
func linearPage(start, n int, more bool) messages.LogPage {
	page := messages.LogPage{HasMore: more}
	for i := start; i < start+n; i++ {
		h := header(fmt.Sprintf("%c", 'a'+i), fmt.Sprintf("rev %d", i))
		page.Rows = append(page.Rows, row(h, i, 0))
	}
	return page
}

func press(b *Browser, key string) tea.Cmd {
	_, cmd := b.Update(tea.KeyPressMsg{Text: key})
	return cmd
}

// drain runs cmd and feeds its message back until nothing is left.
func drain(b *Browser, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		_, cmd = b.Update(msg)
	}
}

func TestBrowserNavigation(t *testing.T) {
	b := NewBrowser(linearPage(0, 3, false), &fakeSource{}, false)
	b.Update(tea.WindowSizeMsg{Width: 60, Height: 10})

	press(b, "j")
	press(b, keys.Down)
	if b.Selected() != 2 {
		t.Errorf("Selected() = %d, want 2", b.Selected())
	}
	press(b, "j")
	if b.Selected() != 2 {
		t.Errorf("Selected() past the end = %d, want 2", b.Selected())
	}
	press(b, "g")
	if b.Selected() != 0 {
		t.Errorf("Selected() after first = %d, want 0", b.Selected())
	}
	press(b, "G")
	if b.Selected() != 2 {
		t.Errorf("Selected() after last = %d, want 2", b.Selected())
	}
	if cmd := press(b, "q"); cmd == nil {
		t.Error("quit returned no command")
	}
}

func TestBrowserLoadsNextPage(t *testing.T) {
	src := &fakeSource{pages: []messages.LogPage{linearPage(3, 3, false)}}
	b := NewBrowser(linearPage(0, 3, true), src, false)

	drain(b, b.Init())
	if b.Rows() != 6 {
		t.Fatalf("Rows() = %d, want 6", b.Rows())
	}
	if cmd := b.maybeLoad(); cmd != nil {
		t.Error("loaded past the last page")
	}
	content := ansi.Strip(b.Content())
	if !strings.Contains(content, "rev 5") {
		t.Errorf("Content() missing the second page:\n%s", content)
	}
}

func TestBrowserLoadError(t *testing.T) {
	src := &fakeSource{err: errors.New("query failed")}
	b := NewBrowser(linearPage(0, 1, true), src, false)
	drain(b, b.Init())
	if !strings.Contains(ansi.Strip(b.Content()), "query failed") {
		t.Errorf("Content() = %q, want the error", ansi.Strip(b.Content()))
	}
}

func TestBrowserShowDetail(t *testing.T) {
	src := &fakeSource{}
	b := NewBrowser(linearPage(0, 2, false), src, false)
	b.Update(tea.WindowSizeMsg{Width: 60, Height: 10})
	press(b, "j")
	drain(b, press(b, keys.Enter))

	if len(src.shown) != 1 || src.shown[0] != b.graph.Row(1).Revision.ID {
		t.Fatalf("shown = %v, want the selected revision", src.shown)
	}
	if !strings.Contains(ansi.Strip(b.Content()), "detail body") {
		t.Errorf("Content() = %q, want the detail", ansi.Strip(b.Content()))
	}
	press(b, keys.Escape)
	if strings.Contains(ansi.Strip(b.Content()), "detail body") {
		t.Error("escape did not close the detail")
	}
}

func TestBrowserCopy(t *testing.T) {
	var copied []string
	orig := copyText
	copyText = func(s string) error {
		copied = append(copied, s)
		return nil
	}
	t.Cleanup(func() { copyText = orig })

	b := NewBrowser(linearPage(0, 1, false), &fakeSource{}, false)
	press(b, "y")
	press(b, "Y")
	id := b.graph.Row(0).Revision.ID
	if len(copied) != 2 || copied[0] != id.Change.Hex || copied[1] != id.Commit.Hex {
		t.Errorf("copied = %v, want change then commit id", copied)
	}
	if !strings.Contains(ansi.Strip(b.Content()), "copied "+id.Commit.Hex) {
		t.Errorf("Content() = %q, want the copy status", ansi.Strip(b.Content()))
	}
}

// Package clipboard copies revision ids and descriptions from the log
// browser to the system clipboard.
package clipboard

import (
	"fmt"
	"strings"
	"sync"

	"golang.design/x/clipboard"

	"github.com/zhubert/weft/internal/logger"
)

// backend is the system clipboard; tests replace it.
type backend interface {
	init() error
	write(text []byte)
	read() []byte
}

type system struct{}

func (system) init() error       { return clipboard.Init() }
func (system) write(text []byte) { clipboard.Write(clipboard.FmtText, text) }
func (system) read() []byte      { return clipboard.Read(clipboard.FmtText) }

var (
	mu          sync.Mutex
	current     backend = system{}
	initialized bool
)

// Init initializes the clipboard. It is safe to call more than once.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	return initLocked()
}

func initLocked() error {
	if initialized {
		return nil
	}
	if err := current.init(); err != nil {
		logger.ComponentLogger("Clipboard").Warn("failed to initialize", "error", err)
		return fmt.Errorf("failed to initialize clipboard: %w", err)
	}
	initialized = true
	return nil
}

// WriteText replaces the clipboard contents with text.
func WriteText(text string) error {
	mu.Lock()
	defer mu.Unlock()
	if err := initLocked(); err != nil {
		return err
	}
	current.write([]byte(text))
	logger.ComponentLogger("Clipboard").Debug("copied text", "bytes", len(text))
	return nil
}

// ReadText returns the clipboard's text, or "" if it holds none.
func ReadText() (string, error) {
	mu.Lock()
	defer mu.Unlock()
	if err := initLocked(); err != nil {
		return "", err
	}
	return string(current.read()), nil
}

// JoinIDs formats ids for pasting into a shell, one per line.
func JoinIDs(ids []string) string {
	return strings.Join(ids, "\n")
}

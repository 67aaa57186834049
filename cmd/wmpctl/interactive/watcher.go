package interactive

import (
	"fmt"
	"io"
	"sync"

	"github.com/wmp-protocol/wmp-go/pkg/log"
)

// Watcher is a trace sink that mirrors protocol lines to the console
// while watching is enabled. It is always installed in the trace chain
// and costs nothing while disabled.
type Watcher struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWatcher creates a disabled watcher.
func NewWatcher() *Watcher {
	return &Watcher{}
}

// Log implements log.Logger.
func (w *Watcher) Log(event log.Event) {
	w.mu.Lock()
	out := w.out
	w.mu.Unlock()
	if out == nil || event.Category != log.CategoryLine || event.Line == nil {
		return
	}

	arrow := "<-"
	if event.Direction == log.DirectionOut {
		arrow = "->"
	}
	gw := event.GatewayID
	if gw == "" {
		gw = "?"
	}
	fmt.Fprintf(out, "%s %s %s\n", gw, arrow, event.Line.Text)
}

func (w *Watcher) enable(out io.Writer) {
	w.mu.Lock()
	w.out = out
	w.mu.Unlock()
}

func (w *Watcher) disable() {
	w.mu.Lock()
	w.out = nil
	w.mu.Unlock()
}

var _ log.Logger = (*Watcher)(nil)

package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
)

const watchDebounce = 150 * time.Millisecond

// reloadMsg carries a graph rebuilt from the watched file.
type reloadMsg struct {
	graph *graph.Graph
	err   error
}

// fileWatcher watches one definition file. It watches the parent directory
// so editors that replace the file on save are still seen.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
}

func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &fileWatcher{watcher: w, path: abs, debounce: watchDebounce}, nil
}

func (fw *fileWatcher) Close() error {
	return fw.watcher.Close()
}

// wait returns a command that blocks until the file is written or
// recreated, lets the burst of events settle, and then recompiles it.
func (fw *fileWatcher) wait() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-fw.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(ev.Name) != filepath.Base(fw.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				fw.settle()
				return loadFile(fw.path)
			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return nil
				}
				return reloadMsg{err: err}
			}
		}
	}
}

// settle swallows events until none arrive for the debounce interval.
func (fw *fileWatcher) settle() {
	timer := time.NewTimer(fw.debounce)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			timer.Reset(fw.debounce)
		case <-timer.C:
			return
		}
	}
}

func loadFile(path string) reloadMsg {
	data, err := os.ReadFile(path)
	if err != nil {
		return reloadMsg{err: err}
	}
	g, err := grammar.Compile(string(data))
	if err != nil {
		return reloadMsg{err: fmt.Errorf("%s: %w", filepath.Base(path), err)}
	}
	return reloadMsg{graph: g}
}

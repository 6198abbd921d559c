// Package examples ships the built-in example diagrams. The diagram texts
// and their metadata are embedded at build time.
package examples

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
)

// DefaultName is the example loaded when no diagram is given.
const DefaultName = "default"

// ErrNotFound is returned for unknown example names.
var ErrNotFound = errors.New("example not found")

//go:embed library/*
var library embed.FS

// Example is one built-in diagram.
type Example struct {
	Name        string `yaml:"name" json:"name"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	File        string `yaml:"file" json:"-"`
	Text        string `yaml:"-" json:"text"`
}

type index struct {
	Examples []Example `yaml:"examples"`
}

var (
	loadOnce sync.Once
	loaded   []Example
	loadErr  error
)

func load() ([]Example, error) {
	loadOnce.Do(func() {
		data, err := library.ReadFile("library/index.yaml")
		if err != nil {
			loadErr = fmt.Errorf("reading example index: %w", err)
			return
		}
		var idx index
		if err := yaml.Unmarshal(data, &idx); err != nil {
			loadErr = fmt.Errorf("parsing example index: %w", err)
			return
		}
		for i := range idx.Examples {
			ex := &idx.Examples[i]
			text, err := library.ReadFile(path.Join("library", ex.File))
			if err != nil {
				loadErr = fmt.Errorf("reading example %s: %w", ex.Name, err)
				return
			}
			ex.Text = string(text)
		}
		loaded = idx.Examples
	})
	return loaded, loadErr
}

// List returns every example in index order.
func List() ([]Example, error) {
	all, err := load()
	if err != nil {
		return nil, err
	}
	return append([]Example(nil), all...), nil
}

// Names returns the example names sorted alphabetically.
func Names() []string {
	all, _ := load()
	names := make([]string, 0, len(all))
	for _, ex := range all {
		names = append(names, ex.Name)
	}
	sort.Strings(names)
	return names
}

// Get returns the example with the given name.
func Get(name string) (Example, error) {
	all, err := load()
	if err != nil {
		return Example{}, err
	}
	for _, ex := range all {
		if ex.Name == name {
			return ex, nil
		}
	}
	return Example{}, fmt.Errorf("%w: %q (available: %v)", ErrNotFound, name, Names())
}

// Graph compiles the named example into a fresh graph.
func Graph(name string) (*graph.Graph, error) {
	ex, err := Get(name)
	if err != nil {
		return nil, err
	}
	g, err := grammar.Compile(ex.Text)
	if err != nil {
		return nil, fmt.Errorf("example %s: %w", name, err)
	}
	return g, nil
}

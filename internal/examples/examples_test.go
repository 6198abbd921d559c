package examples

import (
	"errors"
	"testing"

	"github.com/rajithv/CausalLoop/internal/grammar"
)

func TestList(t *testing.T) {
	all, err := List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"default", "simple", "population", "economic", "climate", "organization"}
	if len(all) != len(want) {
		t.Fatalf("got %d examples, want %d", len(all), len(want))
	}
	for i, ex := range all {
		if ex.Name != want[i] {
			t.Errorf("example %d = %s, want %s", i, ex.Name, want[i])
		}
		if ex.Title == "" || ex.Description == "" || ex.Text == "" {
			t.Errorf("example %s has empty metadata: %+v", ex.Name, ex)
		}
	}
}

func TestEveryExampleCompiles(t *testing.T) {
	wantNodes := map[string]int{
		"default":      4,
		"simple":       4,
		"population":   4,
		"economic":     6,
		"climate":      8,
		"organization": 7,
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			g, err := Graph(name)
			if err != nil {
				t.Fatalf("Graph(%s) error = %v", name, err)
			}
			if g.Len() != wantNodes[name] {
				t.Errorf("Len() = %d, want %d", g.Len(), wantNodes[name])
			}

			ex, _ := Get(name)
			if _, skipped := grammar.ParseWithSkips(ex.Text); len(skipped) != 0 {
				t.Errorf("example has unparsed lines: %+v", skipped)
			}
		})
	}
}

func TestDefaultPerturbationAmounts(t *testing.T) {
	g, err := Graph(DefaultName)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	want := map[string]float64{"A": 10, "B": 5, "C": 3, "D": 7}
	for name, amount := range want {
		n, _ := g.Node(name)
		if n.PerturbationAmount != amount {
			t.Errorf("%s amount = %v, want %v", name, n.PerturbationAmount, amount)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	if _, err := Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := Graph("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Graph() error = %v, want ErrNotFound", err)
	}
}

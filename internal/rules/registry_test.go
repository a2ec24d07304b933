package rules

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/displayrules/internal/types"
)

func testScript(widget string) *Script {
	return &Script{
		Name:     "Vis",
		WidgetID: widget,
		Property: "visible",
		Default:  Boolean(true),
		Update:   "set_visibility",
	}
}

func TestRegistry_CommitAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry()

	for want := 1; want <= 3; want++ {
		rule, err := r.Commit(testScript("w1"))
		if err != nil {
			t.Fatalf("Commit() error = %v, want nil", err)
		}
		if rule.ID != want {
			t.Errorf("ID = %d, want %d", rule.ID, want)
		}
		if !strings.Contains(rule.Text, fmt.Sprintf("let rule%d = ", want)) {
			t.Errorf("Text does not declare rule%d:\n%s", want, rule.Text)
		}
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestRegistry_FlushOnce(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Commit(testScript("w1")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Commit(testScript("w2")); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	if err := r.Flush(&out); err != nil {
		t.Fatalf("Flush() error = %v, want nil", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "<script>\n") || !strings.HasSuffix(got, "</script>\n") {
		t.Errorf("Flush() output not wrapped in a script element:\n%s", got)
	}
	if strings.Count(got, "<script>") != 1 {
		t.Errorf("Flush() wrote %d script elements, want 1", strings.Count(got, "<script>"))
	}
	if strings.Index(got, "let rule1") > strings.Index(got, "let rule2") {
		t.Errorf("Flush() did not preserve emission order:\n%s", got)
	}

	if err := r.Flush(&out); !errors.Is(err, types.ErrRegistryFlushed) {
		t.Errorf("second Flush() error = %v, want ErrRegistryFlushed", err)
	}
	if _, err := r.Commit(testScript("w3")); !errors.Is(err, types.ErrRegistryFlushed) {
		t.Errorf("Commit() after Flush error = %v, want ErrRegistryFlushed", err)
	}
	if !r.Flushed() {
		t.Error("Flushed() = false, want true")
	}
}

func TestRegistry_FlushEmpty(t *testing.T) {
	var out strings.Builder
	if err := NewRegistry().Flush(&out); err != nil {
		t.Fatalf("Flush() error = %v, want nil", err)
	}
	if out.String() != "<script>\n</script>\n" {
		t.Errorf("Flush() = %q", out.String())
	}
}

func TestRegistry_ConcurrentCommits(t *testing.T) {
	defer goleak.VerifyNone(t)

	const workers, perWorker = 8, 50
	r := NewRegistry()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		widget := fmt.Sprintf("w%d", w)
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if _, err := r.Commit(testScript(widget)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Commit() error = %v, want nil", err)
	}

	rules := r.Rules()
	if len(rules) != workers*perWorker {
		t.Fatalf("len(Rules()) = %d, want %d", len(rules), workers*perWorker)
	}
	for i, rule := range rules {
		if rule.ID != i+1 {
			t.Fatalf("Rules()[%d].ID = %d, want %d (ids must follow emission order)", i, rule.ID, i+1)
		}
		if !strings.HasPrefix(rule.Text, "// Rule 'Vis'\nlet "+RuleVar(rule.ID)+" = ") {
			t.Fatalf("Rules()[%d] text is interleaved or misnumbered:\n%s", i, rule.Text)
		}
	}
}

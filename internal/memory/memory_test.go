package memory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/talgya/atlas-live/internal/entropy"
)

func introTemplates(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Intro %d for {COUNTRY}.", i)
	}
	return out
}

func TestGetUniquePhrase_NoRepeatUntilExhausted(t *testing.T) {
	const n = 8
	bank := NewBank(map[string][]string{CategoryIntro: introTemplates(n)}, DefaultHardCap, entropy.NewSeeded(1))

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		p := bank.GetUniquePhrase(CategoryIntro, map[string]string{"COUNTRY": "Peru"})
		if seen[p] {
			t.Fatalf("call %d repeated %q before exhaustion", i+1, p)
		}
		seen[p] = true
	}
	if len(seen) != n {
		t.Fatalf("saw %d distinct phrases, want %d", len(seen), n)
	}
	if got := bank.UsedCount(CategoryIntro); got != n {
		t.Fatalf("UsedCount = %d, want %d", got, n)
	}

	// The (T+1)th call resets only this category and still returns a template.
	p := bank.GetUniquePhrase(CategoryIntro, map[string]string{"COUNTRY": "Peru"})
	if !seen[p] {
		t.Fatalf("unexpected phrase after reset: %q", p)
	}
	if got := bank.UsedCount(CategoryIntro); got != 1 {
		t.Fatalf("UsedCount after reset = %d, want 1", got)
	}
}

func TestGetUniquePhrase_Substitutes(t *testing.T) {
	bank := NewBank(map[string][]string{
		CategoryLoop: {"{COUNTRY}: {FACT} {MISSING}"},
	}, 0, nil)

	got := bank.GetUniquePhrase("loop", map[string]string{"COUNTRY": "Chile", "FACT": "Long."})
	if got != "Chile: Long. {MISSING}" {
		t.Fatalf("got %q", got)
	}
}

func TestGetUniquePhrase_UnknownCategory(t *testing.T) {
	bank := NewBank(nil, 0, nil)
	if got := bank.GetUniquePhrase("NOPE", nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestGetUniquePhrase_CategoryResetLeavesOthers(t *testing.T) {
	bank := NewBank(map[string][]string{
		CategoryIntro:     {"a", "b"},
		CategoryConnector: {"x", "y", "z"},
	}, DefaultHardCap, entropy.NewSeeded(3))

	bank.GetUniquePhrase(CategoryConnector, nil)
	bank.GetUniquePhrase(CategoryIntro, nil)
	bank.GetUniquePhrase(CategoryIntro, nil)
	bank.GetUniquePhrase(CategoryIntro, nil) // exhausts INTRO, resets it

	if got := bank.UsedCount(CategoryConnector); got != 1 {
		t.Fatalf("connector usage disturbed by intro reset: %d", got)
	}
}

func TestGetUniquePhrase_HardCapClearsEverything(t *testing.T) {
	bank := NewBank(map[string][]string{
		CategoryIntro:     introTemplates(4),
		CategoryConnector: {"c1", "c2", "c3"},
	}, 5, entropy.NewSeeded(9))

	for i := 0; i < 3; i++ {
		bank.GetUniquePhrase(CategoryConnector, nil)
	}
	for i := 0; i < 2; i++ {
		bank.GetUniquePhrase(CategoryIntro, nil)
	}
	if got := bank.Size(); got != 5 {
		t.Fatalf("Size = %d, want 5", got)
	}

	bank.GetUniquePhrase(CategoryIntro, nil)
	if got := bank.Size(); got != 0 {
		t.Fatalf("Size after exceeding cap = %d, want 0", got)
	}
}

func TestGetUniquePhrase_SameTextAcrossCategories(t *testing.T) {
	bank := NewBank(map[string][]string{
		CategoryIntro:     {"shared"},
		CategoryConnector: {"shared"},
	}, DefaultHardCap, nil)

	bank.GetUniquePhrase(CategoryIntro, nil)
	if got := bank.UsedCount(CategoryConnector); got != 0 {
		t.Fatalf("connector marked used by intro draw: %d", got)
	}
}

func TestSetTemplates(t *testing.T) {
	bank := NewBank(map[string][]string{CategoryIntro: {"old"}}, 0, nil)
	bank.GetUniquePhrase(CategoryIntro, nil)
	bank.SetTemplates(CategoryIntro, []string{"new"})

	if got := bank.GetUniquePhrase(CategoryIntro, nil); got != "new" {
		t.Fatalf("got %q after SetTemplates", got)
	}
}

func TestRecentSet_FIFO(t *testing.T) {
	r := NewRecentSet(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Add(id)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	if r.Contains("a") {
		t.Fatal("oldest entry should have been evicted")
	}
	if got := strings.Join(r.Items(), ","); got != "b,c,d" {
		t.Fatalf("Items = %s", got)
	}
}

func TestRecentSet_NeverExceedsCap(t *testing.T) {
	r := NewRecentSet(0)
	for i := 0; i < 200; i++ {
		r.Add(fmt.Sprintf("c%d", i%73))
		if r.Len() > DefaultRecentCap {
			t.Fatalf("Len %d exceeds cap after %d inserts", r.Len(), i+1)
		}
	}
}

func TestRecentSet_ReAddRefreshes(t *testing.T) {
	r := NewRecentSet(3)
	r.Add("a")
	r.Add("b")
	r.Add("c")
	r.Add("a")
	r.Add("d")

	if !r.Contains("a") {
		t.Fatal("refreshed entry evicted")
	}
	if r.Contains("b") {
		t.Fatal("b should be the oldest and evicted")
	}
	if got := strings.Join(r.Items(), ","); got != "c,a,d" {
		t.Fatalf("Items = %s", got)
	}
}

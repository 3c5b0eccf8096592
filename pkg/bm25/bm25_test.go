package bm25

import "testing"

func TestSmallCorpusFallback(t *testing.T) {
	idx := Fit([]Doc{{ID: "d1", Text: "alpha beta"}})

	cases := []struct {
		query string
		want  float64
	}{
		{"alpha", 1.0},
		{"gamma", 0.0},
		{"alpha beta", 1.0},
	}

	for _, c := range cases {
		scores := idx.Score(c.query)
		if got := scores["d1"]; got != c.want {
			t.Errorf("query %q: got %v want %v", c.query, got, c.want)
		}
	}
}

func TestOkapiOnLargerCorpus(t *testing.T) {
	idx := Fit([]Doc{
		{ID: "d1", Text: "the cat sat on the mat"},
		{ID: "d2", Text: "the dog sat on the log"},
		{ID: "d3", Text: "cats and dogs are friends"},
		{ID: "d4", Text: "mats and logs are furniture"},
	})

	scores := idx.Score("cat mat")
	if scores["d1"] <= scores["d2"] {
		t.Errorf("expected d1 (contains cat+mat) to outrank d2, got d1=%v d2=%v", scores["d1"], scores["d2"])
	}
}

func TestTokenizeCJKExpansion(t *testing.T) {
	toks := Tokenize("我喜欢编程语言")
	found := map[string]bool{}
	for _, tok := range toks {
		found[tok] = true
	}
	if !found["编"] || !found["程"] {
		t.Errorf("expected single-character expansion for runs >2, got %v", toks)
	}
	if found["的"] || found["了"] {
		t.Errorf("expected stop words filtered, got %v", toks)
	}
}

func TestTopKOrdering(t *testing.T) {
	idx := Fit([]Doc{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "alpha beta"},
		{ID: "c", Text: "gamma"},
	})
	top := idx.TopK("alpha beta", 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top))
	}
	if top[0].ID != "b" {
		t.Errorf("expected b to rank first, got %s", top[0].ID)
	}
}

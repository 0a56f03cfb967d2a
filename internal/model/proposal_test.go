package model

import "testing"

func TestSignature_OrderIndependent(t *testing.T) {
	a := Proposal{Kind: KindMergeThemes, Category: "Heat Stress",
		Themes: []string{"Bleaching", "Mortality"}, NewName: "Thermal Impacts"}
	b := Proposal{Kind: KindMergeThemes, Category: "Heat Stress",
		Themes: []string{"Mortality", "Bleaching"}, NewName: "Thermal Impacts"}

	if a.Signature() != b.Signature() {
		t.Errorf("member order changed signature:\n %s\n %s", a.Signature(), b.Signature())
	}
}

func TestSignature_NormalizesNames(t *testing.T) {
	a := Proposal{Kind: KindMergeCategories, Category: "Heat  Stress", TargetCategory: "abiotic stress"}
	b := Proposal{Kind: KindMergeCategories, Category: "heat stress", TargetCategory: "Abiotic   Stress"}

	if a.Signature() != b.Signature() {
		t.Errorf("case/whitespace changed signature:\n %s\n %s", a.Signature(), b.Signature())
	}
}

func TestSignature_DistinguishesKinds(t *testing.T) {
	merge := Proposal{Kind: KindMergeCategories, Category: "A", TargetCategory: "B"}
	move := Proposal{Kind: KindMoveTheme, Category: "A", Theme: "X", TargetCategory: "B"}
	rename := Proposal{Kind: KindRenameCategory, Category: "A", NewName: "B"}

	sigs := map[string]bool{
		merge.Signature():  true,
		move.Signature():   true,
		rename.Signature(): true,
	}
	if len(sigs) != 3 {
		t.Errorf("kinds collided: %v", sigs)
	}
}

func TestSignature_DirectionMatters(t *testing.T) {
	ab := Proposal{Kind: KindMergeCategories, Category: "A", TargetCategory: "B"}
	ba := Proposal{Kind: KindMergeCategories, Category: "B", TargetCategory: "A"}
	if ab.Signature() == ba.Signature() {
		t.Error("reversed category merge produced the same signature")
	}
}

func TestLockSet_NormalizedMatching(t *testing.T) {
	var l LockSet
	l.LockCategory("Heat Stress")
	l.LockTheme("Heat Stress", "Bleaching")

	if !l.CategoryLocked("heat  stress") {
		t.Error("category lock should match ignoring case and whitespace")
	}
	if !l.ThemeLocked("HEAT STRESS", "bleaching") {
		t.Error("theme lock should match ignoring case")
	}
	if l.CategoryLocked("Ocean Acidification") {
		t.Error("unrelated category reported locked")
	}
	if l.ThemeLocked("Heat Stress", "Mortality") {
		t.Error("unrelated theme reported locked")
	}
}

func TestLockSet_Idempotent(t *testing.T) {
	var l LockSet
	l.LockCategory("Heat Stress")
	l.LockCategory("heat stress")
	l.LockTheme("A", "X")
	l.LockTheme("a", "x")

	if len(l.Categories) != 1 || len(l.Themes) != 1 {
		t.Errorf("duplicate locks recorded: %d categories, %d themes", len(l.Categories), len(l.Themes))
	}
}

func TestRejectionLog(t *testing.T) {
	var r RejectionLog
	p := Proposal{Kind: KindMoveTheme, Category: "A", Theme: "X", TargetCategory: "B"}

	if r.Contains(p.Signature()) {
		t.Error("empty log reported a match")
	}
	r.Add(p.Signature())
	r.Add(p.Signature()) // duplicates collapse
	if !r.Contains(p.Signature()) {
		t.Error("log lost a signature")
	}
	if len(r.Signatures) != 1 {
		t.Errorf("log holds %d entries, want 1", len(r.Signatures))
	}
}

func TestFillDefaults(t *testing.T) {
	r := Record{Title: "A study", Effect: "Sideways"}
	r.FillDefaults()

	if r.Category != Unspecified || r.Driver != Unspecified || r.Citation != Unspecified {
		t.Errorf("empty fields not defaulted: %+v", r)
	}
	if r.Title != "A study" {
		t.Errorf("non-empty title clobbered: %s", r.Title)
	}
	if r.Effect != EffectUnclear {
		t.Errorf("invalid effect = %s, want %s", r.Effect, EffectUnclear)
	}

	r2 := Record{Effect: EffectNegative}
	r2.FillDefaults()
	if r2.Effect != EffectNegative {
		t.Errorf("valid effect clobbered: %s", r2.Effect)
	}
}

func TestTaxonomyHint(t *testing.T) {
	c := NewCorpus("t", false)
	c.Append([]Record{
		{Category: "Heat Stress", Theme: "Bleaching"},
		{Category: "Heat Stress", Theme: "Mortality"},
		{Category: "Ocean Acidification", Theme: "Calcification"},
	})

	want := "- Heat Stress: Bleaching; Mortality\n- Ocean Acidification: Calcification\n"
	if got := c.Taxonomy(0).Hint(); got != want {
		t.Errorf("hint = %q, want %q", got, want)
	}

	if got := NewCorpus("t", false).Taxonomy(0).Hint(); got != "" {
		t.Errorf("empty corpus hint = %q, want empty", got)
	}
}

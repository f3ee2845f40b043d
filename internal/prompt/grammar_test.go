package prompt

import (
	"strings"
	"testing"
)

func blueprint(grade string) Blueprint {
	return Blueprint{
		Grade:           grade,
		TopicEN:         "School trip",
		TopicJA:         "修学旅行",
		Scenario:        "Two friends talk about last week's trip.",
		GrammarPatterns: []string{"past simple", "past continuous"},
		VocabularyLevel: "A2",
	}
}

func TestBuildGrammarFill(t *testing.T) {
	b := &Builder{Coin: func() bool { return false }}

	p, err := b.BuildGrammarFill(blueprint("4"), "## DIVERSITY NOTE\n\nAvoid \"did\".\n")
	if err != nil {
		t.Fatalf("BuildGrammarFill() returned an unexpected error: %v", err)
	}

	if !strings.Contains(p.System, "Eiken grade 4") {
		t.Errorf("system prompt does not name the grade:\n%s", p.System)
	}
	for _, want := range []string{
		"Topic: School trip (修学旅行)",
		"Context: Two friends talk about last week's trip.",
		"Grammar target: past simple OR past continuous",
		"Vocabulary level: A2",
		"Format: dialogue",
		"## DIVERSITY NOTE",
	} {
		if !strings.Contains(p.User, want) {
			t.Errorf("user prompt missing %q:\n%s", want, p.User)
		}
	}
	if !p.Dialogue {
		t.Error("expected dialogue format for grade 4")
	}
}

func TestBuildGrammarFillWithoutGuidance(t *testing.T) {
	b := &Builder{Coin: func() bool { return false }}

	p, err := b.BuildGrammarFill(blueprint("2"), "  ")
	if err != nil {
		t.Fatalf("BuildGrammarFill() returned an unexpected error: %v", err)
	}
	if p.Dialogue {
		t.Error("expected single sentence format for grade 2")
	}
	if !strings.Contains(p.User, "Format: single sentence") {
		t.Errorf("user prompt missing format line:\n%s", p.User)
	}
	if strings.Contains(p.User, "DIVERSITY") {
		t.Errorf("user prompt should not carry guidance:\n%s", p.User)
	}
}

func TestBuildGrammarFillMissingTopic(t *testing.T) {
	bp := blueprint("3")
	bp.TopicEN = ""
	if _, err := NewBuilder().BuildGrammarFill(bp, ""); err != ErrMissingTopic {
		t.Errorf("expected ErrMissingTopic, got %v", err)
	}
}

func TestDialogueFormat(t *testing.T) {
	heads := &Builder{Coin: func() bool { return true }}
	tails := &Builder{Coin: func() bool { return false }}

	testCases := []struct {
		grade string
		heads bool
		tails bool
	}{
		{"5", true, true},
		{"4", true, true},
		{"3", true, true},
		{"pre2", true, false},
		{"2", false, false},
		{"pre1", false, false},
		{"1", false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.grade, func(t *testing.T) {
			if got := heads.DialogueFormat(tc.grade); got != tc.heads {
				t.Errorf("heads: DialogueFormat(%q) = %v, want %v", tc.grade, got, tc.heads)
			}
			if got := tails.DialogueFormat(tc.grade); got != tc.tails {
				t.Errorf("tails: DialogueFormat(%q) = %v, want %v", tc.grade, got, tc.tails)
			}
		})
	}
}

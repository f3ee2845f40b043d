// Package prompt renders the prompts sent to the question generation service.
package prompt

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"text/template"
)

var ErrMissingTopic = errors.New("prompt: blueprint topic is required")

// Blueprint describes the question to generate.
type Blueprint struct {
	Grade           string   `json:"grade" validate:"required,oneof=5 4 3 pre2 2 pre1 1"`
	TopicEN         string   `json:"topic_en" validate:"required"`
	TopicJA         string   `json:"topic_ja"`
	Scenario        string   `json:"scenario"`
	GrammarPatterns []string `json:"grammar_patterns" validate:"min=1"`
	VocabularyLevel string   `json:"vocabulary_level"`
}

// Prompt is a chat style prompt.
type Prompt struct {
	System   string `json:"system"`
	User     string `json:"user"`
	Dialogue bool   `json:"dialogue"`
}

// Builder renders grammar fill-in prompts. Coin decides the dialogue format
// for pre-2, where both formats are used.
type Builder struct {
	Coin func() bool
}

// NewBuilder returns a Builder with a fair random coin.
func NewBuilder() *Builder {
	return &Builder{Coin: func() bool { return rand.IntN(2) == 0 }}
}

// DialogueFormat reports whether grade requires an A/B dialogue.
func (b *Builder) DialogueFormat(grade string) bool {
	switch grade {
	case "5", "4", "3":
		return true
	case "pre2":
		return b.Coin != nil && b.Coin()
	default:
		return false
	}
}

// BuildGrammarFill renders the fill-in-the-blank prompt for bp. guidance is
// the diversity guidance for bp.Grade and may be empty.
func (b *Builder) BuildGrammarFill(bp Blueprint, guidance string) (Prompt, error) {
	if strings.TrimSpace(bp.TopicEN) == "" {
		return Prompt{}, ErrMissingTopic
	}

	p := Prompt{Dialogue: b.DialogueFormat(bp.Grade)}

	var buf bytes.Buffer
	if err := systemTmpl.Execute(&buf, bp); err != nil {
		return Prompt{}, err
	}
	p.System = buf.String()

	buf.Reset()
	err := userTmpl.Execute(&buf, struct {
		Blueprint
		Dialogue bool
		Guidance string
	}{bp, p.Dialogue, strings.TrimSpace(guidance)})
	if err != nil {
		return Prompt{}, err
	}
	p.User = buf.String()

	return p, nil
}

var systemTmpl = template.Must(template.New("system").Parse(
	`You generate English grammar fill-in-the-blank questions for Eiken grade {{.Grade}}.

Rules:
1. All four choices are forms of the same verb (for example go, goes, went, going).
2. The sentence contains a time marker that rules out every distractor.
3. Decide why each distractor is wrong before writing the sentence.

Reply with JSON containing target_grammar, base_verb, correct_answer,
distractors (word and reason each), sentence, explanation (Japanese) and
translation_ja.
`))

var userTmpl = template.Must(template.New("user").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(
	`Topic: {{.TopicEN}}{{with .TopicJA}} ({{.}}){{end}}
{{- with .Scenario}}
Context: {{.}}{{end}}
Grammar target: {{join .GrammarPatterns " OR "}}
{{- with .VocabularyLevel}}
Vocabulary level: {{.}}{{end}}
{{if .Dialogue}}Format: dialogue, "A: ...\nB: ..."{{else}}Format: single sentence{{end}}
{{- with .Guidance}}

{{.}}{{end}}
`))

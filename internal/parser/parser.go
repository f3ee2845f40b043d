// Package parser reads flashcards from markdown deck files.
//
// A card is a block of prefixed lines:
//
//	# Deck: JLPT N5 verbs
//	Q: 食べる
//	A: to eat
//	C: 毎日ご飯を食べます。
//	T: verb, n5
//	---
//
// Lines without a prefix continue the current field. A "---" line or a new
// "Q:" ends the card. A "# Deck:" heading applies to every card after it.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/kotoba/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
	tagsPrefix    = "T:"
	deckHeading   = "# deck:"
	separator     = "---"
)

// Card is a parsed flashcard and the deck heading it appeared under.
type Card struct {
	domain.Card
	Deck string
}

type field int

const (
	none field = iota
	front
	back
	context
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Blocks without a
// front are dropped.
func Parse(r io.Reader) ([]Card, error) {
	p := &cardParser{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.cards, nil
}

type cardParser struct {
	cards   []Card
	deck    string
	current Card
	field   field
	block   []string
}

func (p *cardParser) line(line string) {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == separator:
		p.finish()
	case strings.HasPrefix(strings.ToLower(trimmed), deckHeading):
		p.finish()
		p.deck = strings.TrimSpace(trimmed[len(deckHeading):])
	case strings.HasPrefix(line, frontPrefix):
		p.finish()
		p.start(front, line[len(frontPrefix):])
	case strings.HasPrefix(line, backPrefix):
		p.start(back, line[len(backPrefix):])
	case strings.HasPrefix(line, contextPrefix):
		p.start(context, line[len(contextPrefix):])
	case strings.HasPrefix(line, tagsPrefix):
		p.flush()
		p.field = none
		p.current.Tags = append(p.current.Tags, splitTags(line[len(tagsPrefix):])...)
	case p.field != none:
		p.block = append(p.block, line)
	}
}

// start flushes the field being read and begins f with its first line.
func (p *cardParser) start(f field, rest string) {
	p.flush()
	p.field = f
	p.block = append(p.block, strings.TrimPrefix(rest, " "))
}

func (p *cardParser) flush() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n ")
	switch p.field {
	case front:
		p.current.Front = content
	case back:
		p.current.Back = content
	case context:
		p.current.Context = content
	}
	p.block = nil
}

func (p *cardParser) finish() {
	p.flush()
	if p.current.Front != "" {
		p.current.Deck = p.deck
		p.current.CreatedFrom = domain.OriginImport
		p.cards = append(p.cards, p.current)
	}
	p.current = Card{}
	p.field = none
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

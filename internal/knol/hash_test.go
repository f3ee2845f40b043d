package knol

import (
	"testing"

	"github.com/conorfennell/kotoba/internal/domain"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		card     domain.Card
		expected string
	}{
		{
			name: "trims and lowercases",
			card: domain.Card{
				Front:   "  Apple \r\n",
				Back:    "りんご",
				Context: "I Ate An  Apple.",
			},
			expected: "apple\nりんご\ni ate an apple.",
		},
		{
			name: "folds full-width latin and half-width kana",
			card: domain.Card{
				Front: "ＡＰＰＬＥ",
				Back:  "ﾘﾝｺﾞ",
			},
			expected: "apple\nリンゴ\n",
		},
		{
			name: "keeps line structure inside a field",
			card: domain.Card{
				Front: "go",
				Back:  "行く\n  went / gone  ",
			},
			expected: "go\n行く\nwent / gone\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.card); got != tc.expected {
				t.Errorf("Expected normalized string to be %q, but got %q", tc.expected, got)
			}
		})
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		card := domain.Card{Front: "Q", Back: "A", Context: "C"}
		// sha256("q\na\nc")
		expectedHash := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"

		if hash := Hash(card); hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.Card{Front: "  study ", Back: "勉強する"}
		card2 := domain.Card{Front: "Ｓｔｕｄｙ", Back: "勉強する"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("different cards have different hashes", func(t *testing.T) {
		card1 := domain.Card{Front: "犬", Back: "dog"}
		card2 := domain.Card{Front: "猫", Back: "cat"}
		if Hash(card1) == Hash(card2) {
			t.Error("Expected hashes for different cards to be different")
		}
	})

	t.Run("tags and deck do not affect the hash", func(t *testing.T) {
		card1 := domain.Card{Front: "run", Back: "走る", Tags: []string{"verb"}, DeckID: "a"}
		card2 := domain.Card{Front: "run", Back: "走る"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected metadata to be ignored by the hash")
		}
	})
}

package secretword

import (
	"sort"
	"testing"
)

func TestVerify_Bluejay(t *testing.T) {
	word := "bluejay7"
	if !Verify(word, map[int]string{2: "l", 5: "j", 8: "7"}) {
		t.Fatalf("expected correct answers to verify")
	}
	if !Verify(word, map[int]string{2: "L", 5: "J", 8: "7"}) {
		t.Fatalf("expected verification to be case-insensitive")
	}

	wrong := []map[int]string{
		{2: "x", 5: "j", 8: "7"},
		{2: "l", 5: "x", 8: "7"},
		{2: "l", 5: "j", 8: "8"},
	}
	for i, answers := range wrong {
		if Verify(word, answers) {
			t.Fatalf("case %d: expected single wrong character to fail", i)
		}
	}
}

func TestVerify_Edges(t *testing.T) {
	if Verify("bluejay7", nil) {
		t.Fatalf("empty answers must not verify")
	}
	if Verify("bluejay7", map[int]string{9: "x"}) {
		t.Fatalf("out of range position must not verify")
	}
	if Verify("bluejay7", map[int]string{1: "bl"}) {
		t.Fatalf("multi-character answer must not verify")
	}
	if !Verify("  BlueJay7 ", map[int]string{1: "b"}) {
		t.Fatalf("word should be trimmed and lowercased")
	}
}

func TestVerifyChallenge_MissingAnswer(t *testing.T) {
	positions := []int{2, 5, 8}
	if VerifyChallenge("bluejay7", positions, map[int]string{2: "l", 5: "j"}) {
		t.Fatalf("missing answer must fail the challenge")
	}
	if !VerifyChallenge("bluejay7", positions, map[int]string{2: "l", 5: "j", 8: "7"}) {
		t.Fatalf("expected full answers to verify")
	}
}

func TestGeneratePositionQuestions(t *testing.T) {
	for i := 0; i < 200; i++ {
		positions := GeneratePositionQuestions(8, DefaultQuestions)
		if len(positions) != 3 {
			t.Fatalf("expected 3 positions, got %d", len(positions))
		}
		if !sort.IntsAreSorted(positions) {
			t.Fatalf("positions not sorted: %v", positions)
		}
		seen := map[int]bool{}
		for _, p := range positions {
			if p < 1 || p > 8 {
				t.Fatalf("position out of range: %d", p)
			}
			if seen[p] {
				t.Fatalf("duplicate position %d in %v", p, positions)
			}
			seen[p] = true
		}
	}
}

func TestGeneratePositionQuestions_ShortWord(t *testing.T) {
	positions := GeneratePositionQuestions(2, DefaultQuestions)
	if len(positions) != 2 || positions[0] != 1 || positions[1] != 2 {
		t.Fatalf("expected [1 2], got %v", positions)
	}
	if GeneratePositionQuestions(0, 3) != nil {
		t.Fatalf("expected nil for empty word")
	}
}

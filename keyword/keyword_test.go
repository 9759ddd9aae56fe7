package keyword

import (
	"strings"
	"testing"
)

func TestNormalize_CaseAccentPunctuationInvariance(t *testing.T) {
	variants := []string{
		"iPhone 13",
		"IPHONE 13",
		"iphone-13",
		"  iphone   13  ",
		"iPhone_13!",
	}

	want := Normalize(variants[0])
	if want == "" {
		t.Fatal("Normalize returned empty key")
	}
	for _, v := range variants {
		if got := Normalize(v); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestNormalize_StripsDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Écouteurs Bluetooth", "ecouteurs bluetooth"},
		{"café en grains", "cafe en grains"},
		{"crème hydratante Nivéa", "creme hydratante nivea"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"iPhone 13 Pro Max",
		"Café-en-grains Lavazza!",
		"shampoing   bio",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"iPhone 13 Pro", "iphone-13-pro"},
		{"Café en grains", "cafe-en-grains"},
		{"Souris Gaming / RGB", "souris-gaming-rgb"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	// Slug of a slug is the slug itself (URLs never change on re-derivation).
	if got := Slugify("iphone-13-pro"); got != "iphone-13-pro" {
		t.Errorf("Slugify not idempotent: got %q", got)
	}
}

func TestExtractMainKeyword_ShortInputUnchanged(t *testing.T) {
	inputs := []string{
		"iPhone 13",
		"souris gaming",
		"café en grains",
	}
	for _, in := range inputs {
		if got := ExtractMainKeyword(in); got != in {
			t.Errorf("ExtractMainKeyword(%q) = %q, want unchanged", in, got)
		}
		// Idempotent on anything already short.
		if got := ExtractMainKeyword(ExtractMainKeyword(in)); got != in {
			t.Errorf("ExtractMainKeyword not idempotent for %q", in)
		}
	}
}

func TestExtractMainKeyword_StripsStopWordsFromEnds(t *testing.T) {
	in := "est ce que le Dyson V15 Detect vaut vraiment le coup avis"
	got := ExtractMainKeyword(in)

	if strings.HasPrefix(got, "est") || strings.HasSuffix(got, "avis") {
		t.Errorf("stop words not trimmed from ends: %q", got)
	}
	if !strings.Contains(got, "dyson") || !strings.Contains(got, "v15") {
		t.Errorf("lost the product tokens: %q", got)
	}
}

func TestExtractMainKeyword_CapsTokensFavoringModels(t *testing.T) {
	in := "je cherche des retours honnetes concernant la machine Nespresso Vertuo Next 2024 pour la maison"
	got := ExtractMainKeyword(in)

	tokens := strings.Fields(got)
	if len(tokens) > 5 {
		t.Fatalf("expected at most 5 tokens, got %d (%q)", len(tokens), got)
	}
	for _, must := range []string{"nespresso", "vertuo", "2024"} {
		if !strings.Contains(got, must) {
			t.Errorf("expected %q to survive extraction, got %q", must, got)
		}
	}
}

func TestExtractMainKeyword_FallbackToOriginal(t *testing.T) {
	// Nothing but stop words, longer than the short-input limit.
	in := "le la les un une des de du avec pour sur le la les un une"
	if got := ExtractMainKeyword(in); got != in {
		t.Errorf("expected original input as fallback, got %q", got)
	}
}

package keyword

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxExtractedTokens caps the search phrase built from long free-text input.
const maxExtractedTokens = 5

// shortInputLimit is the length under which user input is used verbatim.
const shortInputLimit = 30

// stopWords are trimmed from both ends of long queries before searching.
// French first (the UI is French), plus the English fillers that show up in
// pasted product names.
var stopWords = map[string]bool{
	"le": true, "la": true, "les": true, "un": true, "une": true,
	"des": true, "de": true, "du": true, "d": true, "l": true,
	"et": true, "ou": true, "pour": true, "avec": true, "sans": true,
	"sur": true, "sous": true, "est": true, "ce": true, "cet": true,
	"cette": true, "que": true, "qui": true, "quel": true, "quelle": true,
	"vaut": true, "il": true, "je": true, "avis": true, "test": true, "acheter": true,
	"meilleur": true, "meilleure": true, "meilleurs": true,
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"best": true, "review": true, "reviews": true, "is": true, "it": true,
	"worth": true, "buy": true,
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// stripDiacritics removes combining marks, so "Électronique" becomes
// "Electronique". Falls back to the input on transform errors.
func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// ExtractMainKeyword reduces free-text input to a short, search-optimized
// phrase. Inputs under 30 characters are returned unchanged, so the function
// is idempotent on anything it has already shortened.
func ExtractMainKeyword(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < shortInputLimit {
		return trimmed
	}

	originals := tokenize(trimmed)
	if len(originals) == 0 {
		return trimmed
	}

	// Trim stop words from both ends only; stop words in the middle of a
	// product name ("pomme de terre") are part of the name.
	start, end := 0, len(originals)
	for start < end && stopWords[strings.ToLower(originals[start])] {
		start++
	}
	for end > start && stopWords[strings.ToLower(originals[end-1])] {
		end--
	}
	tokens := originals[start:end]
	if len(tokens) == 0 {
		return trimmed
	}

	if len(tokens) > maxExtractedTokens {
		tokens = pickSignificant(tokens, maxExtractedTokens)
	}

	result := strings.ToLower(strings.Join(tokens, " "))
	if result == "" {
		return trimmed
	}
	return result
}

// pickSignificant keeps at most max tokens, favoring ones that look like
// brand or model identifiers: tokens containing digits, or capitalized in
// the original input. Relative order is preserved.
func pickSignificant(tokens []string, max int) []string {
	keep := make([]bool, len(tokens))
	kept := 0
	for i, tok := range tokens {
		if kept >= max {
			break
		}
		if hasDigit(tok) || startsUpper(tok) {
			keep[i] = true
			kept++
		}
	}
	for i := range tokens {
		if kept >= max {
			break
		}
		if !keep[i] {
			keep[i] = true
			kept++
		}
	}

	out := make([]string, 0, max)
	for i, tok := range tokens {
		if keep[i] {
			out = append(out, tok)
		}
	}
	return out
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// tokenize splits on anything that is not a letter, digit or apostrophe,
// keeping the original casing for the significance heuristic.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Normalize derives the deduplication key for a product name: lowercase,
// diacritics stripped, hyphens and underscores folded into spaces, all other
// punctuation dropped, whitespace collapsed. Normalizing an already
// normalized string yields the same string.
func Normalize(text string) string {
	s := stripDiacritics(strings.ToLower(strings.TrimSpace(text)))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Slugify turns text into a URL path segment: the normalized form with
// hyphens instead of spaces.
func Slugify(text string) string {
	return strings.ReplaceAll(Normalize(text), " ", "-")
}

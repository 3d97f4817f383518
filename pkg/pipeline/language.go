package pipeline

import "strings"

// stopwords maps an ISO 639-1 code to a small set of highly frequent,
// largely language-exclusive function words. DetectLanguage scores text
// against each set and returns the best match. This is a narrow,
// dependency-free heuristic — no language-identification library
// appears anywhere in the example pack (see DESIGN.md) — and is
// intentionally limited to the languages the pipeline is expected to
// see; anything else falls back to "und" (undetermined).
var stopwords = map[string][]string{
	"en": {" the ", " and ", " of ", " to ", " in ", " is ", " was ", " for "},
	"es": {" el ", " la ", " los ", " las ", " de ", " que ", " y ", " para "},
	"fr": {" le ", " la ", " les ", " des ", " et ", " que ", " pour ", " une "},
	"pt": {" o ", " a ", " os ", " as ", " de ", " que ", " para ", " uma "},
	"de": {" der ", " die ", " das ", " und ", " ist ", " fur ", " mit ", " den "},
}

// DetectLanguage returns the ISO 639-1 code with the highest stopword
// hit count in text, or "und" if nothing scores above zero.
func DetectLanguage(text string) string {
	padded := " " + strings.ToLower(text) + " "

	best := "und"
	bestScore := 0
	for lang, words := range stopwords {
		score := 0
		for _, w := range words {
			score += strings.Count(padded, w)
		}
		if score > bestScore {
			bestScore = score
			best = lang
		}
	}
	return best
}

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText_CollapsesWhitespaceAndStripsControlChars(t *testing.T) {
	input := "Hello\x00  world\n\n\n\nagain\t\t"
	out := NormalizeText(input)
	assert.Equal(t, "Hello world\n\nagain", out)
}

func TestDetectLanguage_RecognizesEnglishAndSpanish(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage("The government and the president announced the plan for the country"))
	assert.Equal(t, "es", DetectLanguage("El gobierno y la presidenta anunciaron el plan para el pais que es importante"))
}

func TestDetectLanguage_FallsBackToUndetermined(t *testing.T) {
	assert.Equal(t, "und", DetectLanguage("xyzzy plugh qux"))
}

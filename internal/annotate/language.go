package annotate

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// DefaultLanguages are the languages the sources publish in, plus the
// neighbours most often confused with them.
var DefaultLanguages = []lingua.Language{
	lingua.Spanish,
	lingua.English,
	lingua.Portuguese,
	lingua.Italian,
	lingua.French,
	lingua.German,
}

// LanguageDetector guesses the ISO 639-1 language of article text.
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

func NewLanguageDetector(languages ...lingua.Language) *LanguageDetector {
	if len(languages) < 2 {
		languages = DefaultLanguages
	}
	return &LanguageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.25).
			Build(),
	}
}

// Detect returns a lower-case ISO 639-1 code, or fallback when the text is
// too short or ambiguous to call.
func (d *LanguageDetector) Detect(text, fallback string) string {
	if d == nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return fallback
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

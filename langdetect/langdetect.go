// Package langdetect identifies the language of dictated text.
package langdetect

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	_ "github.com/pemistahl/lingua-go/language-models/ar"
	_ "github.com/pemistahl/lingua-go/language-models/de"
	_ "github.com/pemistahl/lingua-go/language-models/en"
	_ "github.com/pemistahl/lingua-go/language-models/es"
	_ "github.com/pemistahl/lingua-go/language-models/fr"
	_ "github.com/pemistahl/lingua-go/language-models/hi"
	_ "github.com/pemistahl/lingua-go/language-models/it"
	_ "github.com/pemistahl/lingua-go/language-models/ja"
	_ "github.com/pemistahl/lingua-go/language-models/ko"
	_ "github.com/pemistahl/lingua-go/language-models/nl"
	_ "github.com/pemistahl/lingua-go/language-models/pl"
	_ "github.com/pemistahl/lingua-go/language-models/pt"
	_ "github.com/pemistahl/lingua-go/language-models/ru"
	_ "github.com/pemistahl/lingua-go/language-models/tr"
	_ "github.com/pemistahl/lingua-go/language-models/vi"
	_ "github.com/pemistahl/lingua-go/language-models/zh"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Unknown is returned when no language could be determined.
const Unknown = "auto"

// minRunes is the shortest text worth classifying.
const minRunes = 3

var languages = []lingua.Language{
	lingua.English,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Dutch,
	lingua.Polish,
	lingua.Turkish,
	lingua.Arabic,
	lingua.Hindi,
	lingua.Vietnamese,
}

var (
	detector     lingua.LanguageDetector
	detectorOnce sync.Once
)

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code and English name of the language of
// text, or Unknown and an empty name.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minRunes {
		return Unknown, ""
	}

	lang, ok := getDetector().DetectLanguageOf(text)
	if !ok {
		return Unknown, ""
	}

	code = strings.ToLower(lang.IsoCode639_1().String())
	return code, Name(code)
}

// Name returns the English display name for an ISO 639 code, or the code
// itself when it is not recognised.
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if n := display.English.Languages().Name(tag); n != "" {
		return n
	}
	return code
}

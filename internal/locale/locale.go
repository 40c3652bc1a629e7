// Package locale resolves the UI language selection to a language tag and a
// human readable name.
package locale

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// Tag returns the language tag for a selection. Automatic follows the
// system locale.
func Tag(l models.Language) language.Tag {
	switch l {
	case models.LanguageEnglish:
		return language.AmericanEnglish
	default:
		return SystemTag()
	}
}

// DisplayName is the caption for the language button. Automatic is shown
// as such; explicit selections use the language's own name for itself.
func DisplayName(l models.Language) string {
	if l == models.LanguageAutomatic {
		return "Automatic"
	}
	tag := Tag(l)
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return tag.String()
}

// SystemTag reads the POSIX locale environment (LC_ALL, LC_MESSAGES, LANG)
// and falls back to American English.
func SystemTag() language.Tag {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag, ok := parsePOSIX(os.Getenv(key)); ok {
			return tag
		}
	}
	return language.AmericanEnglish
}

// parsePOSIX converts values like "de_DE.UTF-8@euro" to a BCP 47 tag.
func parsePOSIX(v string) (language.Tag, bool) {
	if v == "" || v == "C" || v == "POSIX" {
		return language.Und, false
	}
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

package locale_test

import (
	"testing"

	"golang.org/x/text/language"

	"github.com/Planetworks/DarkMultiPlayer/internal/locale"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

func TestSystemTag(t *testing.T) {
	tests := []struct {
		name    string
		lcAll   string
		lang    string
		wantTag language.Tag
	}{
		{"lang with encoding", "", "de_DE.UTF-8", language.MustParse("de-DE")},
		{"lc_all wins", "fr_FR", "de_DE.UTF-8", language.MustParse("fr-FR")},
		{"posix falls back", "", "C", language.AmericanEnglish},
		{"modifier stripped", "", "ca_ES@valencia", language.MustParse("ca-ES")},
		{"unset", "", "", language.AmericanEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LC_ALL", tt.lcAll)
			t.Setenv("LC_MESSAGES", "")
			t.Setenv("LANG", tt.lang)
			if got := locale.SystemTag(); got.String() != tt.wantTag.String() {
				t.Errorf("SystemTag() = %v, want %v", got, tt.wantTag)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := locale.DisplayName(models.LanguageAutomatic); got != "Automatic" {
		t.Errorf("DisplayName(Automatic) = %q, want %q", got, "Automatic")
	}
	if got := locale.DisplayName(models.LanguageEnglish); got == "" || got == "Automatic" {
		t.Errorf("DisplayName(English) = %q, want a language name", got)
	}
	if got := locale.Tag(models.LanguageEnglish); got.String() != language.AmericanEnglish.String() {
		t.Errorf("Tag(English) = %v, want en-US", got)
	}
}

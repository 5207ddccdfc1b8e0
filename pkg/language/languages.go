package language

import (
	"sort"

	"github.com/go-go-golems/grillo/pkg/errdefs"
)

type Language struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	Flag string `json:"flag" yaml:"flag"`
}

const DefaultCode = "fr"

var supported = map[string]Language{
	"en_US": {Code: "en_US", Name: "English (US)", Flag: "🇺🇸"},
	"en_UK": {Code: "en_UK", Name: "English (UK)", Flag: "🇬🇧"},
	"fr":    {Code: "fr", Name: "Français", Flag: "🇫🇷"},
	"es":    {Code: "es", Name: "Español", Flag: "🇪🇸"},
	"de":    {Code: "de", Name: "Deutsch", Flag: "🇩🇪"},
	"it":    {Code: "it", Name: "Italiano", Flag: "🇮🇹"},
	"pt":    {Code: "pt", Name: "Português", Flag: "🇧🇷"},
	"zh":    {Code: "zh", Name: "中文", Flag: "🇨🇳"},
	"ja":    {Code: "ja", Name: "日本語", Flag: "🇯🇵"},
	"ru":    {Code: "ru", Name: "Русский", Flag: "🇷🇺"},
	"ar":    {Code: "ar", Name: "العربية", Flag: "🇸🇦"},
	"ko":    {Code: "ko", Name: "한국어", Flag: "🇰🇷"},
	"hi":    {Code: "hi", Name: "हिंदी", Flag: "🇮🇳"},
}

// Lookup returns the language for code, or an UnsupportedLanguageError.
func Lookup(code string) (Language, error) {
	l, ok := supported[code]
	if !ok {
		return Language{}, &errdefs.UnsupportedLanguageError{Code: code}
	}
	return l, nil
}

// Supported lists the supported languages sorted by code.
func Supported() []Language {
	ret := make([]Language, 0, len(supported))
	for _, l := range supported {
		ret = append(ret, l)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Code < ret[j].Code
	})
	return ret
}

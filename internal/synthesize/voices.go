package synthesize

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"echvid/internal/services"
)

// Gender selects the synthesized voice.
type Gender string

const (
	GenderNeutral Gender = "NEUTRAL"
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
)

// ParseGender accepts any casing; blank selects the neutral voice.
func ParseGender(value string) (Gender, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(GenderNeutral):
		return GenderNeutral, nil
	case string(GenderMale):
		return GenderMale, nil
	case string(GenderFemale):
		return GenderFemale, nil
	default:
		return "", services.Wrap(services.ErrSynthesis, "synthesize", "voice",
			fmt.Sprintf("Unsupported voice gender %q", value), nil)
	}
}

// voiceLocales pins the locale used for bare language codes.
var voiceLocales = map[string]string{
	"ar": "ar-XA",
	"en": "en-US",
	"fr": "fr-FR",
	"de": "de-DE",
	"es": "es-ES",
	"tr": "tr-TR",
	"it": "it-IT",
	"ru": "ru-RU",
	"zh": "zh-CN",
	"hi": "hi-IN",
}

// VoiceLocale maps a language code to the locale the synthesis service
// expects. Codes outside the pinned table resolve to their most likely region.
func VoiceLocale(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", services.Wrap(services.ErrSynthesis, "synthesize", "voice", "Target language is required", nil)
	}
	if locale, ok := voiceLocales[strings.ToLower(code)]; ok {
		return locale, nil
	}
	tag, err := language.Parse(code)
	if err != nil || tag == language.Und {
		return "", services.Wrap(services.ErrSynthesis, "synthesize", "voice",
			fmt.Sprintf("Unsupported language %q", code), err)
	}
	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence == language.Exact {
		return base.String() + "-" + region.String(), nil
	}
	if locale, ok := voiceLocales[base.String()]; ok {
		return locale, nil
	}
	if confidence == language.No || region.String() == "ZZ" {
		return "", services.Wrap(services.ErrSynthesis, "synthesize", "voice",
			fmt.Sprintf("No voice region known for %q", code), nil)
	}
	return base.String() + "-" + region.String(), nil
}

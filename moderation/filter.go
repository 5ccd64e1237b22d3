package moderation

import (
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// Sanitized is message content after the filter ran.
type Sanitized struct {
	Content  string
	Language string
	Censored []string
}

// Filter prepares message content before it is persisted: optional censoring,
// then ISO 639-1 language tagging of what is left.
type Filter struct {
	moderator *Moderator
	log       *slog.Logger
}

// NewFilter builds a filter. A nil moderator disables censoring.
func NewFilter(moderator *Moderator, log *slog.Logger) Filter {
	return Filter{moderator: moderator, log: log}
}

func (f Filter) Apply(content string) Sanitized {
	res := Sanitized{Content: content}
	if f.moderator != nil {
		res.Content, res.Censored = f.moderator.Censor(content)
		if len(res.Censored) > 0 {
			f.log.Debug("Message censored", "words", len(res.Censored))
		}
	}
	res.Language = DetectLanguage(res.Content)
	return res
}

// DetectLanguage returns the ISO 639-1 code of the text, or "" when detection isn't reliable.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

package validation

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// injectionPatterns match instruction-like phrases that have no place in filing text
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|everything)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+an?\b`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are\s+)?an?\s+(assistant|model|ai)\b`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)mark\s+(all|every)\s+(rows?|entries|items)\s+as\s+(valid|correct|passed)`),
}

// DetectInjection returns the instruction-like phrases found in text, in pattern order.
// Filing content is embedded in prompts verbatim, so hits are reported, not removed.
func DetectInjection(text string) []string {
	var found []string
	for _, p := range injectionPatterns {
		if m := p.FindString(text); m != "" {
			found = append(found, strings.ToLower(strings.Join(strings.Fields(m), " ")))
		}
	}
	return found
}

// screen logs a warning when content about to be sent to the model looks like an
// injection attempt. Processing continues either way.
func screen(log *zap.Logger, source, content string) {
	if hits := DetectInjection(content); len(hits) > 0 {
		log.Warn("validation: instruction-like text in filing content",
			zap.String("source", source),
			zap.Strings("phrases", hits),
		)
	}
}

// Package text cleans model output before it is handed to a speech engine.
//
// The Sanitizer is a narrow denylist: it removes content that sounds bad when
// read aloud (links, addresses, paths, opaque tokens, markup) and bounds the
// length of what is spoken. It is not a general text normalizer.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultPlaceholder is spoken when nothing readable survives cleaning.
	DefaultPlaceholder = "处理完成"
	// MaxSpokenLength is the rune cap applied before the truncation marker.
	MaxSpokenLength = 200
	// TruncationMarker is appended when the text exceeds MaxSpokenLength.
	TruncationMarker = "..."
	// MinReadableLength is the rune count below which the fallback kicks in.
	MinReadableLength = 5
	// FallbackLength is the rune cap of the fallback text.
	FallbackLength = 100
	// OpaqueTokenLength is the minimum length of an alphanumeric run that is
	// treated as an identifier, hash or key rather than a word.
	OpaqueTokenLength = 30
)

// Regex patterns for the cleaning pipeline.
const (
	urlRegexPattern        = `https?://\S+`
	emailRegexPattern      = `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`
	drivePathRegexPattern  = `\b[A-Za-z]:[\\/]\S*`
	opaqueTokenFormat      = `\b[A-Za-z0-9]{%d,}\b`
	keyValueRegexPattern   = `[\p{L}\p{N}_]+=\S+`
	markupTagRegexPattern  = `<[^>]+>`
	codeFenceRegexPattern  = "```\\w*\\n?"
	inlineCodeRegexPattern = "`([^`]*)`"
	fallbackStripPattern   = "[`<>{}\\[\\]]"
)

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithPlaceholder overrides the phrase used when nothing readable remains.
// An empty placeholder makes Sanitize return "" for such input.
func WithPlaceholder(placeholder string) Option {
	return func(s *Sanitizer) {
		s.placeholder = placeholder
	}
}

// Sanitizer turns arbitrary model output into text that is pleasant to speak.
type Sanitizer struct {
	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	drivePathPattern  *regexp.Regexp
	opaquePattern     *regexp.Regexp
	keyValuePattern   *regexp.Regexp
	markupTagPattern  *regexp.Regexp
	codeFencePattern  *regexp.Regexp
	inlineCodePattern *regexp.Regexp
	fallbackPattern   *regexp.Regexp
	placeholder       string
}

// NewSanitizer compiles the cleaning patterns once so the returned value can
// be shared between goroutines.
func NewSanitizer(opts ...Option) *Sanitizer {
	sanitizer := &Sanitizer{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		drivePathPattern:  regexp.MustCompile(drivePathRegexPattern),
		opaquePattern:     regexp.MustCompile(fmt.Sprintf(opaqueTokenFormat, OpaqueTokenLength)),
		keyValuePattern:   regexp.MustCompile(keyValueRegexPattern),
		markupTagPattern:  regexp.MustCompile(markupTagRegexPattern),
		codeFencePattern:  regexp.MustCompile(codeFenceRegexPattern),
		inlineCodePattern: regexp.MustCompile(inlineCodeRegexPattern),
		fallbackPattern:   regexp.MustCompile(fallbackStripPattern),
		placeholder:       DefaultPlaceholder,
	}

	for _, opt := range opts {
		opt(sanitizer)
	}

	return sanitizer
}

// Sanitize runs the cleaning pipeline. The order of the steps matters: each
// one works on what the previous steps left behind.
func (s *Sanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := s.removeTechnicalContent(raw)
	cleaned = s.stripMarkup(cleaned)
	cleaned = collapseWhitespace(cleaned)

	if utf8.RuneCountInString(cleaned) < MinReadableLength {
		cleaned = s.fallback(raw)
	}

	return truncate(cleaned)
}

// removeTechnicalContent drops links, addresses, paths, opaque tokens and
// key=value fragments.
func (s *Sanitizer) removeTechnicalContent(text string) string {
	text = s.urlPattern.ReplaceAllString(text, "")
	text = s.emailPattern.ReplaceAllString(text, "")
	text = s.drivePathPattern.ReplaceAllString(text, "")
	text = s.opaquePattern.ReplaceAllString(text, "")

	return s.keyValuePattern.ReplaceAllString(text, "")
}

// stripMarkup removes tags and code delimiters but keeps the code itself.
func (s *Sanitizer) stripMarkup(text string) string {
	text = s.markupTagPattern.ReplaceAllString(text, "")
	text = s.codeFencePattern.ReplaceAllString(text, "")

	return s.inlineCodePattern.ReplaceAllString(text, "${1}")
}

// fallback recovers something speakable from the original input when the
// pipeline removed almost everything. Links are never spoken, even here.
func (s *Sanitizer) fallback(raw string) string {
	recovered := s.urlPattern.ReplaceAllString(raw, "")
	recovered = collapseWhitespace(s.fallbackPattern.ReplaceAllString(recovered, ""))
	recovered = firstRunes(recovered, FallbackLength)

	if recovered == "" {
		return s.placeholder
	}

	return recovered
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxSpokenLength {
		return text
	}

	return firstRunes(text, MaxSpokenLength) + TruncationMarker
}

func firstRunes(text string, limit int) string {
	count := 0
	for index := range text {
		if count == limit {
			return text[:index]
		}

		count++
	}

	return text
}

// Package moderation screens chat messages for content that should not be
// passed on to a stranger.
package moderation

import (
	"strings"
)

// DefaultNotice is sent back to the author of a held message.
const DefaultNotice = "Your message was flagged as unsafe and not sent."

// DefaultKeywords are phrases indicating self-harm.
var DefaultKeywords = []string{
	"kill myself", "end my life", "hurt myself", "self harm", "suicide",
	"cut myself", "want to die", "no reason to live", "take my life",
}

// Config represents the moderation config.
type Config struct {
	Enabled  bool     `koanf:"enabled"`
	Keywords []string `koanf:"keywords"`
	Notice   string   `koanf:"notice"`
}

// Keywords flags messages containing any of a set of phrases,
// case-insensitively and regardless of spacing.
type Keywords struct {
	words  []string
	notice string
}

// New returns a keyword filter. Empty keywords or notice fall back to the
// defaults.
func New(cfg Config) *Keywords {
	words := cfg.Keywords
	if len(words) == 0 {
		words = DefaultKeywords
	}

	k := &Keywords{
		words:  make([]string, 0, len(words)),
		notice: cfg.Notice,
	}
	for _, w := range words {
		if w = normalize(w); w != "" {
			k.words = append(k.words, w)
		}
	}
	if k.notice == "" {
		k.notice = DefaultNotice
	}
	return k
}

// Flagged reports whether text contains a flagged phrase.
func (k *Keywords) Flagged(text string) bool {
	t := normalize(text)
	for _, w := range k.words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// Notice returns the message sent to the author of a flagged message.
func (k *Keywords) Notice() string {
	return k.notice
}

// normalize lowercases s and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

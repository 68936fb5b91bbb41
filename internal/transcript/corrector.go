package transcript

import "strings"

// VocabularyCorrector implements [Corrector] using case-insensitive token
// substitution, extended with a pluggable [Matcher] for phonetic/fuzzy
// tolerance on near-miss STT output.
//
// VocabularyCorrector is safe for concurrent use.
type VocabularyCorrector struct {
	matcher Matcher
}

var _ Corrector = (*VocabularyCorrector)(nil)

// NewCorrector constructs a [VocabularyCorrector]. matcher may be nil, in
// which case only exact case-insensitive substitution is performed.
func NewCorrector(matcher Matcher) *VocabularyCorrector {
	return &VocabularyCorrector{matcher: matcher}
}

// Correct tokenises text and, at each position, tries n-gram windows from the
// longest vocabulary entry's word count down to one, preferring the longest
// match so multi-word vocabulary entries take precedence over partial
// single-word ones. A window is substituted when it matches a vocabulary
// entry case-insensitively, or — failing that — when the configured Matcher
// accepts it.
func (c *VocabularyCorrector) Correct(text string, vocabulary []string) Result {
	result := Result{Original: text, Text: text}

	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(vocabulary) == 0 {
		return result
	}

	exact := make(map[string]string, len(vocabulary))
	maxWords := 1
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		exact[strings.ToLower(v)] = v
		if n := len(strings.Fields(v)); n > maxWords {
			maxWords = n
		}
	}

	var output []string
	var subs []Substitution

	i := 0
	for i < len(tokens) {
		maxN := maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")

			if canon, ok := exact[strings.ToLower(window)]; ok {
				if canon != window {
					subs = append(subs, Substitution{Original: window, Corrected: canon, Confidence: 1})
				}
				output = append(output, strings.Fields(canon)...)
				i += n
				matched = true
				break
			}

			if c.matcher != nil {
				if canon, conf, ok := c.matcher.Match(window, vocabulary); ok {
					output = append(output, strings.Fields(canon)...)
					subs = append(subs, Substitution{Original: window, Corrected: canon, Confidence: conf})
					i += n
					matched = true
					break
				}
			}
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	result.Text = strings.Join(output, " ")
	result.Substitutions = subs
	return result
}

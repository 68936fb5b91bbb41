// Package transcript implements the vocabulary-correction post-pass applied
// to STT output.
//
// Raw speech-to-text output is rarely perfect for domain-specific proper
// nouns — contact names, command keywords, product and project terms are
// frequently misheard. [Corrector] recovers them with case-insensitive token
// substitution against a configured vocabulary list, extended with a
// pluggable [Matcher] for phonetic/fuzzy tolerance on near-miss renderings.
// The pass runs in-process with no network calls.
package transcript

// Substitution records a single token or multi-word span that was replaced
// during vocabulary correction.
type Substitution struct {
	// Original is the span as it appeared in the STT output.
	Original string

	// Corrected is the vocabulary entry it was replaced with.
	Corrected string

	// Confidence is the matcher's confidence in the substitution, in
	// [0.0, 1.0]. Exact case-insensitive matches report 1.
	Confidence float64
}

// Result is the outcome of a [Corrector.Correct] call.
type Result struct {
	// Original is the text as received from the STT provider.
	Original string

	// Text is Original with all substitutions applied. Equal to Original
	// when no substitutions were made.
	Text string

	// Substitutions is the ordered list of spans that were replaced. It is
	// nil when no corrections were necessary.
	Substitutions []Substitution
}

// Matcher resolves a candidate word or phrase against a vocabulary list,
// returning the best match once its score clears the matcher's acceptance
// threshold.
//
// When matched is false, corrected must equal word unchanged and confidence
// must be 0. Implementations define their own similarity threshold for
// deciding when a match is "sufficient" and must be safe for concurrent use.
type Matcher interface {
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

// Corrector applies the vocabulary-correction post-pass to already-
// transcribed text. Implementations must be safe for concurrent use.
type Corrector interface {
	// Correct scans text for spans matching vocabulary, case-insensitively,
	// falling back to the configured [Matcher] for near-miss spans. vocabulary
	// is the list of known terms the corrector should recognise — command
	// names, contacts, or other session-relevant proper nouns.
	Correct(text string, vocabulary []string) Result
}

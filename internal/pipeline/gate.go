package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// defaultConversationWindow is W_conv: how long after an assistant response
// a speaker may continue without repeating the wake phrase.
const defaultConversationWindow = 60 * time.Second

// wakeScanDepth bounds how many leading tokens are scanned for a wake
// phrase, tolerating a short filler prefix ("uh, hey assistant...").
const wakeScanDepth = 5

// wakeFuzzyThreshold is the minimum per-token Jaro-Winkler similarity
// accepted in place of an exact match, tolerating STT mishears of the wake
// phrase itself ("jarvis" heard as "jarvus").
const wakeFuzzyThreshold = 0.84

// Gate implements the wake-word / conversation-window gate (C3). When
// disabled it admits every transcript unchanged. When enabled, a transcript
// from a speaker within the conversation window of that speaker's last
// assistant response is admitted unchanged; otherwise it is admitted only
// if one of the configured wake phrases appears within the first few
// tokens, with the phrase stripped from the returned text.
//
// Gate is safe for concurrent use.
type Gate struct {
	mu                 sync.Mutex
	enabled            bool
	wakePhrases        [][]string
	conversationWindow time.Duration
	lastResponse       map[string]time.Time
}

// NewGate constructs a [Gate]. phrases are matched case-insensitively on
// whitespace-separated tokens; a zero window falls back to the spec's
// 60-second default.
func NewGate(enabled bool, phrases []string, window time.Duration) *Gate {
	return &Gate{
		enabled:            enabled,
		wakePhrases:        tokenizePhrases(phrases),
		conversationWindow: normalizeWindow(window),
		lastResponse:       make(map[string]time.Time),
	}
}

// SetWakeConfig replaces the gate's enabled flag, wake phrases, and
// conversation window in place, for live config reload (§ GateConfig).
// Per-speaker conversation-window state is left untouched.
func (g *Gate) SetWakeConfig(enabled bool, phrases []string, window time.Duration) {
	tokenized := tokenizePhrases(phrases)
	window = normalizeWindow(window)

	g.mu.Lock()
	g.enabled = enabled
	g.wakePhrases = tokenized
	g.conversationWindow = window
	g.mu.Unlock()
}

func tokenizePhrases(phrases []string) [][]string {
	tokenized := make([][]string, 0, len(phrases))
	for _, p := range phrases {
		if fields := strings.Fields(p); len(fields) > 0 {
			tokenized = append(tokenized, fields)
		}
	}
	return tokenized
}

func normalizeWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return defaultConversationWindow
	}
	return window
}

// Admit decides whether a transcript from speakerID at time now should be
// dispatched. When admitted, it returns the transcript with any leading
// wake phrase stripped; when not, the second return value is empty and the
// caller must drop the utterance without treating it as an error.
func (g *Gate) Admit(text, speakerID string, now time.Time) (admit bool, cleaned string) {
	g.mu.Lock()
	enabled := g.enabled
	phrases := g.wakePhrases
	window := g.conversationWindow
	last, withinWindow := g.lastResponse[speakerID]
	g.mu.Unlock()

	if !enabled {
		return true, text
	}
	if withinWindow && now.Sub(last) < window {
		return true, text
	}

	tokens := strings.Fields(text)
	maxStart := wakeScanDepth
	if len(tokens) < maxStart {
		maxStart = len(tokens)
	}
	for start := 0; start < maxStart; start++ {
		for _, phrase := range phrases {
			if matchesAt(tokens, start, phrase) {
				remainder := strings.Join(tokens[start+len(phrase):], " ")
				return true, strings.TrimSpace(remainder)
			}
		}
	}
	return false, ""
}

// MarkAssistantResponded restarts the conversation window for speakerID.
// Callers must invoke this on every admitted dispatch, including error
// apologies, per the spec's conversation-window semantics.
func (g *Gate) MarkAssistantResponded(speakerID string, now time.Time) {
	g.mu.Lock()
	g.lastResponse[speakerID] = now
	g.mu.Unlock()
}

// matchesAt reports whether phrase occurs in tokens starting at index start.
// Each token pair is accepted on an exact case-insensitive match or, failing
// that, a Jaro-Winkler similarity above [wakeFuzzyThreshold] — tolerating
// the STT provider's occasional mishearing of the wake phrase itself.
func matchesAt(tokens []string, start int, phrase []string) bool {
	if start+len(phrase) > len(tokens) {
		return false
	}
	for i, want := range phrase {
		got := tokens[start+i]
		if strings.EqualFold(got, want) {
			continue
		}
		if matchr.JaroWinkler(strings.ToLower(got), strings.ToLower(want), false) < wakeFuzzyThreshold {
			return false
		}
	}
	return true
}

package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"
)

// stopPatterns are whole-transcript interrupt commands. Matching is
// case-insensitive and requires the full (trimmed) transcript to equal one
// of these, never a substring match — "I need to stop" does not interrupt.
var stopPatterns = map[string]struct{}{
	"stop":          {},
	"cancel":        {},
	"stop talking":  {},
	"that's enough": {},
	"hold on":       {},
	"wait":          {},
}

// TaskCanceller is the subset of the task manager (C5) the command router
// needs to service an interrupt.
type TaskCanceller interface {
	CancelAll() int
}

// Responder plays short, synthesized system utterances outside the normal
// per-task synthesis path: the interrupt confirmation and the wake-only
// chime.
type Responder interface {
	Speak(ctx context.Context, text string) error
	Chime(ctx context.Context) error
}

// CommandRouter implements the command router (C4): it recognizes interrupt
// commands and wake-only utterances before a transcript reaches the task
// manager.
type CommandRouter struct {
	canceller     TaskCanceller
	playback      PlaybackController
	responder     Responder
	markResponded func(speakerID string, now time.Time)
}

// NewCommandRouter constructs a [CommandRouter]. markResponded is called to
// reopen the conversation window on a wake-only utterance; it may be nil.
func NewCommandRouter(canceller TaskCanceller, playback PlaybackController, responder Responder, markResponded func(speakerID string, now time.Time)) *CommandRouter {
	return &CommandRouter{
		canceller:     canceller,
		playback:      playback,
		responder:     responder,
		markResponded: markResponded,
	}
}

// Handle inspects a gate-admitted transcript for an interrupt command or a
// wake-only utterance. It reports handled=true when it has fully serviced
// the transcript itself — the caller must not dispatch to the task manager
// in that case.
func (r *CommandRouter) Handle(ctx context.Context, text, speakerID string, now time.Time) (handled bool) {
	trimmed := strings.TrimSpace(text)

	if isStopCommand(trimmed) {
		cancelled := r.canceller.CancelAll()
		r.playback.Clear()
		slog.Debug("router: interrupt command handled", "speaker", speakerID, "tasksCancelled", cancelled)
		if err := r.responder.Speak(ctx, "Stopped."); err != nil {
			slog.Warn("router: failed to play stop confirmation", "error", err)
		}
		return true
	}

	if countSpeakable(trimmed) < 2 {
		if err := r.responder.Chime(ctx); err != nil {
			slog.Warn("router: failed to play wake chime", "error", err)
		}
		if r.markResponded != nil {
			r.markResponded(speakerID, now)
		}
		return true
	}

	return false
}

// isStopCommand reports whether text, trimmed of surrounding punctuation, is
// a whole-transcript match for a configured stop pattern.
func isStopCommand(text string) bool {
	normalized := strings.ToLower(strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	}))
	_, ok := stopPatterns[normalized]
	return ok
}

// countSpeakable counts letters and digits in text, ignoring punctuation and
// whitespace — used to detect a wake-only utterance with nothing left to
// dispatch after the wake phrase is stripped.
func countSpeakable(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

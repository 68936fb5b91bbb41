package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// handoffAbsenceNoteWindow bounds how recently the last user utterance must
// have happened for a present→absent transition with no in-flight tasks to
// produce a "session ended" note.
const handoffAbsenceNoteWindow = 2 * time.Minute

// handoffMarker prefixes every message C9 posts to the fallback text
// channel, distinguishing diverted assistant output from anything else
// posted there.
const handoffMarker = "[voice-assistant]"

// ActiveCounter reports the number of in-flight tasks. Implemented by
// [*TaskManager].
type ActiveCounter interface {
	ActiveCount() int
}

// HandoffRouter implements the handoff router (C9): it tracks whether the
// designated speaker is attached to the voice channel and, while absent,
// diverts assistant output that would otherwise be spoken to a fallback
// text channel. It also triggers the alert inbox's (C10) briefing on the
// presence transitions and idle points the spec describes.
//
// HandoffRouter is safe for concurrent use.
type HandoffRouter struct {
	platform VoicePlatform
	watched  string
	tasks    ActiveCounter
	playback PlaybackController
	alerts   *AlertInbox
	briefer  BriefingSpeaker

	mu              sync.Mutex
	present         bool
	lastUtterance   string
	lastUtteranceAt time.Time
}

// NewHandoffRouter constructs a [HandoffRouter] watching watchedUserID's
// presence. present0 is the speaker's presence state at construction time
// (a fresh voice session typically starts with the speaker already
// attached, since Join happens before the pipeline starts observing
// presence transitions).
func NewHandoffRouter(platform VoicePlatform, watchedUserID string, tasks ActiveCounter, playback PlaybackController, alerts *AlertInbox, briefer BriefingSpeaker, present0 bool) *HandoffRouter {
	return &HandoffRouter{
		platform: platform,
		watched:  watchedUserID,
		tasks:    tasks,
		playback: playback,
		alerts:   alerts,
		briefer:  briefer,
		present:  present0,
	}
}

// Run consumes presence events from the platform until ctx is cancelled or
// the channel closes. Callers normally run this in its own goroutine
// alongside the rest of the session.
func (h *HandoffRouter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.platform.Presence():
			if !ok {
				return
			}
			if ev.UserID != h.watched {
				continue
			}
			h.transition(ctx, ev.Present)
		}
	}
}

func (h *HandoffRouter) transition(ctx context.Context, present bool) {
	h.mu.Lock()
	was := h.present
	h.present = present
	quiescent := h.tasks.ActiveCount() == 0
	recent := !h.lastUtteranceAt.IsZero() && time.Since(h.lastUtteranceAt) < handoffAbsenceNoteWindow
	topic := h.lastUtterance
	h.mu.Unlock()

	if was == present {
		return
	}

	if !present {
		if quiescent && recent {
			_ = h.platform.PostText(ctx, "", fmt.Sprintf("%s Session ended. Last topic: %s", handoffMarker, topic))
		}
		return
	}

	h.MaybeBrief(ctx)
}

// Diverted reports whether assistant output should currently be diverted to
// the fallback text channel instead of synthesized and played.
func (h *HandoffRouter) Diverted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.present
}

// NoteUtterance records speakerID's transcript as the most recent user
// utterance, for the "session ended, last topic" note. Callers should
// invoke this once per dispatched transcript.
func (h *HandoffRouter) NoteUtterance(speakerID, text string, at time.Time) {
	h.mu.Lock()
	h.lastUtterance = text
	h.lastUtteranceAt = at
	h.mu.Unlock()
}

// Deliver posts fullText — a task's complete accumulated reply — to the
// fallback text channel, tagged as a handoff message. It is a no-op when
// fullText is empty.
func (h *HandoffRouter) Deliver(ctx context.Context, speakerID, fullText string) error {
	if fullText == "" {
		return nil
	}
	return h.platform.PostText(ctx, "", fmt.Sprintf("%s %s", handoffMarker, fullText))
}

// MaybeBrief synthesizes and plays a pending-alert briefing (C10) if the
// speaker is present, no task is in flight, playback is idle, and at least
// one alert is pending. It is safe to call after every task completion and
// on every absent→present transition; it is a no-op otherwise.
func (h *HandoffRouter) MaybeBrief(ctx context.Context) {
	h.mu.Lock()
	present := h.present
	h.mu.Unlock()

	if !present || h.tasks.ActiveCount() != 0 || h.playback.IsPlaying() || h.alerts == nil {
		return
	}

	briefing, ok := h.alerts.Drain()
	if !ok {
		return
	}
	briefing.Speak(ctx, h.briefer)
}

package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
)

type fakeHandoffPlatform struct {
	mu       sync.Mutex
	presence chan pipeline.PresenceEvent
	posted   []string
}

func newFakeHandoffPlatform() *fakeHandoffPlatform {
	return &fakeHandoffPlatform{presence: make(chan pipeline.PresenceEvent, 4)}
}

func (f *fakeHandoffPlatform) Join(context.Context, string, string) error { return nil }
func (f *fakeHandoffPlatform) Frames(string) <-chan pipeline.AudioFrame   { return nil }
func (f *fakeHandoffPlatform) Speaking() <-chan pipeline.SpeakingEvent    { return nil }
func (f *fakeHandoffPlatform) Presence() <-chan pipeline.PresenceEvent    { return f.presence }
func (f *fakeHandoffPlatform) Play(context.Context, []byte) error        { return nil }
func (f *fakeHandoffPlatform) Stop()                                      {}
func (f *fakeHandoffPlatform) Close() error                               { return nil }

func (f *fakeHandoffPlatform) PostText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, text)
	return nil
}

func (f *fakeHandoffPlatform) postedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

type fakeActiveCounter struct{ n int }

func (f *fakeActiveCounter) ActiveCount() int { return f.n }

type fakeHandoffPlayback struct{ playing bool }

func (f *fakeHandoffPlayback) IsPlaying() bool { return f.playing }
func (f *fakeHandoffPlayback) Clear()          {}

func TestHandoffRouter_DivertedReflectsPresence(t *testing.T) {
	platform := newFakeHandoffPlatform()
	h := pipeline.NewHandoffRouter(platform, "watched-user", &fakeActiveCounter{}, &fakeHandoffPlayback{}, nil, nil, true)

	if h.Diverted() {
		t.Fatal("expected not diverted while present0=true")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	platform.presence <- pipeline.PresenceEvent{UserID: "watched-user", Present: false}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !h.Diverted() {
		time.Sleep(time.Millisecond)
	}
	if !h.Diverted() {
		t.Fatal("expected diverted after watched user left")
	}
}

func TestHandoffRouter_IgnoresUnwatchedSpeaker(t *testing.T) {
	platform := newFakeHandoffPlatform()
	h := pipeline.NewHandoffRouter(platform, "watched-user", &fakeActiveCounter{}, &fakeHandoffPlayback{}, nil, nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	platform.presence <- pipeline.PresenceEvent{UserID: "someone-else", Present: false}
	time.Sleep(20 * time.Millisecond)

	if h.Diverted() {
		t.Fatal("expected an unwatched speaker's presence event to be ignored")
	}
}

func TestHandoffRouter_DeliverNoopOnEmptyText(t *testing.T) {
	platform := newFakeHandoffPlatform()
	h := pipeline.NewHandoffRouter(platform, "watched-user", &fakeActiveCounter{}, &fakeHandoffPlayback{}, nil, nil, true)

	if err := h.Deliver(context.Background(), "alice", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.postedCount() != 0 {
		t.Fatal("expected no text posted for empty reply")
	}
}

func TestHandoffRouter_DeliverPostsTaggedMessage(t *testing.T) {
	platform := newFakeHandoffPlatform()
	h := pipeline.NewHandoffRouter(platform, "watched-user", &fakeActiveCounter{}, &fakeHandoffPlayback{}, nil, nil, true)

	if err := h.Deliver(context.Background(), "alice", "the answer is 42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.postedCount() != 1 {
		t.Fatal("expected exactly one posted message")
	}
}

func TestHandoffRouter_MaybeBriefNoopWhenAbsentOrBusy(t *testing.T) {
	platform := newFakeHandoffPlatform()
	alerts := pipeline.NewAlertInbox()
	alerts.Push(pipeline.Alert{Message: "disk full", ReceivedAt: time.Now()})

	h := pipeline.NewHandoffRouter(platform, "watched-user", &fakeActiveCounter{n: 1}, &fakeHandoffPlayback{}, alerts, &fakeBriefingSpeaker{}, true)
	h.MaybeBrief(context.Background())

	if !alerts.Pending() {
		t.Fatal("expected the alert to remain queued while a task is active")
	}
}

func TestHandoffRouter_MaybeBriefSpeaksWhenIdleAndPresent(t *testing.T) {
	platform := newFakeHandoffPlatform()
	alerts := pipeline.NewAlertInbox()
	alerts.Push(pipeline.Alert{Message: "disk full", ReceivedAt: time.Now()})
	speaker := &fakeBriefingSpeaker{}

	h := pipeline.NewHandoffRouter(platform, "watched-user", &fakeActiveCounter{}, &fakeHandoffPlayback{}, alerts, speaker, true)
	h.MaybeBrief(context.Background())

	if alerts.Pending() {
		t.Fatal("expected the alert inbox drained once briefed")
	}
	if len(speaker.sentences) != 1 {
		t.Fatalf("sentences = %v, want one spoken briefing", speaker.sentences)
	}
}

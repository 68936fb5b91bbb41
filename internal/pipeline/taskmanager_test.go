package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts"
)

// newTestTaskManager wires a manager against a real [pipeline.BrainClient]/
// [pipeline.Synthesizer] pair whose provider is never actually exercised in
// these tests: every dispatch below uses an already-cancelled context, so
// [pipeline.BrainClient.Stream] returns on its ctx.Err() check before
// attempting any network call.
func newTestTaskManager(t *testing.T, playback pipeline.PlaybackController) *pipeline.TaskManager {
	t.Helper()
	brain := pipeline.NewBrainClient("", "unused", "gpt-4o-mini", "voicebridge-session")
	synth := pipeline.NewSynthesizer(&noopTTSProvider{}, tts.VoiceProfile{}, &fakeSink{})
	return pipeline.NewTaskManager(brain, synth, playback, 0, true, nil)
}

type noopTTSProvider struct{ calls int }

func (p *noopTTSProvider) Synthesize(context.Context, string, tts.VoiceProfile) ([]byte, error) {
	p.calls++
	return nil, nil
}

func TestTaskManager_DispatchReturnsIncrementingIDs(t *testing.T) {
	tm := newTestTaskManager(t, &fakePlaybackController{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := tm.Dispatch(ctx, "alice", "hello")
	second := tm.Dispatch(ctx, "alice", "hello again")

	if first != 1 || second != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", first, second)
	}
}

func TestTaskManager_DispatchedTaskCompletesAfterCancellation(t *testing.T) {
	tm := newTestTaskManager(t, &fakePlaybackController{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tm.Dispatch(ctx, "alice", "hello")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && tm.ActiveCount() != 0 {
		time.Sleep(time.Millisecond)
	}
	if tm.ActiveCount() != 0 {
		t.Fatal("expected the dispatched task to finish once its context was already cancelled")
	}
}

func TestTaskManager_CancelAllClearsTasksAndPlayback(t *testing.T) {
	playback := &fakePlaybackController{}
	tm := newTestTaskManager(t, playback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tm.Dispatch(ctx, "alice", "hello")
	tm.Dispatch(ctx, "bob", "hi")

	count := tm.CancelAll()
	if count != 2 {
		t.Fatalf("CancelAll() = %d, want 2", count)
	}
	if playback.cleared != 1 {
		t.Fatalf("playback cleared %d times, want 1", playback.cleared)
	}
	if tm.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0 after CancelAll", tm.ActiveCount())
	}
}

func TestTaskManager_CancelAllNoopWhenEmpty(t *testing.T) {
	tm := newTestTaskManager(t, &fakePlaybackController{})
	if count := tm.CancelAll(); count != 0 {
		t.Fatalf("CancelAll() = %d, want 0 on an empty manager", count)
	}
}

func TestTaskManager_PruneIdleNoopWithNoConversations(t *testing.T) {
	tm := newTestTaskManager(t, &fakePlaybackController{})
	tm.PruneIdle(time.Now().Add(time.Hour))
}

func TestTaskManager_SetStreamingTTSAppliesToNextDispatch(t *testing.T) {
	tm := newTestTaskManager(t, &fakePlaybackController{})
	tm.SetStreamingTTS(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tm.Dispatch(ctx, "alice", "hello")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && tm.ActiveCount() != 0 {
		time.Sleep(time.Millisecond)
	}
	if tm.ActiveCount() != 0 {
		t.Fatal("expected the dispatched task to finish after toggling streaming TTS off")
	}
}

package pipeline_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
)

// fakePlatform is a minimal VoicePlatform exercising only Frames/Speaking,
// the two methods the segmenter depends on.
type fakePlatform struct {
	speaking chan pipeline.SpeakingEvent
	frames   map[string]chan pipeline.AudioFrame
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		speaking: make(chan pipeline.SpeakingEvent, 8),
		frames:   make(map[string]chan pipeline.AudioFrame),
	}
}

func (f *fakePlatform) Join(context.Context, string, string) error { return nil }
func (f *fakePlatform) Frames(speakerID string) <-chan pipeline.AudioFrame {
	ch, ok := f.frames[speakerID]
	if !ok {
		ch = make(chan pipeline.AudioFrame, 32)
		f.frames[speakerID] = ch
	}
	return ch
}
func (f *fakePlatform) Speaking() <-chan pipeline.SpeakingEvent { return f.speaking }
func (f *fakePlatform) Play(context.Context, []byte) error      { return nil }
func (f *fakePlatform) Stop()                                   {}
func (f *fakePlatform) Presence() <-chan pipeline.PresenceEvent { return nil }
func (f *fakePlatform) PostText(context.Context, string, string) error { return nil }
func (f *fakePlatform) Close() error                            { return nil }

func (f *fakePlatform) pushFrame(speakerID string, pcm []byte, sampleRate int) {
	f.frames[speakerID] <- pipeline.AudioFrame{Data: pcm, SampleRate: sampleRate}
}

type fakePlaybackController struct {
	playing bool
	cleared int
}

func (p *fakePlaybackController) IsPlaying() bool { return p.playing }
func (p *fakePlaybackController) Clear()           { p.cleared++ }

// loudPCM returns n little-endian int16 samples at a fixed amplitude well
// above the RMS floor.
func loudPCM(n int, amplitude int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestSegmenter_EmitsUtteranceOnSilence(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   30 * time.Millisecond,
		MinDuration:     time.Millisecond,
		RMSFloor:        1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	platform.frames["spk1"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk1", Start: true}
	time.Sleep(5 * time.Millisecond)
	platform.pushFrame("spk1", loudPCM(1600, 5000), 16000)

	select {
	case u := <-seg.Utterances():
		if u.SpeakerID != "spk1" {
			t.Fatalf("SpeakerID = %q, want spk1", u.SpeakerID)
		}
		if len(u.PCM) == 0 {
			t.Fatal("expected non-empty PCM")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for utterance")
	}
}

func TestSegmenter_DiscardsBelowRMSFloor(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   30 * time.Millisecond,
		MinDuration:     0,
		RMSFloor:        5000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	platform.frames["spk1"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk1", Start: true}
	time.Sleep(5 * time.Millisecond)
	platform.pushFrame("spk1", loudPCM(1600, 10), 16000)

	select {
	case u := <-seg.Utterances():
		t.Fatalf("expected no utterance, got %+v", u)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSegmenter_DiscardsShorterThanMinDuration(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   30 * time.Millisecond,
		MinDuration:     time.Second,
		RMSFloor:        1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	platform.frames["spk1"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk1", Start: true}
	time.Sleep(5 * time.Millisecond)
	platform.pushFrame("spk1", loudPCM(160, 5000), 16000)

	select {
	case u := <-seg.Utterances():
		t.Fatalf("expected no utterance, got %+v", u)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSegmenter_IgnoresDisallowedSpeaker(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   30 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	platform.frames["intruder"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "intruder", Start: true}
	time.Sleep(10 * time.Millisecond)
	platform.pushFrame("intruder", loudPCM(1600, 5000), 16000)

	select {
	case u := <-seg.Utterances():
		t.Fatalf("expected no utterance for disallowed speaker, got %+v", u)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSegmenter_BargeInClearsPlaybackAfterSustainedSpeech(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{playing: true}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   time.Second,
		BargeInWindow:   20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	platform.frames["spk1"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk1", Start: true}

	time.Sleep(60 * time.Millisecond)
	if playback.cleared != 1 {
		t.Fatalf("cleared = %d, want 1", playback.cleared)
	}
}

func TestSegmenter_ShortBurstDoesNotTriggerBargeIn(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{playing: true}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   time.Second,
		BargeInWindow:   50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	platform.frames["spk1"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk1", Start: true}
	time.Sleep(10 * time.Millisecond)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk1", Start: false}

	time.Sleep(80 * time.Millisecond)
	if playback.cleared != 0 {
		t.Fatalf("cleared = %d, want 0 for a sub-barge-window burst", playback.cleared)
	}
}

func TestSegmenter_SetAllowedSpeakersAdmitsNewSpeaker(t *testing.T) {
	platform := newFakePlatform()
	playback := &fakePlaybackController{}
	seg := pipeline.NewSegmenter(platform, playback, pipeline.SegmenterConfig{
		AllowedSpeakers: map[string]struct{}{"spk1": {}},
		SilenceWindow:   30 * time.Millisecond,
		MinDuration:     time.Millisecond,
		RMSFloor:        1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seg.Run(ctx)

	seg.SetAllowedSpeakers(map[string]struct{}{"spk2": {}})

	platform.frames["spk2"] = make(chan pipeline.AudioFrame, 8)
	platform.speaking <- pipeline.SpeakingEvent{SpeakerID: "spk2", Start: true}
	time.Sleep(5 * time.Millisecond)
	platform.pushFrame("spk2", loudPCM(1600, 5000), 16000)

	select {
	case u := <-seg.Utterances():
		if u.SpeakerID != "spk2" {
			t.Fatalf("SpeakerID = %q, want spk2", u.SpeakerID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for utterance from the newly allowed speaker")
	}
}

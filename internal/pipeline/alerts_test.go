package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
)

type fakeBriefingSpeaker struct {
	sentences []string
}

func (f *fakeBriefingSpeaker) Sentence(_ context.Context, _ int64, sentence string) {
	f.sentences = append(f.sentences, sentence)
}

func TestAlertInbox_PendingFalseWhenEmpty(t *testing.T) {
	inbox := pipeline.NewAlertInbox()
	if inbox.Pending() {
		t.Fatal("expected Pending() false for a fresh inbox")
	}
}

func TestAlertInbox_DrainOrdersUrgentFirstThenOldest(t *testing.T) {
	inbox := pipeline.NewAlertInbox()
	now := time.Now()

	inbox.Push(pipeline.Alert{Priority: pipeline.AlertNormal, Message: "first normal", ReceivedAt: now})
	inbox.Push(pipeline.Alert{Priority: pipeline.AlertNormal, Message: "second normal", ReceivedAt: now.Add(time.Second)})
	inbox.Push(pipeline.Alert{Priority: pipeline.AlertUrgent, Message: "urgent one", ReceivedAt: now.Add(2 * time.Second)})

	briefing, ok := inbox.Drain()
	if !ok {
		t.Fatal("expected Drain to report pending alerts")
	}
	if briefing.Count != 3 {
		t.Fatalf("Count = %d, want 3", briefing.Count)
	}
	if !briefing.HasMostUrgent || briefing.MostUrgent.Message != "urgent one" {
		t.Fatalf("MostUrgent = %+v, want the urgent alert first", briefing.MostUrgent)
	}

	if inbox.Pending() {
		t.Fatal("expected inbox empty after Drain")
	}
}

func TestAlertInbox_DrainFalseWhenEmpty(t *testing.T) {
	inbox := pipeline.NewAlertInbox()
	if _, ok := inbox.Drain(); ok {
		t.Fatal("expected Drain to report nothing pending on an empty inbox")
	}
}

func TestBriefing_SummaryNamesCountAndMostUrgent(t *testing.T) {
	single := pipeline.Briefing{Count: 1, HasMostUrgent: true, MostUrgent: pipeline.Alert{Message: "disk full"}}
	if got := single.Summary(); got != "You have one new alert: disk full." {
		t.Fatalf("Summary() = %q", got)
	}

	multi := pipeline.Briefing{Count: 3, HasMostUrgent: true, MostUrgent: pipeline.Alert{Message: "disk full"}}
	if got := multi.Summary(); got != "You have 3 new alerts. Most urgent: disk full." {
		t.Fatalf("Summary() = %q", got)
	}
}

func TestBriefing_SpeakNoopWhenEmpty(t *testing.T) {
	speaker := &fakeBriefingSpeaker{}
	pipeline.Briefing{}.Speak(context.Background(), speaker)
	if len(speaker.sentences) != 0 {
		t.Fatalf("sentences = %v, want none for an empty briefing", speaker.sentences)
	}
}

func TestBriefing_SpeakSpeaksSummary(t *testing.T) {
	speaker := &fakeBriefingSpeaker{}
	b := pipeline.Briefing{Count: 1, HasMostUrgent: true, MostUrgent: pipeline.Alert{Message: "disk full"}}
	b.Speak(context.Background(), speaker)
	if len(speaker.sentences) != 1 || speaker.sentences[0] != "You have one new alert: disk full." {
		t.Fatalf("sentences = %v", speaker.sentences)
	}
}

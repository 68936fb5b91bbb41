package pipeline

import (
	"strings"
	"testing"
)

func TestDrainSentences_EmitsCompleteSentencesOnly(t *testing.T) {
	var buf strings.Builder
	var got []string
	onSentence := func(s string) { got = append(got, s) }

	buf.WriteString("Hello there. How are")
	drainSentences(&buf, onSentence)

	if len(got) != 1 || got[0] != "Hello there." {
		t.Fatalf("got %v, want [\"Hello there.\"]", got)
	}

	buf.WriteString(" you? Fine.")
	drainSentences(&buf, onSentence)

	if len(got) != 3 {
		t.Fatalf("got %v, want 3 sentences total", got)
	}
	if got[1] != "How are you?" || got[2] != "Fine." {
		t.Fatalf("got %v, want [..., \"How are you?\", \"Fine.\"]", got)
	}
}

func TestDrainSentences_SkipsSubTwoCharSentences(t *testing.T) {
	var buf strings.Builder
	var got []string
	buf.WriteString("* ok. ")
	drainSentences(&buf, func(s string) { got = append(got, s) })
	if len(got) != 1 || got[0] != "ok." {
		t.Fatalf("got %v, want [\"ok.\"]", got)
	}
}

func TestDrainSentences_LeavesTrailingPartialInBuffer(t *testing.T) {
	var buf strings.Builder
	buf.WriteString("Done. And then")
	drainSentences(&buf, func(string) {})
	if buf.String() != " And then" {
		t.Fatalf("buf = %q, want trailing partial sentence retained", buf.String())
	}
}

func TestBuildParams_TruncatesToTrailingHistoryTurns(t *testing.T) {
	b := &BrainClient{model: "gpt-4o-mini", sessionUser: "voicebridge-session"}
	history := make([]HistoryEntry, 0, historyTurns+3)
	for i := 0; i < historyTurns+3; i++ {
		history = append(history, HistoryEntry{Role: RoleUser, Content: "turn"})
	}
	params := b.buildParams("current transcript", history)
	if len(params.Messages) != historyTurns+1 {
		t.Fatalf("len(Messages) = %d, want %d (trailing history + current transcript)", len(params.Messages), historyTurns+1)
	}
}

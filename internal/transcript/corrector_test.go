package transcript_test

import (
	"testing"

	"github.com/gregcmartin/claw-voice/internal/transcript"
	"github.com/gregcmartin/claw-voice/internal/transcript/phonetic"
)

func TestVocabularyCorrector_ExactCaseInsensitiveMatch(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil)
	vocabulary := []string{"Eldrinax"}

	result := c.Correct("connect to eldrinax now", vocabulary)
	if result.Text != "connect to Eldrinax now" {
		t.Errorf("Text = %q, want %q", result.Text, "connect to Eldrinax now")
	}
	if len(result.Substitutions) != 1 {
		t.Fatalf("Substitutions = %+v, want 1 entry", result.Substitutions)
	}
	if result.Substitutions[0].Confidence != 1 {
		t.Errorf("Confidence = %f, want 1", result.Substitutions[0].Confidence)
	}
}

func TestVocabularyCorrector_MultiWordExactMatch(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil)
	vocabulary := []string{"Tower of Whispers"}

	result := c.Correct("head to tower of whispers please", vocabulary)
	if result.Text != "head to Tower of Whispers please" {
		t.Errorf("Text = %q, want %q", result.Text, "head to Tower of Whispers please")
	}
}

func TestVocabularyCorrector_NoMatcherLeavesNearMissUncorrected(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil)
	vocabulary := []string{"Eldrinax"}

	result := c.Correct("connect to elder nacks now", vocabulary)
	if result.Text != result.Original {
		t.Errorf("Text = %q, want unchanged %q", result.Text, result.Original)
	}
	if len(result.Substitutions) != 0 {
		t.Errorf("Substitutions = %+v, want none", result.Substitutions)
	}
}

func TestVocabularyCorrector_FuzzyMatcherCorrectsNearMiss(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())
	vocabulary := []string{"Eldrinax"}

	result := c.Correct("connect to elder nacks now", vocabulary)
	if result.Text != "connect to Eldrinax now" {
		t.Errorf("Text = %q, want %q", result.Text, "connect to Eldrinax now")
	}
	if len(result.Substitutions) != 1 {
		t.Fatalf("Substitutions = %+v, want 1 entry", result.Substitutions)
	}
	if got := result.Substitutions[0].Original; got != "elder nacks" {
		t.Errorf("Original = %q, want %q", got, "elder nacks")
	}
}

func TestVocabularyCorrector_EmptyInputs(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())

	if result := c.Correct("", []string{"Eldrinax"}); result.Text != "" {
		t.Errorf("Text = %q, want empty", result.Text)
	}
	if result := c.Correct("hello there", nil); result.Text != "hello there" {
		t.Errorf("Text = %q, want unchanged", result.Text)
	}
}

func TestVocabularyCorrector_NoVocabularyHitsLeavesTextUnchanged(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())
	result := c.Correct("just a normal sentence", []string{"Eldrinax", "Grimjaw"})
	if result.Text != result.Original {
		t.Errorf("Text = %q, want unchanged %q", result.Text, result.Original)
	}
	if len(result.Substitutions) != 0 {
		t.Errorf("Substitutions = %+v, want none", result.Substitutions)
	}
}

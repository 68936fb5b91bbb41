package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gregcmartin/claw-voice/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("expected model 'eleven_multilingual_v2', got %q", p.model)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("expected outputFormat 'pcm_24000', got %q", p.outputFormat)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm, err := p.Synthesize(context.Background(), "", tts.VoiceProfile{ID: "voice-abc"})
	if err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}
	if pcm != nil {
		t.Errorf("expected nil PCM for empty text, got %d bytes", len(pcm))
	}
}

func TestSynthesize_EmptyVoiceID(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
}

func TestSynthesize_MockServer(t *testing.T) {
	wantPCM := []byte{0x10, 0x20, 0x30, 0x40}
	var gotReq ttsRequest
	var gotPath, gotAPIKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/pcm")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wantPCM)
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm, err := p.Synthesize(context.Background(), "Hello there", tts.VoiceProfile{ID: "voice-abc123"})
	if err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}
	if string(pcm) != string(wantPCM) {
		t.Errorf("pcm = %v, want %v", pcm, wantPCM)
	}
	if gotPath != "/v1/text-to-speech/voice-abc123" {
		t.Errorf("path = %q, want %q", gotPath, "/v1/text-to-speech/voice-abc123")
	}
	if gotAPIKey != "test-key" {
		t.Errorf("xi-api-key header = %q, want %q", gotAPIKey, "test-key")
	}
	if gotReq.Text != "Hello there" {
		t.Errorf("request text = %q, want %q", gotReq.Text, "Hello there")
	}
	if gotReq.VoiceSettings == nil || gotReq.VoiceSettings.Stability != 0.5 {
		t.Errorf("request voice settings = %+v, want stability 0.5", gotReq.VoiceSettings)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "voice-abc"}); err == nil {
		t.Error("expected error from 500 response, got nil")
	}
}

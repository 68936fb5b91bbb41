package deepgram_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gregcmartin/claw-voice/pkg/provider/stt"
	"github.com/gregcmartin/claw-voice/pkg/provider/stt/deepgram"
)

func newMockServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := deepgram.New(""); err == nil {
		t.Error("expected error for empty apiKey")
	}
}

func TestProvider_Transcribe_EmptyPCM(t *testing.T) {
	p, err := deepgram.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := p.Transcribe(context.Background(), nil, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "" {
		t.Errorf("Text = %q, want empty", result.Text)
	}
}

func TestProvider_Transcribe_TopAlternative(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, map[string]any{
		"results": map[string]any{
			"channels": []map[string]any{
				{"alternatives": []map[string]any{
					{"transcript": "hello world", "confidence": 0.97},
				}},
			},
		},
	})
	defer srv.Close()

	p, err := deepgram.New("test-key", deepgram.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.Transcribe(context.Background(), []byte{1, 2, 3, 4}, stt.Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Text = %q, want %q", result.Text, "hello world")
	}
	if result.Confidence != 0.97 {
		t.Errorf("Confidence = %v, want 0.97", result.Confidence)
	}
}

func TestProvider_Transcribe_NoAlternatives(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, map[string]any{
		"results": map[string]any{"channels": []map[string]any{}},
	})
	defer srv.Close()

	p, err := deepgram.New("test-key", deepgram.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.Transcribe(context.Background(), []byte{1, 2}, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "" {
		t.Errorf("Text = %q, want empty", result.Text)
	}
}

func TestProvider_Transcribe_ServerError(t *testing.T) {
	srv := newMockServer(t, http.StatusInternalServerError, nil)
	defer srv.Close()

	p, err := deepgram.New("test-key", deepgram.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), []byte{1, 2}, stt.Config{}); err == nil {
		t.Error("expected error from 500 response, got nil")
	}
}

package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/gregcmartin/claw-voice/internal/observe"
)

const (
	// brainTimeout bounds a single brain request end-to-end.
	brainTimeout = 60 * time.Second

	// historyTurns is K: how many trailing conversation entries accompany
	// the current transcript.
	historyTurns = 6

	// maxResponseTokens caps the brain's reply length.
	maxResponseTokens = 8192

	fallbackApology = "I'm having trouble connecting right now. Try again?"

	voiceInstruction = "Respond for spoken output: natural conversational speech, " +
		"no markdown, no bullet lists, no code blocks."
)

// BrainClient implements the brain client (C6): a streaming OpenAI-compatible
// chat completion call whose output is split into sentences as it arrives.
//
// BrainClient is safe for concurrent use.
type BrainClient struct {
	client      oai.Client
	model       string
	sessionUser string
}

// NewBrainClient constructs a [BrainClient] against baseURL (empty for the
// default OpenAI endpoint) using apiKey, model, and sessionUser — a stable
// per-deployment key sent as the request's user field.
func NewBrainClient(baseURL, apiKey, model, sessionUser string) *BrainClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &BrainClient{
		client:      oai.NewClient(opts...),
		model:       model,
		sessionUser: sessionUser,
	}
}

// Stream sends transcript plus the trailing historyTurns entries of history
// to the brain endpoint and invokes onSentence once per completed sentence
// as the streamed reply arrives, in order. It blocks until the stream ends,
// ctx is cancelled, or the per-request timeout elapses.
//
// On a transport error or non-2xx response before any text was produced,
// onSentence is called once with a short apology. If sentences were already
// emitted before the failure, they are left as-is and no apology follows —
// partial output is preserved, per the spec's error-handling policy.
func (b *BrainClient) Stream(ctx context.Context, transcript string, history []HistoryEntry, onSentence func(string)) {
	ctx, cancel := context.WithTimeout(ctx, brainTimeout)
	defer cancel()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	defer func() {
		observe.DefaultMetrics().BrainStreamDuration.Record(context.Background(), time.Since(start).Seconds())
	}()

	params := b.buildParams(transcript, history)
	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		slog.Warn("brain: failed to start stream", "error", err)
		onSentence(fallbackApology)
		return
	}
	defer stream.Close()

	var buf strings.Builder
	emitted := false

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		emitted = drainSentences(&buf, onSentence) || emitted
	}

	if err := stream.Err(); err != nil {
		slog.Warn("brain: stream ended with error", "error", err)
		if !emitted {
			onSentence(fallbackApology)
		}
		return
	}

	if remaining := cleanSentence(buf.String()); len(remaining) >= 2 {
		onSentence(remaining)
	}
}

// drainSentences extracts every complete sentence currently in buf — a run
// ending in '.', '!' or '?' followed by whitespace or by the end of the
// buffer — and emits it via
// onSentence when at least 2 characters remain after cleaning. Formatting
// markers (e.g. the `[[tts:...]]` macro) are stripped from the whole buffer
// before boundary detection runs, so a '.' inside a tag can't fire a false
// sentence break. Any trailing partial sentence stays in buf, already
// cleaned, for the next call. Reports whether at least one sentence was
// emitted.
func drainSentences(buf *strings.Builder, onSentence func(string)) bool {
	text := stripMarkdown(buf.String())
	start := 0
	emitted := false

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || isSentenceBreak(text[i+1]) {
				sentence := cleanSentence(text[start : i+1])
				if len(sentence) >= 2 {
					onSentence(sentence)
					emitted = true
				}
				start = i + 1
			}
		}
	}

	buf.Reset()
	buf.WriteString(text[start:])
	return emitted
}

func isSentenceBreak(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// buildParams assembles the chat completion request: the trailing
// historyTurns history entries, followed by the current transcript tagged
// with an instruction to respond for spoken output.
func (b *BrainClient) buildParams(transcript string, history []HistoryEntry) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion

	trimmed := history
	if len(trimmed) > historyTurns {
		trimmed = trimmed[len(trimmed)-historyTurns:]
	}
	for _, h := range trimmed {
		switch h.Role {
		case RoleAssistant:
			messages = append(messages, oai.AssistantMessage(h.Content))
		default:
			messages = append(messages, oai.UserMessage(h.Content))
		}
	}

	messages = append(messages, oai.UserMessage(voiceInstruction+"\n\n"+transcript))

	return oai.ChatCompletionNewParams{
		Model:                shared.ChatModel(b.model),
		Messages:             messages,
		MaxCompletionTokens:  param.NewOpt(int64(maxResponseTokens)),
		User:                 param.NewOpt(b.sessionUser),
	}
}

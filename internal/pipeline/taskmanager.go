package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gregcmartin/claw-voice/internal/observe"
)

const (
	// defaultHistoryCap is N: the bounded per-speaker conversation length.
	defaultHistoryCap = 40

	// conversationIdleTTL prunes a speaker's conversation after this much
	// inactivity.
	conversationIdleTTL = 30 * time.Minute

	ackText = "On it."
)

// conversation is one speaker's bounded, ordered turn history.
type conversation struct {
	mu           sync.Mutex
	history      []HistoryEntry
	lastActivity time.Time
}

// TaskManager implements the task manager (C5): it dispatches brain/synthesis
// work for admitted transcripts as independent, cancellable background
// tasks, and owns the per-speaker conversation history they read from and
// append to.
//
// TaskManager is safe for concurrent use.
type TaskManager struct {
	brain    *BrainClient
	synth    *Synthesizer
	playback PlaybackController
	sem      *semaphore.Weighted
	handoff  *HandoffRouter

	onResponded func(speakerID string, now time.Time)

	historyCap int

	mu           sync.Mutex
	nextID       int64
	tasks        map[int64]context.CancelFunc
	streamingTTS bool

	convMu        sync.Mutex
	conversations map[string]*conversation
}

// NewTaskManager constructs a [TaskManager]. maxConcurrent bounds how many
// brain/synthesis calls run at once system-wide; 0 means unbounded.
// streamingTTS selects whether a task synthesizes each sentence as soon as
// the brain client extracts it (true) or accumulates the full reply and
// synthesizes it as one segment once the stream ends (false); see
// [TaskManager.SetStreamingTTS]. onResponded, if non-nil, is invoked the
// first time a task produces speakable output (including the "On it." ack
// and an error apology), reopening the speaker's conversation window.
func NewTaskManager(brain *BrainClient, synth *Synthesizer, playback PlaybackController, maxConcurrent int64, streamingTTS bool, onResponded func(speakerID string, now time.Time)) *TaskManager {
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(maxConcurrent)
	}
	return &TaskManager{
		brain:         brain,
		synth:         synth,
		playback:      playback,
		sem:           sem,
		onResponded:   onResponded,
		historyCap:    defaultHistoryCap,
		tasks:         make(map[int64]context.CancelFunc),
		conversations: make(map[string]*conversation),
		streamingTTS:  streamingTTS,
	}
}

// SetStreamingTTS toggles whether tasks dispatched from now on synthesize
// per-sentence or accumulate the full brain reply into one synthesis call,
// for live config reload (§ StreamingTTSEnabled).
func (tm *TaskManager) SetStreamingTTS(enabled bool) {
	tm.mu.Lock()
	tm.streamingTTS = enabled
	tm.mu.Unlock()
}

// Dispatch starts a background task for transcript from speakerID: it
// appends a user entry to that speaker's conversation, takes a read-only
// snapshot for the task's lifetime (invariant I1), and returns the new
// task's id immediately without waiting for the brain or synthesis to run.
func (tm *TaskManager) Dispatch(ctx context.Context, speakerID, transcript string) int64 {
	tm.mu.Lock()
	tm.nextID++
	taskID := tm.nextID
	taskCtx, cancel := context.WithCancel(ctx)
	tm.tasks[taskID] = cancel
	ackFirst := len(tm.tasks) > 1
	streamingTTS := tm.streamingTTS
	tm.mu.Unlock()

	conv := tm.conversationFor(speakerID)
	conv.mu.Lock()
	conv.history = appendCapped(conv.history, HistoryEntry{Role: RoleUser, Content: transcript}, tm.historyCap)
	snapshot := append([]HistoryEntry(nil), conv.history...)
	conv.lastActivity = time.Now()
	conv.mu.Unlock()

	if h := tm.handoffRouter(); h != nil {
		h.NoteUtterance(speakerID, transcript, time.Now())
	}

	observe.DefaultMetrics().TasksDispatched.Add(context.Background(), 1)
	go tm.run(taskCtx, taskID, speakerID, transcript, snapshot, ackFirst, streamingTTS)
	return taskID
}

func (tm *TaskManager) handoffRouter() *HandoffRouter {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.handoff
}

// CancelAll triggers every in-flight task's cancellation, clears the task
// map, and clears the playback queue. It returns the number of tasks that
// were cancelled.
func (tm *TaskManager) CancelAll() int {
	tm.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(tm.tasks))
	for _, c := range tm.tasks {
		cancels = append(cancels, c)
	}
	count := len(tm.tasks)
	tm.tasks = make(map[int64]context.CancelFunc)
	tm.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	tm.playback.Clear()
	if count > 0 {
		observe.DefaultMetrics().TasksCancelled.Add(context.Background(), int64(count))
	}
	return count
}

// SetHandoff wires the handoff router (C9) into the task manager. Once set,
// every sentence a task produces is checked against the router's presence
// flag before synthesis, and the router's alert briefing (C10) is given a
// chance to run whenever a task finishes.
func (tm *TaskManager) SetHandoff(h *HandoffRouter) {
	tm.mu.Lock()
	tm.handoff = h
	tm.mu.Unlock()
}

// ActiveCount returns the number of tasks currently in flight.
func (tm *TaskManager) ActiveCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.tasks)
}

// PruneIdle drops conversations that have seen no activity for
// conversationIdleTTL as of now.
func (tm *TaskManager) PruneIdle(now time.Time) {
	tm.convMu.Lock()
	defer tm.convMu.Unlock()
	for speakerID, conv := range tm.conversations {
		conv.mu.Lock()
		idle := now.Sub(conv.lastActivity) > conversationIdleTTL
		conv.mu.Unlock()
		if idle {
			delete(tm.conversations, speakerID)
			observe.DefaultMetrics().ActiveConversations.Add(context.Background(), -1)
		}
	}
}

func (tm *TaskManager) run(ctx context.Context, taskID int64, speakerID, transcript string, history []HistoryEntry, ackFirst, streamingTTS bool) {
	defer tm.finish(taskID)

	var responded sync.Once
	markResponded := func() {
		if tm.onResponded != nil {
			responded.Do(func() { tm.onResponded(speakerID, time.Now()) })
		}
	}

	if ackFirst {
		tm.synth.Sentence(ctx, taskID, ackText)
		markResponded()
	}

	if tm.sem != nil {
		if err := tm.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer tm.sem.Release(1)
	}

	handoff := tm.handoffRouter()

	var full, diverted, pending strings.Builder
	tm.brain.Stream(ctx, transcript, history, func(sentence string) {
		if ctx.Err() != nil {
			return
		}
		full.WriteString(sentence)
		full.WriteString(" ")
		switch {
		case handoff != nil && handoff.Diverted():
			diverted.WriteString(sentence)
			diverted.WriteString(" ")
		case streamingTTS:
			tm.synth.Sentence(ctx, taskID, sentence)
		default:
			// Accumulate rather than synthesize per sentence; flushed as one
			// segment once the stream ends (StreamingTTSEnabled == false).
			pending.WriteString(sentence)
			pending.WriteString(" ")
		}
		markResponded()
	})

	if !streamingTTS && ctx.Err() == nil {
		if text := strings.TrimSpace(pending.String()); text != "" {
			tm.synth.Sentence(ctx, taskID, text)
		}
	}

	if handoff != nil {
		if text := strings.TrimSpace(diverted.String()); text != "" {
			_ = handoff.Deliver(context.Background(), speakerID, text)
		}
	}

	if ctx.Err() != nil {
		return
	}

	content := strings.TrimSpace(full.String())
	if content == "" {
		return
	}

	conv := tm.conversationFor(speakerID)
	conv.mu.Lock()
	conv.history = appendCapped(conv.history, HistoryEntry{Role: RoleAssistant, Content: content}, tm.historyCap)
	conv.lastActivity = time.Now()
	conv.mu.Unlock()
}

func (tm *TaskManager) finish(taskID int64) {
	tm.mu.Lock()
	delete(tm.tasks, taskID)
	tm.mu.Unlock()

	if h := tm.handoffRouter(); h != nil {
		h.MaybeBrief(context.Background())
	}
}

func (tm *TaskManager) conversationFor(speakerID string) *conversation {
	tm.convMu.Lock()
	defer tm.convMu.Unlock()
	conv, ok := tm.conversations[speakerID]
	if !ok {
		conv = &conversation{lastActivity: time.Now()}
		tm.conversations[speakerID] = conv
		observe.DefaultMetrics().ActiveConversations.Add(context.Background(), 1)
	}
	return conv
}

// appendCapped appends entry to history, evicting the oldest entries past
// capacity.
func appendCapped(history []HistoryEntry, entry HistoryEntry, capacity int) []HistoryEntry {
	history = append(history, entry)
	if len(history) > capacity {
		history = history[len(history)-capacity:]
	}
	return history
}

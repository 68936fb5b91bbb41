package pipeline

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gregcmartin/claw-voice/internal/observe"
)

// alertCap is M: the maximum number of alerts held at once. Past this,
// the oldest normal-priority alert is evicted first.
const alertCap = 50

// alertTTL bounds how long an undelivered alert is retained before it is
// dropped as stale.
const alertTTL = 4 * time.Hour

// AlertInbox implements the alert inbox (C10): a priority-ordered queue of
// externally-pushed notifications, delivered as a single spoken briefing on
// presence.
//
// AlertInbox is safe for concurrent use.
type AlertInbox struct {
	mu   sync.Mutex
	heap alertHeap
}

// NewAlertInbox constructs an empty [AlertInbox].
func NewAlertInbox() *AlertInbox {
	return &AlertInbox{}
}

// Push adds alert to the inbox, evicting expired entries and, if the inbox
// is at capacity, the oldest normal-priority entry (or, failing that, the
// oldest entry of any priority).
func (a *AlertInbox) Push(alert Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := len(a.heap)
	a.evictExpiredLocked(time.Now())
	heap.Push(&a.heap, alert)
	for len(a.heap) > alertCap {
		a.evictOneLocked()
	}
	a.recordQueueDeltaLocked(before)
}

// Pending reports whether at least one undelivered, unexpired alert is held.
func (a *AlertInbox) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	before := len(a.heap)
	a.evictExpiredLocked(time.Now())
	a.recordQueueDeltaLocked(before)
	return len(a.heap) > 0
}

// recordQueueDeltaLocked updates the queued-alerts gauge by the change in
// heap length since before, called with a.mu held.
func (a *AlertInbox) recordQueueDeltaLocked(before int) {
	if delta := len(a.heap) - before; delta != 0 {
		observe.DefaultMetrics().QueuedAlerts.Add(context.Background(), int64(delta))
	}
}

// Briefing describes a batch of alerts consumed for a single spoken
// summary.
type Briefing struct {
	Count        int
	MostUrgent   Alert
	HasMostUrgent bool
}

// Drain removes every pending alert (oldest-expired entries dropped first)
// and returns a [Briefing] summarizing them in delivery order: urgent
// before normal, oldest first within a priority (I6, P7). ok is false when
// nothing was pending.
func (a *AlertInbox) Drain() (briefing Briefing, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := len(a.heap)
	a.evictExpiredLocked(time.Now())
	if len(a.heap) == 0 {
		a.recordQueueDeltaLocked(before)
		return Briefing{}, false
	}

	briefing.MostUrgent = heap.Pop(&a.heap).(Alert)
	briefing.HasMostUrgent = true
	briefing.Count = 1
	for len(a.heap) > 0 {
		heap.Pop(&a.heap)
		briefing.Count++
	}
	a.recordQueueDeltaLocked(before)
	return briefing, true
}

// Summary renders a briefing as a short spoken sentence, per §8 scenario 6:
// it names the count and describes the most urgent item first.
func (b Briefing) Summary() string {
	if !b.HasMostUrgent {
		return ""
	}
	if b.Count == 1 {
		return fmt.Sprintf("You have one new alert: %s.", b.MostUrgent.Message)
	}
	return fmt.Sprintf("You have %d new alerts. Most urgent: %s.", b.Count, b.MostUrgent.Message)
}

func (a *AlertInbox) evictExpiredLocked(now time.Time) {
	kept := a.heap[:0]
	for _, al := range a.heap {
		if now.Sub(al.ReceivedAt) <= alertTTL {
			kept = append(kept, al)
		}
	}
	a.heap = kept
	heap.Init(&a.heap)
}

// evictOneLocked drops the oldest normal-priority alert, or, if none is
// normal priority, the oldest alert of any priority. Called with the inbox
// over capacity.
func (a *AlertInbox) evictOneLocked() {
	oldestNormal, oldestAny := -1, -1
	for i, al := range a.heap {
		if oldestAny == -1 || al.ReceivedAt.Before(a.heap[oldestAny].ReceivedAt) {
			oldestAny = i
		}
		if al.Priority == AlertNormal && (oldestNormal == -1 || al.ReceivedAt.Before(a.heap[oldestNormal].ReceivedAt)) {
			oldestNormal = i
		}
	}
	idx := oldestNormal
	if idx == -1 {
		idx = oldestAny
	}
	heap.Remove(&a.heap, idx)
}

// alertHeap is a max-heap ordered by priority desc, then received-at asc —
// the same container/heap shape as a mixer's priority queue, repurposed
// here to order alerts instead of audio segments.
type alertHeap []Alert

func (h alertHeap) Len() int { return len(h) }

func (h alertHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ReceivedAt.Before(h[j].ReceivedAt)
}

func (h alertHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *alertHeap) Push(x any) {
	*h = append(*h, x.(Alert))
}

func (h *alertHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// BriefingSpeaker synthesizes and plays a briefing summary outside any
// task's lifecycle. Implemented by a [*Synthesizer] paired with a fixed
// sentinel task id.
type BriefingSpeaker interface {
	Sentence(ctx context.Context, taskID int64, sentence string)
}

// briefingTaskID tags audio segments produced by an alert briefing rather
// than a dispatched task.
const briefingTaskID = -1

// Speak synthesizes and enqueues briefing's summary via speaker, tagging
// the resulting segment with the sentinel briefing task id.
func (b Briefing) Speak(ctx context.Context, speaker BriefingSpeaker) {
	if text := b.Summary(); text != "" {
		speaker.Sentence(ctx, briefingTaskID, text)
		observe.DefaultMetrics().AlertsDelivered.Add(ctx, int64(b.Count))
	}
}

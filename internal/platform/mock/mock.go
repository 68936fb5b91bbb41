// Package mock provides an in-memory [platform.Platform] double for tests
// that exercise the pipeline without a real voice-channel provider.
package mock

import (
	"context"
	"sync"

	"github.com/gregcmartin/claw-voice/internal/platform"
)

// Platform is a test double that hands out a single shared [*Connection]
// regardless of which (serverID, channelID) is requested.
type Platform struct {
	mu   sync.Mutex
	conn *Connection
}

// New returns a Platform backed by a fresh Connection.
func New() *Platform {
	return &Platform{conn: NewConnection()}
}

func (p *Platform) Connect(ctx context.Context, serverID, channelID string) (platform.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn, nil
}

// Conn exposes the underlying Connection so tests can drive input frames and
// assert on output frames directly.
func (p *Platform) Conn() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// Connection is an in-memory [platform.Connection] test double.
type Connection struct {
	mu       sync.RWMutex
	inputs   map[string]chan platform.AudioFrame
	speaking chan platform.SpeakingEvent
	output   chan platform.AudioFrame
	changeCb func(platform.Event)
	sent     []string
	closed   bool
}

// NewConnection returns an empty Connection with no participants.
func NewConnection() *Connection {
	return &Connection{
		inputs:   make(map[string]chan platform.AudioFrame),
		speaking: make(chan platform.SpeakingEvent, 32),
		output:   make(chan platform.AudioFrame, 64),
	}
}

// AddParticipant registers a new input channel for userID and fires the join
// callback, mirroring what a real platform adapter does on connect.
func (c *Connection) AddParticipant(userID string) chan platform.AudioFrame {
	c.mu.Lock()
	ch := make(chan platform.AudioFrame, 64)
	c.inputs[userID] = ch
	cb := c.changeCb
	c.mu.Unlock()

	if cb != nil {
		cb(platform.Event{Type: platform.EventJoin, UserID: userID})
	}
	return ch
}

// RemoveParticipant closes userID's input channel and fires the leave callback.
func (c *Connection) RemoveParticipant(userID string) {
	c.mu.Lock()
	ch, ok := c.inputs[userID]
	if ok {
		delete(c.inputs, userID)
	}
	cb := c.changeCb
	c.mu.Unlock()

	if ok {
		close(ch)
	}
	if cb != nil {
		cb(platform.Event{Type: platform.EventLeave, UserID: userID})
	}
}

// Speak pushes a speaking-state transition for userID.
func (c *Connection) Speak(userID string, speaking bool) {
	c.speaking <- platform.SpeakingEvent{UserID: userID, Speaking: speaking}
}

func (c *Connection) InputStreams() map[string]<-chan platform.AudioFrame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]<-chan platform.AudioFrame, len(c.inputs))
	for id, ch := range c.inputs {
		snap[id] = ch
	}
	return snap
}

func (c *Connection) SpeakingUpdates() <-chan platform.SpeakingEvent {
	return c.speaking
}

func (c *Connection) OutputStream() chan<- platform.AudioFrame {
	return c.output
}

// Output exposes the raw output channel so tests can drain assistant audio.
func (c *Connection) Output() <-chan platform.AudioFrame {
	return c.output
}

func (c *Connection) OnParticipantChange(cb func(platform.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeCb = cb
}

func (c *Connection) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

// SentText returns all text messages sent via SendText, in order.
func (c *Connection) SentText() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.inputs {
		close(ch)
	}
	c.inputs = nil
	close(c.speaking)
	return nil
}

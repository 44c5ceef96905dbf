// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the relay-chat application.
package testutil

import (
	"encoding/json"
	"sync"
	"testing"

	"relay-chat/internal/protocol"
)

// SentFrame records one delivery made through the MockGateway.
type SentFrame struct {
	Targets []string // connection ids; nil when All is set
	All     bool
	Data    []byte
}

// Type decodes the frame's event type.
func (f SentFrame) Type(t *testing.T) string {
	t.Helper()
	var env protocol.Envelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		t.Fatalf("failed to decode frame envelope: %v. Data: %s", err, f.Data)
	}
	return env.Type
}

// Payload decodes the frame's payload into out.
func (f SentFrame) Payload(t *testing.T, out any) {
	t.Helper()
	var env protocol.Envelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		t.Fatalf("failed to decode frame envelope: %v. Data: %s", err, f.Data)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		t.Fatalf("failed to decode %s payload: %v. Payload: %s", env.Type, err, env.Payload)
	}
}

// TargetsInclude reports whether the frame reaches the given connection.
func (f SentFrame) TargetsInclude(connID string) bool {
	if f.All {
		return true
	}
	for _, id := range f.Targets {
		if id == connID {
			return true
		}
	}
	return false
}

// MockGateway implements engine.Gateway and records every frame it is
// handed, in order. Safe for concurrent use.
type MockGateway struct {
	mu     sync.Mutex
	frames []SentFrame
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) Send(connID string, data []byte) {
	g.record(SentFrame{Targets: []string{connID}, Data: data})
}

func (g *MockGateway) SendMany(connIDs []string, data []byte) {
	targets := make([]string, len(connIDs))
	copy(targets, connIDs)
	g.record(SentFrame{Targets: targets, Data: data})
}

func (g *MockGateway) Broadcast(data []byte) {
	g.record(SentFrame{All: true, Data: data})
}

func (g *MockGateway) record(f SentFrame) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frames = append(g.frames, f)
}

// Frames returns a snapshot of all recorded frames in send order.
func (g *MockGateway) Frames() []SentFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	frames := make([]SentFrame, len(g.frames))
	copy(frames, g.frames)
	return frames
}

// FramesTo returns the frames that reach the given connection, in order.
func (g *MockGateway) FramesTo(connID string) []SentFrame {
	var out []SentFrame
	for _, f := range g.Frames() {
		if f.TargetsInclude(connID) {
			out = append(out, f)
		}
	}
	return out
}

// FramesOfType returns the frames carrying the given event type, in order.
func (g *MockGateway) FramesOfType(t *testing.T, eventType string) []SentFrame {
	t.Helper()
	var out []SentFrame
	for _, f := range g.Frames() {
		if f.Type(t) == eventType {
			out = append(out, f)
		}
	}
	return out
}

// Reset discards all recorded frames.
func (g *MockGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frames = nil
}

// Package workingmemory implements WorkingMemory (C6): a bounded ring
// buffer of conversation turns plus the current SessionState snapshot.
// Adapted from pkg/chat/service.go's thread/message bookkeeping
// (role, content, timestamps) generalized into an in-memory ring rather
// than a SQLite-backed thread/message table.
package workingmemory

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

// ConversationTurn is one role/content pair in the working-memory ring.
type ConversationTurn struct {
	Role      string // "user" | "assistant" | "system"
	Content   string
	Timestamp int64 // unix millis
}

// SessionState is the snapshot WorkingMemory keeps alongside the turn
// ring: session identity and the bookkeeping used for boundary
// detection.
type SessionState struct {
	SessionID        string
	StartedAt        int64
	LastInteractedAt int64
	SchemaVersion    int
}

const currentSchemaVersion = 1

// Buffer is the C6 WorkingMemory implementation. Not safe for concurrent
// use from more than one goroutine; UCM owns it per active session.
type Buffer struct {
	turns        []ConversationTurn
	capacity     int
	session      SessionState
	timeoutMins  int
	tokenEncoder *tiktoken.Tiktoken
	now          func() time.Time
}

// New creates a Buffer with the given ring capacity (default 20) and
// session timeout (default 120 minutes). A nil now defaults to
// time.Now; tests should inject a fixed clock.
func New(capacity, sessionTimeoutMinutes int, now func() time.Time) *Buffer {
	if capacity <= 0 {
		capacity = 20
	}
	if sessionTimeoutMinutes <= 0 {
		sessionTimeoutMinutes = 120
	}
	if now == nil {
		now = time.Now
	}
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	b := &Buffer{
		capacity:     capacity,
		timeoutMins:  sessionTimeoutMinutes,
		tokenEncoder: enc,
		now:          now,
	}
	b.startSession("")
	return b
}

func (b *Buffer) startSession(id string) {
	if id == "" {
		id = uuid.NewString()
	}
	now := b.now().UnixMilli()
	b.session = SessionState{
		SessionID:        id,
		StartedAt:        now,
		LastInteractedAt: now,
		SchemaVersion:    currentSchemaVersion,
	}
}

// Append adds a turn, evicting the oldest when the ring is at capacity.
// Detects a new session boundary (elapsed time since last interaction
// exceeds the configured timeout) and resets the ring before appending
// if so.
func (b *Buffer) Append(turn ConversationTurn) {
	now := b.now()
	elapsed := now.Sub(time.UnixMilli(b.session.LastInteractedAt))
	if elapsed > time.Duration(b.timeoutMins)*time.Minute {
		b.Clear()
	}
	if turn.Timestamp == 0 {
		turn.Timestamp = now.UnixMilli()
	}
	b.turns = append(b.turns, turn)
	if len(b.turns) > b.capacity {
		b.turns = b.turns[len(b.turns)-b.capacity:]
	}
	b.session.LastInteractedAt = turn.Timestamp
}

// Recent returns the k most recent turns, oldest first.
func (b *Buffer) Recent(k int) []ConversationTurn {
	if k <= 0 || k > len(b.turns) {
		k = len(b.turns)
	}
	out := make([]ConversationTurn, k)
	copy(out, b.turns[len(b.turns)-k:])
	return out
}

// Clear starts a fresh session and empties the ring (explicit reset, or
// the implicit one Append triggers on a timed-out session).
func (b *Buffer) Clear() {
	b.turns = b.turns[:0]
	b.startSession("")
}

// Session returns the current SessionState snapshot.
func (b *Buffer) Session() SessionState {
	return b.session
}

// EstimateTokens counts text's tokens with the cl100k_base tokenizer when
// available, falling back to a length/4 heuristic (the spec explicitly
// allows a simple estimator; this keeps the estimate in the same
// ballpark as the real LLM tokenizer without requiring it to match).
func (b *Buffer) EstimateTokens(text string) int {
	if b.tokenEncoder != nil {
		return len(b.tokenEncoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

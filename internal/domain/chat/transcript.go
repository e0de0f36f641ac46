package chat

import (
	"context"
	"sync"
	"time"

	"github.com/logiride/client/internal/domain/shared"
)

// Transcript is the in-memory, append-only message list of one conversation.
//
// Inbound messages that arrive before the history baseline is loaded are
// buffered and replayed in arrival order on top of it. Outbound messages are
// appended optimistically and their client key is remembered, so a server echo
// carrying the same key is dropped and the message appears exactly once.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	pending  []Message
	ready    bool
	seenIDs  map[string]struct{}
	sent     shared.IdempotencyStore
	sentTTL  time.Duration
}

// NewTranscript creates an empty transcript. sent remembers outbound client keys.
func NewTranscript(sent shared.IdempotencyStore, sentTTL time.Duration) *Transcript {
	if sentTTL <= 0 {
		sentTTL = shared.DefaultIdempotencyTTL
	}
	return &Transcript{
		seenIDs: make(map[string]struct{}),
		sent:    sent,
		sentTTL: sentTTL,
	}
}

// LoadBaseline installs the fetched history and replays buffered inbound
// messages. It returns the replayed messages that were appended. Calling it a
// second time is a no-op.
func (t *Transcript) LoadBaseline(ctx context.Context, history []Message) ([]Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ready {
		return nil, nil
	}
	for _, m := range history {
		t.appendLocked(m)
	}
	t.ready = true

	pending := t.pending
	t.pending = nil

	var replayed []Message
	var firstErr error
	for _, m := range pending {
		ok, err := t.acceptInboundLocked(ctx, m)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			replayed = append(replayed, m)
		}
	}
	return replayed, firstErr
}

// AppendOutbound appends a locally written message before it is emitted and
// remembers its client key.
func (t *Transcript) AppendOutbound(ctx context.Context, m Message) error {
	m.Role = RoleSelf
	if m.Status == "" {
		m.Status = StatusSent
	}

	var markErr error
	if m.ClientKey != "" && t.sent != nil {
		_, markErr = t.sent.MarkProcessed(ctx, m.ClientKey, t.sentTTL)
	}

	t.mu.Lock()
	t.appendLocked(m)
	t.mu.Unlock()
	return markErr
}

// AppendInbound appends a received message. It returns false when the message
// was buffered (baseline not loaded yet) or dropped as a duplicate.
func (t *Transcript) AppendInbound(ctx context.Context, m Message) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ready {
		t.pending = append(t.pending, m)
		return false, nil
	}
	return t.acceptInboundLocked(ctx, m)
}

// MarkFailed flags the outbound message with the given client key as not delivered
func (t *Transcript) MarkFailed(clientKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.messages {
		if t.messages[i].ClientKey == clientKey && t.messages[i].Role == RoleSelf {
			t.messages[i].Status = StatusFailed
			return true
		}
	}
	return false
}

// Messages returns a copy of the transcript in display order
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages in the transcript
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Ready reports whether the history baseline has been loaded
func (t *Transcript) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Pending returns the number of buffered inbound messages
func (t *Transcript) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Transcript) acceptInboundLocked(ctx context.Context, m Message) (bool, error) {
	if m.ID != "" {
		if _, dup := t.seenIDs[m.ID]; dup {
			return false, nil
		}
	}
	if m.ClientKey != "" && t.sent != nil {
		echoed, err := t.sent.IsProcessed(ctx, m.ClientKey)
		if err != nil {
			// Showing a possible duplicate beats losing a message.
			t.appendLocked(m)
			return true, err
		}
		if echoed {
			if m.ID != "" {
				t.seenIDs[m.ID] = struct{}{}
			}
			return false, nil
		}
	}
	t.appendLocked(m)
	return true, nil
}

func (t *Transcript) appendLocked(m Message) {
	if m.ID != "" {
		t.seenIDs[m.ID] = struct{}{}
	}
	t.messages = append(t.messages, m)
}

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/clinicops/internal/auth"
)

// Pin marks a message for quick access. Pins, reply and forward targets are
// kept per user and chat in memory only.
type Pin struct {
	MessageID string    `json:"messageId"`
	Note      string    `json:"note"`
	PinnedAt  time.Time `json:"pinnedAt"`
}

type bookkeeping struct {
	pins    []Pin
	reply   *Message
	forward *Message
}

func sessionKey(uid, chatID string) string { return uid + "|" + chatID }

func (c *Container) session(ctx context.Context, chatID string, create bool) (*bookkeeping, error) {
	principal, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	key := sessionKey(principal.UID, chatID)
	b, ok := c.sessions[key]
	if !ok && create {
		b = &bookkeeping{}
		c.sessions[key] = b
	}
	return b, nil
}

// TogglePin pins msg, or unpins it when already pinned. It reports the new state.
func (c *Container) TogglePin(ctx context.Context, chatID string, msg Message) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.session(ctx, chatID, true)
	if err != nil {
		return false, err
	}
	for i, p := range b.pins {
		if p.MessageID == msg.ID {
			b.pins = append(b.pins[:i], b.pins[i+1:]...)
			return false, nil
		}
	}
	b.pins = append(b.pins, Pin{MessageID: msg.ID, Note: msg.Message, PinnedAt: time.Now().UTC()})
	return true, nil
}

// Pins lists the caller's pins in pin order.
func (c *Container) Pins(ctx context.Context, chatID string) ([]Pin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.session(ctx, chatID, false)
	if err != nil || b == nil {
		return nil, err
	}
	return append([]Pin(nil), b.pins...), nil
}

// SetReply makes msg the target of the caller's next message.
func (c *Container) SetReply(ctx context.Context, chatID string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.session(ctx, chatID, true)
	if err != nil {
		return err
	}
	b.reply = &msg
	return nil
}

// Reply returns the pending reply target.
func (c *Container) Reply(ctx context.Context, chatID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := c.session(ctx, chatID, false)
	if b == nil || b.reply == nil {
		return Message{}, false
	}
	return *b.reply, true
}

// ClearReply drops the pending reply target.
func (c *Container) ClearReply(ctx context.Context, chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, _ := c.session(ctx, chatID, false); b != nil {
		b.reply = nil
	}
}

// SetForward selects msg for forwarding.
func (c *Container) SetForward(ctx context.Context, chatID string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.session(ctx, chatID, true)
	if err != nil {
		return err
	}
	b.forward = &msg
	return nil
}

// Forward returns the message selected for forwarding.
func (c *Container) Forward(ctx context.Context, chatID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := c.session(ctx, chatID, false)
	if b == nil || b.forward == nil {
		return Message{}, false
	}
	return *b.forward, true
}

// Close forgets the caller's transient state for chatID.
func (c *Container) Close(ctx context.Context, chatID string) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.sessions, sessionKey(principal.UID, chatID))
	c.mu.Unlock()
}

func (c *Container) dropPin(chatID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	suffix := "|" + chatID
	for key, b := range c.sessions {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		kept := b.pins[:0]
		for _, p := range b.pins {
			if p.MessageID != messageID {
				kept = append(kept, p)
			}
		}
		b.pins = kept
	}
}

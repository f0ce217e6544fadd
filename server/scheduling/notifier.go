package scheduling

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/emersion/go-ical"
)

// LogNotifier writes iTIP messages to a logger instead of delivering them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(_ context.Context, msg *Message) error {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(msg.Calendar); err != nil {
		return err
	}
	n.Logger.Info("itip message",
		"id", msg.ID,
		"method", msg.Method,
		"uid", msg.UID,
		"originator", msg.Originator,
		"recipients", msg.Recipients,
		"body", buf.String())
	return nil
}

// Outbox collects messages in memory.
type Outbox struct {
	mu       sync.Mutex
	messages []*Message
}

func (o *Outbox) Send(_ context.Context, msg *Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns the messages sent so far.
func (o *Outbox) Messages() []*Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.messages)
}
